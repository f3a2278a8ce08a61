package reconcile

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/lake"
	"github.com/cratelabs/discolake/internal/registry"
)

type memEventLog struct {
	events []domain.RunEvent
}

func (m *memEventLog) AppendRunEvent(_ context.Context, event domain.RunEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memEventLog) ListRunEvents(_ context.Context) ([]domain.RunEvent, error) {
	out := make([]domain.RunEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func writeRun(t *testing.T, lakeRoot, runID string, datasets ...string) string {
	t.Helper()
	runDir := filepath.Join(lakeRoot, "_runs", runID)
	for _, dataset := range datasets {
		dir := filepath.Join(runDir, filepath.FromSlash(dataset))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "part-00000.parquet"), []byte("x"), 0o644); err != nil {
			t.Fatalf("write data file: %v", err)
		}
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}
	return runDir
}

func writeManifest(t *testing.T, runDir string, manifest domain.Manifest) {
	t.Helper()
	raw, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, domain.ManifestFileName), raw, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func linkActive(t *testing.T, lakeRoot, runID string) {
	t.Helper()
	if err := os.Symlink(filepath.Join("_runs", runID), filepath.Join(lakeRoot, "active")); err != nil {
		t.Fatalf("symlink active: %v", err)
	}
}

func newTestReconciler(t *testing.T, lakeRoot string, events EventLog) *Reconciler {
	t.Helper()
	r, err := NewReconciler(lakeRoot, 1, events, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewReconciler err=%v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 2, 20, 12, 30, 0, 0, time.UTC) }
	return r
}

func TestReconcileClassifiesRuns(t *testing.T) {
	lakeRoot := t.TempDir()
	complete := "20260120_205549"
	incomplete := "20260121_000000"
	noSentinel := "20260122_000000"
	active := "2026-01__20260119_000000"

	dir := writeRun(t, lakeRoot, complete, lake.CoreDatasets...)
	writeManifest(t, dir, domain.Manifest{DumpMonth: "2026-01", DumpDate: "20260115", RunMode: domain.RunModeProd, SourceRevision: "abc123"})
	writeRun(t, lakeRoot, incomplete, "artists_v1_typed", "releases_v6")
	writeRun(t, lakeRoot, noSentinel, "artists_v1_typed")
	writeRun(t, lakeRoot, active, lake.CoreDatasets...)
	linkActive(t, lakeRoot, active)

	log := &memEventLog{}
	appended, err := newTestReconciler(t, lakeRoot, log).Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}

	latest := registry.LatestPerRun(appended)
	if latest[complete].Kind != domain.EventValidationPassed {
		t.Fatalf("complete run latest=%v", latest[complete].Kind)
	}
	if latest[complete].SourceRevision != "abc123" || latest[complete].DumpMonth != "2026-01" {
		t.Fatalf("manifest metadata not carried: %+v", latest[complete])
	}
	if latest[incomplete].Kind != domain.EventValidationFailed || latest[incomplete].Severity != domain.SeverityError {
		t.Fatalf("incomplete run latest=%+v", latest[incomplete])
	}
	if latest[noSentinel].Kind != domain.EventValidationFailed {
		t.Fatalf("sentinel-missing run latest=%v", latest[noSentinel].Kind)
	}
	if latest[noSentinel].Detail != "sentinel_missing=releases_v6" {
		t.Fatalf("sentinel detail=%q", latest[noSentinel].Detail)
	}
	if latest[active].Kind != domain.EventExcludedActive || !latest[active].IsActive {
		t.Fatalf("active run latest=%+v", latest[active])
	}

	// Non-active runs get a detected event on first sight.
	detected := map[string]bool{}
	for _, event := range appended {
		if event.Kind == domain.EventDetected {
			detected[event.RunID] = true
		}
	}
	for _, runID := range []string{complete, incomplete, noSentinel} {
		if !detected[runID] {
			t.Fatalf("missing detected event for %s", runID)
		}
	}
	if detected[active] {
		t.Fatalf("active run must not be detected")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	lakeRoot := t.TempDir()
	writeRun(t, lakeRoot, "20260120_205549", lake.CoreDatasets...)

	log := &memEventLog{}
	r := newTestReconciler(t, lakeRoot, log)
	ctx := context.Background()

	first, err := r.Reconcile(ctx)
	if err != nil {
		t.Fatalf("first Reconcile err=%v", err)
	}
	second, err := r.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second Reconcile err=%v", err)
	}

	// Detected only on first sight; classification appended every pass.
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("first=%d second=%d", len(first), len(second))
	}
	all, _ := log.ListRunEvents(ctx)
	latest := registry.LatestPerRun(all)
	if latest["20260120_205549"].Kind != domain.EventValidationPassed {
		t.Fatalf("latest after two passes=%v", latest["20260120_205549"].Kind)
	}
}

func TestReconcileDoesNotTouchPointer(t *testing.T) {
	lakeRoot := t.TempDir()
	writeRun(t, lakeRoot, "20260120_205549", lake.CoreDatasets...)
	linkActive(t, lakeRoot, "20260120_205549")

	if _, err := newTestReconciler(t, lakeRoot, &memEventLog{}).Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}
	target, err := os.Readlink(filepath.Join(lakeRoot, "active"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if filepath.ToSlash(target) != "_runs/20260120_205549" {
		t.Fatalf("pointer moved to %q", target)
	}
}

func TestReconcileMissingRunsDir(t *testing.T) {
	_, err := newTestReconciler(t, t.TempDir(), &memEventLog{}).Reconcile(context.Background())
	if err == nil || !domain.IsKind(err, domain.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
