package reconcile

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/lake"
)

type fakeEngine struct {
	statements []string
	failOn     string
}

func (f *fakeEngine) Exec(_ context.Context, stmt string) error {
	if f.failOn != "" && strings.Contains(stmt, f.failOn) {
		return domain.E(domain.KindExternalService, "engine unavailable")
	}
	f.statements = append(f.statements, stmt)
	return nil
}

func (f *fakeEngine) QueryInt64(context.Context, string) (int64, error) {
	return 0, domain.E(domain.KindExternalService, "not implemented")
}

func (f *fakeEngine) Ping(context.Context) error { return nil }

func newTestRegistrar(t *testing.T, lakeRoot string, eng *fakeEngine, events EventLog) *Registrar {
	t.Helper()
	r, err := NewRegistrar(lakeRoot, "/data/hive-data", 1, eng, events, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewRegistrar err=%v", err)
	}
	return r
}

func TestRegisterSchemaExecutesDDL(t *testing.T) {
	lakeRoot := t.TempDir()
	datasets := append(append([]string{}, lake.CoreDatasets...), "warehouse_discogs/release_artists_v1")
	writeRun(t, lakeRoot, "2026-01__20260120_205549", datasets...)

	eng := &fakeEngine{}
	events := &memEventLog{}
	if err := newTestRegistrar(t, lakeRoot, eng, events).RegisterSchema(context.Background(), "2026-01__20260120_205549"); err != nil {
		t.Fatalf("RegisterSchema err=%v", err)
	}

	if len(eng.statements) == 0 || !strings.Contains(eng.statements[0], "CREATE SCHEMA IF NOT EXISTS hive.discogs_r_2026_01__20260120_205549") {
		t.Fatalf("schema statement must come first, got %v", eng.statements[:1])
	}
	joined := strings.Join(eng.statements, ";\n")
	if !strings.Contains(joined, "external_location='file:/data/hive-data/_runs/2026-01__20260120_205549/releases_v6'") {
		t.Fatalf("core table not registered against engine lake path")
	}
	if !strings.Contains(joined, "release_artists_v1") {
		t.Fatalf("present warehouse dataset not registered")
	}
	if strings.Contains(joined, "artist_name_map_v1") {
		t.Fatalf("absent warehouse dataset must be skipped")
	}

	if len(events.events) != 1 || events.events[0].Kind != domain.EventSchemaRegistered {
		t.Fatalf("events=%+v", events.events)
	}
	if !strings.Contains(events.events[0].Detail, "warehouse_datasets=1") {
		t.Fatalf("detail=%q", events.events[0].Detail)
	}
}

func TestRegisterSchemaRejectsBadFormat(t *testing.T) {
	eng := &fakeEngine{}
	err := newTestRegistrar(t, t.TempDir(), eng, &memEventLog{}).RegisterSchema(context.Background(), "2026/01/20")
	if err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
	if len(eng.statements) != 0 {
		t.Fatalf("engine must not be touched on format failure")
	}
}

func TestRegisterSchemaGateFailure(t *testing.T) {
	lakeRoot := t.TempDir()
	writeRun(t, lakeRoot, "20260120_205549", "artists_v1_typed")

	eng := &fakeEngine{}
	events := &memEventLog{}
	err := newTestRegistrar(t, lakeRoot, eng, events).RegisterSchema(context.Background(), "20260120_205549")
	if err == nil || !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(eng.statements) != 0 || len(events.events) != 0 {
		t.Fatalf("no DDL or events on gate failure")
	}
}

func TestRegisterSchemaEngineFailureWritesNoEvent(t *testing.T) {
	lakeRoot := t.TempDir()
	writeRun(t, lakeRoot, "20260120_205549", lake.CoreDatasets...)

	eng := &fakeEngine{failOn: "releases_ref_v6"}
	events := &memEventLog{}
	err := newTestRegistrar(t, lakeRoot, eng, events).RegisterSchema(context.Background(), "20260120_205549")
	if err == nil || !domain.IsKind(err, domain.KindExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatalf("engine failure must not append events, got %+v", events.events)
	}
}
