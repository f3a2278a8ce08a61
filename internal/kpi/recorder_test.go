package kpi

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
)

type memEventLog struct {
	runEvents []domain.RunEvent
	kpiEvents []domain.KPIEvent
}

func (m *memEventLog) ListRunEvents(context.Context) ([]domain.RunEvent, error) {
	out := make([]domain.RunEvent, len(m.runEvents))
	copy(out, m.runEvents)
	return out, nil
}

func (m *memEventLog) AppendKPIEvent(_ context.Context, event domain.KPIEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	m.kpiEvents = append(m.kpiEvents, event)
	return nil
}

type fakeEngine struct {
	query func(string) (int64, error)
}

func (f *fakeEngine) Exec(context.Context, string) error { return nil }

func (f *fakeEngine) QueryInt64(_ context.Context, query string) (int64, error) {
	return f.query(query)
}

func (f *fakeEngine) Ping(context.Context) error { return nil }

func runEvent(runID string, kind domain.EventKind, active bool) domain.RunEvent {
	id, _ := domain.ParseRunID(runID)
	return domain.RunEvent{
		OccurredAt:    time.Date(2026, 1, 21, 9, 0, 0, 0, time.UTC),
		RunID:         runID,
		SchemaName:    id.SchemaName(),
		IsActive:      active,
		Kind:          kind,
		Severity:      domain.SeverityInfo,
		SchemaVersion: 1,
	}
}

func newTestRecorder(t *testing.T, eng *fakeEngine, events EventLog, defs []Definition) *Recorder {
	t.Helper()
	r, err := NewRecorder(eng, events, defs, 1, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("NewRecorder err=%v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 2, 20, 12, 30, 0, 0, time.UTC) }
	return r
}

var testDefs = []Definition{
	{Name: "n_releases_distinct", Query: "SELECT CAST(count(DISTINCT release_id) AS BIGINT) FROM {schema}.releases_ref_v6"},
	{Name: "n_release_artist_links", Query: "SELECT CAST(count(*) AS BIGINT) FROM {schema}.release_artists_v1"},
}

func TestRecordValidatedRuns(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260120_205549", domain.EventValidationPassed, false),
		runEvent("20260121_000000", domain.EventValidationFailed, false),
		runEvent("20260122_000000", domain.EventValidationPassed, true),
	}}
	eng := &fakeEngine{query: func(query string) (int64, error) {
		if strings.Contains(query, "releases_ref_v6") {
			return 100, nil
		}
		return 250, nil
	}}

	appended, err := newTestRecorder(t, eng, events, testDefs).Record(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Record err=%v", err)
	}

	// One candidate: failed run and active run are skipped. Two base KPIs
	// plus one derived ratio.
	byName := map[string]domain.KPIEvent{}
	for _, event := range appended {
		if event.RunID != "20260120_205549" {
			t.Fatalf("unexpected run measured: %s", event.RunID)
		}
		byName[event.KPIName] = event
	}
	if len(byName) != 3 {
		t.Fatalf("kpis=%v", byName)
	}
	if byName["n_releases_distinct"].Value != 100 {
		t.Fatalf("n_releases_distinct=%d", byName["n_releases_distinct"].Value)
	}
	if byName["avg_artists_per_release_bp"].Value != 25000 {
		t.Fatalf("avg_artists_per_release_bp=%d", byName["avg_artists_per_release_bp"].Value)
	}
	if byName["n_releases_distinct"].SchemaName != "discogs_r_20260120_205549" {
		t.Fatalf("SchemaName=%q", byName["n_releases_distinct"].SchemaName)
	}
}

func TestRecordIncludeActive(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260122_000000", domain.EventValidationPassed, true),
	}}
	eng := &fakeEngine{query: func(string) (int64, error) { return 1, nil }}

	appended, err := newTestRecorder(t, eng, events, testDefs).Record(context.Background(), Options{IncludeActive: true})
	if err != nil {
		t.Fatalf("Record err=%v", err)
	}
	if len(appended) == 0 {
		t.Fatalf("expected active run to be measured")
	}
}

func TestRecordExplicitRunMustBeValidated(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260121_000000", domain.EventValidationFailed, false),
	}}
	eng := &fakeEngine{query: func(string) (int64, error) { return 1, nil }}
	r := newTestRecorder(t, eng, events, testDefs)

	// Never observed at all.
	_, err := r.Record(context.Background(), Options{RunID: "20260120_205549"})
	if err == nil || !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error for unknown run, got %v", err)
	}
	// Observed but failed.
	_, err = r.Record(context.Background(), Options{RunID: "20260121_000000"})
	if err == nil || !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("expected validation error for failed run, got %v", err)
	}
}

func TestRecordRejectsBadRunIDFormat(t *testing.T) {
	eng := &fakeEngine{query: func(string) (int64, error) { return 1, nil }}
	_, err := newTestRecorder(t, eng, &memEventLog{}, testDefs).Record(context.Background(), Options{RunID: "2026/01/20"})
	if err == nil || !domain.IsKind(err, domain.KindFormat) {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestRecordFailedQueryBecomesEvent(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260120_205549", domain.EventValidationPassed, false),
	}}
	eng := &fakeEngine{query: func(query string) (int64, error) {
		if strings.Contains(query, "release_artists_v1") {
			return 0, domain.E(domain.KindExternalService, "table not found")
		}
		return 100, nil
	}}

	appended, err := newTestRecorder(t, eng, events, testDefs).Record(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Record err=%v", err)
	}

	var failed *domain.KPIEvent
	for i := range appended {
		if appended[i].KPIName == "n_release_artist_links" {
			failed = &appended[i]
		}
		// The failed numerator must not produce a derived ratio.
		if appended[i].KPIName == "avg_artists_per_release_bp" {
			t.Fatalf("derived KPI computed from failed base")
		}
	}
	if failed == nil || failed.Status != domain.KPIStatusFailedQuery {
		t.Fatalf("expected failed_query event, got %+v", failed)
	}
	if failed.Detail == "" {
		t.Fatalf("failed event must carry the error detail")
	}
}

func TestRecordStrictAborts(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260120_205549", domain.EventValidationPassed, false),
	}}
	eng := &fakeEngine{query: func(string) (int64, error) {
		return 0, domain.E(domain.KindExternalService, "engine down")
	}}

	_, err := newTestRecorder(t, eng, events, testDefs).Record(context.Background(), Options{Strict: true})
	if err == nil || !domain.IsKind(err, domain.KindExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if len(events.kpiEvents) != 0 {
		t.Fatalf("strict mode must not record failed computations")
	}
}

func TestRecordOnlySkipsDerived(t *testing.T) {
	events := &memEventLog{runEvents: []domain.RunEvent{
		runEvent("20260120_205549", domain.EventValidationPassed, false),
	}}
	eng := &fakeEngine{query: func(string) (int64, error) { return 9, nil }}

	appended, err := newTestRecorder(t, eng, events, testDefs).Record(context.Background(), Options{Only: []string{"n_releases_distinct"}})
	if err != nil {
		t.Fatalf("Record err=%v", err)
	}
	if len(appended) != 1 || appended[0].KPIName != "n_releases_distinct" {
		t.Fatalf("appended=%v", appended)
	}
}
