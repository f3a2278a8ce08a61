// Package reconcile turns the on-disk state of the lake into registry
// facts: it observes run directories, classifies them, and registers
// their analytical schemas with the query engine. Observation is
// idempotent and never mutates the lake.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/lake"
	"github.com/cratelabs/discolake/internal/registry"
)

// EventLog is the slice of the registry the reconciler needs.
type EventLog interface {
	AppendRunEvent(ctx context.Context, event domain.RunEvent) error
	ListRunEvents(ctx context.Context) ([]domain.RunEvent, error)
}

type Reconciler struct {
	lakeRoot      string
	schemaVersion int64
	events        EventLog
	pointer       *lake.Pointer
	log           *slog.Logger
	now           func() time.Time
}

func NewReconciler(lakeRoot string, schemaVersion int64, events EventLog, log *slog.Logger) (*Reconciler, error) {
	if lakeRoot == "" {
		return nil, errors.New("reconcile: lake root is required")
	}
	if events == nil {
		return nil, errors.New("reconcile: event log is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		lakeRoot:      lakeRoot,
		schemaVersion: schemaVersion,
		events:        events,
		pointer:       lake.NewPointer(lakeRoot),
		log:           log,
		now:           time.Now,
	}, nil
}

// Reconcile observes every run directory and appends one classification
// event per run: excluded_active for the published run, otherwise a
// sentinel probe followed by the full required-dataset gate. First
// sightings additionally get a detected event. The returned slice holds
// everything appended, in order.
func (r *Reconciler) Reconcile(ctx context.Context) ([]domain.RunEvent, error) {
	runs, err := lake.ListRuns(r.lakeRoot)
	if err != nil {
		return nil, err
	}
	activeID, hasActive, err := r.pointer.Resolve()
	if err != nil {
		return nil, err
	}

	history, err := r.events.ListRunEvents(ctx)
	if err != nil {
		return nil, err
	}
	latest := registry.LatestPerRun(history)

	var appended []domain.RunEvent
	for _, id := range runs {
		runDir := lake.RunDir(r.lakeRoot, id)
		manifest, err := domain.LoadManifest(runDir)
		if err != nil {
			r.log.Warn("run manifest unreadable", "run_id", id.String(), "error", err)
		}

		base := domain.RunEvent{
			OccurredAt:     r.now().UTC(),
			RunID:          id.String(),
			SchemaName:     id.SchemaName(),
			Severity:       domain.SeverityInfo,
			DumpMonth:      manifest.DumpMonth,
			DumpDate:       manifest.DumpDate,
			RunMode:        manifest.RunMode,
			SourceRevision: manifest.Revision(),
			SchemaVersion:  r.schemaVersion,
		}

		if hasActive && id == activeID {
			event := base
			event.IsActive = true
			event.Kind = domain.EventExcludedActive
			event.Detail = "excluded_by_active_symlink"
			if err := r.append(ctx, event, &appended); err != nil {
				return appended, err
			}
			continue
		}

		if _, seen := latest[id.String()]; !seen {
			event := base
			event.Kind = domain.EventDetected
			event.Detail = "first_observation"
			if err := r.append(ctx, event, &appended); err != nil {
				return appended, err
			}
		}

		event := base
		if !lake.DatasetPresent(runDir, lake.SentinelDataset) {
			event.Kind = domain.EventValidationFailed
			event.Severity = domain.SeverityError
			event.Detail = "sentinel_missing=" + lake.SentinelDataset
			if err := r.append(ctx, event, &appended); err != nil {
				return appended, err
			}
			continue
		}

		gate, err := lake.Check(runDir, lake.CoreDatasets)
		if err != nil {
			return appended, err
		}
		if gate.OK {
			event.Kind = domain.EventValidationPassed
		} else {
			event.Kind = domain.EventValidationFailed
			event.Severity = domain.SeverityError
		}
		event.Detail = gate.Detail()
		if err := r.append(ctx, event, &appended); err != nil {
			return appended, err
		}
	}

	r.log.Info("reconcile complete", "runs", len(runs), "events", len(appended))
	return appended, nil
}

func (r *Reconciler) append(ctx context.Context, event domain.RunEvent, out *[]domain.RunEvent) error {
	if err := r.events.AppendRunEvent(ctx, event); err != nil {
		return err
	}
	*out = append(*out, event)
	return nil
}
