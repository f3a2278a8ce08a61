package kpi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/engine"
	"github.com/cratelabs/discolake/internal/registry"
)

// EventLog is the slice of the registry the recorder needs: run history
// for candidate selection and the KPI stream for appends.
type EventLog interface {
	ListRunEvents(ctx context.Context) ([]domain.RunEvent, error)
	AppendKPIEvent(ctx context.Context, event domain.KPIEvent) error
}

type Options struct {
	// RunID restricts recording to one run; empty means every candidate.
	RunID string
	// IncludeActive also measures the currently published run.
	IncludeActive bool
	// Only restricts to the named base KPIs. Derived KPIs are skipped
	// then, since their inputs may be incomplete.
	Only []string
	// Strict aborts on the first failed computation instead of recording
	// it as a failed_query event.
	Strict bool
}

type Recorder struct {
	eng           engine.Engine
	events        EventLog
	defs          []Definition
	schemaVersion int64
	log           *slog.Logger
	now           func() time.Time
}

func NewRecorder(eng engine.Engine, events EventLog, defs []Definition, schemaVersion int64, log *slog.Logger) (*Recorder, error) {
	if eng == nil {
		return nil, errors.New("kpi: engine is required")
	}
	if events == nil {
		return nil, errors.New("kpi: event log is required")
	}
	if len(defs) == 0 {
		defs = BuiltinDefinitions()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		eng:           eng,
		events:        events,
		defs:          defs,
		schemaVersion: schemaVersion,
		log:           log,
		now:           time.Now,
	}, nil
}

// Record measures every candidate run and appends one KPI event per
// computation. Candidates are runs whose latest classification is
// validation_passed; naming a run that has not passed is an error, not a
// skip. The returned slice holds everything appended.
func (r *Recorder) Record(ctx context.Context, opts Options) ([]domain.KPIEvent, error) {
	if opts.RunID != "" {
		if _, err := domain.ParseRunID(opts.RunID); err != nil {
			return nil, err
		}
	}

	history, err := r.events.ListRunEvents(ctx)
	if err != nil {
		return nil, err
	}
	latest := registry.LatestPerRun(history)

	var candidates []domain.RunEvent
	if opts.RunID != "" {
		event, seen := latest[opts.RunID]
		if !seen {
			return nil, domain.E(domain.KindValidation, "run %s has never been observed", opts.RunID)
		}
		if !eligible(event, true) {
			return nil, domain.E(domain.KindValidation, "run %s is not validated (latest: %s)", opts.RunID, event.Kind)
		}
		candidates = append(candidates, event)
	} else {
		for _, event := range latest {
			if eligible(event, opts.IncludeActive) {
				candidates = append(candidates, event)
			}
		}
	}

	only := map[string]bool{}
	for _, name := range opts.Only {
		only[name] = true
	}

	var appended []domain.KPIEvent
	for _, candidate := range candidates {
		schemaName := candidate.SchemaName
		if schemaName == "" {
			id, err := domain.ParseRunID(candidate.RunID)
			if err != nil {
				return appended, err
			}
			schemaName = id.SchemaName()
		}

		base := map[string]int64{}
		for _, def := range r.defs {
			if len(only) > 0 && !only[def.Name] {
				continue
			}
			value, err := r.eng.QueryInt64(ctx, def.Render(schemaName))
			if err != nil {
				if opts.Strict {
					return appended, err
				}
				r.log.Warn("kpi computation failed", "run_id", candidate.RunID, "kpi", def.Name, "error", err)
				if err := r.append(ctx, candidate.RunID, schemaName, def.Name, 0, domain.KPIStatusFailedQuery, err.Error(), &appended); err != nil {
					return appended, err
				}
				continue
			}
			base[def.Name] = value
			if err := r.append(ctx, candidate.RunID, schemaName, def.Name, value, domain.KPIStatusOK, "", &appended); err != nil {
				return appended, err
			}
		}

		// Derived ratios only make sense over a full base pass.
		if len(only) > 0 {
			continue
		}
		for _, derived := range deriveAll(base) {
			if err := r.append(ctx, candidate.RunID, schemaName, derived.name, derived.value, domain.KPIStatusOK, "", &appended); err != nil {
				return appended, err
			}
		}
	}

	r.log.Info("kpi recording complete", "candidates", len(candidates), "events", len(appended))
	return appended, nil
}

func eligible(event domain.RunEvent, includeActive bool) bool {
	if event.IsActive && !includeActive {
		return false
	}
	return event.Kind == domain.EventValidationPassed
}

func (r *Recorder) append(ctx context.Context, runID, schemaName, name string, value int64, status domain.KPIStatus, detail string, out *[]domain.KPIEvent) error {
	event := domain.KPIEvent{
		ComputedAt:    r.now().UTC(),
		RunID:         runID,
		SchemaName:    schemaName,
		KPIName:       name,
		Value:         value,
		Status:        status,
		Detail:        detail,
		SchemaVersion: r.schemaVersion,
	}
	if err := r.events.AppendKPIEvent(ctx, event); err != nil {
		return err
	}
	*out = append(*out, event)
	return nil
}
