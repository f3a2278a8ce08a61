package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/engine"
	"github.com/cratelabs/discolake/internal/lake"
)

// Registrar ensures a run's analytical schema exists in the external
// query engine: per-run schema, external tables over the run's datasets,
// and canonical views. All DDL is idempotent so re-registration is safe.
type Registrar struct {
	lakeRoot       string
	engineLakePath string
	schemaVersion  int64
	eng            engine.Engine
	events         EventLog
	log            *slog.Logger
	now            func() time.Time
}

func NewRegistrar(lakeRoot, engineLakePath string, schemaVersion int64, eng engine.Engine, events EventLog, log *slog.Logger) (*Registrar, error) {
	if lakeRoot == "" {
		return nil, errors.New("reconcile: lake root is required")
	}
	if eng == nil {
		return nil, errors.New("reconcile: engine is required")
	}
	if events == nil {
		return nil, errors.New("reconcile: event log is required")
	}
	if engineLakePath == "" {
		engineLakePath = lakeRoot
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{
		lakeRoot:       lakeRoot,
		engineLakePath: engineLakePath,
		schemaVersion:  schemaVersion,
		eng:            eng,
		events:         events,
		log:            log,
		now:            time.Now,
	}, nil
}

// RegisterSchema validates the run structurally, then creates its schema,
// core tables and views, and any warehouse datasets whose directories
// exist. Engine failures abort without a registry write; a
// schema_registered event is appended only after all DDL succeeded.
func (r *Registrar) RegisterSchema(ctx context.Context, rawRunID string) error {
	id, err := domain.ParseRunID(rawRunID)
	if err != nil {
		return err
	}
	runDir := lake.RunDir(r.lakeRoot, id)

	gate, err := lake.Check(runDir, lake.CoreDatasets)
	if err != nil {
		return err
	}
	if !gate.OK {
		return domain.E(domain.KindValidation, "run %s not registrable: %s", id, gate.Detail())
	}

	schema := id.SchemaName()
	runBase := engine.RunBase(r.engineLakePath, id)
	if err := r.eng.Exec(ctx, engine.SchemaStatement(schema, r.engineLakePath)); err != nil {
		return err
	}
	for _, stmt := range engine.CoreStatements(schema, runBase) {
		if err := r.eng.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	registered := 0
	for _, dataset := range lake.WarehouseDatasets {
		if !lake.DatasetPresent(runDir, dataset) {
			r.log.Warn("warehouse dataset missing", "run_id", id.String(), "dataset", dataset)
			continue
		}
		stmts, ok := engine.WarehouseStatements(schema, runBase, dataset)
		if !ok {
			continue
		}
		for _, stmt := range stmts {
			if err := r.eng.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		registered++
	}

	manifest, err := domain.LoadManifest(runDir)
	if err != nil {
		r.log.Warn("run manifest unreadable", "run_id", id.String(), "error", err)
	}
	event := domain.RunEvent{
		OccurredAt:     r.now().UTC(),
		RunID:          id.String(),
		SchemaName:     schema,
		Kind:           domain.EventSchemaRegistered,
		Severity:       domain.SeverityInfo,
		Detail:         fmt.Sprintf("core_tables=%d warehouse_datasets=%d", len(lake.CoreDatasets), registered),
		DumpMonth:      manifest.DumpMonth,
		DumpDate:       manifest.DumpDate,
		RunMode:        manifest.RunMode,
		SourceRevision: manifest.Revision(),
		SchemaVersion:  r.schemaVersion,
	}
	if err := r.events.AppendRunEvent(ctx, event); err != nil {
		return err
	}
	r.log.Info("schema registered", "run_id", id.String(), "schema", schema, "warehouse_datasets", registered)
	return nil
}
