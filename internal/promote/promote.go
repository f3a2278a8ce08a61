// Package promote switches the lake's active pointer to a candidate run.
// A promotion either completes fully verified or restores the previous
// pointer; consumers are never left pointing at a partial or missing run.
package promote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/lake"
)

// EventLog is the slice of the registry the controller needs.
type EventLog interface {
	AppendRunEvent(ctx context.Context, event domain.RunEvent) error
}

type Controller struct {
	lakeRoot      string
	schemaVersion int64
	events        EventLog
	pointer       *lake.Pointer
	log           *slog.Logger
	now           func() time.Time
	repoint       func(domain.RunID) (string, error)
	verify        func(domain.RunID) error
}

func NewController(lakeRoot string, schemaVersion int64, events EventLog, log *slog.Logger) (*Controller, error) {
	if lakeRoot == "" {
		return nil, errors.New("promote: lake root is required")
	}
	if events == nil {
		return nil, errors.New("promote: event log is required")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		lakeRoot:      lakeRoot,
		schemaVersion: schemaVersion,
		events:        events,
		pointer:       lake.NewPointer(lakeRoot),
		log:           log,
		now:           time.Now,
	}
	c.repoint = c.pointer.Repoint
	c.verify = c.verifyActive
	return c, nil
}

// Promote publishes the candidate run. The sequence is strict: format
// check, guardrails, structural gate, pointer switch, verification.
// Nothing on disk changes before the gate passes, and a failed
// verification restores the prior pointer before returning.
func (c *Controller) Promote(ctx context.Context, rawRunID, runMode string, allowPromote bool) error {
	id, err := domain.ParseRunID(rawRunID)
	if err != nil {
		return err
	}

	if runMode != domain.RunModeProd || !allowPromote {
		reason := fmt.Sprintf("guardrail: run_mode=%q allow_promote=%v", runMode, allowPromote)
		c.appendRejection(ctx, id, domain.SeverityWarning, reason, domain.Manifest{})
		return domain.E(domain.KindGuardrail, "promotion not allowed: %s", reason)
	}

	runDir := lake.RunDir(c.lakeRoot, id)
	gate, err := lake.Check(runDir, lake.CoreDatasets)
	if err != nil {
		return err
	}
	manifest, merr := domain.LoadManifest(runDir)
	if merr != nil {
		c.log.Warn("run manifest unreadable", "run_id", id.String(), "error", merr)
	}
	if !gate.OK {
		c.appendRejection(ctx, id, domain.SeverityError, gate.Detail(), manifest)
		return domain.E(domain.KindValidation, "run %s not promotable: %s", id, gate.Detail())
	}

	backup, err := c.repoint(id)
	if err != nil {
		// A failed swap may have already relocated the prior pointer to
		// its backup alias; bring it back so a previously resolvable
		// pointer never goes missing.
		if backup != "" {
			if restoreErr := c.pointer.Restore(backup); restoreErr != nil {
				c.log.Error("pointer restore failed", "run_id", id.String(), "backup", backup, "error", restoreErr)
				err = errors.Join(err, restoreErr)
			}
			c.appendEvent(ctx, id, domain.EventPromotionRolledBck, domain.SeverityError, err.Error(), manifest, false)
		}
		return domain.Wrap(domain.KindPromotionIntegrity, "switch active pointer", err)
	}
	c.log.Info("pointer switched", "run_id", id.String(), "backup", backup)

	if err := c.verify(id); err != nil {
		if restoreErr := c.pointer.Restore(backup); restoreErr != nil {
			c.log.Error("pointer restore failed", "run_id", id.String(), "backup", backup, "error", restoreErr)
			err = errors.Join(err, restoreErr)
		}
		c.appendEvent(ctx, id, domain.EventPromotionRolledBck, domain.SeverityError, err.Error(), manifest, false)
		return domain.Wrap(domain.KindPromotionIntegrity, "promotion verification failed", err)
	}

	c.appendEvent(ctx, id, domain.EventPromoted, domain.SeverityInfo, "verified", manifest, true)
	c.log.Info("run promoted", "run_id", id.String(), "schema", id.SchemaName())
	return nil
}

// verifyActive checks the published state as consumers see it: the
// pointer resolves to the candidate and every required dataset is
// reachable through the active path.
func (c *Controller) verifyActive(id domain.RunID) error {
	resolved, ok, err := c.pointer.Resolve()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("active pointer missing after switch")
	}
	if resolved != id {
		return fmt.Errorf("active pointer names %s, want %s", resolved, id)
	}
	for _, dataset := range lake.CoreDatasets {
		path := filepath.Join(c.pointer.ResolvedDir(), filepath.FromSlash(dataset))
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("dataset %s not reachable through active pointer", dataset)
		}
	}
	return nil
}

func (c *Controller) appendRejection(ctx context.Context, id domain.RunID, severity domain.Severity, detail string, manifest domain.Manifest) {
	c.appendEvent(ctx, id, domain.EventPromotionRejected, severity, detail, manifest, false)
}

// appendEvent records a lifecycle fact. Registry failures are logged, not
// propagated: the pointer state is already settled and must win.
func (c *Controller) appendEvent(ctx context.Context, id domain.RunID, kind domain.EventKind, severity domain.Severity, detail string, manifest domain.Manifest, active bool) {
	event := domain.RunEvent{
		OccurredAt:     c.now().UTC(),
		RunID:          id.String(),
		SchemaName:     id.SchemaName(),
		IsActive:       active,
		Kind:           kind,
		Severity:       severity,
		Detail:         detail,
		DumpMonth:      manifest.DumpMonth,
		DumpDate:       manifest.DumpDate,
		RunMode:        manifest.RunMode,
		SourceRevision: manifest.Revision(),
		SchemaVersion:  c.schemaVersion,
	}
	if err := c.events.AppendRunEvent(ctx, event); err != nil {
		c.log.Error("append run event", "run_id", id.String(), "kind", string(kind), "error", err)
	}
}
