package domain

import (
	"errors"
	"strings"
	"time"
)

// EventKind names a run lifecycle fact. The registry is append-only, so a
// run's current classification is whatever its most recent event says.
type EventKind string

const (
	EventDetected           EventKind = "detected"
	EventSchemaRegistered   EventKind = "schema_registered"
	EventValidationPassed   EventKind = "validation_passed"
	EventValidationFailed   EventKind = "validation_failed"
	EventExcludedActive     EventKind = "excluded_active"
	EventPromoted           EventKind = "promoted"
	EventPromotionRejected  EventKind = "promotion_rejected"
	EventPromotionRolledBck EventKind = "promotion_rolled_back"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// RunEvent is an immutable lifecycle fact. Events are never edited or
// deleted once appended.
type RunEvent struct {
	EventID        string
	OccurredAt     time.Time
	RunID          string
	SchemaName     string
	IsActive       bool
	Kind           EventKind
	Severity       Severity
	Detail         string
	DumpMonth      string
	DumpDate       string
	RunMode        string
	SourceRevision string
	SchemaVersion  int64
}

func (e RunEvent) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(string(e.Kind)) == "" {
		return errors.New("Kind is required")
	}
	if strings.TrimSpace(string(e.Severity)) == "" {
		return errors.New("Severity is required")
	}
	return nil
}

// KPIStatus distinguishes a computed value from a failed computation.
type KPIStatus string

const (
	KPIStatusOK          KPIStatus = "ok"
	KPIStatusFailedQuery KPIStatus = "failed_query"
)

// KPIEvent is an immutable metric snapshot for one run.
type KPIEvent struct {
	EventID       string
	ComputedAt    time.Time
	RunID         string
	SchemaName    string
	KPIName       string
	Value         int64
	Status        KPIStatus
	Detail        string
	SchemaVersion int64
}

func (e KPIEvent) Validate() error {
	if e.ComputedAt.IsZero() {
		return errors.New("ComputedAt is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(e.KPIName) == "" {
		return errors.New("KPIName is required")
	}
	if e.Status != KPIStatusOK && e.Status != KPIStatusFailedQuery {
		return errors.New("Status must be ok or failed_query")
	}
	return nil
}
