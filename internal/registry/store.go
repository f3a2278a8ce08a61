// Package registry is the append-only record of run lifecycle facts and
// KPI snapshots. Events are inserted whole and never edited or deleted;
// "current state" is always a projection over the full stream.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cratelabs/discolake/internal/domain"
)

const timeFormat = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS run_events (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id        TEXT NOT NULL,
		occurred_at     TEXT NOT NULL,
		run_id          TEXT NOT NULL,
		schema_name     TEXT NOT NULL,
		is_active       INTEGER NOT NULL,
		kind            TEXT NOT NULL,
		severity        TEXT NOT NULL,
		detail          TEXT NOT NULL,
		dump_month      TEXT NOT NULL,
		dump_date       TEXT NOT NULL,
		run_mode        TEXT NOT NULL,
		source_revision TEXT NOT NULL,
		schema_version  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kpi_events (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id       TEXT NOT NULL,
		computed_at    TEXT NOT NULL,
		run_id         TEXT NOT NULL,
		schema_name    TEXT NOT NULL,
		kpi_name       TEXT NOT NULL,
		kpi_value      INTEGER NOT NULL,
		status         TEXT NOT NULL,
		detail         TEXT NOT NULL,
		schema_version INTEGER NOT NULL
	)`,
	`CREATE TRIGGER IF NOT EXISTS run_events_no_update BEFORE UPDATE ON run_events
		BEGIN SELECT RAISE(ABORT, 'run_events is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS run_events_no_delete BEFORE DELETE ON run_events
		BEGIN SELECT RAISE(ABORT, 'run_events is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS kpi_events_no_update BEFORE UPDATE ON kpi_events
		BEGIN SELECT RAISE(ABORT, 'kpi_events is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS kpi_events_no_delete BEFORE DELETE ON kpi_events
		BEGIN SELECT RAISE(ABORT, 'kpi_events is append-only'); END`,
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping registry db: %w", err)
	}
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init registry schema: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendRunEvent appends one lifecycle fact. The insert succeeds or fails
// as a whole; there is no partial event.
func (s *Store) AppendRunEvent(ctx context.Context, event domain.RunEvent) error {
	if s == nil || s.db == nil {
		return errors.New("registry store not initialized")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_events (
			event_id, occurred_at, run_id, schema_name, is_active,
			kind, severity, detail, dump_month, dump_date, run_mode,
			source_revision, schema_version
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		event.EventID,
		event.OccurredAt.UTC().Format(timeFormat),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.SchemaName),
		boolToInt(event.IsActive),
		string(event.Kind),
		string(event.Severity),
		event.Detail,
		event.DumpMonth,
		event.DumpDate,
		event.RunMode,
		event.SourceRevision,
		event.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

// ListRunEvents returns the full run event stream in insertion order.
func (s *Store) ListRunEvents(ctx context.Context) ([]domain.RunEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("registry store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT event_id, occurred_at, run_id, schema_name, is_active,
			kind, severity, detail, dump_month, dump_date, run_mode,
			source_revision, schema_version
		 FROM run_events ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.RunEvent, 0)
	for rows.Next() {
		var event domain.RunEvent
		var occurredAt string
		var isActive int
		var kind, severity string
		if err := rows.Scan(
			&event.EventID, &occurredAt, &event.RunID, &event.SchemaName, &isActive,
			&kind, &severity, &event.Detail, &event.DumpMonth, &event.DumpDate,
			&event.RunMode, &event.SourceRevision, &event.SchemaVersion,
		); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		event.OccurredAt, err = time.Parse(timeFormat, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse run event time: %w", err)
		}
		event.IsActive = isActive != 0
		event.Kind = domain.EventKind(kind)
		event.Severity = domain.Severity(severity)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	return events, nil
}

// AppendKPIEvent appends one KPI snapshot, atomically.
func (s *Store) AppendKPIEvent(ctx context.Context, event domain.KPIEvent) error {
	if s == nil || s.db == nil {
		return errors.New("registry store not initialized")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.ComputedAt.IsZero() {
		event.ComputedAt = s.now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO kpi_events (
			event_id, computed_at, run_id, schema_name, kpi_name,
			kpi_value, status, detail, schema_version
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		event.EventID,
		event.ComputedAt.UTC().Format(timeFormat),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.SchemaName),
		strings.TrimSpace(event.KPIName),
		event.Value,
		string(event.Status),
		event.Detail,
		event.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("append kpi event: %w", err)
	}
	return nil
}

// ListKPIEvents returns the full KPI event stream in insertion order.
func (s *Store) ListKPIEvents(ctx context.Context) ([]domain.KPIEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("registry store not initialized")
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT event_id, computed_at, run_id, schema_name, kpi_name,
			kpi_value, status, detail, schema_version
		 FROM kpi_events ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list kpi events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.KPIEvent, 0)
	for rows.Next() {
		var event domain.KPIEvent
		var computedAt string
		var status string
		if err := rows.Scan(
			&event.EventID, &computedAt, &event.RunID, &event.SchemaName,
			&event.KPIName, &event.Value, &status, &event.Detail, &event.SchemaVersion,
		); err != nil {
			return nil, fmt.Errorf("scan kpi event: %w", err)
		}
		event.ComputedAt, err = time.Parse(timeFormat, computedAt)
		if err != nil {
			return nil, fmt.Errorf("parse kpi event time: %w", err)
		}
		event.Status = domain.KPIStatus(status)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list kpi events: %w", err)
	}
	return events, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
