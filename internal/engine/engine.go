// Package engine talks to the external analytical query engine over the
// Postgres wire protocol. The engine owns the per-run analytical schemas
// and answers KPI queries; it is never the system of record for lifecycle
// facts.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cratelabs/discolake/internal/domain"
)

type Config struct {
	DSN             string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		PingTimeout:     2 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("engine DSN is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("engine ping timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("engine max open conns must be >= 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("engine max idle conns must be between 0 and max open conns")
	}
	return nil
}

// Engine is the narrow surface the lifecycle core needs from the
// analytical engine. Calls are synchronous; callers bound them with
// context deadlines.
type Engine interface {
	Exec(ctx context.Context, stmt string) error
	QueryInt64(ctx context.Context, query string) (int64, error)
	Ping(ctx context.Context) error
}

// SQLEngine is the pg-wire implementation of Engine.
type SQLEngine struct {
	db *sql.DB
}

func Open(ctx context.Context, cfg Config) (*SQLEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.Wrap(domain.KindConfiguration, "engine config", err)
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, domain.Wrap(domain.KindExternalService, "open engine", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, domain.Wrap(domain.KindExternalService, "ping engine", err)
	}
	return &SQLEngine{db: db}, nil
}

func (e *SQLEngine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *SQLEngine) Exec(ctx context.Context, stmt string) error {
	if e == nil || e.db == nil {
		return errors.New("engine not initialized")
	}
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return domain.Wrap(domain.KindExternalService, "engine exec", err)
	}
	return nil
}

func (e *SQLEngine) QueryInt64(ctx context.Context, query string) (int64, error) {
	if e == nil || e.db == nil {
		return 0, errors.New("engine not initialized")
	}
	var value int64
	if err := e.db.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return 0, domain.Wrap(domain.KindExternalService, fmt.Sprintf("engine query %q", firstLine(query)), err)
	}
	return value, nil
}

func (e *SQLEngine) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return errors.New("engine not initialized")
	}
	if err := e.db.PingContext(ctx); err != nil {
		return domain.Wrap(domain.KindExternalService, "ping engine", err)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
