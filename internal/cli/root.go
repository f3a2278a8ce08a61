// Package cli wires the lifecycle operations into the discolake command.
// Commands read configuration from DISCOLAKE_* variables, log to stderr,
// and exit 2 on operator-correctable failures.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cratelabs/discolake/internal/config"
	"github.com/cratelabs/discolake/internal/engine"
	"github.com/cratelabs/discolake/internal/registry"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool

	log *slog.Logger
}

// Logger returns the root logger, initialized on first use so flag
// parsing has happened.
func (o *RootOptions) Logger() *slog.Logger {
	if o.log == nil {
		level := slog.LevelInfo
		if o.Verbose {
			level = slog.LevelDebug
		}
		o.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return o.log
}

// NewRootCommand creates the discolake root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "discolake",
		Short:         "Run lifecycle operations for the local lakehouse",
		Long:          "discolake observes ingestion runs, validates their structure, registers\ntheir schemas with the query engine, promotes runs atomically, and records\nrun-level KPIs in an append-only registry.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newRegisterSchemaCommand(opts))
	cmd.AddCommand(newPromoteCommand(opts))
	cmd.AddCommand(newComputeKPIsCommand(opts))
	cmd.AddCommand(newExportHistoryCommand(opts))
	cmd.AddCommand(newFindDumpDateCommand(opts))
	cmd.AddCommand(newFetchDumpsCommand(opts))

	return cmd
}

// app bundles the pieces every registry-backed command needs.
type app struct {
	cfg   config.Config
	store *registry.Store
	log   *slog.Logger
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	store, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: store, log: opts.Logger()}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *app) openEngine(ctx context.Context) (*engine.SQLEngine, error) {
	ecfg := engine.DefaultConfig(a.cfg.EngineDSN)
	ecfg.PingTimeout = a.cfg.EnginePingTimeout
	ecfg.MaxOpenConns = a.cfg.EngineMaxConns
	return engine.Open(ctx, ecfg)
}
