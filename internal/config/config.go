// Package config assembles the complete runtime configuration once, up
// front. Components receive the validated value and never read ambient
// environment state themselves.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/platform/env"
)

type Config struct {
	// LakeRoot is the base lake directory holding _runs, the active
	// pointer and _meta. It must never point inside _runs.
	LakeRoot string

	// EngineDSN is the external analytical engine's connection string
	// (Postgres wire protocol).
	EngineDSN string

	// EngineLakePath is the lake root as seen by the engine. When the
	// engine runs in a container with the lake mounted elsewhere, DDL
	// external locations must use the engine-side path.
	EngineLakePath string

	// ProjectRoot locates auxiliary files such as kpis.yaml.
	ProjectRoot string

	// RegistryPath is the append-only registry database file.
	RegistryPath string

	// ReportsDir receives CSV history exports.
	ReportsDir string

	// DumpsDir receives fetched source dumps.
	DumpsDir string

	// DumpEndpoint and DumpBucket locate the public dump archive.
	DumpEndpoint string
	DumpBucket   string
	DumpUseSSL   bool

	// EnginePingTimeout bounds the startup ping; EngineMaxConns caps the
	// engine connection pool.
	EnginePingTimeout time.Duration
	EngineMaxConns    int

	// SchemaVersion is stamped on every appended event.
	SchemaVersion int64
}

// FromEnv builds and fully validates a Config from DISCOLAKE_* variables.
// It fails fast, before any storage is touched.
func FromEnv() (Config, error) {
	lakeRoot, err := env.Require("DISCOLAKE_LAKE_ROOT")
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	engineDSN, err := env.Require("DISCOLAKE_ENGINE_DSN")
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	projectRoot, err := env.Require("DISCOLAKE_PROJECT_ROOT")
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	schemaVersion, err := env.Int64("DISCOLAKE_SCHEMA_VERSION", 1)
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	pingTimeout, err := env.Duration("DISCOLAKE_ENGINE_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	maxConns, err := env.Int("DISCOLAKE_ENGINE_MAX_CONNS", 4)
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}
	dumpSSL, err := env.Bool("DISCOLAKE_DUMP_SSL", true)
	if err != nil {
		return Config{}, domain.Wrap(domain.KindConfiguration, "config", err)
	}

	cfg := Config{
		LakeRoot:       filepath.Clean(lakeRoot),
		EngineDSN:      engineDSN,
		EngineLakePath: env.String("DISCOLAKE_ENGINE_LAKE_PATH", filepath.Clean(lakeRoot)),
		ProjectRoot:    filepath.Clean(projectRoot),
		RegistryPath:   env.String("DISCOLAKE_REGISTRY_PATH", ""),
		ReportsDir:     env.String("DISCOLAKE_REPORTS_DIR", ""),
		DumpsDir:       env.String("DISCOLAKE_DUMPS_DIR", ""),
		DumpEndpoint:   env.String("DISCOLAKE_DUMP_ENDPOINT", "s3.us-west-2.amazonaws.com"),
		DumpBucket:     env.String("DISCOLAKE_DUMP_BUCKET", "discogs-data-dumps"),
		DumpUseSSL:     dumpSSL,

		EnginePingTimeout: pingTimeout,
		EngineMaxConns:    maxConns,

		SchemaVersion: schemaVersion,
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RegistryPath == "" && c.LakeRoot != "" {
		c.RegistryPath = filepath.Join(c.LakeRoot, "_meta", "registry.db")
	}
	if c.ReportsDir == "" && c.LakeRoot != "" {
		c.ReportsDir = filepath.Join(c.LakeRoot, "_meta", "reports")
	}
	if c.DumpsDir == "" && c.LakeRoot != "" {
		c.DumpsDir = filepath.Join(c.LakeRoot, "_dumps")
	}
	if c.EngineLakePath == "" {
		c.EngineLakePath = c.LakeRoot
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = 1
	}
	if c.EnginePingTimeout == 0 {
		c.EnginePingTimeout = 2 * time.Second
	}
	if c.EngineMaxConns == 0 {
		c.EngineMaxConns = 4
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.LakeRoot) == "" {
		return domain.E(domain.KindConfiguration, "lake root is required")
	}
	if insideRuns(c.LakeRoot) {
		return domain.E(domain.KindConfiguration, "lake root must be the base lake, not inside %s: %s", domain.RunsDirName, c.LakeRoot)
	}
	if strings.TrimSpace(c.EngineDSN) == "" {
		return domain.E(domain.KindConfiguration, "engine DSN is required")
	}
	if strings.TrimSpace(c.ProjectRoot) == "" {
		return domain.E(domain.KindConfiguration, "project root is required")
	}
	if strings.TrimSpace(c.RegistryPath) == "" {
		return domain.E(domain.KindConfiguration, "registry path is required")
	}
	if c.SchemaVersion < 1 {
		return domain.E(domain.KindConfiguration, "schema version must be >= 1")
	}
	if c.EnginePingTimeout <= 0 {
		return domain.E(domain.KindConfiguration, "engine ping timeout must be positive")
	}
	if c.EngineMaxConns < 1 {
		return domain.E(domain.KindConfiguration, "engine max conns must be >= 1")
	}
	return nil
}

// Normalize fills derived defaults for configs built in code rather than
// from the environment.
func (c *Config) Normalize() error {
	c.applyDefaults()
	return c.Validate()
}

func insideRuns(lakeRoot string) bool {
	sep := string(filepath.Separator)
	return strings.Contains(lakeRoot+sep, sep+domain.RunsDirName+sep)
}

// KPIDefinitionsPath is the optional KPI overrides file under the project root.
func (c Config) KPIDefinitionsPath() string {
	return filepath.Join(c.ProjectRoot, "kpis.yaml")
}
