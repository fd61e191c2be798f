package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultConfigFile          = "pgledger.yml"
	DefaultProjectDir          = "."
	DefaultMigrationsDir       = "migrations"
	DefaultSchema              = "public"
	DefaultExecutor            = ExecutorPsql
	DefaultPsqlPath            = "psql"
	DefaultContainerUser       = "postgres"
	DefaultContainerDatabase   = "postgres"
	DefaultExecTimeout         = 5 * time.Minute
	DefaultLockTimeout         = 5 * time.Second
	DefaultStatementTimeout    = 30 * time.Second
	DefaultManifestLockTimeout = 10 * time.Second
	DefaultPreviewLines        = 10
	DefaultFormat              = FormatText
)

// Executor strategy names.
const (
	ExecutorPsql   = "psql"
	ExecutorDocker = "docker"
	ExecutorDriver = "driver"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalidConfig indicates a configuration value outside its allowed set.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	DatabaseURL         string
	ProjectDir          string
	MigrationsDir       string
	Schema              string
	Executor            string
	PsqlPath            string
	Container           string
	ContainerUser       string
	ContainerDatabase   string
	ExecTimeout         time.Duration
	LockTimeout         time.Duration
	StatementTimeout    time.Duration
	ManifestLockTimeout time.Duration
	PreviewLines        int
	Format              string
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL         string `yaml:"database_url"`
	ProjectDir          string `yaml:"project_dir"`
	MigrationsDir       string `yaml:"migrations_dir"`
	Schema              string `yaml:"schema"`
	Executor            string `yaml:"executor"`
	PsqlPath            string `yaml:"psql_path"`
	Container           string `yaml:"container"`
	ContainerUser       string `yaml:"container_user"`
	ContainerDatabase   string `yaml:"container_database"`
	ExecTimeout         string `yaml:"exec_timeout"`
	LockTimeout         string `yaml:"lock_timeout"`
	StatementTimeout    string `yaml:"statement_timeout"`
	ManifestLockTimeout string `yaml:"manifest_lock_timeout"`
	PreviewLines        int    `yaml:"preview_lines"`
	Format              string `yaml:"format"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		ProjectDir:          DefaultProjectDir,
		MigrationsDir:       DefaultMigrationsDir,
		Schema:              DefaultSchema,
		Executor:            DefaultExecutor,
		PsqlPath:            DefaultPsqlPath,
		ContainerUser:       DefaultContainerUser,
		ContainerDatabase:   DefaultContainerDatabase,
		ExecTimeout:         DefaultExecTimeout,
		LockTimeout:         DefaultLockTimeout,
		StatementTimeout:    DefaultStatementTimeout,
		ManifestLockTimeout: DefaultManifestLockTimeout,
		PreviewLines:        DefaultPreviewLines,
		Format:              DefaultFormat,
	}
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.ProjectDir, raw.ProjectDir)
	setString(&cfg.MigrationsDir, raw.MigrationsDir)
	setString(&cfg.Schema, raw.Schema)
	setString(&cfg.Executor, raw.Executor)
	setString(&cfg.PsqlPath, raw.PsqlPath)
	setString(&cfg.Container, raw.Container)
	setString(&cfg.ContainerUser, raw.ContainerUser)
	setString(&cfg.ContainerDatabase, raw.ContainerDatabase)
	setString(&cfg.Format, raw.Format)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"exec_timeout", raw.ExecTimeout, &cfg.ExecTimeout},
		{"lock_timeout", raw.LockTimeout, &cfg.LockTimeout},
		{"statement_timeout", raw.StatementTimeout, &cfg.StatementTimeout},
		{"manifest_lock_timeout", raw.ManifestLockTimeout, &cfg.ManifestLockTimeout},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: %w", d.key, d.raw, err)
		}

		*d.dst = parsed
	}

	if raw.PreviewLines != 0 {
		cfg.PreviewLines = raw.PreviewLines
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// MergeEnv overrides config fields from PGLEDGER_* environment variables.
// Unparseable durations and integers are ignored.
func MergeEnv(cfg *Config) {
	strs := map[string]*string{
		"PGLEDGER_DATABASE_URL":       &cfg.DatabaseURL,
		"PGLEDGER_PROJECT_DIR":        &cfg.ProjectDir,
		"PGLEDGER_MIGRATIONS_DIR":     &cfg.MigrationsDir,
		"PGLEDGER_SCHEMA":             &cfg.Schema,
		"PGLEDGER_EXECUTOR":           &cfg.Executor,
		"PGLEDGER_PSQL_PATH":          &cfg.PsqlPath,
		"PGLEDGER_CONTAINER":          &cfg.Container,
		"PGLEDGER_CONTAINER_USER":     &cfg.ContainerUser,
		"PGLEDGER_CONTAINER_DATABASE": &cfg.ContainerDatabase,
		"PGLEDGER_FORMAT":             &cfg.Format,
	}

	for key, dst := range strs {
		setString(dst, os.Getenv(key))
	}

	durations := map[string]*time.Duration{
		"PGLEDGER_EXEC_TIMEOUT":          &cfg.ExecTimeout,
		"PGLEDGER_LOCK_TIMEOUT":          &cfg.LockTimeout,
		"PGLEDGER_STATEMENT_TIMEOUT":     &cfg.StatementTimeout,
		"PGLEDGER_MANIFEST_LOCK_TIMEOUT": &cfg.ManifestLockTimeout,
	}

	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv("PGLEDGER_PREVIEW_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PreviewLines = n
		}
	}
}

// Validate rejects values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Executor {
	case ExecutorPsql, ExecutorDocker, ExecutorDriver:
	default:
		return fmt.Errorf("%w: unknown executor %q (want psql, docker or driver)", ErrInvalidConfig, c.Executor)
	}

	if c.Executor == ExecutorDocker && c.Container == "" {
		return fmt.Errorf("%w: executor docker requires container", ErrInvalidConfig)
	}

	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}

	if c.PreviewLines <= 0 {
		return fmt.Errorf("%w: preview_lines must be positive, got %d", ErrInvalidConfig, c.PreviewLines)
	}

	if c.ExecTimeout <= 0 {
		return fmt.Errorf("%w: exec_timeout must be positive", ErrInvalidConfig)
	}

	return nil
}
