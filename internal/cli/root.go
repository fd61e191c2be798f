package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/config"
	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/project"
)

const version = "0.1.0"

// AppConfig holds the loaded configuration, set during PersistentPreRunE.
var AppConfig *config.Config //nolint:gochecknoglobals // standard Cobra pattern for shared config

// logger is built from --verbose in PersistentPreRunE.
var logger = slog.New(slog.DiscardHandler) //nolint:gochecknoglobals // set once per invocation

// errDatabaseURLRequired is returned when no database URL is configured.
var errDatabaseURLRequired = errors.New( //nolint:gochecknoglobals // sentinel error
	"database URL is required (set --database-url, PGLEDGER_DATABASE_URL, or database_url in config)",
)

// rootCmd is the base command for the pgledger CLI.
var rootCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:     "pgledger",
	Version: version,
	Short:   "Schema migration ledger and drift detection for PostgreSQL",
	Long: `pgledger keeps a versioned ledger of SQL migrations for a PostgreSQL
database served through PostgREST, applies pending migrations through psql,
a container or a direct connection, records every applied migration in an
audit table, and detects schema drift against a saved baseline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		logger = newLogger(cmd.ErrOrStderr(), verbose)

		return nil
	},
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.PersistentFlags().String("config", config.DefaultConfigFile, "path to configuration file")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("project-dir", "", "project root holding the .pgledger directory")
	rootCmd.PersistentFlags().String("migrations-dir", "", "path to migration files")
	rootCmd.PersistentFlags().String("executor", "", "SQL executor: psql, docker or driver")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration with precedence: flag > env > file.
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	allowMissing := !cmd.Flags().Changed("config")

	cfg, err := config.Load(configPath, allowMissing)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	config.MergeEnv(cfg)
	mergeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	AppConfig = cfg

	return nil
}

// mergeFlags overrides config with explicitly-set CLI flags.
func mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	strs := map[string]*string{
		"database-url":   &cfg.DatabaseURL,
		"project-dir":    &cfg.ProjectDir,
		"migrations-dir": &cfg.MigrationsDir,
		"executor":       &cfg.Executor,
	}

	for name, dst := range strs {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// commandContext returns the command's context, falling back to Background
// when the command is invoked directly in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

// projectStore resolves the project layout and opens its manifest store.
func projectStore(cfg *config.Config) (project.Context, *manifest.Store, error) {
	pc, err := project.New(cfg.ProjectDir, cfg.MigrationsDir)
	if err != nil {
		return project.Context{}, nil, err
	}

	store := manifest.NewStore(pc,
		manifest.WithLockTimeout(cfg.ManifestLockTimeout),
		manifest.WithLogger(logger),
	)

	return pc, store, nil
}

func connectDB(ctx context.Context, cfg *config.Config, out io.Writer) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errDatabaseURLRequired
	}

	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return pool, nil
}
