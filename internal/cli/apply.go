package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/applier"
	"github.com/aqasim81/pgledger/internal/audit"
	"github.com/aqasim81/pgledger/internal/config"
	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/executor"
	"github.com/aqasim81/pgledger/internal/hazard"
)

// errApplyFailed is returned when a migration fails and --force is not set,
// or when every attempted migration failed.
var errApplyFailed = errors.New("apply failed") //nolint:gochecknoglobals // sentinel error

var applyCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "apply",
	Short: "Apply pending migrations",
	Long: `Apply pending migrations in ledger order through the configured
executor (psql, docker or driver). Each applied migration is recorded in the
manifest and in the database audit table. A failure stops the run unless
--force is given.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	addApplyFlags(applyCmd)
	rootCmd.AddCommand(applyCmd)
}

func addApplyFlags(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "apply only migrations up to this version")
	cmd.Flags().Bool("dry-run", false, "show what would be applied without executing")
	cmd.Flags().Bool("force", false, "continue past failed migrations")
}

// runtime bundles what an apply run needs from the target database.
type runtime struct {
	exec     executor.Executor
	recorder applier.Recorder
	lock     applier.LockFunc
	close    func()
}

func runApply(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	target, _ := cmd.Flags().GetString("target")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")

	_, store, err := projectStore(cfg)
	if err != nil {
		return err
	}

	rt := &runtime{close: func() {}}

	if !dryRun {
		rt, err = newRuntime(ctx, cfg, out)
		if err != nil {
			return err
		}
	}
	defer rt.close()

	opts := []applier.Option{
		applier.WithLogger(logger),
		applier.WithPreviewLines(cfg.PreviewLines),
		applier.WithProgressCallback(progressPrinter(out)),
	}

	if rt.lock != nil {
		opts = append(opts, applier.WithAdvisoryLock(rt.lock))
	}

	a := applier.New(store, rt.exec, rt.recorder, opts...)

	result, err := a.Apply(ctx, applier.Options{Target: target, DryRun: dryRun, Force: force})
	if err != nil {
		return err
	}

	if dryRun {
		printPreviews(out, result)
		return nil
	}

	return summarizeApply(out, result, force)
}

// newRuntime builds the executor named in cfg along with the matching
// audit recorder. The driver strategy records through its pool and holds
// an advisory lock; the process strategies record through the executor.
func newRuntime(ctx context.Context, cfg *config.Config, out io.Writer) (*runtime, error) {
	opts := executor.Options{
		Strategy:          cfg.Executor,
		DatabaseURL:       cfg.DatabaseURL,
		Timeout:           cfg.ExecTimeout,
		Logger:            logger,
		PsqlPath:          cfg.PsqlPath,
		Container:         cfg.Container,
		ContainerUser:     cfg.ContainerUser,
		ContainerDatabase: cfg.ContainerDatabase,
		LockTimeout:       cfg.LockTimeout,
		StatementTimeout:  cfg.StatementTimeout,
	}

	switch cfg.Executor {
	case config.ExecutorDriver:
		pool, err := connectDB(ctx, cfg, out)
		if err != nil {
			return nil, err
		}

		opts.Pool = pool

		exec, err := executor.New(opts)
		if err != nil {
			pool.Close()
			return nil, err
		}

		return &runtime{
			exec:     exec,
			recorder: audit.NewPoolRecorder(pool),
			lock: func(ctx context.Context) (func(context.Context) error, error) {
				h, err := database.TryAcquireLock(ctx, pool, database.LockKey(audit.TableName))
				if err != nil {
					return nil, err
				}

				return h.Release, nil
			},
			close: pool.Close,
		}, nil
	case config.ExecutorPsql:
		if cfg.DatabaseURL == "" {
			return nil, errDatabaseURLRequired
		}
	}

	exec, err := executor.New(opts)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Executing through %s\n", exec.Name())

	return &runtime{exec: exec, recorder: audit.NewExecRecorder(exec), close: func() {}}, nil
}

func progressPrinter(out io.Writer) func(applier.ProgressEvent) {
	started := false

	return func(event applier.ProgressEvent) {
		m := event.Migration

		switch event.Status {
		case applier.StatusStarting:
			fmt.Fprintf(out, "  Applying %s %s ... ", m.Version, m.Description)
			started = true
		case applier.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
			started = false
		case applier.StatusFailed:
			if !started {
				fmt.Fprintf(out, "  Refusing %s %s ... ", m.Version, m.Description)
			}

			fmt.Fprintf(out, "FAILED\n    Error: %v\n", event.Error)
			started = false
		}
	}
}

func printPreviews(out io.Writer, result *applier.Result) {
	fmt.Fprintln(out, "\n--- DRY RUN (no changes will be made) ---")

	if len(result.Previews) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return
	}

	for _, p := range result.Previews {
		fmt.Fprintf(out, "\n=== %s %s (%s) ===\n", p.Migration.Version, p.Migration.Description, p.Migration.ID)

		for _, line := range p.Lines {
			fmt.Fprintf(out, "  %s\n", line)
		}

		if p.Truncated {
			fmt.Fprintln(out, "  ...")
		}

		if hs, err := hazard.Inspect(p.Migration.SQL); err == nil {
			printHazards(out, hs)
		}
	}

	fmt.Fprintf(out, "\nDry run complete: %d migration(s) would be applied.\n", len(result.Previews))
}

func summarizeApply(out io.Writer, result *applier.Result, force bool) error {
	if len(result.Succeeded) == 0 && len(result.Failed) == 0 {
		fmt.Fprintf(out, "No pending migrations. Current version %s.\n", result.CurrentVersion)
		return nil
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}

	fmt.Fprintf(out, "\nApply complete: %d succeeded, %d failed. Current version %s, database state %s.\n",
		len(result.Succeeded), len(result.Failed), result.CurrentVersion, result.State)

	if len(result.Failed) == 0 {
		return nil
	}

	if force && result.Partial() {
		fmt.Fprintf(out, "Warning: partial success; %d migration(s) failed:\n", len(result.Failed))

		for _, f := range result.Failed {
			fmt.Fprintf(out, "  - %s %s: %v\n", f.Migration.Version, f.Migration.ID, f.Err)
		}

		return nil
	}

	f := result.Failed[0]

	return fmt.Errorf("%w: migration %s: %w", errApplyFailed, f.Migration.ID, f.Err)
}
