package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/composer"
	"github.com/aqasim81/pgledger/internal/config"
	"github.com/aqasim81/pgledger/internal/database"
	"github.com/aqasim81/pgledger/internal/drift"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/project"
	"github.com/aqasim81/pgledger/internal/snapshot"
)

// driftMigrationDescription names migrations created from a scan.
const driftMigrationDescription = "capture schema drift"

var scanCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "scan",
	Short: "Detect schema drift against the saved baseline",
	Long: `Capture the live schema and compare it with the saved baseline. The
first scan records the baseline. Differences are listed by severity and the
database state in the manifest is updated. With --create-migration the
differences become a new migration and the baseline moves forward.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	addScanFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("create-migration", false, "create a migration from the detected changes")
	cmd.Flags().Bool("ignore-minor", false, "ignore default-only changes")
}

// openSchemaSource connects to the configured database for schema capture.
// The returned func releases the connection.
var openSchemaSource = func( //nolint:gochecknoglobals // replaced in tests
	ctx context.Context, cfg *config.Config, out io.Writer,
) (drift.Source, func(), error) {
	pool, err := connectDB(ctx, cfg, out)
	if err != nil {
		return nil, nil, err
	}

	db := database.OpenDB(pool)
	capturer := snapshot.NewCapturer(db, cfg.Schema, snapshot.WithLogger(logger))

	return capturer, func() {
		_ = db.Close()
		pool.Close()
	}, nil
}

func newDetector(
	ctx context.Context, cfg *config.Config, out io.Writer, pc project.Context, store *manifest.Store,
) (*drift.Detector, func(), error) {
	source, closeFn, err := openSchemaSource(ctx, cfg, out)
	if err != nil {
		return nil, nil, err
	}

	return drift.NewDetector(source, snapshot.NewStore(pc), store, drift.WithLogger(logger)), closeFn, nil
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)

	createMigration, _ := cmd.Flags().GetBool("create-migration")
	ignoreMinor, _ := cmd.Flags().GetBool("ignore-minor")

	pc, store, err := projectStore(cfg)
	if err != nil {
		return err
	}

	detector, closeFn, err := newDetector(ctx, cfg, out, pc, store)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := detector.Scan(ctx, drift.ScanOptions{IgnoreMinor: ignoreMinor})
	if err != nil {
		return err
	}

	if cfg.Format == config.FormatJSON && !createMigration {
		return renderJSON(out, report)
	}

	printScan(out, report)

	if !createMigration || len(report.Changes) == 0 {
		return nil
	}

	created, err := composer.New(pc, store, composer.WithLogger(logger)).
		Create(ctx, driftMigrationDescription, composer.CreateOptions{FromChanges: report.Changes})
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := detector.Accept(ctx, report.Current); err != nil {
		return fmt.Errorf("updating baseline: %w", err)
	}

	printCreated(out, created)

	return nil
}

func printScan(out io.Writer, report *drift.Report) {
	if report.Baselined {
		fmt.Fprintf(out, "No baseline found; recorded %d column(s) as the schema baseline.\n", len(report.Current.Columns))
		return
	}

	if len(report.Changes) == 0 {
		fmt.Fprintln(out, "No schema drift detected.")
		return
	}

	t := newTable(out, table.Row{"Severity", "Change", "Table", "Column", "Description"})

	for _, ch := range report.Changes {
		t.AppendRow(table.Row{ch.Severity, ch.Type, ch.Table, ch.Column, ch.Description})
	}

	t.Render()

	fmt.Fprintf(out, "\n%d change(s) detected; database state is %s.\n", len(report.Changes), report.State)
}
