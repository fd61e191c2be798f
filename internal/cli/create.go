package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/composer"
	"github.com/aqasim81/pgledger/internal/drift"
	"github.com/aqasim81/pgledger/internal/migration"
)

// errConflictingSources is returned when more than one SQL source is requested.
var errConflictingSources = errors.New( //nolint:gochecknoglobals // sentinel error
	"choose one of --auto-detect, --template or --sql-file",
)

var createCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "create <description>",
	Short: "Create a new migration",
	Long: `Create a migration at the next patch version and write its SQL file to
the migrations directory. The SQL comes from --sql-file, from detected schema
drift with --auto-detect, or from an annotated template.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	addCreateFlags(createCmd)
	rootCmd.AddCommand(createCmd)
}

func addCreateFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "migration type (manual, automated, external)")
	cmd.Flags().Bool("auto-detect", false, "generate SQL from detected schema drift")
	cmd.Flags().Bool("ignore-minor", false, "with --auto-detect, ignore default-only changes")
	cmd.Flags().Bool("template", false, "write an annotated SQL template")
	cmd.Flags().String("sql-file", "", "read forward SQL from a file")
	cmd.Flags().String("rollback-file", "", "read rollback SQL from a file")
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg := AppConfig
	out := cmd.OutOrStdout()
	ctx := commandContext(cmd)
	description := strings.Join(args, " ")

	autoDetect, _ := cmd.Flags().GetBool("auto-detect")
	ignoreMinor, _ := cmd.Flags().GetBool("ignore-minor")
	useTemplate, _ := cmd.Flags().GetBool("template")
	sqlFile, _ := cmd.Flags().GetString("sql-file")
	rollbackFile, _ := cmd.Flags().GetString("rollback-file")
	typeName, _ := cmd.Flags().GetString("type")

	if countTrue(autoDetect, useTemplate, sqlFile != "") > 1 {
		return errConflictingSources
	}

	opts := composer.CreateOptions{Template: useTemplate}

	if typeName != "" {
		t, err := migration.ParseType(typeName)
		if err != nil {
			return err
		}

		opts.Type = t
	}

	var err error

	if opts.SQL, err = readOptionalFile(sqlFile); err != nil {
		return err
	}

	if opts.RollbackSQL, err = readOptionalFile(rollbackFile); err != nil {
		return err
	}

	pc, store, err := projectStore(cfg)
	if err != nil {
		return err
	}

	var (
		detector *drift.Detector
		report   *drift.Report
	)

	if autoDetect {
		var closeFn func()

		detector, closeFn, err = newDetector(ctx, cfg, out, pc, store)
		if err != nil {
			return err
		}
		defer closeFn()

		report, err = detector.Scan(ctx, drift.ScanOptions{IgnoreMinor: ignoreMinor})
		if err != nil {
			return err
		}

		printScan(out, report)

		if len(report.Changes) == 0 {
			fmt.Fprintln(out, "Nothing to create.")
			return nil
		}

		opts.FromChanges = report.Changes
	}

	created, err := composer.New(pc, store, composer.WithLogger(logger)).Create(ctx, description, opts)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if detector != nil {
		if err := detector.Accept(ctx, report.Current); err != nil {
			return fmt.Errorf("updating baseline: %w", err)
		}
	}

	printCreated(out, created)

	return nil
}

func printCreated(out io.Writer, c *composer.Created) {
	fmt.Fprintf(out, "Created migration %s (version %s, %s)\n", c.Migration.ID, c.Migration.Version, c.Migration.Type)
	fmt.Fprintf(out, "  File: %s\n", c.Path)

	for _, w := range c.Warnings {
		fmt.Fprintf(out, "  Warning: %s\n", w)
	}

	printHazards(out, c.Hazards)
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return string(data), nil
}

func countTrue(flags ...bool) int {
	n := 0

	for _, f := range flags {
		if f {
			n++
		}
	}

	return n
}
