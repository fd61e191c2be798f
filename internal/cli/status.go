package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/config"
	"github.com/aqasim81/pgledger/internal/manifest"
	"github.com/aqasim81/pgledger/internal/migration"
	"github.com/aqasim81/pgledger/internal/project"
)

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show migration status",
	Long: `Display the ledger: current version, database state, and every
migration with whether it has been applied. With --detailed each migration's
SQL file and checksum are verified as well.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	addStatusFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}

func addStatusFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("detailed", false, "verify SQL files and checksums")
	cmd.Flags().String("format", "", "output format (text, json)")
}

type statusMigration struct {
	ID          string         `json:"id"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Type        migration.Type `json:"type"`
	Applied     bool           `json:"applied"`
	AppliedAt   *time.Time     `json:"appliedAt,omitempty"`
	Checksum    string         `json:"checksum,omitempty"`
	File        string         `json:"file,omitempty"`
}

type statusReport struct {
	CurrentVersion string                 `json:"currentVersion"`
	DatabaseState  manifest.DatabaseState `json:"databaseState"`
	LastSync       time.Time              `json:"lastSync"`
	Total          int                    `json:"total"`
	Applied        int                    `json:"applied"`
	Pending        int                    `json:"pending"`
	Migrations     []statusMigration      `json:"migrations"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	format := cfg.Format
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		format = f
	}

	detailed, _ := cmd.Flags().GetBool("detailed")

	pc, store, err := projectStore(cfg)
	if err != nil {
		return err
	}

	t, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	report := buildStatus(pc, t, detailed)

	switch format {
	case config.FormatJSON:
		return renderJSON(cmd.OutOrStdout(), report)
	case config.FormatText:
		printStatus(cmd.OutOrStdout(), report, detailed)
		return nil
	default:
		return fmt.Errorf("%w: unknown format %q", config.ErrInvalidConfig, format)
	}
}

func buildStatus(pc project.Context, t *manifest.Tracker, detailed bool) statusReport {
	counts := t.Counts()

	r := statusReport{
		CurrentVersion: t.CurrentVersion,
		DatabaseState:  t.DatabaseState,
		LastSync:       t.LastSync,
		Total:          counts.Total,
		Applied:        counts.Applied,
		Pending:        counts.Pending,
		Migrations:     make([]statusMigration, 0, len(t.Migrations)),
	}

	for _, m := range t.Migrations {
		sm := statusMigration{
			ID:          m.ID,
			Version:     m.Version,
			Description: m.Description,
			Type:        m.Type,
			Applied:     m.Applied,
			AppliedAt:   m.AppliedAt,
		}

		if detailed {
			sm.Checksum = "ok"
			if !m.ChecksumValid() {
				sm.Checksum = "mismatch"
			}

			sm.File = string(migration.VerifyFile(pc.MigrationsDir, m))
		}

		r.Migrations = append(r.Migrations, sm)
	}

	return r
}

func printStatus(out io.Writer, r statusReport, detailed bool) {
	fmt.Fprintf(out, "Current version: %s\n", r.CurrentVersion)
	fmt.Fprintf(out, "Database state:  %s\n", r.DatabaseState)
	fmt.Fprintf(out, "Last sync:       %s\n", formatTime(&r.LastSync))
	fmt.Fprintf(out, "Migrations:      %d total, %d applied, %d pending\n", r.Total, r.Applied, r.Pending)

	if len(r.Migrations) == 0 {
		fmt.Fprintln(out, "\nNo migrations yet. Create one with `pgledger create <description>`.")
		return
	}

	fmt.Fprintln(out)

	header := table.Row{"Version", "ID", "Description", "Type", "Status", "Applied At"}
	if detailed {
		header = append(header, "Checksum", "File")
	}

	t := newTable(out, header)

	problems := 0

	for _, m := range r.Migrations {
		status := "pending"
		if m.Applied {
			status = "applied"
		}

		row := table.Row{m.Version, m.ID, m.Description, m.Type, status, formatTime(m.AppliedAt)}
		if detailed {
			row = append(row, m.Checksum, m.File)

			if m.Checksum != "ok" || m.File != string(migration.FileOK) {
				problems++
			}
		}

		t.AppendRow(row)
	}

	t.Render()

	if detailed && problems > 0 {
		fmt.Fprintf(out, "\nWarning: %d migration(s) have integrity problems.\n", problems)
	}
}
