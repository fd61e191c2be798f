package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aqasim81/pgledger/internal/applier"
	"github.com/aqasim81/pgledger/internal/version"
)

var rollbackCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "rollback [steps]",
	Short: "Roll back applied migrations (not implemented)",
	Long: `Roll back previously applied migrations. Rollback is not implemented
yet: the command validates its arguments and always exits with an error
without touching the manifest or the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRollback,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	addRollbackFlags(rollbackCmd)
	rootCmd.AddCommand(rollbackCmd)
}

func addRollbackFlags(cmd *cobra.Command) {
	cmd.Flags().String("to-version", "", "roll back to a specific version")
	cmd.Flags().Bool("dry-run", false, "show what would be rolled back")
	cmd.Flags().Bool("force", false, "skip confirmation")
}

func runRollback(cmd *cobra.Command, args []string) error {
	opts := applier.RollbackOptions{Steps: 1}

	if len(args) == 1 {
		steps, err := strconv.Atoi(args[0])
		if err != nil || steps <= 0 {
			return fmt.Errorf("steps must be a positive integer, got %q", args[0])
		}

		opts.Steps = steps
	}

	opts.ToVersion, _ = cmd.Flags().GetString("to-version")
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Force, _ = cmd.Flags().GetBool("force")

	if opts.ToVersion != "" {
		if _, err := version.Parse(opts.ToVersion); err != nil {
			return err
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Rollback: 0 succeeded, 0 failed.")

	return applier.New(nil, nil, nil, applier.WithLogger(logger)).Rollback(commandContext(cmd), opts)
}
