package main

import (
	"github.com/spf13/cobra"

	"github.com/shipway/shipway/pkg/orchestrator"
	"github.com/shipway/shipway/pkg/types"
)

var (
	rollbackTo     string
	rollbackDryRun bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [message]",
	Short: "Re-activate a previously deployed version",
	Long: `Rollback skips build and transfer and enters the deployment flow at
activation with a prior artifact, then verifies and commits exactly like a
forward deployment.

Without --to, the version is resolved from the deployment history: the
newest earlier deployment of a different revision than the last attempt.

Exit codes: 1 failed, 2 rolled back successfully.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := orchestrator.RunOptions{
			Rollback: true,
			DryRun:   rollbackDryRun,
		}
		if len(args) > 0 {
			opts.Message = args[0]
		}
		if rollbackTo != "" {
			ref, err := types.ParseRef(rollbackTo)
			if err != nil {
				return err
			}
			opts.RollbackTo = ref
		}
		return runDeployment(opts)
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackTo, "to", "",
		"explicit version to roll back to (name:revision)")
	rollbackCmd.Flags().BoolVar(&rollbackDryRun, "dry-run", false,
		"report what would be re-activated without changing anything")
}
