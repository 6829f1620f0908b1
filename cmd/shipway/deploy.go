package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shipway/shipway/pkg/artifact"
	"github.com/shipway/shipway/pkg/builder"
	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/health"
	"github.com/shipway/shipway/pkg/history"
	"github.com/shipway/shipway/pkg/lock"
	"github.com/shipway/shipway/pkg/orchestrator"
	"github.com/shipway/shipway/pkg/types"
)

var (
	deployDryRun   bool
	deployForce    bool
	deployRollback bool
	deployJSON     bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy [message]",
	Short: "Deploy the source tree to the configured target",
	Long: `Deploy builds the source tree into a content-addressed artifact,
transfers it to the target, activates it, and verifies the health endpoint.
A verified deployment is committed; one that activates but fails verification
is rolled back to the previous version automatically.

The optional message is recorded in the deployment history.

Exit codes: 0 committed, 1 failed, 2 rolled back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := ""
		if len(args) > 0 {
			message = args[0]
		}
		return runDeployment(orchestrator.RunOptions{
			Message:  message,
			DryRun:   deployDryRun,
			Force:    deployForce,
			Rollback: deployRollback,
		})
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false,
		"report what would be deployed without changing anything")
	deployCmd.Flags().BoolVar(&deployForce, "force", false,
		"deploy despite a dirty working tree or an already-active revision")
	deployCmd.Flags().BoolVar(&deployRollback, "rollback", false,
		"skip build and transfer, re-activate the previous version instead")
	deployCmd.Flags().BoolVar(&deployJSON, "json", false,
		"print the run summary as JSON")
}

// runDeployment wires the orchestrator's collaborators from configuration,
// executes the run, prints the summary, and exits with the outcome's code.
func runDeployment(opts orchestrator.RunOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	hist, err := history.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer hist.Close()

	locks, err := lock.NewManager(cfg.DataDir)
	if err != nil {
		return err
	}

	local, err := artifact.NewLocalStore(cfg.StoreDir)
	if err != nil {
		return err
	}

	// A dry run never opens a connection to the target.
	var exec executor.Executor
	if opts.DryRun {
		exec = &executor.LocalExecutor{Dir: cfg.SourceDir}
	} else {
		sshExec, err := executor.DialSSH(cfg.Target, executor.SSHOptions{
			ConnectTimeout: cfg.SSH.ConnectTimeout,
			CommandTimeout: cfg.SSH.CommandTimeout,
		})
		if err != nil {
			return err
		}
		defer sshExec.Close()
		exec = sshExec
	}

	orch := orchestrator.New(orchestrator.Deps{
		Config:  cfg,
		Builder: builder.NewDockerBuilder(&executor.LocalExecutor{Dir: cfg.SourceDir}, cfg.SourceDir),
		Exec:    exec,
		Local:   local,
		Remote:  artifact.NewRemoteStore(exec, cfg.Target.WorkDir),
		Prober:  health.NewHTTPProber(cfg.Target.HealthURL, cfg.Probe.Timeout),
		History: hist,
		Locks:   locks,
	})

	// An interrupt cancels the run; the orchestrator finalizes the record
	// on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := orch.Run(ctx, opts)
	if summary == nil {
		return runErr
	}

	// The failure detail is in the summary; report it there and carry the
	// outcome out through the exit status so the deferred cleanup runs.
	printSummary(summary)
	exitStatus = exitCode(summary.Outcome)
	return nil
}

func printSummary(s *types.RunSummary) {
	if deployJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err == nil {
			fmt.Println(string(data))
		}
		return
	}

	mark := "✓"
	if s.Outcome != types.OutcomeSucceeded {
		mark = "✗"
	}
	fmt.Printf("%s %s\n", mark, s.Outcome)
	fmt.Printf("  Target:  %s\n", s.Target)
	fmt.Printf("  From:    %s\n", refOrNone(s.FromRef))
	fmt.Printf("  To:      %s\n", refOrNone(s.ToRef))
	fmt.Printf("  Phase:   %s\n", s.PhaseReached)
	if s.Reason != "" {
		fmt.Printf("  Reason:  %s\n", s.Reason)
	}
}

func refOrNone(ref types.ArtifactRef) string {
	if ref.IsZero() {
		return "(none)"
	}
	return ref.String()
}

func exitCode(outcome types.Outcome) int {
	switch outcome {
	case types.OutcomeSucceeded:
		return 0
	case types.OutcomeRolledBack:
		return 2
	default:
		return 1
	}
}
