package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shipway/shipway/pkg/artifact"
	"github.com/shipway/shipway/pkg/config"
	"github.com/shipway/shipway/pkg/executor"
	"github.com/shipway/shipway/pkg/history"
	"github.com/shipway/shipway/pkg/retention"
)

var artifactsRemote bool

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect and prune stored artifact versions",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored artifact versions, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, cleanup, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := store.List(context.Background(), cfg.Target.Name)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("No artifacts in the %s store for %s\n", store.Description(), cfg.Target.Name)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REF\tCREATED\tSIZE")
		for _, e := range entries {
			created := "-"
			if !e.CreatedAt.IsZero() {
				created = e.CreatedAt.Local().Format(time.RFC3339)
			}
			size := "-"
			if e.SizeBytes > 0 {
				size = fmt.Sprintf("%.1f MB", float64(e.SizeBytes)/(1<<20))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Ref, created, size)
		}
		return w.Flush()
	},
}

var artifactsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove artifact versions beyond the retention policy",
	Long: `Prune removes the oldest artifact versions until at most the configured
number remain. The currently active version is never removed, regardless of
its age.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, cleanup, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		hist, err := history.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer hist.Close()

		active, err := hist.ActiveRef(cfg.Target.Name)
		if err != nil {
			return err
		}

		removed := retention.NewCleaner(cfg.Retention.Keep).
			Prune(context.Background(), store, cfg.Target.Name, active)
		fmt.Printf("✓ Removed %d artifact version(s) from the %s store\n", removed, store.Description())
		return nil
	},
}

// openStore opens the local or, with --remote, the target-side artifact
// store. cleanup closes whatever connection was opened.
func openStore(cfg *config.Config) (artifact.Store, func(), error) {
	if !artifactsRemote {
		store, err := artifact.NewLocalStore(cfg.StoreDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	exec, err := executor.DialSSH(cfg.Target, executor.SSHOptions{
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return artifact.NewRemoteStore(exec, cfg.Target.WorkDir), func() { exec.Close() }, nil
}

func init() {
	artifactsCmd.PersistentFlags().BoolVar(&artifactsRemote, "remote", false,
		"operate on the target-side store instead of the local one")
	artifactsCmd.AddCommand(artifactsListCmd)
	artifactsCmd.AddCommand(artifactsPruneCmd)
}
