package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shipway/shipway/pkg/history"
	"github.com/shipway/shipway/pkg/types"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the deployment history for the configured target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		hist, err := history.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer hist.Close()

		records, err := hist.List(cfg.Target.Name)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No deployments recorded for target %s\n", cfg.Target.Name)
			return nil
		}

		// Newest first, bounded by --limit.
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[len(records)-historyLimit:]
		}

		active, err := hist.ActiveRef(cfg.Target.Name)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tTO\tOUTCOME\tPHASE\tMESSAGE")
		for i := len(records) - 1; i >= 0; i-- {
			r := records[i]
			outcome := string(r.Outcome)
			if outcome == "" {
				outcome = "in-progress"
			}
			marker := ""
			if r.Outcome == types.OutcomeSucceeded && r.ToRef == active {
				marker = " *"
			}
			fmt.Fprintf(w, "%s\t%s%s\t%s\t%s\t%s\n",
				r.StartedAt.Local().Format(time.RFC3339),
				r.ToRef, marker, outcome, r.PhaseReached, r.Message)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"maximum number of records to show (0 for all)")
}
