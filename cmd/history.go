package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"mtp-bridge/internal/config"
	"mtp-bridge/internal/reconcile"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent reconciliation passes",
	RunE: func(cmd *cobra.Command, args []string) error {
		hist, err := reconcile.OpenHistory(filepath.Join(config.StateDir(), "history.db"))
		if err != nil {
			return err
		}
		defer hist.Close()

		recs, err := hist.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("no reconciliation passes recorded yet")
			return nil
		}

		fmt.Printf("%-20s  %-16s  %-8s  %-10s  %s\n", "STARTED", "DIRECTION", "TRIGGER", "DURATION", "RESULT")
		for _, r := range recs {
			result := "ok"
			if !r.Success {
				result = "failed"
			}
			fmt.Printf("%-20s  %-16s  %-8s  %-10s  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Direction,
				r.Trigger,
				(time.Duration(r.DurationMS) * time.Millisecond).String(),
				result)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of passes to show")
	rootCmd.AddCommand(historyCmd)
}
