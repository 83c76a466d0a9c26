package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and print its report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		days, _ := cmd.Flags().GetInt("stale-after-days")
		if days < 0 {
			return fmt.Errorf("--stale-after-days must not be negative")
		}

		ctx := cmd.Context()
		b, err := newBase(ctx, cmd)
		if err != nil {
			return err
		}
		p, err := newPipeline(ctx, b)
		if err != nil {
			b.close()
			return err
		}
		defer p.close()

		report, err := p.scheduler.TriggerSweep(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return fmt.Errorf("retention sweep: %w", err)
		}
		return printJSON(cmd, report)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Int("stale-after-days", 0, "retire postings unseen for this many days (default RETENTION_STALE_AFTER_DAYS)")
}
