package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"memecoin-radar/internal/app"
)

var (
	backfillLookback time.Duration
	backfillLimit    int
	backfillDryRun   bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Catch up on a longer window of channel history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillLookback <= 0 {
			return fmt.Errorf("--lookback must be greater than zero")
		}
		if backfillLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.BackfillOptions{
			Lookback: backfillLookback,
			Limit:    backfillLimit,
			DryRun:   backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().DurationVar(&backfillLookback, "lookback", 6*time.Hour, "How far back to read each channel")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 200, "Messages fetched per channel (0 uses ingest.history_limit)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Report what would be stored without writing")
}
