package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest announcements: one batch pass when ingest.batch is set, otherwise listen live",
	Long: `Run ingests token announcements from the configured channels.

With ingest.batch true (RADAR_INGEST_BATCH, or GITHUB_ACTIONS=true in CI) it makes one catch-up
pass over the last ingest.lookback of history and exits. Otherwise it subscribes to new
messages and runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Repeat batch passes every scheduler.interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Schedule(cmd.Context())
	},
}
