package cli

import (
	"github.com/spf13/cobra"

	"memecoin-radar/internal/app"
)

var (
	exportPNGPath string
	exportCSVPath string
	exportArchive bool
	exportLimit   int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored tokens as CSV and/or a market-cap PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath: exportPNGPath,
			CSVPath: exportCSVPath,
			Archive: exportArchive,
			Limit:   exportLimit,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "Read from the PostgreSQL archive instead of the JSON document")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum tokens to export")
}
