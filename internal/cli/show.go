package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"memecoin-radar/internal/app"
)

var (
	showLimit   int
	showArchive bool
	showQuotes  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:   showLimit,
			Archive: showArchive,
			Quotes:  showQuotes,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of tokens to display")
	showCmd.Flags().BoolVar(&showArchive, "archive", false, "Read from the PostgreSQL archive")
	showCmd.Flags().BoolVar(&showQuotes, "quotes", false, "Add live DexScreener price columns")
}
