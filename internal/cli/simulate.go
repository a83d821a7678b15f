package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"memecoin-radar/internal/app"
)

var (
	simulateName      string
	simulateAddress   string
	simulateMarketCap string
	simulateQuote     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "发送一条模拟的新币提醒",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAddress == "" {
			return errors.New("--ca 必须提供")
		}

		opts := app.SimulateOptions{
			Name:      simulateName,
			Address:   simulateAddress,
			MarketCap: simulateMarketCap,
			WithQuote: simulateQuote,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateName, "name", "TEST", "代币名称")
	simulateCmd.Flags().StringVar(&simulateAddress, "ca", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "合约地址")
	simulateCmd.Flags().StringVar(&simulateMarketCap, "mcap", "N/A", "市值")
	simulateCmd.Flags().BoolVar(&simulateQuote, "quote", false, "附带 DexScreener 报价")
}
