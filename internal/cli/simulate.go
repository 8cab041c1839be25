package cli

import (
	"github.com/spf13/cobra"

	"optionwatch/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOpts.Symbol, "symbol", "NIFTY", "Index symbol")
	simulateCmd.Flags().StringVar(&simulateOpts.OptionType, "type", "PUT", "Option type (CALL or PUT)")
	simulateCmd.Flags().Int64Var(&simulateOpts.StrikePrice, "strike", 22000, "Strike price")
	simulateCmd.Flags().Float64Var(&simulateOpts.PercentChange, "change", 120, "Percent change")
	simulateCmd.Flags().Float64Var(&simulateOpts.UnderlyingValue, "underlying", 21800, "Underlying value")
}
