package cli

import (
	"github.com/spf13/cobra"
)

var expiriesSymbol string

var expiriesCmd = &cobra.Command{
	Use:   "expiries",
	Short: "List the expiry dates available for a symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Expiries(cmd.Context(), expiriesSymbol)
	},
}

func init() {
	expiriesCmd.Flags().StringVar(&expiriesSymbol, "symbol", "NIFTY", "Index symbol")
}
