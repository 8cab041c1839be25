package cli

import (
	"github.com/spf13/cobra"
)

var runBypassHours bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll option chains and dispatch alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if runBypassHours {
			a.Config.Market.BypassHours = true
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runBypassHours, "bypass-hours", false, "Poll outside the market window")
}
