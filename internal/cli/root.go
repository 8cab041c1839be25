package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"optionwatch/internal/app"
	"optionwatch/internal/config"
	"optionwatch/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	symbols   []string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "optionwatch",
	Short: "Watch index option chains and alert on in-the-money moves",
	Long: `optionwatch polls the NSE option chain for each configured index during
market hours (09:16-15:30 Asia/Kolkata, Monday to Friday) and records every
contract snapshot.

An in-the-money contract whose percent change reaches alerting.threshold_pct
alerts once it is at least as extreme as anything already alerted for it that
trading day. Alerts go to Slack or Telegram only after the snapshot is stored.

Use "run" for the poller, "replay" to push a captured payload through the
same pipeline, and "show" or "export" to inspect stored history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if len(symbols) > 0 {
			cfg.Market.Symbols = symbols
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringSliceVar(&symbols, "symbols", nil, "Override the index symbols to watch, e.g. NIFTY,BANKNIFTY")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(expiriesCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
