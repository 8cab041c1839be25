package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"optionwatch/internal/app"
)

var (
	replaySymbol string
	replayFile   string
	replayAt     string
	replayDryRun bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run a captured option-chain payload through the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReplayOptions{
			Symbol: replaySymbol,
			File:   replayFile,
			DryRun: replayDryRun,
		}

		if replayAt != "" {
			at, err := time.Parse(time.RFC3339, replayAt)
			if err != nil {
				return fmt.Errorf("invalid --at value: %w", err)
			}
			opts.At = at
		}

		report, err := getApp().Replay(cmd.Context(), opts)
		fmt.Fprintf(cmd.OutOrStdout(), "contracts: %d\ndecided: %d\npersisted: %d\nalerts sent: %d\n",
			report.Contracts, report.Decided, report.Persisted, report.Dispatch.Sent)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replaySymbol, "symbol", "NIFTY", "Index symbol the payload belongs to")
	replayCmd.Flags().StringVar(&replayFile, "file", "-", "Payload file, or - for stdin")
	replayCmd.Flags().StringVar(&replayAt, "at", "", "Observation timestamp (RFC3339, default now)")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Keep snapshots in memory instead of the database")
}
