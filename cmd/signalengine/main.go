// Command signalengine runs the trading-signal pipeline: the long-lived
// scheduler (run) and one-shot account inspection commands (balance,
// positions).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDryRun bool
	flagDebug  bool
)

func main() {
	root := &cobra.Command{
		Use:   "signalengine",
		Short: "Automated signal-and-sizing pipeline for a binary prediction-market exchange",
	}
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "force paper trading regardless of PAPER_TRADING")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "force debug log level for the run command regardless of LOG_LEVEL")

	root.AddCommand(newRunCmd())
	root.AddCommand(newBalanceCmd())
	root.AddCommand(newPositionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
