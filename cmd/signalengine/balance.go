package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrhodes/kalshi-signal-engine/internal/config"
	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the current portfolio balance and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := telemetry.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := exchange.New(cfg.ExchangeBaseURL, cfg.AccessKeyID, cfg.PrivateKeyPEM, logger)
			if err != nil {
				return err
			}

			bal, err := client.GetBalance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("balance: $%.2f\n", float64(bal.Balance)/100.0)
			return nil
		},
	}
}
