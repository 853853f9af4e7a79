package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nrhodes/kalshi-signal-engine/internal/config"
	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

func newPositionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Print open portfolio positions and exit",
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

			positions, err := client.GetPositions(cmd.Context())
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Println("no open positions")
				return nil
			}
			for _, p := range positions {
				fmt.Printf("%-24s position=%-6d exposure=$%.2f\n", p.Ticker, p.Position, float64(p.MarketExposure)/100.0)
			}
			return nil
		},
	}
}
