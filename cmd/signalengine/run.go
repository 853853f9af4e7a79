package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrhodes/kalshi-signal-engine/internal/arbitrage"
	"github.com/nrhodes/kalshi-signal-engine/internal/config"
	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/news"
	"github.com/nrhodes/kalshi-signal-engine/internal/orchestrator"
	"github.com/nrhodes/kalshi-signal-engine/internal/orderbook"
	"github.com/nrhodes/kalshi-signal-engine/internal/risk"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the cycle scheduler: scan, size, and commit signals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context())
		},
	}
}

func runEngine(parentCtx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagDryRun {
		cfg.PaperTrading = true
	}
	logLevel := cfg.LogLevel
	if flagDebug {
		logLevel = "debug"
	}

	logger, err := telemetry.NewLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := exchange.New(cfg.ExchangeBaseURL, cfg.AccessKeyID, cfg.PrivateKeyPEM, logger)
	if err != nil {
		return err
	}

	var liveBook orderbook.LiveBookSource
	if cfg.LiveBookEnabled {
		privKey, err := exchange.LoadPrivateKeyFromBytes(cfg.PrivateKeyPEM)
		if err != nil {
			return err
		}
		lb := exchange.NewLiveBook(cfg.ExchangeWSBaseURL, cfg.AccessKeyID, privKey, logger)
		go func() {
			if err := lb.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("live orderbook stream exited", zap.Error(err))
			}
		}()
		liveBook = lb
	}

	obScanner := orderbook.New(orderbook.Config{
		Gateway:        client,
		LiveBook:       liveBook,
		ThresholdCents: cfg.SpreadThresholdCents,
		MarketCap:      cfg.MarketScanCap,
		Concurrency:    cfg.OrderbookConcurrency,
		Logger:         logger,
	})

	resolver, err := news.NewResolver(client, cfg.MarketCacheTTLSeconds, cfg.MarketScanCap, cfg.NLPProbShiftMin, logger)
	if err != nil {
		return err
	}
	feedClient := news.NewFeedClient()
	analyzer := news.NewHTTPAnalyzer(feedClient, cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMModel)
	newsProducer := func(ctx context.Context) []model.Signal {
		return news.Run(ctx, func(ctx context.Context, urls []string) []string {
			return news.FetchFeeds(ctx, feedClient, urls, logger)
		}, cfg.NewsFeedURLs, analyzer, resolver, logger)
	}

	arbScanner := arbitrage.New(arbitrage.Config{
		Gateway:      client,
		Venue:        arbitrage.NewVenueClient(cfg.ExternalVenueBaseURL),
		MarketCap:    cfg.MarketScanCap,
		KellyEdgeMin: cfg.KellyEdgeMin,
		Logger:       logger,
	})

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return err
	}
	journal, err := risk.OpenJournal(cfg.LogDir + "/paper_trades.jsonl")
	if err != nil {
		return err
	}
	defer journal.Close()

	params := risk.Params{
		FeeRate:        cfg.FeeRate,
		KellyEdgeMin:   cfg.KellyEdgeMin,
		KellyFraction:  cfg.KellyFraction,
		MaxPositionUSD: cfg.MaxPositionUSD,
	}
	executor := risk.NewExecutor(params, cfg.PaperTrading, client, journal, logger)

	var bankroll orchestrator.BankrollSource
	if cfg.PaperTrading {
		bankroll = orchestrator.NewPaperBankroll(cfg.MaxPositionUSD)
	} else {
		bankroll = orchestrator.NewLiveBankroll(client)
	}

	orch := orchestrator.New(orchestrator.Config{
		Orderbook: obScanner.Scan,
		News:      newsProducer,
		Arbitrage: arbScanner.Scan,
		Executor:  executor,
		Bankroll:  bankroll,
		Interval:  time.Duration(cfg.CycleIntervalSeconds) * time.Second,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telemetry.ServeMetrics(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		err := orch.Run(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	return g.Wait()
}
