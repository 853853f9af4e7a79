// Package orderbook implements the liquidity-void signal producer: it
// scans open markets for a gap between the best YES bid and the synthetic
// YES ask wide enough to imply a stink-bid opportunity.
package orderbook

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

// Gateway is the subset of the exchange client the scanner depends on,
// narrowed to ease testing with a fake.
type Gateway interface {
	ListMarkets(ctx context.Context, filter exchange.MarketFilter, cap int) ([]exchange.Market, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (*exchange.Orderbook, error)
}

// LiveBookSource optionally supplies cached real-time top-of-book prices,
// bypassing the REST fetch whenever a book for the ticker is cached; the
// age of the cached book is not checked.
type LiveBookSource interface {
	BestPrices(ticker string) (yesBid, synthAsk int, ok bool)
}

// Scanner detects liquidity voids across the open-markets set.
type Scanner struct {
	gateway        Gateway
	liveBook       LiveBookSource // may be nil
	thresholdCents int
	marketCap      int
	concurrency    int
	logger         *zap.Logger
}

// Config configures a Scanner.
type Config struct {
	Gateway        Gateway
	LiveBook       LiveBookSource
	ThresholdCents int
	MarketCap      int
	Concurrency    int
	Logger         *zap.Logger
}

// New constructs a Scanner. Concurrency defaults to 32 when <= 0, matching
// the "cap of ~32 concurrent fetches" design note.
func New(cfg Config) *Scanner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 32
	}
	return &Scanner{
		gateway:        cfg.Gateway,
		liveBook:       cfg.LiveBook,
		thresholdCents: cfg.ThresholdCents,
		marketCap:      cfg.MarketCap,
		concurrency:    concurrency,
		logger:         cfg.Logger,
	}
}

// Scan fetches open markets (capped) and, for each, derives an orderbook
// snapshot and emits a void signal when the spread exceeds the threshold.
// Per-market failures are logged and omitted — they never abort the batch.
func (s *Scanner) Scan(ctx context.Context) []model.Signal {
	markets, err := s.gateway.ListMarkets(ctx, exchange.MarketFilter{Status: "open"}, s.marketCap)
	if err != nil {
		s.logger.Warn("orderbook scan: listing markets failed", zap.Error(err))
		return nil
	}

	type result struct {
		signal model.Signal
		ok     bool
	}

	results := make([]result, len(markets))
	sem := make(chan struct{}, s.concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, m := range markets {
		i, m := i, m
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			sig, ok := s.scanOne(gctx, m.Ticker)
			results[i] = result{signal: sig, ok: ok}
			return nil
		})
	}
	_ = g.Wait() // per-market errors are handled inside scanOne; never abort the batch

	out := make([]model.Signal, 0, len(markets))
	for _, r := range results {
		if r.ok {
			out = append(out, r.signal)
			telemetry.SignalsEmittedTotal.WithLabelValues(string(model.SourceOrderbook)).Inc()
		}
	}
	return out
}

func (s *Scanner) scanOne(ctx context.Context, ticker string) (model.Signal, bool) {
	yesBid, synthAsk, fromLiveBook := s.liveBookPrices(ticker)
	if !fromLiveBook {
		ob, err := s.gateway.GetOrderbook(ctx, ticker, 10)
		if err != nil {
			s.logger.Warn("orderbook scan: fetch failed", zap.String("ticker", ticker), zap.Error(err))
			return model.Signal{}, false
		}
		yesBid = ob.BestYesBid()
		noBid := ob.BestNoBid()
		snap := model.NewOrderbookSnapshot(ticker, yesBid, noBid)
		return s.evaluateSnapshot(snap)
	}

	// synthAsk is 100 - best NO bid, or 100 when the NO side is empty.
	snap := model.NewOrderbookSnapshot(ticker, yesBid, 100-synthAsk)
	return s.evaluateSnapshot(snap)
}

func (s *Scanner) liveBookPrices(ticker string) (yesBid, synthAsk int, ok bool) {
	if s.liveBook == nil {
		return 0, 100, false
	}
	return s.liveBook.BestPrices(ticker)
}

// evaluateSnapshot applies the void-detection algorithm to one snapshot.
func (s *Scanner) evaluateSnapshot(snap model.OrderbookSnapshot) (model.Signal, bool) {
	if snap.Empty() {
		return model.Signal{}, false
	}
	if snap.Crossed() {
		s.logger.Warn("orderbook scan: crossed book discarded", zap.String("ticker", snap.Ticker))
		return model.Signal{}, false
	}
	if snap.SpreadCents <= s.thresholdCents {
		return model.Signal{}, false
	}

	implied := 0.5
	if snap.BestYesBid > 0 {
		implied = float64(snap.BestYesBid) / 100.0
	}
	fair := float64(snap.BestYesBid+snap.SyntheticYesAsk) / 200.0
	edge := fair - implied
	confidence := float64(snap.SpreadCents) / 10.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	sig := model.Signal{
		Source:            model.SourceOrderbook,
		Ticker:            snap.Ticker,
		Side:              model.Yes,
		ImpliedProb:       implied,
		EstimatedFairProb: fair,
		Edge:              edge,
		Confidence:        confidence,
		Rationale: fmt.Sprintf(
			"liquidity void: best_yes_bid=%d synthetic_yes_ask=%d spread=%d suggested_bid=%d",
			snap.BestYesBid, snap.SyntheticYesAsk, snap.SpreadCents, snap.BestYesBid+1,
		),
		Timestamp: time.Now().UTC(),
	}
	return sig, true
}
