package arbitrage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

// defaultKellyEdgeMin mirrors the risk engine's own floor so a disagreement
// too small to ever clear sizing is never emitted as a signal in the first
// place.
const defaultKellyEdgeMin = 0.05

// Gateway is the subset of the exchange client the scanner depends on.
type Gateway interface {
	ListMarkets(ctx context.Context, filter exchange.MarketFilter, cap int) ([]exchange.Market, error)
}

// Venue fetches the external reference venue's priced markets.
type Venue interface {
	ListMarkets(ctx context.Context) ([]ExternalMarket, error)
}

// Scanner compares exchange markets against an external reference venue
// and emits a signal for each pair whose prices disagree enough to clear
// the Kelly edge floor.
type Scanner struct {
	gateway      Gateway
	venue        Venue
	marketCap    int
	kellyEdgeMin float64
	logger       *zap.Logger
}

// Config configures a Scanner.
type Config struct {
	Gateway      Gateway
	Venue        Venue
	MarketCap    int
	KellyEdgeMin float64
	Logger       *zap.Logger
}

// New constructs a Scanner, defaulting KellyEdgeMin when unset.
func New(cfg Config) *Scanner {
	edgeMin := cfg.KellyEdgeMin
	if edgeMin <= 0 {
		edgeMin = defaultKellyEdgeMin
	}
	return &Scanner{
		gateway:      cfg.Gateway,
		venue:        cfg.Venue,
		marketCap:    cfg.MarketCap,
		kellyEdgeMin: edgeMin,
		logger:       cfg.Logger,
	}
}

// Scan lists open exchange markets, matches each against the external
// venue by title overlap, and emits a signal for matched pairs whose
// implied Kelly fraction clears the edge floor.
func (s *Scanner) Scan(ctx context.Context) []model.Signal {
	markets, err := s.gateway.ListMarkets(ctx, exchange.MarketFilter{Status: "open"}, s.marketCap)
	if err != nil {
		s.logger.Warn("arbitrage scan: listing exchange markets failed", zap.Error(err))
		return nil
	}

	externals, err := s.venue.ListMarkets(ctx)
	if err != nil {
		s.logger.Warn("arbitrage scan: listing external venue markets failed", zap.Error(err))
		return nil
	}

	var signals []model.Signal
	for _, m := range markets {
		ext, ok := MatchExternal(m, externals)
		if !ok {
			continue
		}

		sig, ok := s.evaluatePair(m, ext)
		if !ok {
			continue
		}
		signals = append(signals, sig)
		telemetry.SignalsEmittedTotal.WithLabelValues(string(model.SourceArbitrage)).Inc()
	}
	return signals
}

// evaluatePair compares the exchange market's implied YES probability
// against the external venue's price and emits a signal when the implied
// Kelly fraction clears the edge floor. The exchange side of the
// comparison is last_price, not the resting yes_bid — Kalshi markets don't
// populate a distinct yes_price field, so last_price is the implied
// probability the two venues are actually disagreeing about.
func (s *Scanner) evaluatePair(m exchange.Market, ext ExternalMarket) (model.Signal, bool) {
	marketPrice := float64(m.LastPrice) / 100.0
	if marketPrice <= 0 || marketPrice >= 1 {
		return model.Signal{}, false
	}

	side := model.Yes
	p := ext.Price
	if ext.Price < marketPrice {
		side = model.No
		p = 1 - ext.Price
		marketPrice = 1 - marketPrice
	}

	b := 1/marketPrice - 1
	if b <= 0 {
		return model.Signal{}, false
	}
	fStar := (p*(b+1) - 1) / b
	if fStar < s.kellyEdgeMin {
		return model.Signal{}, false
	}

	confidence := fStar
	if confidence > 1.0 {
		confidence = 1.0
	}

	return model.Signal{
		Source:            model.SourceArbitrage,
		Ticker:            m.Ticker,
		Side:              side,
		ImpliedProb:       float64(m.LastPrice) / 100.0,
		EstimatedFairProb: ext.Price,
		Edge:              abs(ext.Price - float64(m.LastPrice)/100.0),
		Confidence:        confidence,
		Rationale:         fmt.Sprintf("external venue priced %q at %.2f vs exchange last_price=%d", ext.Title, ext.Price, m.LastPrice),
		Timestamp:         time.Now().UTC(),
	}, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
