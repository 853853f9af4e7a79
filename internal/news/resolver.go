package news

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

const openMarketsCacheKey = "open-markets"

// MarketLister is the subset of the exchange client the resolver depends
// on, narrowed for testability.
type MarketLister interface {
	ListMarkets(ctx context.Context, filter exchange.MarketFilter, cap int) ([]exchange.Market, error)
}

// Resolver turns LLM classifications into signals by matching each
// ticker_keyword against the cached open-markets set.
type Resolver struct {
	gateway     MarketLister
	cache       *ristretto.Cache
	ttl         time.Duration
	probShiftMin float64
	marketCap   int
	logger      *zap.Logger
}

// NewResolver constructs a Resolver with a ristretto-backed TTL cache over
// the open-markets list, avoiding a full refetch on every classification.
func NewResolver(gateway MarketLister, ttlSeconds, marketCap int, probShiftMin float64, logger *zap.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{
		gateway:      gateway,
		cache:        cache,
		ttl:          time.Duration(ttlSeconds) * time.Second,
		probShiftMin: probShiftMin,
		marketCap:    marketCap,
		logger:       logger,
	}, nil
}

// Resolve filters classifications below the prob_shift threshold, matches
// survivors against the cached open-markets set by case-insensitive
// keyword containment on ticker or title, and emits one signal per matched
// ticker — a keyword matching several open tickers yields a signal for
// every one of them. A keyword with zero matches is dropped.
func (r *Resolver) Resolve(ctx context.Context, classifications []Classification) []model.Signal {
	markets, err := r.openMarkets(ctx)
	if err != nil {
		r.logger.Warn("news: fetching open markets for resolution failed", zap.Error(err))
		return nil
	}

	var signals []model.Signal
	for _, c := range classifications {
		if c.ProbShift == 0 || abs(c.ProbShift) < r.probShiftMin {
			continue
		}

		matched := matchMarkets(markets, c.TickerKeyword)
		if len(matched) == 0 {
			r.logger.Debug("news: no market matched keyword", zap.String("keyword", c.TickerKeyword))
			continue
		}

		side := model.Yes
		if strings.EqualFold(c.Side, "no") {
			side = model.No
		}

		for _, m := range matched {
			sig := model.Signal{
				Source: model.SourceNLP,
				Ticker: m.Ticker,
				Side:   side,
				// implied_prob is set to 0.5 provisionally rather than read from
				// the live book at classification time, so Edge and Kelly sizing
				// are measured against 50c and misstate the opportunity (in either
				// direction) whenever the real market price is away from 50c.
				ImpliedProb:       0.5,
				EstimatedFairProb: 0.5 + c.ProbShift,
				Edge:              abs(c.ProbShift),
				Confidence:        c.Confidence,
				Rationale:         c.Rationale,
				Timestamp:         time.Now().UTC(),
			}
			signals = append(signals, sig)
			telemetry.SignalsEmittedTotal.WithLabelValues(string(model.SourceNLP)).Inc()
		}
	}
	return signals
}

// openMarkets returns the cached open-markets list, refetching once the
// cached entry is absent or has expired.
func (r *Resolver) openMarkets(ctx context.Context) ([]exchange.Market, error) {
	if cached, found := r.cache.Get(openMarketsCacheKey); found {
		telemetry.CacheHitsTotal.Inc()
		return cached.([]exchange.Market), nil
	}
	telemetry.CacheMissesTotal.Inc()

	markets, err := r.gateway.ListMarkets(ctx, exchange.MarketFilter{Status: "open"}, r.marketCap)
	if err != nil {
		return nil, err
	}
	r.cache.SetWithTTL(openMarketsCacheKey, markets, 1, r.ttl)
	r.cache.Wait()
	return markets, nil
}

// matchMarkets returns every market whose ticker or title contains keyword,
// case-insensitively. Nothing limits this to a single result: a keyword
// like "fed" is expected to match several open tickers at once.
func matchMarkets(markets []exchange.Market, keyword string) []exchange.Market {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil
	}
	var matched []exchange.Market
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Ticker), needle) || strings.Contains(strings.ToLower(m.Title), needle) {
			matched = append(matched, m)
		}
	}
	return matched
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
