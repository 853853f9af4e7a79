package news

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
)

type fakeLister struct {
	markets []exchange.Market
	calls   int
}

func (f *fakeLister) ListMarkets(ctx context.Context, filter exchange.MarketFilter, cap int) ([]exchange.Market, error) {
	f.calls++
	return f.markets, nil
}

func newTestResolver(t *testing.T, lister MarketLister) *Resolver {
	t.Helper()
	r, err := NewResolver(lister, 30, 200, 0.10, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestResolveMatchesKeywordToTicker(t *testing.T) {
	lister := &fakeLister{markets: []exchange.Market{
		{Ticker: "FED-25DEC-T4.50", Title: "Fed raises rates above 4.50%"},
	}}
	r := newTestResolver(t, lister)

	signals := r.Resolve(context.Background(), []Classification{
		{TickerKeyword: "fed", Side: "yes", ProbShift: 0.15, Confidence: 0.8, Rationale: "hawkish minutes"},
	})

	require.Len(t, signals, 1)
	sig := signals[0]
	assert.Equal(t, model.SourceNLP, sig.Source)
	assert.Equal(t, "FED-25DEC-T4.50", sig.Ticker)
	assert.Equal(t, model.Yes, sig.Side)
	assert.InDelta(t, 0.5, sig.ImpliedProb, 1e-9)
	assert.InDelta(t, 0.65, sig.EstimatedFairProb, 1e-9)
}

func TestResolveDropsBelowThreshold(t *testing.T) {
	lister := &fakeLister{markets: []exchange.Market{{Ticker: "FED-X", Title: "fed meeting"}}}
	r := newTestResolver(t, lister)

	signals := r.Resolve(context.Background(), []Classification{
		{TickerKeyword: "fed", Side: "yes", ProbShift: 0.05, Confidence: 0.5},
	})
	assert.Empty(t, signals)
}

func TestResolveDropsNoMarketMatch(t *testing.T) {
	lister := &fakeLister{markets: []exchange.Market{{Ticker: "BTC-X", Title: "bitcoin price"}}}
	r := newTestResolver(t, lister)

	signals := r.Resolve(context.Background(), []Classification{
		{TickerKeyword: "nonexistent-topic", Side: "yes", ProbShift: 0.3, Confidence: 0.9},
	})
	assert.Empty(t, signals)
}

// A keyword matching several open tickers must emit a signal for every
// one of them, not just the first.
func TestResolveEmitsOneSignalPerMatchedTicker(t *testing.T) {
	lister := &fakeLister{markets: []exchange.Market{
		{Ticker: "FED-25DEC-T4.50", Title: "Fed raises rates above 4.50%"},
		{Ticker: "FED-25DEC-T5.00", Title: "Fed raises rates above 5.00%"},
		{Ticker: "BTC-25DEC-T100K", Title: "Bitcoin above 100k"},
	}}
	r := newTestResolver(t, lister)

	signals := r.Resolve(context.Background(), []Classification{
		{TickerKeyword: "fed", Side: "yes", ProbShift: 0.15, Confidence: 0.8, Rationale: "hawkish minutes"},
	})

	require.Len(t, signals, 2)
	tickers := []string{signals[0].Ticker, signals[1].Ticker}
	assert.ElementsMatch(t, []string{"FED-25DEC-T4.50", "FED-25DEC-T5.00"}, tickers)
	for _, sig := range signals {
		assert.Equal(t, model.SourceNLP, sig.Source)
		assert.InDelta(t, 0.65, sig.EstimatedFairProb, 1e-9)
	}
}

func TestResolveCachesOpenMarkets(t *testing.T) {
	lister := &fakeLister{markets: []exchange.Market{{Ticker: "FED-X", Title: "fed meeting"}}}
	r := newTestResolver(t, lister)

	for i := 0; i < 3; i++ {
		r.Resolve(context.Background(), []Classification{
			{TickerKeyword: "fed", Side: "yes", ProbShift: 0.2, Confidence: 0.5},
		})
	}
	assert.Equal(t, 1, lister.calls)
}
