package orderbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
)

type fakeGateway struct {
	markets   []exchange.Market
	books     map[string]*exchange.Orderbook
	listErr   error
	bookErrs  map[string]error
}

func (f *fakeGateway) ListMarkets(ctx context.Context, filter exchange.MarketFilter, cap int) ([]exchange.Market, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.markets, nil
}

func (f *fakeGateway) GetOrderbook(ctx context.Context, ticker string, depth int) (*exchange.Orderbook, error) {
	if err, ok := f.bookErrs[ticker]; ok {
		return nil, err
	}
	return f.books[ticker], nil
}

func newTestScanner(gw Gateway, threshold int) *Scanner {
	return New(Config{
		Gateway:        gw,
		ThresholdCents: threshold,
		MarketCap:      200,
		Concurrency:    4,
		Logger:         zap.NewNop(),
	})
}

// Scenario 4: liquidity void. YES bids [[40,100]], NO bids [[55,80]],
// threshold=3. Expect snapshot {yes_bid=40, no_bid=55, synth_ask=45,
// spread=5}, signal emitted with implied=0.40, fair=0.425, confidence=0.5.
func TestScanLiquidityVoidEmitsSignal(t *testing.T) {
	gw := &fakeGateway{
		markets: []exchange.Market{{Ticker: "T-VOID"}},
		books: map[string]*exchange.Orderbook{
			"T-VOID": {Yes: [][]int{{40, 100}}, No: [][]int{{55, 80}}},
		},
	}
	s := newTestScanner(gw, 3)

	signals := s.Scan(context.Background())
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, model.SourceOrderbook, sig.Source)
	assert.Equal(t, model.Yes, sig.Side)
	assert.InDelta(t, 0.40, sig.ImpliedProb, 1e-9)
	assert.InDelta(t, 0.425, sig.EstimatedFairProb, 1e-9)
	assert.InDelta(t, 0.025, sig.Edge, 1e-9)
	assert.InDelta(t, 0.5, sig.Confidence, 1e-9)
}

// Scenario 5: no liquidity void. YES bid 45, NO bid 55 => synth_ask=45,
// spread=0, threshold=3 => no signal.
func TestScanNoVoidEmitsNothing(t *testing.T) {
	gw := &fakeGateway{
		markets: []exchange.Market{{Ticker: "T-TIGHT"}},
		books: map[string]*exchange.Orderbook{
			"T-TIGHT": {Yes: [][]int{{45, 100}}, No: [][]int{{55, 80}}},
		},
	}
	s := newTestScanner(gw, 3)

	signals := s.Scan(context.Background())
	assert.Empty(t, signals)
}

func TestScanSkipsEmptyBook(t *testing.T) {
	gw := &fakeGateway{
		markets: []exchange.Market{{Ticker: "T-EMPTY"}},
		books: map[string]*exchange.Orderbook{
			"T-EMPTY": {},
		},
	}
	s := newTestScanner(gw, 3)

	signals := s.Scan(context.Background())
	assert.Empty(t, signals)
}

// Individual per-market failures must not abort the batch.
func TestScanIsolatesPerMarketFailures(t *testing.T) {
	gw := &fakeGateway{
		markets: []exchange.Market{{Ticker: "T-BAD"}, {Ticker: "T-GOOD"}},
		books: map[string]*exchange.Orderbook{
			"T-GOOD": {Yes: [][]int{{40, 100}}, No: [][]int{{55, 80}}},
		},
		bookErrs: map[string]error{"T-BAD": assertErr{}},
	}
	s := newTestScanner(gw, 3)

	signals := s.Scan(context.Background())
	require.Len(t, signals, 1)
	assert.Equal(t, "T-GOOD", signals[0].Ticker)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

// A crossed book (negative spread) must be discarded, not traded.
func TestScanDiscardsCrossedBook(t *testing.T) {
	gw := &fakeGateway{
		markets: []exchange.Market{{Ticker: "T-CROSSED"}},
		books: map[string]*exchange.Orderbook{
			// yes_bid=80, no_bid=80 => synth_ask=20, spread=-60
			"T-CROSSED": {Yes: [][]int{{80, 100}}, No: [][]int{{80, 80}}},
		},
	}
	s := newTestScanner(gw, 3)

	signals := s.Scan(context.Background())
	assert.Empty(t, signals)
}
