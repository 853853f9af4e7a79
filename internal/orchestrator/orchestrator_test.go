package orchestrator

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/risk"
)

func sig(ticker string) model.Signal {
	return model.Signal{
		Source:            model.SourceOrderbook,
		Ticker:            ticker,
		Side:              model.Yes,
		ImpliedProb:       0.5,
		EstimatedFairProb: 0.6,
	}
}

type constBankroll float64

func (c constBankroll) BankrollUSD(ctx context.Context) (float64, error) { return float64(c), nil }

func TestRunCycleConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	journal, err := risk.OpenJournal(dir + "/paper_trades.jsonl")
	require.NoError(t, err)
	defer journal.Close()

	exec := risk.NewExecutor(
		risk.Params{FeeRate: 0, KellyEdgeMin: 0.0, KellyFraction: 1.0, MaxPositionUSD: 10000},
		true, nil, journal, zap.NewNop(),
	)

	o := New(Config{
		Orderbook: func(ctx context.Context) []model.Signal { return []model.Signal{sig("B-1")} },
		News:      func(ctx context.Context) []model.Signal { return []model.Signal{sig("C-1")} },
		Arbitrage: func(ctx context.Context) []model.Signal { return []model.Signal{sig("D-1")} },
		Executor:  exec,
		Bankroll:  constBankroll(1000),
		Interval:  time.Hour,
		Logger:    zap.NewNop(),
	})

	o.runCycle(context.Background())

	raw, err := os.ReadFile(dir + "/paper_trades.jsonl")
	data := string(raw)
	require.NoError(t, err)
	// All three producer signals should have been sized and committed, in
	// B-then-C-then-D order.
	assert.Contains(t, data, `"ticker":"B-1"`)
	assert.Contains(t, data, `"ticker":"C-1"`)
	assert.Contains(t, data, `"ticker":"D-1"`)
	bIdx := strings.Index(data, `"ticker":"B-1"`)
	cIdx := strings.Index(data, `"ticker":"C-1"`)
	dIdx := strings.Index(data, `"ticker":"D-1"`)
	assert.Less(t, bIdx, cIdx)
	assert.Less(t, cIdx, dIdx)
}

// A panicking producer must not prevent the other two from contributing
// signals.
func TestRunCycleIsolatesPanickingProducer(t *testing.T) {
	dir := t.TempDir()
	journal, err := risk.OpenJournal(dir + "/paper_trades.jsonl")
	require.NoError(t, err)
	defer journal.Close()

	exec := risk.NewExecutor(
		risk.Params{FeeRate: 0, KellyEdgeMin: 0.0, KellyFraction: 1.0, MaxPositionUSD: 10000},
		true, nil, journal, zap.NewNop(),
	)

	o := New(Config{
		Orderbook: func(ctx context.Context) []model.Signal { panic("boom") },
		News:      func(ctx context.Context) []model.Signal { return []model.Signal{sig("C-1")} },
		Arbitrage: func(ctx context.Context) []model.Signal { return nil },
		Executor:  exec,
		Bankroll:  constBankroll(1000),
		Interval:  time.Hour,
		Logger:    zap.NewNop(),
	})

	assert.NotPanics(t, func() { o.runCycle(context.Background()) })

	raw, err := os.ReadFile(dir + "/paper_trades.jsonl")
	data := string(raw)
	require.NoError(t, err)
	assert.Contains(t, data, `"ticker":"C-1"`)
}
