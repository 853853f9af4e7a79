// Package risk implements fee-adjusted Kelly sizing and order commit
// (paper journal or live submission).
package risk

import (
	"math"

	"github.com/nrhodes/kalshi-signal-engine/internal/model"
)

// Params bundles the sizing knobs read once from config.
type Params struct {
	FeeRate        float64
	KellyEdgeMin   float64
	KellyFraction  float64
	MaxPositionUSD float64
}

// Size computes the fee-adjusted Kelly sizing for one signal against the
// current bankroll, per spec.md §4.E / §8 invariant 1-2 and the literal
// worked examples.
func Size(sig model.Signal, bankrollUSD float64, p Params) model.KellyResult {
	fair, marketPrice := sideProbabilities(sig)

	if marketPrice <= 0 || marketPrice >= 1 {
		return model.KellyResult{}
	}

	grossB := 1/marketPrice - 1
	netB := grossB * (1 - p.FeeRate)

	fStar := kellyFraction(fair, netB)
	fUsed := fStar * p.KellyFraction
	if fUsed < 0 {
		fUsed = 0
	}

	positionUSD := fUsed * bankrollUSD
	if positionUSD > p.MaxPositionUSD {
		positionUSD = p.MaxPositionUSD
	}
	if positionUSD < 0 {
		positionUSD = 0
	}

	netEV := fair*netB - (1 - fair)

	shouldTrade := fStar > p.KellyEdgeMin && netEV > 0 && positionUSD > 0

	return model.KellyResult{
		OptimalFraction: fStar,
		PositionSizeUSD: positionUSD,
		NetEV:           netEV,
		ShouldTrade:     shouldTrade,
	}
}

// sideProbabilities maps a signal's YES-denominated fair/implied
// probabilities to the side-adjusted (p, market_price) pair Kelly sizing
// operates on.
func sideProbabilities(sig model.Signal) (p, marketPrice float64) {
	if sig.Side == model.Yes {
		return sig.EstimatedFairProb, sig.ImpliedProb
	}
	return 1 - sig.EstimatedFairProb, 1 - sig.ImpliedProb
}

// kellyFraction computes f* = (p(b+1) - 1) / b. At p = 1/(b+1), f* = 0 per
// invariant #1.
func kellyFraction(p, b float64) float64 {
	if b == 0 {
		return 0
	}
	return (p*(b+1) - 1) / b
}

// NetPayoutAfterFees computes b*(1-r), the fee-adjusted payout multiple,
// exposed standalone so callers (and tests) can verify invariant #2
// directly.
func NetPayoutAfterFees(b, r float64) float64 {
	return b * (1 - r)
}

// BuildOrder constructs a TradeOrder from a signal and its sizing result,
// per spec.md §4.E "Order construction". Returns ok=false when the result
// says not to trade.
func BuildOrder(sig model.Signal, kelly model.KellyResult, paper bool) (model.TradeOrder, bool) {
	if !kelly.ShouldTrade {
		return model.TradeOrder{}, false
	}

	priceCents := int(math.Round(sig.ImpliedProb * 100))
	if sig.Side == model.No {
		priceCents = 100 - priceCents
	}
	priceCents = clamp(priceCents, 1, 99)

	contracts := int(math.Floor(kelly.PositionSizeUSD * 100 / float64(priceCents)))
	if contracts < 1 {
		contracts = 1
	}

	return model.TradeOrder{
		Ticker:          sig.Ticker,
		Side:            sig.Side,
		Contracts:       contracts,
		LimitPriceCents: priceCents,
		Signal:          sig,
		Kelly:           kelly,
		Paper:           paper,
	}, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
