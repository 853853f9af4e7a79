// Package model holds the data types shared across signal producers,
// the risk engine, and the orchestrator: sides, signals, orderbook
// snapshots, Kelly results, and trade orders.
package model

import "time"

// Side is a tagged value for which half of a binary contract a signal or
// order refers to. Comparisons must use value equality.
type Side string

const (
	Yes Side = "yes"
	No  Side = "no"
)

// Opposite returns the other side of the same contract.
func (s Side) Opposite() Side {
	if s == Yes {
		return No
	}
	return Yes
}

// SignalSource identifies which producer emitted a Signal.
type SignalSource string

const (
	SourceOrderbook SignalSource = "ORDERBOOK"
	SourceNLP       SignalSource = "NLP"
	SourceArbitrage SignalSource = "ARBITRAGE"
)

// Signal is an actionable opinion emitted by a producer. Signals are
// ephemeral: created per cycle by B/C/D, consumed by Risk & Execution,
// and discarded.
//
// Invariant: for a YES signal, EstimatedFairProb >= ImpliedProb; for NO,
// the inverse. Edge = |fair - implied|.
type Signal struct {
	Source            SignalSource
	Ticker             string
	Side               Side
	ImpliedProb        float64
	EstimatedFairProb  float64
	Edge               float64
	Confidence         float64
	Rationale          string
	Timestamp          time.Time
}

// OrderbookSnapshot is the top-of-book derived from a raw exchange
// orderbook at one instant.
//
// Invariant: SpreadCents >= 0 when both sides are populated and the market
// is well-formed; a negative value indicates a crossed book and must be
// discarded by the caller.
type OrderbookSnapshot struct {
	Ticker          string
	BestYesBid      int
	BestNoBid       int
	SyntheticYesAsk int
	SpreadCents     int
}

// NewOrderbookSnapshot derives a snapshot from best bid prices in cents.
// A zero bid means that side of the book is empty.
func NewOrderbookSnapshot(ticker string, bestYesBid, bestNoBid int) OrderbookSnapshot {
	synthAsk := 100
	if bestNoBid > 0 {
		synthAsk = 100 - bestNoBid
	}
	return OrderbookSnapshot{
		Ticker:          ticker,
		BestYesBid:      bestYesBid,
		BestNoBid:       bestNoBid,
		SyntheticYesAsk: synthAsk,
		SpreadCents:     synthAsk - bestYesBid,
	}
}

// Empty reports whether both sides of the book are empty.
func (s OrderbookSnapshot) Empty() bool {
	return s.BestYesBid == 0 && s.BestNoBid == 0
}

// Crossed reports whether the book is crossed (negative spread), which
// indicates a malformed market that must be discarded rather than traded.
func (s OrderbookSnapshot) Crossed() bool {
	return !s.Empty() && s.SpreadCents < 0
}

// KellyResult is the output of fee-adjusted Kelly sizing for one signal.
type KellyResult struct {
	OptimalFraction  float64 // raw f*, may be negative
	PositionSizeUSD  float64 // >= 0, capped at max_position_usd
	NetEV            float64 // expected value per dollar risked, after fees
	ShouldTrade      bool
}

// TradeOrder is an intent to place an order, constructed from a Signal and
// its KellyResult. OrderID and FillPriceCents are set post-submission.
type TradeOrder struct {
	Ticker          string
	Side            Side
	Contracts       int
	LimitPriceCents int
	Signal          Signal
	Kelly           KellyResult
	Paper           bool
	OrderID         string
	FillPriceCents  int
	Timestamp       time.Time
}
