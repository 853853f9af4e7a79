package risk

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/nrhodes/kalshi-signal-engine/internal/model"
)

// Journal is the append-only JSONL trade journal. It is the single writer
// of record for paper-mode orders; no in-place edits are ever made. Risk &
// Execution is the journal's exclusive owner.
type Journal struct {
	f  *os.File
	mu sync.Mutex
}

// OpenJournal opens (or creates) the journal file in append mode.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f}, nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// tradeRecord is the JSONL shape for one paper trade, per spec.md §4.E
// Commit / §6 "Trade journal format".
type tradeRecord struct {
	Timestamp       string  `json:"timestamp"`
	Ticker          string  `json:"ticker"`
	Side            string  `json:"side"`
	Contracts       int     `json:"contracts"`
	LimitPriceCents int     `json:"limit_price_cents"`
	FillPriceCents  int     `json:"fill_price_cents"`
	OptimalFraction float64 `json:"kelly_optimal_fraction"`
	PositionSizeUSD float64 `json:"kelly_position_size_usd"`
	NetEV           float64 `json:"kelly_net_ev"`
	Source          string  `json:"source"`
	Rationale       string  `json:"rationale"`
	Paper           bool    `json:"paper"`
}

// LogPaperTrade appends one record for a simulated paper fill at the limit
// price.
func (j *Journal) LogPaperTrade(order model.TradeOrder) error {
	rec := tradeRecord{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		Ticker:          order.Ticker,
		Side:            string(order.Side),
		Contracts:       order.Contracts,
		LimitPriceCents: order.LimitPriceCents,
		FillPriceCents:  order.LimitPriceCents,
		OptimalFraction: order.Kelly.OptimalFraction,
		PositionSizeUSD: order.Kelly.PositionSizeUSD,
		NetEV:           order.Kelly.NetEV,
		Source:          string(order.Signal.Source),
		Rationale:       order.Signal.Rationale,
		Paper:           true,
	}
	return j.append(rec)
}

func (j *Journal) append(rec interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(data); err != nil {
		return err
	}
	return j.f.Sync()
}
