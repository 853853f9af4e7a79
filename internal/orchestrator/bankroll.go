package orchestrator

import (
	"context"
	"sync"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
)

// BalanceGetter is the subset of the exchange client live bankroll needs.
type BalanceGetter interface {
	GetBalance(ctx context.Context) (*exchange.Balance, error)
}

// PaperBankroll returns a constant bankroll derived from the configured
// max position size, per the paper-mode sizing convention: ten times
// max_position_usd, large enough that position sizing is never bounded by
// bankroll rather than by the Kelly fraction itself.
type PaperBankroll struct {
	USD float64
}

// NewPaperBankroll constructs a PaperBankroll from max_position_usd.
func NewPaperBankroll(maxPositionUSD float64) PaperBankroll {
	return PaperBankroll{USD: maxPositionUSD * 10}
}

// BankrollUSD implements BankrollSource.
func (p PaperBankroll) BankrollUSD(ctx context.Context) (float64, error) {
	return p.USD, nil
}

// LiveBankroll reads the real portfolio balance once, on the first
// successful BankrollUSD call (the first cycle with signals to size), not
// at construction, and serves that cached value for every subsequent
// cycle. It never refreshes:
// a live cycle that changes the balance (through a fill, a deposit, or a
// withdrawal) will size against a stale number until the process restarts.
type LiveBankroll struct {
	client BalanceGetter

	mu      sync.Mutex
	fetched bool
	usd     float64
}

// NewLiveBankroll constructs a LiveBankroll backed by client.
func NewLiveBankroll(client BalanceGetter) *LiveBankroll {
	return &LiveBankroll{client: client}
}

// BankrollUSD fetches the balance on first call and caches it for the
// lifetime of the process.
func (l *LiveBankroll) BankrollUSD(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fetched {
		return l.usd, nil
	}

	bal, err := l.client.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	l.usd = float64(bal.Balance) / 100.0
	l.fetched = true
	return l.usd, nil
}
