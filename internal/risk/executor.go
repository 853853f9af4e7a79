package risk

import (
	"context"

	"go.uber.org/zap"

	"github.com/nrhodes/kalshi-signal-engine/internal/exchange"
	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

// OrderPlacer is the subset of the exchange client the executor depends on
// for live submission.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error)
}

// Executor sizes a batch of signals and commits the ones that clear the
// Kelly threshold, either to the paper journal or to the live exchange.
type Executor struct {
	params  Params
	paper   bool
	placer  OrderPlacer // nil in paper mode
	journal *Journal    // nil in live mode
	logger  *zap.Logger
}

// NewExecutor constructs an Executor. Exactly one of placer/journal is used
// depending on paper.
func NewExecutor(params Params, paper bool, placer OrderPlacer, journal *Journal, logger *zap.Logger) *Executor {
	return &Executor{params: params, paper: paper, placer: placer, journal: journal, logger: logger}
}

// Run sizes every signal against bankrollUSD independently and commits each
// survivor. One order's failure never blocks the rest of the batch.
func (e *Executor) Run(ctx context.Context, signals []model.Signal, bankrollUSD float64) []model.TradeOrder {
	var committed []model.TradeOrder

	for _, sig := range signals {
		kelly := Size(sig, bankrollUSD, e.params)
		order, ok := BuildOrder(sig, kelly, e.paper)
		if !ok {
			telemetry.OrdersRejectedTotal.Inc()
			continue
		}

		if err := e.commit(ctx, &order); err != nil {
			e.logger.Error("order commit failed",
				zap.String("ticker", order.Ticker),
				zap.String("side", string(order.Side)),
				zap.Error(err),
			)
			telemetry.OrdersRejectedTotal.Inc()
			continue
		}

		telemetry.OrdersPlacedTotal.WithLabelValues(modeLabel(e.paper)).Inc()
		committed = append(committed, order)
	}

	return committed
}

func (e *Executor) commit(ctx context.Context, order *model.TradeOrder) error {
	if e.paper {
		return e.journal.LogPaperTrade(*order)
	}
	return e.placeLive(ctx, order)
}

func (e *Executor) placeLive(ctx context.Context, order *model.TradeOrder) error {
	req := exchange.OrderRequest{
		Ticker: order.Ticker,
		Action: "buy",
		Side:   string(order.Side),
		Type:   "limit",
		Count:  order.Contracts,
	}
	if order.Side == model.Yes {
		req.YesPrice = order.LimitPriceCents
	} else {
		req.NoPrice = order.LimitPriceCents
	}

	placed, err := e.placer.CreateOrder(ctx, req)
	if err != nil {
		return err
	}
	order.OrderID = placed.OrderID
	return nil
}

func modeLabel(paper bool) string {
	if paper {
		return "paper"
	}
	return "live"
}
