// Package orchestrator runs the cycle scheduler: each tick fans out the
// three signal producers concurrently, concatenates their output, sizes
// and commits trades, then sleeps until the next cycle.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nrhodes/kalshi-signal-engine/internal/model"
	"github.com/nrhodes/kalshi-signal-engine/internal/risk"
	"github.com/nrhodes/kalshi-signal-engine/internal/telemetry"
)

// State names the orchestrator's lifecycle stage. It is tracked inside this
// package only: it is neither logged nor read by any other component.
type State string

const (
	StateStarting     State = "starting"
	StateCycling      State = "cycling"
	StateSleeping     State = "sleeping"
	StateShuttingDown State = "shutting_down"
)

// BankrollSource returns the USD bankroll to size against for the current
// cycle.
type BankrollSource interface {
	BankrollUSD(ctx context.Context) (float64, error)
}

// Producer runs one signal scan.
type Producer func(ctx context.Context) []model.Signal

// Orchestrator drives the cycle: fan out B/C/D, concatenate, size, commit,
// sleep, repeat until the context is cancelled.
type Orchestrator struct {
	orderbook Producer
	news      Producer
	arbitrage Producer
	executor  *risk.Executor
	bankroll  BankrollSource
	interval  time.Duration
	logger    *zap.Logger

	state State
}

// Config configures an Orchestrator.
type Config struct {
	Orderbook Producer
	News      Producer
	Arbitrage Producer
	Executor  *risk.Executor
	Bankroll  BankrollSource
	Interval  time.Duration
	Logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		orderbook: cfg.Orderbook,
		news:      cfg.News,
		arbitrage: cfg.Arbitrage,
		executor:  cfg.Executor,
		bankroll:  cfg.Bankroll,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
		state:     StateStarting,
	}
}

// Run loops cycles until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting", zap.Duration("interval", o.interval))
	for {
		select {
		case <-ctx.Done():
			o.state = StateShuttingDown
			o.logger.Info("orchestrator shutting down")
			return ctx.Err()
		default:
		}

		o.state = StateCycling
		o.runCycle(ctx)

		o.state = StateSleeping
		select {
		case <-ctx.Done():
			o.state = StateShuttingDown
			o.logger.Info("orchestrator shutting down")
			return ctx.Err()
		case <-time.After(o.interval):
		}
	}
}

// runCycle fans out the three producers, concatenates their signals in
// B-then-C-then-D order, and sizes/commits the result. A panicking or
// erroring producer contributes an empty signal list rather than aborting
// the cycle — isolation is per-producer, not per-signal.
func (o *Orchestrator) runCycle(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.CycleDuration.Observe(time.Since(start).Seconds()) }()

	var obSignals, newsSignals, arbSignals []model.Signal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obSignals = o.runProducerSafely(gctx, "orderbook", o.orderbook)
		return nil
	})
	g.Go(func() error {
		newsSignals = o.runProducerSafely(gctx, "news", o.news)
		return nil
	})
	g.Go(func() error {
		arbSignals = o.runProducerSafely(gctx, "arbitrage", o.arbitrage)
		return nil
	})
	_ = g.Wait()

	var all []model.Signal
	all = append(all, obSignals...)
	all = append(all, newsSignals...)
	all = append(all, arbSignals...)

	if len(all) == 0 {
		return
	}

	bankroll, err := o.bankroll.BankrollUSD(ctx)
	if err != nil {
		o.logger.Error("orchestrator: bankroll lookup failed, skipping cycle", zap.Error(err))
		return
	}

	committed := o.executor.Run(ctx, all, bankroll)
	o.logger.Info("cycle complete",
		zap.Int("signals", len(all)),
		zap.Int("orders", len(committed)),
	)
}

// runProducerSafely isolates a panicking producer, converting it to an
// empty result so one bad scan never takes down the cycle.
func (o *Orchestrator) runProducerSafely(ctx context.Context, name string, p Producer) (signals []model.Signal) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("producer panicked, isolating", zap.String("producer", name), zap.Any("recover", r))
			signals = nil
		}
	}()
	if p == nil {
		return nil
	}
	return p(ctx)
}
