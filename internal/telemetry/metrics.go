package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// The counters and histograms exported across the pipeline. They are
// package-level vars registered with the default Prometheus registry when
// the package is initialised, and every component uses them directly.
var (
	SignalsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_signals_emitted_total",
		Help: "Total signals emitted per producer source.",
	}, []string{"source"})

	OrdersPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_orders_placed_total",
		Help: "Total orders committed, split by paper/live.",
	}, []string{"mode"})

	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_orders_rejected_total",
		Help: "Total signals sized but not committed (should_trade=false or commit failure).",
	})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalengine_gateway_requests_total",
		Help: "Total exchange gateway requests by method and outcome.",
	}, []string{"method", "outcome"})

	GatewayRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_gateway_retries_total",
		Help: "Total 429 rate-limit retries performed by the gateway.",
	})

	GatewayRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalengine_gateway_request_duration_seconds",
		Help:    "Exchange gateway request latency.",
		Buckets: prometheus.DefBuckets,
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalengine_cycle_duration_seconds",
		Help:    "Wall-clock duration of one orchestrator cycle.",
		Buckets: prometheus.DefBuckets,
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_market_cache_hits_total",
		Help: "Open-markets cache hits.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalengine_market_cache_misses_total",
		Help: "Open-markets cache misses.",
	})
)

// ServeMetrics starts an HTTP server exposing /metrics and blocks until ctx
// is cancelled, then shuts down gracefully.
func ServeMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("metrics server stopping")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
