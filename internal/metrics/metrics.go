// Package metrics exposes the Prometheus counters/gauges tracked across
// strategies: intents executed, retries attempted, and same-order errors
// raised.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridcore/internal/core"
)

var (
	IntentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_intents_executed_total",
		Help: "Intents successfully executed against the exchange gateway, by strategy and kind.",
	}, []string{"strat_id", "kind"})

	IntentsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_intents_failed_total",
		Help: "Intents that failed execution and were classified, by strategy and error kind.",
	}, []string{"strat_id", "error_kind"})

	RetriesAttempted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_retries_attempted_total",
		Help: "Retry attempts dispatched by the retry queue, by strategy.",
	}, []string{"strat_id"})

	SameOrderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridcore_same_order_errors_total",
		Help: "Same-order duplicate-fill errors raised, by strategy.",
	}, []string{"strat_id"})

	TrackedOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridcore_tracked_orders",
		Help: "Currently tracked resting orders, by strategy.",
	}, []string{"strat_id"})
)

// Server hosts the /metrics scrape endpoint.
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer constructs a metrics Server bound to port.
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{port: port, logger: logger.WithField("component", "metrics_server")}
}

// Start launches the HTTP listener in the background.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("starting prometheus metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return s.srv.Shutdown(ctx)
}
