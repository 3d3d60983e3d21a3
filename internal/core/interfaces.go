// Package core defines the core interfaces for the grid trading system.
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger defines the interface for structured logging used throughout the
// core. Implementations wrap a concrete backend (zap in this module).
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// IExchangeGateway is the narrow surface the core needs from whatever speaks
// the exchange wire protocol. The core never dials a websocket or signs a
// REST request itself; it is handed a gateway that already does.
type IExchangeGateway interface {
	PlaceLimitOrder(ctx context.Context, intent *PlaceLimitIntent) (exchangeOrderID string, err error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]OpenOrderView, error)
	GetPosition(ctx context.Context, symbol string, direction Direction) (*PositionState, error)
	GetWalletBalance(ctx context.Context, coin string) (decimal.Decimal, error)
}

// INotifier delivers operator-facing alerts. Delivery is best-effort and
// must never block the caller on a slow downstream channel.
type INotifier interface {
	Alert(message, errorKey string)
	AlertException(context string, err error, errorKey string)
}

// IAnchorStore persists the grid anchor price per strategy so restarts do
// not recenter the ladder.
type IAnchorStore interface {
	LoadAnchor(ctx context.Context, strategyID string) (AnchorRecord, bool, error)
	SaveAnchor(ctx context.Context, strategyID string, rec AnchorRecord) error
}

// IRiskLimitCache exposes the exchange's tiered risk-limit table, refreshed
// on a TTL and backed by a bounded on-disk cache.
type IRiskLimitCache interface {
	MaxLeverageForValue(symbol string, positionValue decimal.Decimal) (decimal.Decimal, error)
	Refresh(ctx context.Context) error
}

// IIntentExecutor turns an Intent into exchange calls, classifying failures
// into benign, retryable, and authoritative outcomes.
type IIntentExecutor interface {
	Execute(ctx context.Context, intent Intent) error
}

// IRetryDispatcher resubmits previously-failed intents with bounded
// attempts and backoff.
type IRetryDispatcher interface {
	Enqueue(intent Intent, lastErr error)
	Drain(ctx context.Context)
	Stop()
}

// IHealthMonitor aggregates named liveness checks for the orchestrator's
// periodic health-check task.
type IHealthMonitor interface {
	Register(component string, check func() error)
	GetStatus() map[string]string
	IsHealthy() bool
}

// IGridLadder is the strategy-facing surface of the grid geometry.
type IGridLadder interface {
	Levels() []GridLevel
	AnchorPrice() decimal.Decimal
	Build(anchor decimal.Decimal)
	Recenter(newAnchor decimal.Decimal)
	NeedsRecenter(currentPrice decimal.Decimal) bool
	IsSorted() bool
}

// IRiskMultiplier computes per-side quantity multipliers for one leg of a
// linked long/short position pair, writing into the pair's shared result
// set rather than returning a value directly.
type IRiskMultiplier interface {
	Compute(pos *PositionState, cfg RiskConfig, lastClose decimal.Decimal) error
}

// EventEnvelope wraps one normalized wire event: the three kinds the
// engine consumes plus position pushes for the orchestrator's cache.
// Exactly one event field is non-nil.
type EventEnvelope struct {
	Ticker      *TickerEvent
	Execution   *ExecutionEvent
	OrderUpdate *OrderUpdateEvent
	Position    *PositionEvent
	ReceivedAt  time.Time
}
