// Package runner implements the Strategy Runner: the per-strategy
// aggregate owning a grid engine, a linked long/short risk pair, tracked
// orders, and the same-order duplicate-fill detector.
package runner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gridcore/internal/apperrors"
	"gridcore/internal/core"
	"gridcore/internal/engine"
	"gridcore/internal/metrics"
	"gridcore/internal/risk"
)

var eps = decimal.NewFromFloat(0.00000001)

// IntentExecutor is the narrow surface the runner needs to dispatch
// intents; satisfied by internal/execution.Executor. The interface is
// split by variant so the runner can capture the exchange order id a
// successful place returns, and so a cancel structurally cannot reach
// the place path.
type IntentExecutor interface {
	ExecutePlace(ctx context.Context, intent *core.PlaceLimitIntent) (string, error)
	ExecuteCancel(ctx context.Context, intent *core.CancelIntent) error
}

// RetryDispatcher is the narrow surface the runner needs to requeue a
// failed intent; satisfied by internal/retryqueue.Queue.
type RetryDispatcher interface {
	Enqueue(intent core.Intent, lastErr error)
}

// Runner owns one strategy's full order-management lifecycle.
type Runner struct {
	StrategyID string
	Symbol     string

	engine   *engine.Engine
	risk     *risk.Pair
	riskCfg  core.RiskConfig
	baseQty  decimal.Decimal
	executor IntentExecutor
	retry    RetryDispatcher
	logger   core.ILogger
	notifier core.INotifier

	tracked   map[string]*core.TrackedOrder
	sameOrder SameOrderDetector
}

// New constructs a Runner. riskCfg is shared by both the long and short
// legs of the linked pair. baseQty is the per-level order size before the
// risk multiplier is applied (the configuration surface's "amount spec").
func New(strategyID, symbol string, e *engine.Engine, riskCfg core.RiskConfig, baseQty decimal.Decimal, executor IntentExecutor, retry RetryDispatcher, logger core.ILogger, notifier core.INotifier) *Runner {
	return &Runner{
		StrategyID: strategyID,
		Symbol:     symbol,
		engine:     e,
		risk:       risk.NewLinkedPair(),
		riskCfg:    riskCfg,
		baseQty:    baseQty,
		executor:   executor,
		retry:      retry,
		logger:     logger,
		notifier:   notifier,
		tracked:    make(map[string]*core.TrackedOrder),
	}
}

// CurrentMultipliers exposes the last computed per-side multipliers for
// direction, consumed by the engine at intent-creation time.
func (r *Runner) CurrentMultipliers(direction core.Direction) core.Multipliers {
	return r.risk.Result(direction)
}

// OnPositionUpdate runs the periodic (non event-driven) position-update
// tick: builds the position_ratio guard, resets both directions, computes
// long's multipliers (which may write into short's), then short's.
func (r *Runner) OnPositionUpdate(long, short *core.PositionState) {
	long.Opposite = short
	short.Opposite = long

	ratio := positionRatio(long.Size, short.Size)
	lastClose := r.engine.LastClose()

	r.risk.Reset()
	if err := r.risk.Long.Compute(long, r.riskCfg, lastClose); err != nil {
		r.logger.Warn("long risk compute failed", "strategy", r.StrategyID, "err", err)
	}
	if err := r.risk.Short.Compute(short, r.riskCfg, lastClose); err != nil {
		r.logger.Warn("short risk compute failed", "strategy", r.StrategyID, "err", err)
	}

	applyLongKoef(r.risk, r.riskCfg, ratio, long, short)
}

// positionRatio computes long_size / max(short_size, eps). A short size
// of exactly zero clamps to core.PositionRatioInf: a flat short leg
// means long dominates unconditionally, rather than by however large
// the epsilon floor happens to make the quotient.
func positionRatio(longSize, shortSize decimal.Decimal) decimal.Decimal {
	if shortSize.IsZero() {
		return core.PositionRatioInf
	}
	denom := shortSize
	if denom.LessThan(eps) {
		denom = eps
	}
	return longSize.Div(denom)
}

// applyLongKoef implements the literal zero-liq-price guard: the
// long-biasing coefficient scales long's Buy multiplier only when
// 1.1 < position_ratio < 10 and both liquidation prices are exactly zero.
func applyLongKoef(pair *risk.Pair, cfg core.RiskConfig, ratio decimal.Decimal, long, short *core.PositionState) {
	if !ratio.GreaterThan(decimal.NewFromFloat(1.1)) || !ratio.LessThan(decimal.NewFromInt(10)) {
		return
	}
	if !long.LiquidationPrice.IsZero() || !short.LiquidationPrice.IsZero() {
		return
	}
	if cfg.LongKoef.IsZero() {
		return
	}
	pair.ScaleLongBuy(cfg.LongKoef)
}

// OnExecution feeds fully-filled executions to the same-order detector
// then forwards the event to the engine unconditionally — the detector
// only gates intent emission, never event bookkeeping.
func (r *Runner) OnExecution(exec core.ExecutionEvent) {
	if exec.LeavesQty.IsZero() {
		if r.sameOrder.Observe(exec) {
			r.logger.Error("same-order duplicate detected", "strategy", r.StrategyID, "order_id", exec.OrderID, "price", exec.Price.String())
			r.notifier.Alert("same-order duplicate detected on "+r.Symbol, "same_order_"+r.StrategyID)
			metrics.SameOrderErrors.WithLabelValues(r.StrategyID).Inc()
		}
	}
	r.engine.OnExecution(exec)
}

// OnOrderUpdate forwards the status transition to the engine's pending
// bookkeeping and advances the tracked order keyed by the client order
// id. Terminal transitions drop the order from tracking so the next
// ticker pass can re-arm the slot.
func (r *Runner) OnOrderUpdate(upd core.OrderUpdateEvent) {
	r.engine.OnOrderUpdate(upd)

	t, ok := r.tracked[upd.OrderLinkID]
	if !ok {
		return
	}
	switch upd.Status {
	case core.WireNew, core.WirePartiallyFilled:
		if t.ExchangeID == "" {
			t.ExchangeID = upd.OrderID
		}
		t.Status = core.OrderPlaced
	case core.WireFilled, core.WireCancelled, core.WireRejected:
		delete(r.tracked, upd.OrderLinkID)
		metrics.TrackedOrders.WithLabelValues(r.StrategyID).Set(float64(len(r.tracked)))
	}
}

// AnchorRecord snapshots the engine's current anchor and grid geometry
// for persistence. ok is false until a first build has set the anchor.
func (r *Runner) AnchorRecord() (core.AnchorRecord, bool) {
	anchor := r.engine.AnchorPrice()
	if anchor.IsZero() {
		return core.AnchorRecord{}, false
	}
	cfg := r.engine.Config()
	return core.AnchorRecord{
		AnchorPrice: anchor,
		GridStep:    cfg.GridStep,
		GridCount:   cfg.GridCount,
	}, true
}

// ResetSameOrderError clears a raised same-order error after operator
// action, independent of the auto-clear-on-eviction path.
func (r *Runner) ResetSameOrderError() {
	r.sameOrder.Reset()
}

// SeedTrackedOrders merges externally reconciled tracked orders — from the
// orchestrator's startup reconciliation pass — into the runner's own map.
func (r *Runner) SeedTrackedOrders(tracked map[string]*core.TrackedOrder) {
	for id, t := range tracked {
		r.tracked[id] = t
	}
}

// TrackedOrders returns the runner's live tracked-order map (not a copy).
// The orchestrator's periodic reconciliation pass injects into it directly,
// on the runner's event worker.
func (r *Runner) TrackedOrders() map[string]*core.TrackedOrder {
	return r.tracked
}

// OpenOrdersView projects the runner's placed tracked orders into the
// engine's OpenOrderView shape, for the ticker event's reconciliation
// pass. Ticker handling must complete without network I/O, so the engine
// is handed the runner's own believed-live orders rather than a fresh
// exchange fetch; the periodic reconciler (internal/reconcile) is what
// keeps that belief aligned with the exchange's authoritative view.
func (r *Runner) OpenOrdersView() []core.OpenOrderView {
	views := make([]core.OpenOrderView, 0, len(r.tracked))
	for _, t := range r.tracked {
		if t.Status != core.OrderPlaced || t.Intent == nil {
			continue
		}
		views = append(views, core.OpenOrderView{
			OrderID:       t.ExchangeID,
			ClientOrderID: t.ClientOrderID,
			Symbol:        r.Symbol,
			Side:          t.Intent.Side,
			Price:         t.Intent.Price,
			Qty:           t.Intent.Qty,
		})
	}
	return views
}

// Dispatch executes each intent, routing by variant. Place intents are
// suppressed entirely while a same-order error is active; cancels are
// never suppressed — unwinding a bad state must still be able to cancel
// resting orders.
func (r *Runner) Dispatch(ctx context.Context, intents []core.Intent) {
	suppressed := r.sameOrder.Errored()
	for _, intent := range intents {
		switch {
		case intent.Place != nil:
			if suppressed {
				continue
			}
			exchangeID, err := r.executor.ExecutePlace(ctx, intent.Place)
			if err != nil {
				metrics.IntentsFailed.WithLabelValues(r.StrategyID, apperrors.Classify(err).String()).Inc()
				r.retry.Enqueue(intent, err)
				continue
			}
			metrics.IntentsExecuted.WithLabelValues(r.StrategyID, "place").Inc()
			r.tracked[intent.Place.ClientOrderID] = &core.TrackedOrder{
				ClientOrderID: intent.Place.ClientOrderID,
				ExchangeID:    exchangeID,
				Intent:        intent.Place,
				Status:        core.OrderPlaced,
				PlacedTS:      time.Now(),
			}
			metrics.TrackedOrders.WithLabelValues(r.StrategyID).Set(float64(len(r.tracked)))
		case intent.Cancel != nil:
			if err := r.executor.ExecuteCancel(ctx, intent.Cancel); err != nil {
				metrics.IntentsFailed.WithLabelValues(r.StrategyID, apperrors.Classify(err).String()).Inc()
				r.retry.Enqueue(intent, err)
				continue
			}
			metrics.IntentsExecuted.WithLabelValues(r.StrategyID, "cancel").Inc()
			r.forgetByExchangeID(intent.Cancel.OrderID)
		}
	}
}

// forgetByExchangeID drops the tracked order holding exchangeID, if any.
func (r *Runner) forgetByExchangeID(exchangeID string) {
	if exchangeID == "" {
		return
	}
	for id, t := range r.tracked {
		if t.ExchangeID == exchangeID {
			delete(r.tracked, id)
			metrics.TrackedOrders.WithLabelValues(r.StrategyID).Set(float64(len(r.tracked)))
			return
		}
	}
}

// OnTicker runs the engine's reconciliation pass, scales each Place
// intent's quantity by the current risk multiplier, and dispatches the
// resulting intents through the executor/retry path.
func (r *Runner) OnTicker(ctx context.Context, lastPrice decimal.Decimal, openOrders []core.OpenOrderView) {
	intents := r.engine.OnTicker(lastPrice, openOrders)
	r.applyQuantities(intents)
	r.Dispatch(ctx, intents)
}

// applyQuantities scales each Place intent's quantity by baseQty times the
// per-side multiplier for its direction, as of intent-creation time.
func (r *Runner) applyQuantities(intents []core.Intent) {
	for i := range intents {
		p := intents[i].Place
		if p == nil {
			continue
		}
		mult := r.risk.Result(p.Direction)
		factor := mult.Buy
		if p.Side == core.SideSell {
			factor = mult.Sell
		}
		p.Qty = r.baseQty.Mul(factor)
	}
}
