// Package reconcile implements the Reconciler: it compares the exchange's
// authoritative open-orders view against in-memory tracked orders,
// injecting orders the engine doesn't know about and flagging tracked
// orders the exchange no longer shows.
package reconcile

import (
	"time"

	"gridcore/internal/core"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Fetched  int
	Injected int
	Orphans  int
	Errors   []error
}

// Reconciler holds no state of its own; it operates on the tracked-order
// map owned by the caller (the strategy runner).
type Reconciler struct {
	logger core.ILogger
}

// New constructs a Reconciler.
func New(logger core.ILogger) *Reconciler {
	return &Reconciler{logger: logger}
}

// ReconcileStartup injects every open exchange order as a tracked order
// in the placed state, so the engine observes them on its next
// reconciliation pass. No orphan detection runs at startup: the
// in-memory map is necessarily empty or stale from a crash, so "missing
// locally" is the expected case, not an anomaly.
func (r *Reconciler) ReconcileStartup(openOrders []core.OpenOrderView, tracked map[string]*core.TrackedOrder) Result {
	now := time.Now()
	for _, o := range openOrders {
		r.inject(o, now, tracked)
	}
	return Result{Fetched: len(openOrders), Injected: len(openOrders)}
}

// ReconcilePeriodic compares openOrders (the authoritative exchange view)
// against tracked. Exchange orders absent locally are injected as placed.
// Locally-placed orders absent from the exchange are counted as orphans
// but never cancelled here — the grid engine's next ticker reconciliation
// pass issues a fresh place if the ladder still wants that slot filled.
// If fetchErr is non-nil (the caller's open-orders fetch failed), the
// pass is skipped entirely and fetchErr is returned in Errors.
func (r *Reconciler) ReconcilePeriodic(openOrders []core.OpenOrderView, fetchErr error, tracked map[string]*core.TrackedOrder) Result {
	if fetchErr != nil {
		return Result{Errors: []error{fetchErr}}
	}

	res := Result{Fetched: len(openOrders)}
	now := time.Now()

	onExchange := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		onExchange[o.ClientOrderID] = true
		if _, known := tracked[o.ClientOrderID]; !known {
			r.inject(o, now, tracked)
			res.Injected++
		}
	}

	for id, t := range tracked {
		if t.Status != core.OrderPlaced {
			continue
		}
		if !onExchange[id] {
			res.Orphans++
			r.logger.Warn("order orphaned: tracked as placed but absent from exchange", "client_order_id", id)
		}
	}

	return res
}

// inject records one exchange order as tracked. The place intent is
// reconstructed from the exchange view so the engine's next ticker pass
// sees the order's side and price, not just its ids.
func (r *Reconciler) inject(o core.OpenOrderView, now time.Time, tracked map[string]*core.TrackedOrder) {
	tracked[o.ClientOrderID] = &core.TrackedOrder{
		ClientOrderID: o.ClientOrderID,
		ExchangeID:    o.OrderID,
		Intent: &core.PlaceLimitIntent{
			Symbol:        o.Symbol,
			Side:          o.Side,
			Price:         o.Price,
			Qty:           o.Qty,
			ClientOrderID: o.ClientOrderID,
		},
		Status:   core.OrderPlaced,
		PlacedTS: now,
	}
}
