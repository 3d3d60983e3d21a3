// Package engine implements the Grid Engine: a stateful event processor
// that consumes ticker/execution/order-update events and emits place/cancel
// intents against a Grid Ladder.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"gridcore/internal/core"
	"gridcore/internal/grid"
	"gridcore/internal/pricing"
)

// rebuildOrderSlack is the headroom above grid_count beyond which the
// engine assumes the open-order set is corrupt and rebuilds from scratch.
const rebuildOrderSlack = 10

// ClientOrderID derives the deterministic order identity for a grid slot:
// first 16 hex chars of sha256(symbol|side|price_to_tick|grid_level|direction).
// Quantity is intentionally excluded so retries with adjusted quantities
// reuse the same id.
func ClientOrderID(symbol string, side core.Side, priceAtTick decimal.Decimal, gridLevel int, direction core.Direction) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s", symbol, side, priceAtTick.String(), gridLevel, direction)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// Engine owns one symbol's ladder plus the minimal state needed to drive
// the reconciliation pass.
type Engine struct {
	Symbol     string
	Direction  core.Direction
	ladder     *grid.Ladder
	cfg        core.GridConfig
	anchor     decimal.Decimal
	haveAnchor bool

	lastClose       decimal.Decimal
	lastFilledPrice decimal.Decimal
	pendingOrders   map[string]string // client_order_id -> exchange_order_id
}

// New constructs an engine for symbol/direction. If anchor is set (via
// SetAnchor) the first ticker builds around it; otherwise it builds
// around the first observed price.
func New(symbol string, direction core.Direction, cfg core.GridConfig) *Engine {
	return &Engine{
		Symbol:        symbol,
		Direction:     direction,
		ladder:        grid.New(cfg),
		cfg:           cfg,
		pendingOrders: make(map[string]string),
	}
}

// SetAnchor seeds the anchor used for the first build, typically loaded
// from the anchor store at startup.
func (e *Engine) SetAnchor(anchor decimal.Decimal) {
	e.anchor = anchor
	e.haveAnchor = true
}

// LastClose returns the most recently observed ticker price, used by the
// runner's position-update tick as the risk multiplier's lastClose input.
func (e *Engine) LastClose() decimal.Decimal {
	return e.lastClose
}

// AnchorPrice returns the ladder's original build center.
func (e *Engine) AnchorPrice() decimal.Decimal {
	return e.ladder.AnchorPrice()
}

// Ladder exposes the underlying ladder for read-only inspection (tests,
// reconciler, anchor persistence).
func (e *Engine) Ladder() *grid.Ladder {
	return e.ladder
}

// Config returns the grid configuration this engine was built with.
func (e *Engine) Config() core.GridConfig {
	return e.cfg
}

// OnTicker handles a ticker event: build on an empty ladder, record
// last_close, then always run the reconciliation pass against the
// supplied open orders.
func (e *Engine) OnTicker(lastPrice decimal.Decimal, openOrders []core.OpenOrderView) []core.Intent {
	if len(e.ladder.Levels()) == 0 {
		if e.haveAnchor {
			e.ladder.Build(e.anchor)
		} else {
			e.ladder.Build(lastPrice)
		}
	}
	e.lastClose = lastPrice

	return e.reconcile(openOrders)
}

func (e *Engine) reconcile(openOrders []core.OpenOrderView) []core.Intent {
	var intents []core.Intent

	if len(openOrders) > e.cfg.GridCount+rebuildOrderSlack {
		for _, o := range openOrders {
			intents = append(intents, core.Intent{Cancel: &core.CancelIntent{
				Symbol: e.Symbol, OrderID: o.OrderID, Reason: core.CancelRebuild,
			}})
		}
		e.ladder.Build(e.lastClose)
		return intents
	}

	if len(openOrders) > 0 && len(openOrders) < e.cfg.GridCount {
		e.ladder.UpdateOnFill(e.lastFilledPrice, e.lastClose)
	}

	haveOrderAtPrice := make(map[string]bool, len(openOrders))
	for _, o := range openOrders {
		level, ok := e.ladder.LevelAt(o.Price)
		if !ok {
			intents = append(intents, core.Intent{Cancel: &core.CancelIntent{
				Symbol: e.Symbol, OrderID: o.OrderID, Reason: core.CancelOutsideGrid,
			}})
			continue
		}
		if level.Side != o.Side {
			intents = append(intents, core.Intent{Cancel: &core.CancelIntent{
				Symbol: e.Symbol, OrderID: o.OrderID, Reason: core.CancelSideMismatch,
			}})
			intents = append(intents, e.placeIntentForLevel(level))
			haveOrderAtPrice[level.Price.String()] = true
			continue
		}
		haveOrderAtPrice[level.Price.String()] = true
	}

	minDistance := e.cfg.GridStep.Div(decimal.NewFromInt(2))
	for _, level := range e.ladder.Levels() {
		if level.Side != core.SideBuy && level.Side != core.SideSell {
			continue
		}
		if haveOrderAtPrice[level.Price.String()] {
			continue
		}
		if e.lastClose.IsZero() {
			continue
		}
		dist := pricing.PercentDistance(level.Price, e.lastClose)
		if !dist.GreaterThan(minDistance) {
			continue
		}
		if level.Side == core.SideBuy && !level.Price.LessThan(e.lastClose) {
			continue
		}
		if level.Side == core.SideSell && !level.Price.GreaterThan(e.lastClose) {
			continue
		}
		intents = append(intents, e.placeIntentForLevel(level))
	}

	return intents
}

func (e *Engine) placeIntentForLevel(level core.GridLevel) core.Intent {
	gridLevel := e.gridLevelIndex(level.Price)
	reduceOnly := reduceOnlyFor(e.Direction, level.Side)
	id := ClientOrderID(e.Symbol, level.Side, level.Price, gridLevel, e.Direction)
	return core.Intent{Place: &core.PlaceLimitIntent{
		Symbol:        e.Symbol,
		Side:          level.Side,
		Price:         level.Price,
		GridLevel:     gridLevel,
		Direction:     e.Direction,
		ReduceOnly:    reduceOnly,
		ClientOrderID: id,
	}}
}

func (e *Engine) gridLevelIndex(price decimal.Decimal) int {
	for i, lvl := range e.ladder.Levels() {
		if lvl.Price.Equal(price) {
			return i - e.cfg.GridCount/2
		}
	}
	return 0
}

// reduceOnlyFor implements the reduce-only rule: for direction=long, Sell
// is reduce-only; for direction=short, Buy is reduce-only.
func reduceOnlyFor(direction core.Direction, side core.Side) bool {
	if direction == core.DirectionLong {
		return side == core.SideSell
	}
	return side == core.SideBuy
}

// OnExecution implements the Execution event contract: record
// last_filled_price, clear the pending entry, and apply update-on-fill if
// last_close is already known. Executions generate no intents directly.
func (e *Engine) OnExecution(exec core.ExecutionEvent) {
	e.lastFilledPrice = exec.Price
	delete(e.pendingOrders, exec.OrderLinkID)
	if !e.lastClose.IsZero() {
		e.ladder.UpdateOnFill(e.lastFilledPrice, e.lastClose)
	}
}

// OnOrderUpdate implements the OrderUpdate event contract: track pending
// orders by status, generating no intents.
func (e *Engine) OnOrderUpdate(upd core.OrderUpdateEvent) {
	switch upd.Status {
	case core.WireNew, core.WirePartiallyFilled:
		e.pendingOrders[upd.OrderLinkID] = upd.OrderID
	case core.WireFilled, core.WireCancelled, core.WireRejected:
		delete(e.pendingOrders, upd.OrderLinkID)
	}
}
