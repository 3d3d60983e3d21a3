// Package core defines the shared domain types for the grid trading core:
// grid levels, positions, tracked orders, intents and wire events. These
// types are deliberately plain structs over decimal.Decimal rather than
// generated wire types, since the exchange protocol adaptation lives in
// an external gateway the core never imports.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a grid level or order side.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
	SideWait Side = "Wait"
)

// Direction distinguishes the long and short legs of a position-managed pair.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// GridLevel is a (price, side) slot in the ladder.
type GridLevel struct {
	Price decimal.Decimal
	Side  Side
}

// GridConfig controls ladder shape.
type GridConfig struct {
	GridCount          int             // must be even: produces GridCount+1 levels
	GridStep           decimal.Decimal // percent, e.g. 0.2 for 0.2%
	RebalanceThreshold decimal.Decimal // fraction in (0,1)
	TickSize           decimal.Decimal
}

// PositionState carries the exchange-reported state of one directional leg.
// Opposite links to the paired leg; both must be set before a RiskMultiplier
// can evaluate either side.
type PositionState struct {
	Direction        Direction
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	Margin           decimal.Decimal
	LiquidationPrice decimal.Decimal
	Leverage         decimal.Decimal
	PositionValue    decimal.Decimal
	Opposite         *PositionState
}

// RiskConfig parameterizes the position multiplier rule table.
type RiskConfig struct {
	MinLiqRatio                     decimal.Decimal
	MaxLiqRatio                     decimal.Decimal
	MaxMargin                       decimal.Decimal
	MinTotalMargin                  decimal.Decimal
	IncreaseSamePositionOnLowMargin bool
	LongKoef                        decimal.Decimal
}

// Multipliers holds the per-side amount multiplier for one direction.
type Multipliers struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

// DefaultMultipliers returns the neutral {1,1} multiplier pair.
func DefaultMultipliers() Multipliers {
	return Multipliers{Buy: decimal.NewFromInt(1), Sell: decimal.NewFromInt(1)}
}

// PositionRatioInf stands in for long/short when the short leg's size is
// zero: a literal division would be undefined, so the ratio is clamped to
// this large sentinel. It lies above long_koef's upper bound of 10, so
// long_koef is not applied while the short leg is flat.
var PositionRatioInf = decimal.NewFromInt(1_000_000)

// OrderStatus is the lifecycle state of a tracked order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPlaced    OrderStatus = "placed"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// TrackedOrder is the runner's view of an order dispatched or reconciled.
type TrackedOrder struct {
	ClientOrderID string
	ExchangeID    string
	Intent        *PlaceLimitIntent
	Status        OrderStatus
	PlacedTS      time.Time
}

// CancelReason explains why an intent cancels an order.
type CancelReason string

const (
	CancelSideMismatch CancelReason = "side_mismatch"
	CancelOutsideGrid  CancelReason = "outside_grid"
	CancelRebuild      CancelReason = "rebuild"
)

// PlaceLimitIntent requests a new resting limit order.
type PlaceLimitIntent struct {
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	GridLevel     int
	Direction     Direction
	ReduceOnly    bool
	ClientOrderID string
}

// CancelIntent requests cancellation of a known exchange order.
type CancelIntent struct {
	Symbol  string
	OrderID string
	Reason  CancelReason
}

// Intent is the sum of the two order-management actions the engine emits.
// Exactly one of Place/Cancel is non-nil.
type Intent struct {
	Place  *PlaceLimitIntent
	Cancel *CancelIntent
}

// EventBase carries the fields common to every wire event.
type EventBase struct {
	Symbol     string
	ExchangeTS time.Time
	LocalTS    time.Time
}

// TickerEvent reports the latest traded/mark price for a symbol.
type TickerEvent struct {
	EventBase
	LastPrice   decimal.Decimal
	MarkPrice   decimal.Decimal
	BidPrice    decimal.Decimal
	AskPrice    decimal.Decimal
	FundingRate decimal.Decimal
}

// ExecutionEvent reports a fill (full or partial) against a resting order.
type ExecutionEvent struct {
	EventBase
	ExecID      string
	OrderID     string
	OrderLinkID string
	Side        Side
	Price       decimal.Decimal
	Qty         decimal.Decimal
	Fee         decimal.Decimal
	ClosedPnL   decimal.Decimal
	LeavesQty   decimal.Decimal
	ClosedSize  decimal.Decimal
}

// OrderWireStatus is the exchange-reported order status.
type OrderWireStatus string

const (
	WireNew             OrderWireStatus = "New"
	WirePartiallyFilled OrderWireStatus = "PartiallyFilled"
	WireFilled          OrderWireStatus = "Filled"
	WireCancelled       OrderWireStatus = "Cancelled"
	WireRejected        OrderWireStatus = "Rejected"
)

// OrderUpdateEvent reports an order-status transition from the exchange.
type OrderUpdateEvent struct {
	EventBase
	OrderID     string
	OrderLinkID string
	Status      OrderWireStatus
	Side        Side
	Price       decimal.Decimal
	Qty         decimal.Decimal
	LeavesQty   decimal.Decimal
}

// PositionEvent reports one directional leg's exchange-side position
// state, as pushed on the private position topic. It feeds the
// orchestrator's account-local position cache, not the engine.
type PositionEvent struct {
	EventBase
	Direction Direction
	State     PositionState
}

// PublicTradeEvent is consumed by the (out-of-core) recorder, not the engine.
type PublicTradeEvent struct {
	EventBase
	TradeID string
	Side    Side
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// OpenOrderView is the authoritative exchange-side view of a resting order,
// as surfaced to the reconciler and the engine's reconciliation pass.
type OpenOrderView struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
}

// AnchorRecord is what gets persisted per strategy so grid geometry survives
// restarts.
type AnchorRecord struct {
	AnchorPrice decimal.Decimal
	GridStep    decimal.Decimal
	GridCount   int
}
