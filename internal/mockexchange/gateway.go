// Package mockexchange implements a self-contained, in-memory
// core.IExchangeGateway and orchestrator.WSConnector pair, for shadow-mode
// runs and local smoke testing when no real exchange credentials are
// configured.
package mockexchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gridcore/internal/core"
)

// Gateway is an in-memory exchange simulator: orders placed against it rest
// until explicitly cancelled, fills are never generated on their own (a
// test or the feed below injects them), and position/wallet state is
// whatever the last Set* call left behind.
type Gateway struct {
	mu        sync.Mutex
	orders    map[string]core.OpenOrderView // keyed by exchange order id
	byClient  map[string]string             // client_order_id -> exchange order id
	nextID    int64
	positions map[string]map[core.Direction]*core.PositionState
	wallet    decimal.Decimal
}

// New constructs a Gateway seeded with walletBalance available USDT.
func New(walletBalance decimal.Decimal) *Gateway {
	return &Gateway{
		orders:    make(map[string]core.OpenOrderView),
		byClient:  make(map[string]string),
		positions: make(map[string]map[core.Direction]*core.PositionState),
		wallet:    walletBalance,
		nextID:    1,
	}
}

// PlaceLimitOrder implements core.IExchangeGateway. Repeated calls with the
// same ClientOrderID are idempotent, returning the original exchange id
// rather than opening a duplicate resting order.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, intent *core.PlaceLimitIntent) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.byClient[intent.ClientOrderID]; ok {
		return existing, nil
	}

	id := fmt.Sprintf("mock-%d", g.nextID)
	g.nextID++
	g.orders[id] = core.OpenOrderView{
		OrderID:       id,
		ClientOrderID: intent.ClientOrderID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Price:         intent.Price,
		Qty:           intent.Qty,
	}
	g.byClient[intent.ClientOrderID] = id
	return id, nil
}

// CancelOrder implements core.IExchangeGateway. Cancelling an unknown order
// id is a no-op success, matching a real gateway's "already gone" benign
// outcome.
func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ord, ok := g.orders[orderID]; ok {
		delete(g.byClient, ord.ClientOrderID)
	}
	delete(g.orders, orderID)
	return nil
}

// GetOpenOrders implements core.IExchangeGateway.
func (g *Gateway) GetOpenOrders(ctx context.Context, symbol string) ([]core.OpenOrderView, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []core.OpenOrderView
	for _, ord := range g.orders {
		if ord.Symbol == symbol {
			out = append(out, ord)
		}
	}
	return out, nil
}

// GetPosition implements core.IExchangeGateway, returning a flat zero
// position for any symbol/direction not explicitly seeded via SetPosition.
func (g *Gateway) GetPosition(ctx context.Context, symbol string, direction core.Direction) (*core.PositionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if bySide, ok := g.positions[symbol]; ok {
		if pos, ok := bySide[direction]; ok {
			cp := *pos
			return &cp, nil
		}
	}
	return &core.PositionState{Direction: direction, Size: decimal.Zero}, nil
}

// GetWalletBalance implements core.IExchangeGateway.
func (g *Gateway) GetWalletBalance(ctx context.Context, coin string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.wallet, nil
}

// SetPosition seeds the simulated position for symbol/direction, consumed
// by the orchestrator's position-check task on its next tick.
func (g *Gateway) SetPosition(symbol string, pos *core.PositionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.positions[symbol] == nil {
		g.positions[symbol] = make(map[core.Direction]*core.PositionState)
	}
	g.positions[symbol][pos.Direction] = pos
}

// FillOrder simulates a full fill against a resting order, removing it from
// the book. Callers (the feed below, or a test) are responsible for
// emitting the corresponding core.ExecutionEvent to the websocket callback.
func (g *Gateway) FillOrder(orderID string) (core.OpenOrderView, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ord, ok := g.orders[orderID]
	if !ok {
		return core.OpenOrderView{}, false
	}
	delete(g.orders, orderID)
	delete(g.byClient, ord.ClientOrderID)
	return ord, true
}
