package mockexchange

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"gridcore/internal/core"
)

// Feed is an orchestrator.WSConnector simulating one account's market data
// and order fills against a Gateway: a random-walk ticker on an interval,
// with any resting order the walk crosses filled and reported back as an
// ExecutionEvent. Feed exists purely so cmd/gridcore has something to
// Connect to without exchange credentials.
type Feed struct {
	symbol   string
	gateway  *Gateway
	interval time.Duration
	price    decimal.Decimal
	step     decimal.Decimal

	cancel  context.CancelFunc
	healthy bool
}

// NewFeed constructs a Feed for symbol, walking from startPrice in
// increments up to +/-step every interval.
func NewFeed(symbol string, gateway *Gateway, startPrice, step decimal.Decimal, interval time.Duration) *Feed {
	return &Feed{symbol: symbol, gateway: gateway, price: startPrice, step: step, interval: interval}
}

// Connect implements orchestrator.WSConnector: starts the background walk,
// invoking onEvent with a TickerEvent every tick and an ExecutionEvent for
// every resting order the new price crosses.
func (f *Feed) Connect(ctx context.Context, onEvent func(core.EventEnvelope)) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.healthy = true

	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				f.tick(onEvent)
			}
		}
	}()
	return nil
}

func (f *Feed) tick(onEvent func(core.EventEnvelope)) {
	delta := f.step.Mul(decimal.NewFromFloat(rand.Float64()*2 - 1))
	f.price = f.price.Add(delta)
	now := time.Now()

	onEvent(core.EventEnvelope{
		Ticker: &core.TickerEvent{
			EventBase: core.EventBase{Symbol: f.symbol, ExchangeTS: now, LocalTS: now},
			LastPrice: f.price,
			MarkPrice: f.price,
			BidPrice:  f.price,
			AskPrice:  f.price,
		},
		ReceivedAt: now,
	})

	open, _ := f.gateway.GetOpenOrders(context.Background(), f.symbol)
	for _, ord := range open {
		crossed := (ord.Side == core.SideBuy && f.price.LessThanOrEqual(ord.Price)) ||
			(ord.Side == core.SideSell && f.price.GreaterThanOrEqual(ord.Price))
		if !crossed {
			continue
		}
		filled, ok := f.gateway.FillOrder(ord.OrderID)
		if !ok {
			continue
		}
		onEvent(core.EventEnvelope{
			Execution: &core.ExecutionEvent{
				EventBase:   core.EventBase{Symbol: f.symbol, ExchangeTS: now, LocalTS: now},
				ExecID:      filled.OrderID + "-exec",
				OrderID:     filled.OrderID,
				OrderLinkID: filled.ClientOrderID,
				Side:        filled.Side,
				Price:       filled.Price,
				Qty:         filled.Qty,
				LeavesQty:   decimal.Zero,
			},
			ReceivedAt: now,
		})
		onEvent(core.EventEnvelope{
			OrderUpdate: &core.OrderUpdateEvent{
				EventBase:   core.EventBase{Symbol: f.symbol, ExchangeTS: now, LocalTS: now},
				OrderID:     filled.OrderID,
				OrderLinkID: filled.ClientOrderID,
				Status:      core.WireFilled,
				Side:        filled.Side,
				Price:       filled.Price,
				Qty:         filled.Qty,
				LeavesQty:   decimal.Zero,
			},
			ReceivedAt: now,
		})
	}
}

// Disconnect implements orchestrator.WSConnector.
func (f *Feed) Disconnect() {
	if f.cancel != nil {
		f.cancel()
	}
	f.healthy = false
}

// Resubscribe implements orchestrator.WSConnector. The simulated feed has
// no subscriptions to lose, so this is a no-op success.
func (f *Feed) Resubscribe(ctx context.Context) error {
	f.healthy = true
	return nil
}

// IsHealthy implements orchestrator.WSConnector.
func (f *Feed) IsHealthy() bool {
	return f.healthy
}
