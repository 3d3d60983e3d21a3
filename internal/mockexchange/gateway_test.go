package mockexchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
)

func TestPlaceLimitOrderIdempotentOnClientOrderID(t *testing.T) {
	gw := New(decimal.NewFromInt(1000))
	intent := &core.PlaceLimitIntent{
		Symbol:        "BTCUSDT",
		Side:          core.SideBuy,
		Price:         decimal.NewFromInt(100),
		Qty:           decimal.NewFromInt(1),
		ClientOrderID: "abc123",
	}

	id1, err := gw.PlaceLimitOrder(context.Background(), intent)
	require.NoError(t, err)

	id2, err := gw.PlaceLimitOrder(context.Background(), intent)
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	open, err := gw.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestCancelOrderRemovesFromOpenOrders(t *testing.T) {
	gw := New(decimal.NewFromInt(1000))
	intent := &core.PlaceLimitIntent{
		Symbol:        "BTCUSDT",
		Side:          core.SideSell,
		Price:         decimal.NewFromInt(200),
		Qty:           decimal.NewFromInt(1),
		ClientOrderID: "xyz",
	}
	id, err := gw.PlaceLimitOrder(context.Background(), intent)
	require.NoError(t, err)

	require.NoError(t, gw.CancelOrder(context.Background(), "BTCUSDT", id))

	open, err := gw.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 0)

	// Cancelling an already-gone order is a benign no-op.
	require.NoError(t, gw.CancelOrder(context.Background(), "BTCUSDT", id))
}

func TestGetPositionDefaultsToFlatZero(t *testing.T) {
	gw := New(decimal.NewFromInt(1000))
	pos, err := gw.GetPosition(context.Background(), "BTCUSDT", core.DirectionLong)
	require.NoError(t, err)
	require.True(t, pos.Size.IsZero())

	gw.SetPosition("BTCUSDT", &core.PositionState{Direction: core.DirectionLong, Size: decimal.NewFromInt(5)})
	pos, err = gw.GetPosition(context.Background(), "BTCUSDT", core.DirectionLong)
	require.NoError(t, err)
	require.True(t, pos.Size.Equal(decimal.NewFromInt(5)))
}

func TestFillOrderRemovesResting(t *testing.T) {
	gw := New(decimal.NewFromInt(1000))
	intent := &core.PlaceLimitIntent{
		Symbol:        "BTCUSDT",
		Side:          core.SideBuy,
		Price:         decimal.NewFromInt(100),
		Qty:           decimal.NewFromInt(1),
		ClientOrderID: "fill-me",
	}
	id, err := gw.PlaceLimitOrder(context.Background(), intent)
	require.NoError(t, err)

	filled, ok := gw.FillOrder(id)
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", filled.Symbol)

	_, ok = gw.FillOrder(id)
	require.False(t, ok)
}
