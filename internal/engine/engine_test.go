package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridcore/internal/core"
)

func testCfg() core.GridConfig {
	return core.GridConfig{
		GridCount:          50,
		GridStep:           decimal.NewFromFloat(0.2),
		RebalanceThreshold: decimal.NewFromFloat(0.3),
		TickSize:           decimal.NewFromFloat(0.1),
	}
}

func TestClientOrderIDDeterministic(t *testing.T) {
	id1 := ClientOrderID("BTCUSDT", core.SideBuy, decimal.NewFromInt(99800), 3, core.DirectionLong)
	id2 := ClientOrderID("BTCUSDT", core.SideBuy, decimal.NewFromInt(99800), 3, core.DirectionLong)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 16)

	idDiffQty := ClientOrderID("BTCUSDT", core.SideBuy, decimal.NewFromInt(99800), 3, core.DirectionLong)
	require.Equal(t, id1, idDiffQty) // qty not part of the id's inputs

	idDiffLevel := ClientOrderID("BTCUSDT", core.SideBuy, decimal.NewFromInt(99800), 4, core.DirectionLong)
	require.NotEqual(t, id1, idDiffLevel)
}

func TestTickerOnEmptyLadderBuildsAroundAnchor(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())
	e.SetAnchor(decimal.NewFromInt(99000))

	e.OnTicker(decimal.NewFromInt(100000), nil)

	require.True(t, e.AnchorPrice().Equal(decimal.NewFromInt(99000)))
}

func TestTickerOnEmptyLadderBuildsAroundLastPriceWithoutAnchor(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())

	e.OnTicker(decimal.NewFromInt(100000), nil)

	require.True(t, e.AnchorPrice().Equal(decimal.NewFromInt(100000)))
}

func TestTooManyOrdersTriggersRebuild(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())
	e.OnTicker(decimal.NewFromInt(100000), nil)

	var orders []core.OpenOrderView
	for i := 0; i < 70; i++ {
		orders = append(orders, core.OpenOrderView{
			OrderID: string(rune('a' + i)),
			Symbol:  "BTCUSDT",
			Side:    core.SideBuy,
			Price:   decimal.NewFromInt(int64(90000 + i)),
		})
	}

	intents := e.OnTicker(decimal.NewFromInt(105000), orders)

	cancels := 0
	for _, in := range intents {
		if in.Cancel != nil {
			require.Equal(t, core.CancelRebuild, in.Cancel.Reason)
			cancels++
		}
	}
	require.Equal(t, 70, cancels)
	require.True(t, e.AnchorPrice().Equal(decimal.NewFromInt(105000)))
}

func TestSideMismatchYieldsCancelAndReplace(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())
	e.OnTicker(decimal.NewFromInt(100000), nil)

	level, ok := e.Ladder().LevelAt(decimal.NewFromFloat(99800.0))
	require.True(t, ok)
	require.Equal(t, core.SideBuy, level.Side)

	orders := []core.OpenOrderView{
		{OrderID: "o1", Symbol: "BTCUSDT", Side: core.SideSell, Price: decimal.NewFromFloat(99800.0)},
	}

	intents := e.OnTicker(decimal.NewFromInt(100000), orders)

	var sawCancel bool
	places := 0
	for _, in := range intents {
		if in.Cancel != nil && in.Cancel.OrderID == "o1" {
			require.Equal(t, core.CancelSideMismatch, in.Cancel.Reason)
			sawCancel = true
		}
		if in.Place != nil && in.Place.Price.Equal(decimal.NewFromFloat(99800.0)) && in.Place.Side == core.SideBuy {
			places++
		}
	}
	require.True(t, sawCancel)
	require.Equal(t, 1, places)
}

func TestOutsideGridYieldsSingleCancel(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())
	e.OnTicker(decimal.NewFromInt(100000), nil)

	orders := []core.OpenOrderView{
		{OrderID: "ghost", Symbol: "BTCUSDT", Side: core.SideBuy, Price: decimal.NewFromInt(1)},
	}

	intents := e.OnTicker(decimal.NewFromInt(100000), orders)

	count := 0
	for _, in := range intents {
		if in.Cancel != nil && in.Cancel.OrderID == "ghost" {
			require.Equal(t, core.CancelOutsideGrid, in.Cancel.Reason)
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestNoPlaceWhenTooCloseToLastClose(t *testing.T) {
	e := New("BTCUSDT", core.DirectionLong, testCfg())
	intents := e.OnTicker(decimal.NewFromInt(100000), nil)

	for _, in := range intents {
		if in.Place == nil {
			continue
		}
		dist := in.Place.Price.Sub(decimal.NewFromInt(100000)).Abs().
			Div(decimal.NewFromInt(100000)).Mul(decimal.NewFromInt(100))
		require.True(t, dist.GreaterThan(decimal.NewFromFloat(0.1)))
	}
}

func TestReduceOnlyRule(t *testing.T) {
	require.True(t, reduceOnlyFor(core.DirectionLong, core.SideSell))
	require.False(t, reduceOnlyFor(core.DirectionLong, core.SideBuy))
	require.True(t, reduceOnlyFor(core.DirectionShort, core.SideBuy))
	require.False(t, reduceOnlyFor(core.DirectionShort, core.SideSell))
}
