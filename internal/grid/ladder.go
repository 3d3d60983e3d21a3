// Package grid implements the Grid Ladder: a sorted sequence of price
// levels tagged Buy/Wait/Sell around an immutable anchor price.
package grid

import (
	"sort"

	"github.com/shopspring/decimal"

	"gridcore/internal/apperrors"
	"gridcore/internal/core"
	"gridcore/internal/pricing"
)

// Ladder is the Buy/Wait/Sell price ladder for one strategy's symbol.
// Not safe for concurrent use; callers on the event loop own it exclusively.
type Ladder struct {
	levels      []core.GridLevel
	anchorPrice decimal.Decimal
	cfg         core.GridConfig
	built       bool
}

// New constructs an empty ladder for the given configuration. Call Build
// before using it.
func New(cfg core.GridConfig) *Ladder {
	return &Ladder{cfg: cfg}
}

// AnchorPrice returns the original build center, not the current Wait
// zone, so it survives fills that shift the Wait band.
func (l *Ladder) AnchorPrice() decimal.Decimal {
	return l.anchorPrice
}

// Levels returns the current sorted levels. Callers must not mutate the
// returned slice.
func (l *Ladder) Levels() []core.GridLevel {
	return l.levels
}

// MinPrice and MaxPrice return the ladder's current price range.
func (l *Ladder) MinPrice() decimal.Decimal {
	if len(l.levels) == 0 {
		return decimal.Zero
	}
	return l.levels[0].Price
}

func (l *Ladder) MaxPrice() decimal.Decimal {
	if len(l.levels) == 0 {
		return decimal.Zero
	}
	return l.levels[len(l.levels)-1].Price
}

// Build produces grid_count+1 levels around anchor. Level i in
// {-k..+k} (k = grid_count/2) has price round_to_tick(anchor*(1+i*step/100));
// level 0 is Wait, negative Buy, positive Sell. Rebuild clears prior
// state; the anchor is recorded once as the immutable build center.
// Repeated calls with identical arguments are idempotent: they replace,
// never append to, prior state.
func (l *Ladder) Build(anchor decimal.Decimal) {
	k := l.cfg.GridCount / 2
	levels := make([]core.GridLevel, 0, l.cfg.GridCount+1)
	for i := -k; i <= k; i++ {
		price := pricing.LevelPrice(anchor, l.cfg.GridStep, i, l.cfg.TickSize)
		side := core.SideWait
		switch {
		case i < 0:
			side = core.SideBuy
		case i > 0:
			side = core.SideSell
		}
		levels = append(levels, core.GridLevel{Price: price, Side: side})
	}
	sort.Slice(levels, func(a, b int) bool { return levels[a].Price.LessThan(levels[b].Price) })
	l.levels = levels
	l.anchorPrice = pricing.RoundToTick(anchor, l.cfg.TickSize)
	l.built = true
}

// UpdateOnFill applies the Grid Ladder's update-on-fill transition: if
// lastClose escapes the ladder's current range, rebuild around lastClose
// (preserving the original anchor reference for future queries);
// otherwise reassign sides relative to lastClose and mark levels within
// grid_step/4 of lastFilledPrice or lastClose as Wait. Then evaluate
// imbalance and possibly recenter once.
func (l *Ladder) UpdateOnFill(lastFilledPrice, lastClose decimal.Decimal) {
	if !l.built || len(l.levels) == 0 {
		l.Build(lastClose)
		return
	}

	if lastClose.LessThan(l.MinPrice()) || lastClose.GreaterThan(l.MaxPrice()) {
		savedAnchor := l.anchorPrice
		l.Build(lastClose)
		l.anchorPrice = savedAnchor
		return
	}

	waitBand := l.cfg.GridStep.Div(decimal.NewFromInt(4))
	for i := range l.levels {
		p := l.levels[i].Price

		nearFill := !lastFilledPrice.IsZero() && pricing.TooClose(p, lastFilledPrice, waitBand)
		nearClose := pricing.TooClose(p, lastClose, waitBand)

		switch {
		case nearFill || nearClose:
			l.levels[i].Side = core.SideWait
		case p.LessThan(lastClose):
			l.levels[i].Side = core.SideBuy
		default:
			l.levels[i].Side = core.SideSell
		}
	}

	l.recenter()
}

// recenter shifts the ladder one level toward the heavier side when the
// Buy/Sell imbalance exceeds rebalance_threshold. At most one shift per
// update; the original anchor is never moved by this operation.
func (l *Ladder) recenter() {
	buyCount, sellCount := l.countSides()
	total := buyCount + sellCount
	if total == 0 {
		return
	}
	imbalance := decimal.NewFromInt(int64(abs(buyCount - sellCount))).
		Div(decimal.NewFromInt(int64(total)))
	if !imbalance.GreaterThan(l.cfg.RebalanceThreshold) {
		return
	}

	if buyCount > sellCount {
		// heavier on Buy side (low prices): extend downward, drop top.
		lowest := l.levels[0].Price
		newPrice := pricing.RoundToTick(
			lowest.Mul(decimal.NewFromInt(1).Sub(l.cfg.GridStep.Div(decimal.NewFromInt(100)))),
			l.cfg.TickSize,
		)
		l.levels = append([]core.GridLevel{{Price: newPrice, Side: core.SideBuy}}, l.levels[:len(l.levels)-1]...)
	} else if sellCount > buyCount {
		highest := l.levels[len(l.levels)-1].Price
		newPrice := pricing.RoundToTick(
			highest.Mul(decimal.NewFromInt(1).Add(l.cfg.GridStep.Div(decimal.NewFromInt(100)))),
			l.cfg.TickSize,
		)
		l.levels = append(l.levels[1:], core.GridLevel{Price: newPrice, Side: core.SideSell})
	}
}

func (l *Ladder) countSides() (buy, sell int) {
	for _, lvl := range l.levels {
		switch lvl.Side {
		case core.SideBuy:
			buy++
		case core.SideSell:
			sell++
		}
	}
	return
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// IsSorted reports whether the ladder's prices are strictly ascending
// with no duplicates.
func (l *Ladder) IsSorted() bool {
	for i := 1; i < len(l.levels); i++ {
		if !l.levels[i].Price.GreaterThan(l.levels[i-1].Price) {
			return false
		}
	}
	return true
}

// IsGridCorrect reports whether the side sequence matches
// Buy+(Wait+Sell+|Sell+)|Wait+Sell+, i.e. a Buy-then-optional-Wait-
// then-Sell progression. A single-kind ladder never matches.
func (l *Ladder) IsGridCorrect() bool {
	n := len(l.levels)
	if n == 0 {
		return false
	}
	i := 0
	sawBuy, sawWait, sawSell := false, false, false
	for i < n && l.levels[i].Side == core.SideBuy {
		sawBuy = true
		i++
	}
	for i < n && l.levels[i].Side == core.SideWait {
		sawWait = true
		i++
	}
	for i < n && l.levels[i].Side == core.SideSell {
		sawSell = true
		i++
	}
	if i != n {
		return false
	}
	return sawSell && (sawBuy || sawWait)
}

// NeedsRecenter reports whether currentPrice has escaped the ladder's
// current range.
func (l *Ladder) NeedsRecenter(currentPrice decimal.Decimal) bool {
	if len(l.levels) == 0 {
		return true
	}
	return currentPrice.LessThan(l.MinPrice()) || currentPrice.GreaterThan(l.MaxPrice())
}

// Recenter rebuilds the ladder around newAnchor while preserving the
// original anchor reference, mirroring the out-of-bounds branch of
// UpdateOnFill for callers that want to force a recenter directly.
func (l *Ladder) Recenter(newAnchor decimal.Decimal) {
	saved := l.anchorPrice
	l.Build(newAnchor)
	l.anchorPrice = saved
}

// LevelAt returns the level whose price matches target to tick precision,
// if any.
func (l *Ladder) LevelAt(target decimal.Decimal) (core.GridLevel, bool) {
	rounded := pricing.RoundToTick(target, l.cfg.TickSize)
	for _, lvl := range l.levels {
		if lvl.Price.Equal(rounded) {
			return lvl, true
		}
	}
	return core.GridLevel{}, false
}

// ErrInvariant is raised when a ladder operation would violate
// is_price_sorted or is_grid_correct; callers that check invariants after
// mutation should wrap this, e.g. via apperrors.ErrInvariant.
var ErrInvariant = apperrors.ErrInvariant
