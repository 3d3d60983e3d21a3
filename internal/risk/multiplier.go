// Package risk implements the dual-direction Risk-Managed Position
// Multiplier: a rule table producing per-side quantity multipliers from
// linked long/short position state.
package risk

import (
	"github.com/shopspring/decimal"

	"gridcore/internal/apperrors"
	"gridcore/internal/core"
)

var (
	d0   = decimal.Zero
	d1   = decimal.NewFromInt(1)
	d05  = decimal.NewFromFloat(0.5)
	d094 = decimal.NewFromFloat(0.94)
	d105 = decimal.NewFromFloat(1.05)
	d095 = decimal.NewFromFloat(0.95)
	d02  = decimal.NewFromFloat(0.20)
	d2   = decimal.NewFromInt(2)
	d5   = decimal.NewFromInt(5)
	d15  = decimal.NewFromFloat(1.5)
	eps  = decimal.NewFromFloat(0.0001)
)

// Pair links the long and short Multiplier handles so each can write into
// the other's result, per the "mutate both via the owning aggregate"
// Design Note.
type Pair struct {
	Long  *Multiplier
	Short *Multiplier
}

// Multiplier evaluates one direction's rule table. It never resets the
// multiplier results on its own; callers must reset both before
// evaluating either.
type Multiplier struct {
	direction core.Direction
	pair      *Pair
	results   map[core.Direction]*core.Multipliers
}

// NewLinkedPair constructs a long/short handle pair sharing a result set,
// per the Design Note "Linked pair": a single factory returns both
// handles rather than exposing raw cross-pointers.
func NewLinkedPair() *Pair {
	results := map[core.Direction]*core.Multipliers{
		core.DirectionLong:  {Buy: d1, Sell: d1},
		core.DirectionShort: {Buy: d1, Sell: d1},
	}
	p := &Pair{}
	p.Long = &Multiplier{direction: core.DirectionLong, pair: p, results: results}
	p.Short = &Multiplier{direction: core.DirectionShort, pair: p, results: results}
	return p
}

// Reset restores both directions' multipliers to the neutral {1,1}. The
// caller MUST call this before evaluating either side.
func (p *Pair) Reset() {
	*p.Long.results[core.DirectionLong] = core.Multipliers{Buy: d1, Sell: d1}
	*p.Short.results[core.DirectionShort] = core.Multipliers{Buy: d1, Sell: d1}
}

// Result returns the current multipliers for direction.
func (p *Pair) Result(direction core.Direction) core.Multipliers {
	return *p.Long.results[direction]
}

// ScaleLongBuy multiplies long's current Buy multiplier by koef, for the
// strategy-level long-biasing coefficient applied on top of the rule
// table's per-rule multipliers.
func (p *Pair) ScaleLongBuy(koef decimal.Decimal) {
	r := p.Long.results[core.DirectionLong]
	r.Buy = r.Buy.Mul(koef)
}

func (m *Multiplier) own() *core.Multipliers {
	return m.results[m.direction]
}

func (m *Multiplier) opposite() *core.Multipliers {
	if m.direction == core.DirectionLong {
		return m.results[core.DirectionShort]
	}
	return m.results[core.DirectionLong]
}

// Compute evaluates the rule table for this direction against pos (which
// must have its Opposite populated) and cfg, writing results into the
// shared pair. Returns apperrors.ErrInvariant if pos has no linked
// opposite. If entry_price or lastClose is not positive, it returns nil and
// leaves this direction's multipliers unchanged.
func (m *Multiplier) Compute(pos *core.PositionState, cfg core.RiskConfig, lastClose decimal.Decimal) error {
	if pos == nil || pos.Opposite == nil {
		return apperrors.ErrInvariant
	}
	if !pos.EntryPrice.GreaterThan(d0) {
		return nil
	}
	if !lastClose.GreaterThan(d0) {
		return nil
	}

	opp := pos.Opposite
	liqRatio := d0
	if !lastClose.IsZero() {
		liqRatio = pos.LiquidationPrice.Div(lastClose)
	}
	oppMargin := opp.Margin
	if oppMargin.LessThanOrEqual(d0) {
		oppMargin = eps
	}
	ratio := pos.Margin.Div(oppMargin)
	totalMargin := pos.Margin.Add(opp.Margin)
	unrealizedNegative := pos.UnrealizedPnL.LessThan(d0)

	switch m.direction {
	case core.DirectionLong:
		m.computeLong(cfg, liqRatio, ratio, totalMargin, unrealizedNegative)
	case core.DirectionShort:
		m.computeShort(cfg, liqRatio, ratio, totalMargin, unrealizedNegative)
	}
	return nil
}

func (m *Multiplier) computeLong(cfg core.RiskConfig, liqRatio, ratio, totalMargin decimal.Decimal, unrealizedNegative bool) {
	switch {
	case liqRatio.GreaterThan(d105.Mul(cfg.MinLiqRatio)):
		m.own().Sell = d15
	case liqRatio.GreaterThan(cfg.MinLiqRatio):
		m.opposite().Sell = d05
	case ratio.GreaterThan(d094) && ratio.LessThan(d105) && totalMargin.LessThan(cfg.MinTotalMargin):
		if cfg.IncreaseSamePositionOnLowMargin {
			m.own().Buy = d2
		} else {
			m.opposite().Sell = d05
		}
	case ratio.LessThan(d05) && unrealizedNegative:
		m.own().Buy = d2
	case ratio.LessThan(d02):
		m.own().Buy = d2
	}
}

func (m *Multiplier) computeShort(cfg core.RiskConfig, liqRatio, ratio, totalMargin decimal.Decimal, unrealizedNegative bool) {
	switch {
	case liqRatio.GreaterThan(d095.Mul(cfg.MaxLiqRatio)):
		m.own().Buy = d15
	case liqRatio.GreaterThan(d0) && liqRatio.LessThan(cfg.MaxLiqRatio):
		// opposite() from short is long; writing long's Sell reduces long
		// closes, which grows the long leg.
		m.opposite().Sell = d05
	case ratio.GreaterThan(d094) && ratio.LessThan(d105) && totalMargin.LessThan(cfg.MinTotalMargin):
		if cfg.IncreaseSamePositionOnLowMargin {
			m.own().Sell = d2
		} else {
			m.own().Buy = d05
		}
	case ratio.GreaterThan(d2) && unrealizedNegative:
		m.own().Sell = d2
	case ratio.GreaterThan(d5):
		m.own().Sell = d2
	}
}
