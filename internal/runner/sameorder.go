package runner

import "gridcore/internal/core"

// sameOrderRecord is one fully-filled execution kept in a detection buffer.
type sameOrderRecord struct {
	orderID    string
	price      string // decimal.String() comparison avoids float drift
	side       core.Side
	exchangeTS int64
	valid      bool
}

// buffer is a length-2, most-recent-first ring used per direction.
type buffer struct {
	entries [2]sameOrderRecord
}

func (b *buffer) prepend(rec sameOrderRecord) {
	b.entries[1] = b.entries[0]
	b.entries[0] = rec
}

// duplicated reports whether the two most recent entries share price+side
// but carry different order ids — the grid-duplication signature.
func (b *buffer) duplicated() bool {
	a, c := b.entries[0], b.entries[1]
	if !a.valid || !c.valid {
		return false
	}
	return a.price == c.price && a.side == c.side && a.orderID != c.orderID
}

// SameOrderDetector tracks duplicate-fill signatures independently per
// direction and raises a strategy-halting error when either buffer shows
// two distinct orders filled at the same price and side.
type SameOrderDetector struct {
	long  buffer
	short buffer
	err   bool
}

// Observe classifies a fully-filled execution into the long or short
// buffer, then evaluates BOTH buffers without short-circuiting — a clean
// fill on one side must never mask an unresolved error on the other.
// Only executions with LeavesQty == 0 should be passed in; callers must
// filter partial fills themselves.
func (d *SameOrderDetector) Observe(exec core.ExecutionEvent) bool {
	rec := sameOrderRecord{
		orderID:    exec.OrderID,
		price:      exec.Price.String(),
		side:       exec.Side,
		exchangeTS: exec.ExchangeTS.UnixNano(),
		valid:      true,
	}

	closing := !exec.ClosedSize.IsZero()
	isLong := (exec.Side == core.SideBuy && !closing) || (exec.Side == core.SideSell && closing)
	if isLong {
		d.long.prepend(rec)
	} else {
		d.short.prepend(rec)
	}

	longDup := d.long.duplicated()
	shortDup := d.short.duplicated()
	d.err = longDup || shortDup
	return d.err
}

// Errored reports whether intent emission should currently be suppressed.
func (d *SameOrderDetector) Errored() bool { return d.err }

// Reset clears the error flag explicitly, e.g. after operator action.
// Evicting buffer entries via further fills clears it automatically
// through Observe's re-evaluation, so Reset is for the manual path only.
func (d *SameOrderDetector) Reset() { d.err = false }
