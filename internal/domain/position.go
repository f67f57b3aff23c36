package domain

import "time"

// Position is the router's belief about the current market exposure for one
// instrument. It is created at router startup (from a persisted snapshot or
// the zero state) and mutated only after a confirmed fill, never
// speculatively.
type Position struct {
	Symbol              string    // Instrument symbol (e.g., "NVDA")
	Side                Side      // FLAT, LONG or SHORT
	Quantity            int64     // Shares/contracts held; 0 iff Side is FLAT
	LastActionTimestamp time.Time // Instant of the last executed transition
	LastActionKind      Action    // The action that produced this position
}

// NewFlatPosition returns the zero exposure state for a symbol.
func NewFlatPosition(symbol string) Position {
	return Position{Symbol: symbol, Side: SideFlat}
}

// IsFlat reports whether the position holds no exposure.
func (p Position) IsFlat() bool {
	return p.Side == SideFlat
}

// Valid checks the quantity/side invariant: FLAT implies zero quantity,
// LONG/SHORT imply a positive quantity.
func (p Position) Valid() bool {
	if p.Side == SideFlat {
		return p.Quantity == 0
	}
	return p.Quantity > 0
}
