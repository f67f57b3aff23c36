package domain

import "time"

// IndicatorEvent is one observation from the upstream signal source: a
// crossover (ABOVE) or crossunder (BELOW) of the tracked oscillator relative
// to its signal line. Events are immutable and consumed once; their
// timestamps are monotonically non-decreasing within a stream.
type IndicatorEvent struct {
	Timestamp time.Time
	Direction Direction
}

// Transition is the output of the position state machine: the state change
// (if any) an indicator event requires given the current position.
type Transition struct {
	FromSide Side
	ToSide   Side
	Action   Action
}

// IsHold reports whether the transition requires no action (idempotent
// signal).
func (t Transition) IsHold() bool {
	return t.Action == ActionHold
}

// IsCompound reports whether the transition decomposes into two sequential
// order legs (close the current exposure, then open the opposite one).
func (t Transition) IsCompound() bool {
	return t.Action == ActionCoverAndBuy || t.Action == ActionSellAndShort
}
