// Package statemachine implements the full-cycle position transition table:
// once signaling has begun the machine always holds either a long or a short
// position, never resting flat between opposite signals.
package statemachine

import "quantRouter/internal/domain"

// Transition computes the state change an indicator event requires given the
// current position. Pure and deterministic; it performs no I/O and does not
// mutate the position. The caller persists the new side only after a
// confirmed fill, preventing divergence between believed and actual exposure
// on order failure.
func Transition(current domain.Position, event domain.IndicatorEvent) domain.Transition {
	from := current.Side

	switch from {
	case domain.SideFlat:
		if event.Direction == domain.DirectionAbove {
			return domain.Transition{FromSide: from, ToSide: domain.SideLong, Action: domain.ActionBuy}
		}
		return domain.Transition{FromSide: from, ToSide: domain.SideShort, Action: domain.ActionShort}

	case domain.SideLong:
		if event.Direction == domain.DirectionAbove {
			return domain.Transition{FromSide: from, ToSide: domain.SideLong, Action: domain.ActionHold}
		}
		return domain.Transition{FromSide: from, ToSide: domain.SideShort, Action: domain.ActionSellAndShort}

	case domain.SideShort:
		if event.Direction == domain.DirectionBelow {
			return domain.Transition{FromSide: from, ToSide: domain.SideShort, Action: domain.ActionHold}
		}
		return domain.Transition{FromSide: from, ToSide: domain.SideLong, Action: domain.ActionCoverAndBuy}
	}

	// Unknown side: treat as no-op rather than invent exposure.
	return domain.Transition{FromSide: from, ToSide: from, Action: domain.ActionHold}
}
