package domain

import "time"

// Well-known rejection reasons recorded on ExecutionResult. Policy outcomes
// are expected, non-exceptional results; they share the vocabulary of the
// ports error taxonomy so audit rows stay greppable.
const (
	ReasonNoActionRequired   = "NO_ACTION_REQUIRED"
	ReasonSessionNotEligible = "SESSION_NOT_ELIGIBLE"
	ReasonThrottled          = "THROTTLED"
	ReasonNoVenueAvailable   = "NO_VENUE_AVAILABLE"
	ReasonPartialExecution   = "PARTIAL_EXECUTION"
)

// ExecutionResult is the terminal, immutable record of one routing decision.
// Every call to the router produces exactly one, persisted for audit whether
// or not an order was placed.
type ExecutionResult struct {
	ID        int64     // Assigned by the audit repository
	Symbol    string    // Instrument the decision was made for
	Timestamp time.Time // When the decision was made
	Accepted  bool      // Whether the transition was fully executed
	Venue     VenueID   // Venue used, empty if none was reached
	Action    Action    // Action the state machine requested
	FromSide  Side      // Exposure before the decision
	ToSide    Side      // Target exposure of the transition
	Quantity  int64     // Target open quantity, 0 for HOLD
	OrderIDs  []string  // Venue order IDs of acknowledged legs, in order
	Partial   bool      // First leg of a compound action acked, second failed
	Reason    string    // Why the decision was rejected or flagged; empty on clean success
}
