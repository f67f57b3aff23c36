package domain

// Session is the market session a timestamp falls into, in the venue's local
// exchange time.
type Session string

const (
	SessionPreMarket  Session = "PRE_MARKET"  // [04:00, 09:30)
	SessionRegular    Session = "REGULAR"     // [09:30, 16:00)
	SessionAfterHours Session = "AFTER_HOURS" // [16:00, 20:00)
	SessionOvernight  Session = "OVERNIGHT"   // [20:00, 04:00)
	SessionClosed     Session = "CLOSED"      // weekends and holidays
)

// IsExtended reports whether the session is pre-market or after-hours.
func (s Session) IsExtended() bool {
	return s == SessionPreMarket || s == SessionAfterHours
}
