package domain

// VenueID identifies one brokerage execution endpoint in the venue pool.
type VenueID string

const (
	VenuePrimary   VenueID = "PRIMARY"
	VenueSecondary VenueID = "SECONDARY"
	VenueTertiary  VenueID = "TERTIARY"
)

// VenueCapabilities describes what a venue can execute. The selector and
// router hold adapters by capability, never by concrete type.
type VenueCapabilities struct {
	SupportsExtendedHours bool // Pre-market and after-hours sessions
	SupportsOvernight     bool // Overnight session
	// RequiresLimitOutsideRegular is set for venues that reject market
	// orders outside the regular session.
	RequiresLimitOutsideRegular bool
}

// Supports reports whether the venue advertises execution in the given
// session. REGULAR is always supported; CLOSED never is.
func (c VenueCapabilities) Supports(s Session) bool {
	switch s {
	case SessionRegular:
		return true
	case SessionPreMarket, SessionAfterHours:
		return c.SupportsExtendedHours
	case SessionOvernight:
		return c.SupportsOvernight
	default:
		return false
	}
}
