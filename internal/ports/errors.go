package ports

import "errors"

// Standard application-level errors.
// Adapters wrap venue-native failures with these sentinels so the selector
// and router can classify them with errors.Is without knowing wire formats.
var (
	// General errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Connection errors (transport-level, retryable by re-selection)
	ErrConnectionFailed = errors.New("failed to connect to the venue")

	// Venue errors (venue reachable but the request is invalid/unauthorized;
	// not retried automatically)
	ErrVenueUnavailable     = errors.New("venue is not connected or unavailable")
	ErrAuthenticationFailed = errors.New("venue authentication failed (check credentials)")
	ErrInsufficientFunds    = errors.New("insufficient buying power for operation")
	ErrRateLimited          = errors.New("venue rate limit exceeded")

	// Order errors
	ErrOrderRejected = errors.New("order rejected by venue")              // terminal for the attempt
	ErrOrderTimeout  = errors.New("no order acknowledgment within bound") // terminal for the attempt
	ErrNotConnected  = errors.New("venue session dropped")                // triggers one re-selection and retry

	// Selector errors
	ErrNoVenueAvailable = errors.New("no venue available")

	// Policy outcomes (expected, non-exceptional)
	ErrNoActionRequired   = errors.New("no action required for signal")
	ErrSessionNotEligible = errors.New("current session not eligible for trading")
	ErrThrottled          = errors.New("action throttled by minimum interval")

	// Database errors
	ErrNotFound     = errors.New("resource not found")
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// IsPolicyError reports whether err is one of the expected policy outcomes,
// which are reported as results rather than logged as failures.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrNoActionRequired) ||
		errors.Is(err, ErrSessionNotEligible) ||
		errors.Is(err, ErrThrottled)
}
