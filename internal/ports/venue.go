package ports

import (
	"context"
	"time"

	"quantRouter/internal/domain"
)

// OrderAck represents the essential details returned after a venue
// acknowledges an order.
type OrderAck struct {
	OrderID      string    // Venue's order ID
	Symbol       string    // Symbol for the order
	Status       string    // Venue-reported status (e.g., NEW, FILLED, ACCEPTED)
	AvgFillPrice float64   // Average filled price (0 if not yet filled)
	FilledQty    int64     // Quantity filled so far
	SubmittedAt  time.Time // Time the acknowledgment was generated
}

// VenuePosition is one open position as reported by a venue account query.
type VenuePosition struct {
	Symbol      string
	Quantity    int64 // Positive for long, negative for short
	MarketValue float64
}

// AccountInfo is a snapshot of the venue account.
type AccountInfo struct {
	AccountID      string
	Cash           float64
	BuyingPower    float64
	PortfolioValue float64
	Positions      []VenuePosition
}

// VenueAdapter is the capability interface one brokerage venue implements.
// Adapters confine their side effects to network I/O with the external venue;
// they never touch shared position state, only report success or failure of a
// single call.
//
// Error contract: SubmitOrder fails with ErrOrderRejected on venue-side
// rejection, ErrOrderTimeout when no acknowledgment arrives within a bounded
// wait, and ErrNotConnected when the session dropped. AccountSnapshot and
// Quote fail with ErrVenueUnavailable when not connected.
type VenueAdapter interface {
	// Identity returns the venue's tag in the pool.
	Identity() domain.VenueID

	// Capabilities describes which sessions and order types the venue
	// supports.
	Capabilities() domain.VenueCapabilities

	// Connect establishes the transport-level session. Idempotent: calling
	// it while already connected is a no-op success.
	Connect(ctx context.Context) error

	// Disconnect releases the transport session. Safe to call from any
	// state.
	Disconnect(ctx context.Context) error

	// AccountSnapshot returns buying power and open positions.
	AccountSnapshot(ctx context.Context) (*AccountInfo, error)

	// Quote returns the latest bid/ask for a symbol, used to price
	// marketable limit orders outside the regular session.
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)

	// SubmitOrder submits one order and waits a bounded time for the
	// venue's acknowledgment.
	SubmitOrder(ctx context.Context, spec domain.OrderSpec) (*OrderAck, error)
}
