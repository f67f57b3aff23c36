package domain

import "time"

// OrderSpec describes one order to submit to a venue. The policy engine
// produces specs; venue adapters translate them to their native wire format.
type OrderSpec struct {
	Symbol        string
	Side          OrderSide
	Quantity      int64
	Type          OrderType
	LimitPrice    float64 // Only meaningful for OrderTypeLimit
	ExtendedHours bool    // Flag the order for trading outside the regular session
}

// Quote is a bid/ask observation used to price marketable limit orders.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// Spread returns the ask-bid distance. Zero if the quote is one-sided.
func (q Quote) Spread() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return q.Ask - q.Bid
}
