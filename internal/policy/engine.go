// Package policy decides how a position transition becomes venue orders:
// whether the action is currently permitted, and with what order type and
// price for the active market session.
package policy

import (
	"fmt"
	"math"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

// Settings holds the order policy parameters. Read-only after construction.
type Settings struct {
	ExtendedHoursEnabled bool          // Allow pre-market and after-hours actions
	OvernightEnabled     bool          // Allow overnight actions
	MinInterval          time.Duration // Minimum elapsed time between actions
	LimitBufferPct       float64       // Marketable limit offset, e.g. 0.01 for 1%
	OvernightBufferPct   float64       // Wider offset used in the overnight session
	SharesPerTrade       int64         // Open quantity per signal
}

// Engine applies the session and throttling rules and prices order legs.
type Engine struct {
	settings Settings
}

// New validates the settings and creates an engine.
func New(s Settings) (*Engine, error) {
	if s.SharesPerTrade <= 0 {
		return nil, fmt.Errorf("%w: SharesPerTrade must be positive", ports.ErrConfigurationError)
	}
	if s.LimitBufferPct < 0 || s.LimitBufferPct >= 1 {
		return nil, fmt.Errorf("%w: LimitBufferPct must be in [0,1)", ports.ErrConfigurationError)
	}
	if s.OvernightBufferPct < 0 || s.OvernightBufferPct >= 1 {
		return nil, fmt.Errorf("%w: OvernightBufferPct must be in [0,1)", ports.ErrConfigurationError)
	}
	if s.MinInterval < 0 {
		return nil, fmt.Errorf("%w: MinInterval cannot be negative", ports.ErrConfigurationError)
	}
	if s.OvernightBufferPct == 0 {
		s.OvernightBufferPct = 2 * s.LimitBufferPct
	}
	return &Engine{settings: s}, nil
}

// Check applies the permission rules, in order: HOLD transitions require no
// action; the session must be open for trading under the configured flags;
// the minimum interval since the last action must have elapsed. A nil return
// means the action is permitted. All rejections here happen before any venue
// I/O.
func (e *Engine) Check(tr domain.Transition, sess domain.Session, now, lastAction time.Time) error {
	if tr.IsHold() {
		return ports.ErrNoActionRequired
	}

	switch sess {
	case domain.SessionClosed:
		return fmt.Errorf("%w: market closed", ports.ErrSessionNotEligible)
	case domain.SessionPreMarket, domain.SessionAfterHours:
		if !e.settings.ExtendedHoursEnabled {
			return fmt.Errorf("%w: extended hours trading disabled", ports.ErrSessionNotEligible)
		}
	case domain.SessionOvernight:
		if !e.settings.OvernightEnabled {
			return fmt.Errorf("%w: overnight trading disabled", ports.ErrSessionNotEligible)
		}
	}

	if !lastAction.IsZero() && now.Sub(lastAction) < e.settings.MinInterval {
		return fmt.Errorf("%w: %s since last action, minimum %s",
			ports.ErrThrottled, now.Sub(lastAction).Round(time.Second), e.settings.MinInterval)
	}
	return nil
}

// BuildSpecs translates a permitted transition into one or two order legs.
// In the regular session legs are market orders; in any other session they
// are marketable limit orders priced off the quote: buy legs above the ask,
// sell legs below the bid, so fills stay bounded in adverse movement while
// remaining executable. Compound actions decompose close-then-open; the
// caller submits the second leg only after the first is acknowledged.
func (e *Engine) BuildSpecs(tr domain.Transition, sess domain.Session, quote *domain.Quote, pos domain.Position) ([]domain.OrderSpec, error) {
	var legs []leg
	shares := e.settings.SharesPerTrade

	switch tr.Action {
	case domain.ActionBuy:
		legs = []leg{{side: domain.Buy, qty: shares}}
	case domain.ActionShort:
		legs = []leg{{side: domain.Sell, qty: shares}}
	case domain.ActionCoverAndBuy:
		legs = []leg{{side: domain.Buy, qty: pos.Quantity}, {side: domain.Buy, qty: shares}}
	case domain.ActionSellAndShort:
		legs = []leg{{side: domain.Sell, qty: pos.Quantity}, {side: domain.Sell, qty: shares}}
	default:
		return nil, fmt.Errorf("no order legs for action %s", tr.Action)
	}

	extended := sess != domain.SessionRegular
	if extended && (quote == nil || quote.Bid <= 0 || quote.Ask <= 0) {
		return nil, fmt.Errorf("%w: usable quote required to price %s session limit orders",
			ports.ErrInvalidRequest, sess)
	}

	specs := make([]domain.OrderSpec, 0, len(legs))
	for _, l := range legs {
		spec := domain.OrderSpec{
			Symbol:   pos.Symbol,
			Side:     l.side,
			Quantity: l.qty,
			Type:     domain.OrderTypeMarket,
		}
		if extended {
			spec.Type = domain.OrderTypeLimit
			spec.ExtendedHours = true
			spec.LimitPrice = e.limitPrice(l.side, sess, quote)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

type leg struct {
	side domain.OrderSide
	qty  int64
}

// limitPrice offsets the touch by the session buffer: overnight spreads are
// wider than pre/after-hours, so the overnight buffer is more aggressive.
func (e *Engine) limitPrice(side domain.OrderSide, sess domain.Session, quote *domain.Quote) float64 {
	buffer := e.settings.LimitBufferPct
	if sess == domain.SessionOvernight {
		buffer = e.settings.OvernightBufferPct
	}
	var price float64
	if side == domain.Buy {
		price = quote.Ask * (1 + buffer)
	} else {
		price = quote.Bid * (1 - buffer)
	}
	return roundCents(price)
}

func roundCents(p float64) float64 {
	return math.Round(p*100) / 100
}
