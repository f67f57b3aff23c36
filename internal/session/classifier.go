// Package session maps timestamps to US equity market sessions.
package session

import (
	"time"

	"quantRouter/internal/domain"
)

// Classifier maps a timestamp to the market session it falls into, in the
// exchange's local time. Pure and total: every timestamp classifies to
// exactly one session.
type Classifier struct {
	loc      *time.Location
	holidays map[string]struct{} // exchange-local dates, "2006-01-02"
}

// New creates a classifier for the given exchange timezone. Holidays are
// exchange-local dates formatted "2006-01-02"; they classify as CLOSED.
func New(loc *time.Location, holidays []string) *Classifier {
	if loc == nil {
		loc = time.UTC
	}
	hs := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		hs[h] = struct{}{}
	}
	return &Classifier{loc: loc, holidays: hs}
}

// Classify returns the session for ts. Boundaries are closed-open intervals
// in exchange-local time: [04:00,09:30) pre-market, [09:30,16:00) regular,
// [16:00,20:00) after-hours, [20:00,04:00) overnight. Weekends and holidays
// are CLOSED.
func (c *Classifier) Classify(ts time.Time) domain.Session {
	local := ts.In(c.loc)

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return domain.SessionClosed
	}
	if _, ok := c.holidays[local.Format("2006-01-02")]; ok {
		return domain.SessionClosed
	}

	// Minutes since local midnight.
	m := local.Hour()*60 + local.Minute()
	switch {
	case m < 4*60:
		return domain.SessionOvernight
	case m < 9*60+30:
		return domain.SessionPreMarket
	case m < 16*60:
		return domain.SessionRegular
	case m < 20*60:
		return domain.SessionAfterHours
	default:
		return domain.SessionOvernight
	}
}
