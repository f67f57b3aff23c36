// Package router coordinates one instrument's execution stream: it turns
// indicator events into position transitions, prices them under the session
// policy, and submits the resulting orders to the selector's active venue.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/policy"
	"quantRouter/internal/ports"
	"quantRouter/internal/selector"
	"quantRouter/internal/session"
	"quantRouter/internal/statemachine"
)

// Config holds the router's dependencies. All are required.
type Config struct {
	Symbol     string
	Logger     ports.Logger
	Selector   *selector.Selector
	Policy     *policy.Engine
	Classifier *session.Classifier
	Snapshots  ports.SnapshotRepository
	Executions ports.ExecutionRepository
}

// Router owns the live Position for a single instrument. One router per
// instrument; several routers may share a venue pool through separate
// selectors. Concurrent signals for the same instrument are serialized, and
// the position itself is only touched inside a short critical section, never
// across venue I/O.
type Router struct {
	symbol     string
	logger     ports.Logger
	selector   *selector.Selector
	policy     *policy.Engine
	classifier *session.Classifier
	snapshots  ports.SnapshotRepository
	executions ports.ExecutionRepository

	// signalMu serializes OnSignal invocations.
	signalMu sync.Mutex
	// posMu guards pos for readers while a signal is being processed.
	posMu sync.Mutex
	pos   domain.Position
}

// New creates a router, seeding its Position from the persisted snapshot or
// the zero (flat) state when none exists.
func New(ctx context.Context, cfg Config) (*Router, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil || cfg.Selector == nil || cfg.Policy == nil ||
		cfg.Classifier == nil || cfg.Snapshots == nil || cfg.Executions == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for router", ports.ErrConfigurationError)
	}

	r := &Router{
		symbol:     cfg.Symbol,
		logger:     cfg.Logger,
		selector:   cfg.Selector,
		policy:     cfg.Policy,
		classifier: cfg.Classifier,
		snapshots:  cfg.Snapshots,
		executions: cfg.Executions,
	}

	snap, err := cfg.Snapshots.Load(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load position snapshot for %s: %w", cfg.Symbol, err)
	}
	if snap != nil {
		if !snap.Valid() {
			return nil, fmt.Errorf("%w: snapshot for %s violates side/quantity invariant", ports.ErrInvalidRequest, cfg.Symbol)
		}
		r.pos = *snap
		cfg.Logger.Info(ctx, "Seeded position from snapshot", map[string]interface{}{
			"symbol":   cfg.Symbol,
			"side":     snap.Side,
			"quantity": snap.Quantity,
		})
	} else {
		r.pos = domain.NewFlatPosition(cfg.Symbol)
		cfg.Logger.Info(ctx, "No snapshot found, starting flat", map[string]interface{}{"symbol": cfg.Symbol})
	}
	return r, nil
}

// Position returns a copy of the router's current belief about exposure.
func (r *Router) Position() domain.Position {
	r.posMu.Lock()
	defer r.posMu.Unlock()
	return r.pos
}

// OnSignal routes one indicator event to an execution decision. Every call
// yields exactly one ExecutionResult, recorded for audit. Policy rejections
// and order failures are reported on the result with a nil error; the
// returned error is non-nil only for the hard failure of having no venue
// after the allowed re-selection, and for audit-independent internal faults.
// The router remains usable for the next signal in every case.
func (r *Router) OnSignal(ctx context.Context, event domain.IndicatorEvent) (*domain.ExecutionResult, error) {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()

	op := "OnSignal"
	pos := r.Position()
	tr := statemachine.Transition(pos, event)
	sess := r.classifier.Classify(event.Timestamp)

	res := &domain.ExecutionResult{
		Symbol:    r.symbol,
		Timestamp: event.Timestamp,
		Action:    tr.Action,
		FromSide:  tr.FromSide,
		ToSide:    tr.ToSide,
	}

	r.logger.Debug(ctx, op+": evaluating signal", map[string]interface{}{
		"symbol":    r.symbol,
		"direction": event.Direction,
		"session":   sess,
		"action":    tr.Action,
	})

	// Policy rejections happen before any venue is touched.
	if err := r.policy.Check(tr, sess, event.Timestamp, pos.LastActionTimestamp); err != nil {
		if !ports.IsPolicyError(err) {
			r.record(ctx, res)
			return res, fmt.Errorf("%s: %w", op, err)
		}
		res.Reason = rejectionReason(err)
		r.logger.Info(ctx, op+": no trade for signal", map[string]interface{}{
			"symbol": r.symbol,
			"reason": res.Reason,
		})
		r.record(ctx, res)
		return res, nil
	}

	adapter, release, err := r.acquireVenue(ctx)
	if err != nil {
		res.Reason = domain.ReasonNoVenueAvailable
		r.record(ctx, res)
		return res, fmt.Errorf("%s: %w", op, err)
	}
	res.Venue = adapter.Identity()

	if caps := adapter.Capabilities(); !caps.Supports(sess) {
		// The original system attempts the order anyway and lets the venue
		// decide; rejections come back as OrderError.
		r.logger.Warn(ctx, op+": active venue does not advertise current session", map[string]interface{}{
			"venue":   adapter.Identity(),
			"session": sess,
		})
	}

	var quote *domain.Quote
	if sess != domain.SessionRegular {
		quote, err = adapter.Quote(ctx, r.symbol)
		if err != nil {
			release()
			res.Reason = fmt.Sprintf("quote fetch failed: %v", err)
			r.logger.Error(ctx, err, op+": failed to fetch quote for limit pricing", map[string]interface{}{"symbol": r.symbol})
			r.record(ctx, res)
			return res, nil
		}
	}
	release()

	specs, err := r.policy.BuildSpecs(tr, sess, quote, pos)
	if err != nil {
		res.Reason = err.Error()
		r.record(ctx, res)
		return res, nil
	}
	res.Quantity = specs[len(specs)-1].Quantity

	acked, submitErr := r.submitAll(ctx, res, specs)
	if submitErr != nil {
		if acked > 0 {
			res.Partial = true
			res.Reason = fmt.Sprintf("%s: %v", domain.ReasonPartialExecution, submitErr)
			r.logger.Error(ctx, submitErr, op+": compound action partially executed, position left at pre-transition state", map[string]interface{}{
				"symbol":     r.symbol,
				"ackedLegs":  acked,
				"totalLegs":  len(specs),
				"fromSide":   tr.FromSide,
				"targetSide": tr.ToSide,
			})
		} else {
			res.Reason = submitErr.Error()
		}
		r.record(ctx, res)
		if errors.Is(submitErr, ports.ErrNoVenueAvailable) {
			return res, fmt.Errorf("%s: %w", op, submitErr)
		}
		return res, nil
	}

	r.applyTransition(tr, res.Quantity, event.Timestamp)
	res.Accepted = true
	r.persistSnapshot(ctx)
	r.record(ctx, res)

	r.logger.Info(ctx, op+": transition executed", map[string]interface{}{
		"symbol":   r.symbol,
		"action":   tr.Action,
		"toSide":   tr.ToSide,
		"quantity": res.Quantity,
		"venue":    res.Venue,
		"orders":   res.OrderIDs,
	})
	return res, nil
}

// submitAll submits the order legs in sequence; a later leg is only attempted
// after the previous one is acknowledged. A dropped venue session triggers at
// most one re-selection and retry for the whole invocation. Returns the
// number of acknowledged legs alongside the first terminal error.
func (r *Router) submitAll(ctx context.Context, res *domain.ExecutionResult, specs []domain.OrderSpec) (int, error) {
	reselected := false
	for i, spec := range specs {
		ack, err := r.submitLeg(ctx, spec)
		if errors.Is(err, ports.ErrNotConnected) && !reselected {
			reselected = true
			r.logger.Warn(ctx, "Venue session dropped, re-selecting", map[string]interface{}{"symbol": r.symbol})
			if _, selErr := r.selector.SelectVenue(ctx); selErr != nil {
				return i, selErr
			}
			ack, err = r.submitLeg(ctx, spec)
		}
		if err != nil {
			return i, err
		}
		res.OrderIDs = append(res.OrderIDs, ack.OrderID)
		if id, ok := r.selector.Active(); ok {
			res.Venue = id
		}
	}
	return len(specs), nil
}

// submitLeg acquires the active adapter immediately before use so an
// operator switch between selection and submission is honored.
func (r *Router) submitLeg(ctx context.Context, spec domain.OrderSpec) (*ports.OrderAck, error) {
	adapter, release, err := r.selector.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return adapter.SubmitOrder(ctx, spec)
}

// acquireVenue returns the active adapter, running an initial selection when
// none is established yet.
func (r *Router) acquireVenue(ctx context.Context) (ports.VenueAdapter, func(), error) {
	adapter, release, err := r.selector.Acquire()
	if err == nil {
		return adapter, release, nil
	}
	if !errors.Is(err, ports.ErrNoVenueAvailable) {
		return nil, nil, err
	}
	if _, err := r.selector.SelectVenue(ctx); err != nil {
		return nil, nil, err
	}
	return r.selector.Acquire()
}

// applyTransition mutates the position inside a short critical section, after
// every leg has been acknowledged.
func (r *Router) applyTransition(tr domain.Transition, quantity int64, now time.Time) {
	r.posMu.Lock()
	defer r.posMu.Unlock()
	r.pos.Side = tr.ToSide
	r.pos.Quantity = quantity
	if tr.ToSide == domain.SideFlat {
		r.pos.Quantity = 0
	}
	r.pos.LastActionTimestamp = now
	r.pos.LastActionKind = tr.Action
}

func (r *Router) persistSnapshot(ctx context.Context) {
	pos := r.Position()
	if err := r.snapshots.Save(ctx, pos); err != nil {
		// The fill is confirmed and the in-memory belief is correct; a
		// stale snapshot surfaces at the next restart, so log loudly but
		// do not fail the execution.
		r.logger.Error(ctx, err, "Failed to persist position snapshot", map[string]interface{}{"symbol": r.symbol})
	}
}

func (r *Router) record(ctx context.Context, res *domain.ExecutionResult) {
	if _, err := r.executions.Record(ctx, res); err != nil {
		r.logger.Error(ctx, err, "Failed to record execution result", map[string]interface{}{"symbol": r.symbol})
	}
}

// rejectionReason maps policy outcomes onto the audit vocabulary.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ports.ErrNoActionRequired):
		return domain.ReasonNoActionRequired
	case errors.Is(err, ports.ErrSessionNotEligible):
		return domain.ReasonSessionNotEligible
	case errors.Is(err, ports.ErrThrottled):
		return domain.ReasonThrottled
	default:
		return err.Error()
	}
}
