// Package selector owns the "currently active venue": it walks the priority
// list on selection, honors a forced override, and performs reactive failover
// when the router reports a dropped session.
package selector

import (
	"context"
	"fmt"
	"sync"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

// Config holds the selector's construction parameters.
type Config struct {
	// Adapters in priority order; the first connectable one wins in AUTO
	// mode.
	Adapters []ports.VenueAdapter
	// ForceVenue pins selection to a single venue. Empty means AUTO.
	// Forced mode never silently substitutes another venue.
	ForceVenue domain.VenueID
	Logger     ports.Logger
}

// Status is the operator-facing view of the selector.
type Status struct {
	Active   domain.VenueID // Empty when venue-less
	Forced   domain.VenueID // Empty in AUTO mode
	Priority []domain.VenueID
}

// Selector maintains the active venue adapter for a pool of venues. A single
// mutex guards the active adapter pointer together with the in-flight call
// count; selection and switching wait for in-flight calls to drain before
// replacing the adapter, so a swap can never race an outstanding submission.
type Selector struct {
	adapters []ports.VenueAdapter
	forced   domain.VenueID
	logger   ports.Logger

	// opMu serializes SelectVenue/SwitchTo so two selection procedures
	// cannot interleave their connect attempts.
	opMu sync.Mutex

	mu       sync.Mutex
	drained  *sync.Cond // signaled when inFlight returns to zero
	active   ports.VenueAdapter
	inFlight int
}

// New creates a selector over the given adapters.
func New(cfg Config) (*Selector, error) {
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("%w: at least one venue adapter is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.ForceVenue != "" {
		found := false
		for _, a := range cfg.Adapters {
			if a.Identity() == cfg.ForceVenue {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: forced venue %s is not in the pool", ports.ErrConfigurationError, cfg.ForceVenue)
		}
	}
	s := &Selector{
		adapters: cfg.Adapters,
		forced:   cfg.ForceVenue,
		logger:   cfg.Logger,
	}
	s.drained = sync.NewCond(&s.mu)
	return s, nil
}

// SelectVenue establishes an active venue. In forced mode only the pinned
// venue is attempted; in AUTO mode the priority list is walked and the first
// successful connection wins. Returns ErrNoVenueAvailable when nothing
// connects. The previous active adapter, if different, is disconnected
// best-effort.
func (s *Selector) SelectVenue(ctx context.Context) (domain.VenueID, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	candidates := s.adapters
	if s.forced != "" {
		candidates = []ports.VenueAdapter{s.adapterFor(s.forced)}
		s.logger.Info(ctx, "Forced venue mode, attempting pinned venue only", map[string]interface{}{"venue": s.forced})
	}

	for _, adapter := range candidates {
		id := adapter.Identity()
		if err := adapter.Connect(ctx); err != nil {
			s.logger.Warn(ctx, "Venue connection failed, trying next in priority order", map[string]interface{}{
				"venue": id,
				"error": err.Error(),
			})
			continue
		}
		prev := s.install(adapter)
		if prev != nil && prev != adapter {
			s.disconnectWarn(ctx, prev)
		}
		s.logger.Info(ctx, "Active venue selected", map[string]interface{}{"venue": id})
		return id, nil
	}

	s.clearActive()
	return "", fmt.Errorf("%w: connection failed for all candidate venues", ports.ErrNoVenueAvailable)
}

// SwitchTo is the operator-driven override: disconnect the current venue
// (errors logged, not raised), connect the requested one. If the new
// connection fails the selector reverts to the previous venue when it is
// still connectable, otherwise it becomes venue-less.
func (s *Selector) SwitchTo(ctx context.Context, venue domain.VenueID) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	target := s.adapterFor(venue)
	if target == nil {
		return fmt.Errorf("%w: unknown venue %s", ports.ErrInvalidRequest, venue)
	}

	s.mu.Lock()
	prev := s.active
	s.mu.Unlock()

	if prev == target {
		s.logger.Info(ctx, "Already using requested venue", map[string]interface{}{"venue": venue})
		return nil
	}

	if prev != nil {
		// An in-flight submission on the outgoing adapter must complete or
		// time out before its session is torn down.
		s.waitDrained()
		s.disconnectWarn(ctx, prev)
	}

	if err := target.Connect(ctx); err != nil {
		s.logger.Error(ctx, err, "Switch target connection failed", map[string]interface{}{"venue": venue})
		// Revert to the previous venue if it will still take a session.
		if prev != nil {
			if revertErr := prev.Connect(ctx); revertErr == nil {
				s.install(prev)
				s.logger.Warn(ctx, "Reverted to previous venue after failed switch", map[string]interface{}{"venue": prev.Identity()})
				return fmt.Errorf("switch to %s failed, reverted to %s: %w", venue, prev.Identity(), err)
			}
		}
		s.clearActive()
		return fmt.Errorf("switch to %s failed, no venue active: %w", venue, err)
	}

	s.install(target)
	s.logger.Info(ctx, "Switched active venue", map[string]interface{}{"venue": venue})
	return nil
}

// Acquire returns the active adapter and a release func, incrementing the
// in-flight count so the adapter cannot be swapped out underneath the call.
// Callers must invoke release exactly once when the venue call returns.
func (s *Selector) Acquire() (ports.VenueAdapter, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, nil, ports.ErrNoVenueAvailable
	}
	s.inFlight++
	released := false
	release := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if released {
			return
		}
		released = true
		s.inFlight--
		if s.inFlight == 0 {
			s.drained.Broadcast()
		}
	}
	return s.active, release, nil
}

// Active returns the identity of the current venue, if any.
func (s *Selector) Active() (domain.VenueID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.Identity(), true
}

// AvailableVenues probes every adapter in the pool and returns the ones that
// accept a connection. Probes that are not the active venue are disconnected
// again.
func (s *Selector) AvailableVenues(ctx context.Context) []domain.VenueID {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	var available []domain.VenueID
	for _, adapter := range s.adapters {
		if err := adapter.Connect(ctx); err != nil {
			continue
		}
		available = append(available, adapter.Identity())
		if adapter != active {
			s.disconnectWarn(ctx, adapter)
		}
	}
	return available
}

// Status reports the current venue, override mode and priority order.
func (s *Selector) Status() Status {
	st := Status{Forced: s.forced, Priority: make([]domain.VenueID, 0, len(s.adapters))}
	for _, a := range s.adapters {
		st.Priority = append(st.Priority, a.Identity())
	}
	if id, ok := s.Active(); ok {
		st.Active = id
	}
	return st
}

// install waits for in-flight calls on the current adapter to drain, then
// swaps in the new one. Returns the replaced adapter.
func (s *Selector) install(adapter ports.VenueAdapter) ports.VenueAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inFlight > 0 {
		s.drained.Wait()
	}
	prev := s.active
	s.active = adapter
	return prev
}

// Shutdown disconnects the active venue after in-flight calls drain, leaving
// the selector venue-less. Used on process exit.
func (s *Selector) Shutdown(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return
	}
	s.waitDrained()
	s.disconnectWarn(ctx, active)
	s.clearActive()
}

func (s *Selector) waitDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inFlight > 0 {
		s.drained.Wait()
	}
}

func (s *Selector) clearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inFlight > 0 {
		s.drained.Wait()
	}
	s.active = nil
}

func (s *Selector) adapterFor(id domain.VenueID) ports.VenueAdapter {
	for _, a := range s.adapters {
		if a.Identity() == id {
			return a
		}
	}
	return nil
}

func (s *Selector) disconnectWarn(ctx context.Context, adapter ports.VenueAdapter) {
	if err := adapter.Disconnect(ctx); err != nil {
		s.logger.Warn(ctx, "Venue disconnect failed", map[string]interface{}{
			"venue": adapter.Identity(),
			"error": err.Error(),
		})
	}
}
