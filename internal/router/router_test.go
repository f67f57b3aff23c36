package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantRouter/internal/domain"
	"quantRouter/internal/policy"
	"quantRouter/internal/ports"
	"quantRouter/internal/selector"
	"quantRouter/internal/session"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockVenue struct {
	mu           sync.Mutex
	id           domain.VenueID
	connectErr   error
	connectCalls int
	quote        domain.Quote
	quoteErr     error
	// submitErrs is consumed one entry per SubmitOrder call; nil entries
	// and calls past the end succeed.
	submitErrs []error
	submitted  []domain.OrderSpec
}

func (m *mockVenue) Identity() domain.VenueID { return m.id }

func (m *mockVenue) Capabilities() domain.VenueCapabilities {
	return domain.VenueCapabilities{SupportsExtendedHours: true, SupportsOvernight: true}
}

func (m *mockVenue) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	return m.connectErr
}

func (m *mockVenue) Disconnect(ctx context.Context) error { return nil }

func (m *mockVenue) AccountSnapshot(ctx context.Context) (*ports.AccountInfo, error) {
	return &ports.AccountInfo{BuyingPower: 100000}, nil
}

func (m *mockVenue) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	q := m.quote
	q.Symbol = symbol
	return &q, nil
}

func (m *mockVenue) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (*ports.OrderAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.submitted)
	m.submitted = append(m.submitted, spec)
	if n < len(m.submitErrs) && m.submitErrs[n] != nil {
		return nil, m.submitErrs[n]
	}
	return &ports.OrderAck{
		OrderID:   fmt.Sprintf("%s-%d", m.id, n+1),
		Symbol:    spec.Symbol,
		Status:    "FILLED",
		FilledQty: spec.Quantity,
	}, nil
}

func (m *mockVenue) orders() []domain.OrderSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderSpec(nil), m.submitted...)
}

type memSnapshots struct {
	mu      sync.Mutex
	bySym   map[string]domain.Position
	saves   int
	saveErr error
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{bySym: make(map[string]domain.Position)}
}

func (m *memSnapshots) Save(ctx context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.bySym[pos.Symbol] = pos
	return nil
}

func (m *memSnapshots) Load(ctx context.Context, symbol string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.bySym[symbol]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

type memExecutions struct {
	mu   sync.Mutex
	rows []*domain.ExecutionResult
}

func (m *memExecutions) Record(ctx context.Context, res *domain.ExecutionResult) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, res)
	return int64(len(m.rows)), nil
}

func (m *memExecutions) RecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecutionResult(nil), m.rows...), nil
}

func (m *memExecutions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Test fixture

type fixture struct {
	router    *Router
	sel       *selector.Selector
	primary   *mockVenue
	secondary *mockVenue
	snaps     *memSnapshots
	execs     *memExecutions
}

func defaultSettings() policy.Settings {
	return policy.Settings{
		ExtendedHoursEnabled: true,
		OvernightEnabled:     true,
		MinInterval:          60 * time.Second,
		LimitBufferPct:       0.01,
		OvernightBufferPct:   0.02,
		SharesPerTrade:       100,
	}
}

func newFixture(t *testing.T, settings policy.Settings, snaps *memSnapshots) *fixture {
	t.Helper()
	f := &fixture{
		primary:   &mockVenue{id: domain.VenuePrimary, quote: domain.Quote{Bid: 99, Ask: 100, Last: 99.5}},
		secondary: &mockVenue{id: domain.VenueSecondary, quote: domain.Quote{Bid: 99, Ask: 100, Last: 99.5}},
		snaps:     snaps,
		execs:     &memExecutions{},
	}
	if f.snaps == nil {
		f.snaps = newMemSnapshots()
	}

	sel, err := selector.New(selector.Config{
		Adapters: []ports.VenueAdapter{f.primary, f.secondary},
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)
	f.sel = sel

	eng, err := policy.New(settings)
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	r, err := New(context.Background(), Config{
		Symbol:     "TQQQ",
		Logger:     &mockLogger{},
		Selector:   sel,
		Policy:     eng,
		Classifier: session.New(loc, nil),
		Snapshots:  f.snaps,
		Executions: f.execs,
	})
	require.NoError(t, err)
	f.router = r
	return f
}

// 2024-03-12 is a Tuesday; 10:00 New York is inside regular hours.
func regularHours() time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(2024, 3, 12, 10, 0, 0, 0, loc)
}

func preMarket() time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(2024, 3, 12, 7, 0, 0, 0, loc)
}

func TestRouter_BuyFromFlat_RegularHours(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(),
		Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, domain.ActionBuy, res.Action)
	assert.Equal(t, domain.VenuePrimary, res.Venue)
	assert.Len(t, res.OrderIDs, 1)

	orders := f.primary.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderTypeMarket, orders[0].Type)
	assert.Equal(t, domain.Buy, orders[0].Side)
	assert.Equal(t, int64(100), orders[0].Quantity)

	pos := f.router.Position()
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, int64(100), pos.Quantity)

	// Snapshot persisted and audit row written.
	saved, err := f.snaps.Load(context.Background(), "TQQQ")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, domain.SideLong, saved.Side)
	assert.Equal(t, 1, f.execs.count())
}

func TestRouter_Hold_NoVenueTouched(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	ev := domain.IndicatorEvent{Timestamp: regularHours(), Direction: domain.DirectionAbove}

	res1, err := f.router.OnSignal(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, res1.Accepted)

	// Same direction again: LONG + ABOVE is a hold.
	ev.Timestamp = ev.Timestamp.Add(2 * time.Minute)
	res2, err := f.router.OnSignal(context.Background(), ev)

	require.NoError(t, err)
	assert.False(t, res2.Accepted)
	assert.Equal(t, domain.ReasonNoActionRequired, res2.Reason)
	assert.Len(t, f.primary.orders(), 1)
	pos := f.router.Position()
	assert.Equal(t, domain.SideLong, pos.Side)
}

func TestRouter_Throttled_PositionUnchanged(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)

	res1, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})
	require.NoError(t, err)
	require.True(t, res1.Accepted)

	// A reversal 30s later is inside the minimum interval.
	res2, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours().Add(30 * time.Second), Direction: domain.DirectionBelow,
	})

	require.NoError(t, err)
	assert.False(t, res2.Accepted)
	assert.Equal(t, domain.ReasonThrottled, res2.Reason)
	assert.Len(t, f.primary.orders(), 1)
	assert.Equal(t, domain.SideLong, f.router.Position().Side)
}

func TestRouter_ExtendedHoursDisabled_SessionNotEligible(t *testing.T) {
	settings := defaultSettings()
	settings.ExtendedHoursEnabled = false
	f := newFixture(t, settings, nil)

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: preMarket(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, domain.ReasonSessionNotEligible, res.Reason)
	// Rejected before any venue I/O.
	assert.Equal(t, 0, f.primary.connectCalls)
}

func TestRouter_PreMarket_MarketableLimit(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: preMarket(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	require.True(t, res.Accepted)
	orders := f.primary.orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderTypeLimit, orders[0].Type)
	assert.True(t, orders[0].ExtendedHours)
	// Ask 100 with a 1% buffer.
	assert.InDelta(t, 101.0, orders[0].LimitPrice, 1e-9)
}

func TestRouter_FailoverOnFirstSignal(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	f.primary.connectErr = ports.ErrConnectionFailed

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, domain.VenueSecondary, res.Venue)
	assert.Len(t, f.secondary.orders(), 1)
	assert.Empty(t, f.primary.orders())
}

func TestRouter_NoVenueAvailable_IsHardFailure(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	f.primary.connectErr = ports.ErrConnectionFailed
	f.secondary.connectErr = ports.ErrConnectionFailed

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNoVenueAvailable)
	assert.False(t, res.Accepted)
	assert.Equal(t, domain.ReasonNoVenueAvailable, res.Reason)
	assert.True(t, f.router.Position().IsFlat())

	// A recovered venue makes the next signal succeed; the router stays
	// usable after the failure.
	f.primary.mu.Lock()
	f.primary.connectErr = nil
	f.primary.mu.Unlock()
	res, err = f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours().Add(2 * time.Minute), Direction: domain.DirectionAbove,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestRouter_DroppedSession_ReselectsAndRetriesOnce(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	f.primary.submitErrs = []error{ports.ErrNotConnected}

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	// Primary reconnects on re-selection and the retry succeeds there.
	assert.Len(t, f.primary.orders(), 2)
	assert.Len(t, res.OrderIDs, 1)
}

func TestRouter_DroppedSessionTwice_Fails(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	f.primary.submitErrs = []error{ports.ErrNotConnected, ports.ErrNotConnected}

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "session dropped")
	assert.True(t, f.router.Position().IsFlat())
}

func TestRouter_CompoundPartialExecution(t *testing.T) {
	snaps := newMemSnapshots()
	held := regularHours().Add(-time.Hour)
	snaps.bySym["TQQQ"] = domain.Position{
		Symbol:              "TQQQ",
		Side:                domain.SideLong,
		Quantity:            100,
		LastActionTimestamp: held,
		LastActionKind:      domain.ActionBuy,
	}
	f := newFixture(t, defaultSettings(), snaps)
	// Closing leg fills, opening leg is rejected.
	f.primary.submitErrs = []error{nil, ports.ErrOrderRejected}

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionBelow,
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.True(t, res.Partial)
	assert.True(t, strings.HasPrefix(res.Reason, domain.ReasonPartialExecution))
	assert.Equal(t, domain.ActionSellAndShort, res.Action)
	assert.Len(t, res.OrderIDs, 1)

	// The position is left at its pre-transition state so the next signal
	// re-derives the remaining work.
	pos := f.router.Position()
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, int64(100), pos.Quantity)
	assert.Equal(t, held, pos.LastActionTimestamp)
}

func TestRouter_SeedsPositionFromSnapshot(t *testing.T) {
	snaps := newMemSnapshots()
	snaps.bySym["TQQQ"] = domain.Position{
		Symbol: "TQQQ", Side: domain.SideShort, Quantity: 100,
		LastActionTimestamp: regularHours().Add(-24 * time.Hour),
		LastActionKind:      domain.ActionShort,
	}
	f := newFixture(t, defaultSettings(), snaps)

	pos := f.router.Position()
	assert.Equal(t, domain.SideShort, pos.Side)

	// SHORT + BELOW is a hold for the seeded state.
	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionBelow,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoActionRequired, res.Reason)
}

func TestRouter_FullCycle(t *testing.T) {
	settings := defaultSettings()
	settings.MinInterval = 0
	f := newFixture(t, settings, nil)

	ts := regularHours()
	steps := []struct {
		direction domain.Direction
		action    domain.Action
		side      domain.Side
	}{
		{domain.DirectionAbove, domain.ActionBuy, domain.SideLong},
		{domain.DirectionBelow, domain.ActionSellAndShort, domain.SideShort},
		{domain.DirectionAbove, domain.ActionCoverAndBuy, domain.SideLong},
		{domain.DirectionBelow, domain.ActionSellAndShort, domain.SideShort},
	}
	for i, step := range steps {
		ts = ts.Add(time.Minute)
		res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
			Timestamp: ts, Direction: step.direction,
		})
		require.NoError(t, err, "step %d", i)
		assert.True(t, res.Accepted, "step %d", i)
		assert.Equal(t, step.action, res.Action, "step %d", i)
		assert.Equal(t, step.side, f.router.Position().Side, "step %d", i)
	}
	// BUY, then two legs for each of the three reversals.
	assert.Len(t, f.primary.orders(), 7)
	assert.Equal(t, 4, f.execs.count())
}

func TestRouter_QuoteFailureOutsideRegularHours(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)
	f.primary.quoteErr = ports.ErrVenueUnavailable

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: preMarket(), Direction: domain.DirectionAbove,
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "quote fetch failed")
	assert.Empty(t, f.primary.orders())
	assert.True(t, f.router.Position().IsFlat())
}

func TestRouter_OperatorSwitchHonoredBetweenSignals(t *testing.T) {
	f := newFixture(t, defaultSettings(), nil)

	_, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours(), Direction: domain.DirectionAbove,
	})
	require.NoError(t, err)

	require.NoError(t, f.sel.SwitchTo(context.Background(), domain.VenueSecondary))

	res, err := f.router.OnSignal(context.Background(), domain.IndicatorEvent{
		Timestamp: regularHours().Add(2 * time.Minute), Direction: domain.DirectionBelow,
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, domain.VenueSecondary, res.Venue)
	assert.Len(t, f.secondary.orders(), 2)
}
