package restbroker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		SecretKey: "test-secret",
		Logger:    &mockLogger{},
	})
	require.NoError(t, err)
	return c, srv
}

func accountHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"id": "acct-1", "status": "ACTIVE",
		"cash": "25000", "buying_power": "100000", "portfolio_value": "31000",
	})
}

func TestClient_ConnectValidatesCredentials(t *testing.T) {
	var gotKey, gotSecret string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		accountHandler(w, r)
	}))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "test-secret", gotSecret)
}

func TestClient_ConnectAuthFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 40110000, "message": "access key verification failed"})
	}))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestClient_SubmitOrder(t *testing.T) {
	var got orderRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			accountHandler(w, r)
		case "/v2/orders":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{
				"id": "ord-9", "status": "accepted", "filled_avg_price": "0", "filled_qty": "0",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	ack, err := c.SubmitOrder(ctx, domain.OrderSpec{
		Symbol:        "TQQQ",
		Side:          domain.Sell,
		Quantity:      100,
		Type:          domain.OrderTypeLimit,
		LimitPrice:    98.01,
		ExtendedHours: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-9", ack.OrderID)
	assert.Equal(t, "sell", got.Side)
	assert.Equal(t, "limit", got.Type)
	assert.Equal(t, "98.01", got.LimitPrice)
	assert.True(t, got.ExtendedHours)
	assert.Equal(t, "day", got.TimeInForce)
}

func TestClient_SubmitOrderRejected(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/account" {
			accountHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 42210000, "message": "extended hours orders must be limit day orders"})
	}))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.SubmitOrder(ctx, domain.OrderSpec{Symbol: "TQQQ", Side: domain.Buy, Quantity: 100, Type: domain.OrderTypeMarket, ExtendedHours: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrOrderRejected)
}

func TestClient_InsufficientBuyingPower(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/account" {
			accountHandler(w, r)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 40310000, "message": "insufficient buying power"})
	}))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.SubmitOrder(ctx, domain.OrderSpec{Symbol: "TQQQ", Side: domain.Buy, Quantity: 100, Type: domain.OrderTypeMarket})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
}

func TestClient_BrokerDown_ReportsDroppedSession(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountHandler(w, r)
	}))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	srv.Close()

	_, err := c.SubmitOrder(ctx, domain.OrderSpec{Symbol: "TQQQ", Side: domain.Buy, Quantity: 100, Type: domain.OrderTypeMarket})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotConnected)

	// The connected flag is dropped so subsequent quote calls fail fast.
	_, err = c.Quote(ctx, "TQQQ")
	assert.ErrorIs(t, err, ports.ErrVenueUnavailable)
}

func TestClient_QuoteAndAccount(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			accountHandler(w, r)
		case "/v2/positions":
			json.NewEncoder(w).Encode([]map[string]string{
				{"symbol": "TQQQ", "qty": "100", "market_value": "6000"},
			})
		case "/v2/stocks/TQQQ/quote":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"symbol": "TQQQ", "bid_price": 59.9, "ask_price": 60.1, "last_price": 60.0,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	q, err := c.Quote(ctx, "TQQQ")
	require.NoError(t, err)
	assert.Equal(t, 59.9, q.Bid)
	assert.Equal(t, 60.1, q.Ask)

	info, err := c.AccountSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", info.AccountID)
	assert.Equal(t, 100000.0, info.BuyingPower)
	require.Len(t, info.Positions, 1)
	assert.Equal(t, int64(100), info.Positions[0].Quantity)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x", APIKey: "k", SecretKey: "s"})
	assert.Error(t, err) // missing logger

	_, err = New(Config{BaseURL: "http://x", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}
