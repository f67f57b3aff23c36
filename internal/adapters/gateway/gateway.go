// Package gateway adapts a locally running trading gateway to the venue
// adapter interface. The gateway speaks a line-delimited JSON protocol over
// TCP: every request carries a client-assigned sequence number and the
// gateway answers each request with exactly one response line echoing it.
// This is the primary venue.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

const defaultRequestTimeout = 10 * time.Second

// Client implements the ports.VenueAdapter interface over a persistent TCP
// session to the gateway process.
type Client struct {
	addr           string
	clientID       int
	requestTimeout time.Duration
	logger         ports.Logger

	// mu guards the session and serializes request/response exchanges; the
	// protocol is strictly one response per request in order.
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	seq    int64
}

// Config holds connection parameters for the gateway.
type Config struct {
	Host           string
	Port           int
	ClientID       int // Distinguishes concurrent API clients on one gateway
	RequestTimeout time.Duration
	Logger         ports.Logger
}

// New creates a gateway adapter. No connection is made until Connect.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for gateway client")
	}
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("%w: gateway host and port are required", ports.ErrConfigurationError)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		addr:           net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		clientID:       cfg.ClientID,
		requestTimeout: timeout,
		logger:         cfg.Logger,
	}, nil
}

// Identity reports this adapter's slot in the venue priority order.
func (c *Client) Identity() domain.VenueID { return domain.VenuePrimary }

// Capabilities describes the gateway venue: all sessions including overnight,
// with limit orders required outside regular hours.
func (c *Client) Capabilities() domain.VenueCapabilities {
	return domain.VenueCapabilities{
		SupportsExtendedHours:       true,
		SupportsOvernight:           true,
		RequiresLimitOutsideRegular: true,
	}
}

// Wire messages. Every response carries status "ok" or "error".

type request struct {
	Seq      int64   `json:"seq"`
	Type     string  `json:"type"`
	ClientID int     `json:"client_id,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
	Side     string  `json:"side,omitempty"`
	Quantity int64   `json:"quantity,omitempty"`
	OrderTyp string  `json:"order_type,omitempty"`
	LimitPx  float64 `json:"limit_price,omitempty"`
	Extended bool    `json:"outside_rth,omitempty"`
}

type response struct {
	Seq     int64  `json:"seq"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	// place_order
	OrderID     string  `json:"order_id,omitempty"`
	OrderStatus string  `json:"order_status,omitempty"`
	AvgPrice    float64 `json:"avg_price,omitempty"`
	FilledQty   int64   `json:"filled_qty,omitempty"`

	// market_data
	Bid  float64 `json:"bid,omitempty"`
	Ask  float64 `json:"ask,omitempty"`
	Last float64 `json:"last,omitempty"`

	// account_summary
	AccountID      string  `json:"account_id,omitempty"`
	Cash           float64 `json:"cash,omitempty"`
	BuyingPower    float64 `json:"buying_power,omitempty"`
	PortfolioValue float64 `json:"portfolio_value,omitempty"`
	Positions      []struct {
		Symbol      string  `json:"symbol"`
		Quantity    int64   `json:"quantity"`
		MarketValue float64 `json:"market_value"`
	} `json:"positions,omitempty"`
}

// Connect dials the gateway and performs the handshake. Idempotent: an
// established session is left alone.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: failed to dial gateway at %s: %v", ports.ErrConnectionFailed, c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)

	if err := conn.SetDeadline(time.Now().Add(c.requestTimeout)); err != nil {
		c.teardownLocked()
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err)
	}
	resp, err := c.exchangeLocked(&request{Type: "handshake", ClientID: c.clientID})
	if err != nil {
		c.teardownLocked()
		return fmt.Errorf("%w: gateway handshake failed: %v", ports.ErrConnectionFailed, err)
	}
	if resp.Status != "ok" {
		c.teardownLocked()
		return fmt.Errorf("%w: gateway refused handshake: %s", ports.ErrConnectionFailed, resp.Message)
	}

	c.logger.Info(ctx, "Gateway connected", map[string]interface{}{"addr": c.addr, "clientID": c.clientID})
	return nil
}

// Disconnect closes the session. Safe to call from any state.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.teardownLocked()
	c.logger.Info(ctx, "Gateway disconnected", map[string]interface{}{"addr": c.addr})
	return nil
}

// AccountSnapshot returns buying power and open positions from the gateway.
func (c *Client) AccountSnapshot(ctx context.Context) (*ports.AccountInfo, error) {
	resp, err := c.exchange(ctx, &request{Type: "account_summary"})
	if err != nil {
		return nil, c.classify(err, "AccountSnapshot", ports.ErrVenueUnavailable)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("AccountSnapshot failed: %w: %s", ports.ErrVenueUnavailable, resp.Message)
	}

	info := &ports.AccountInfo{
		AccountID:      resp.AccountID,
		Cash:           resp.Cash,
		BuyingPower:    resp.BuyingPower,
		PortfolioValue: resp.PortfolioValue,
	}
	for _, p := range resp.Positions {
		info.Positions = append(info.Positions, ports.VenuePosition{
			Symbol:      p.Symbol,
			Quantity:    p.Quantity,
			MarketValue: p.MarketValue,
		})
	}
	return info, nil
}

// Quote returns the gateway's current top of book for the symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	resp, err := c.exchange(ctx, &request{Type: "market_data", Symbol: symbol})
	if err != nil {
		return nil, c.classify(err, "Quote", ports.ErrVenueUnavailable)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("Quote failed: %w: %s", ports.ErrVenueUnavailable, resp.Message)
	}
	return &domain.Quote{
		Symbol:    symbol,
		Bid:       resp.Bid,
		Ask:       resp.Ask,
		Last:      resp.Last,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SubmitOrder places one order and waits for the gateway's acknowledgment.
// A response with status "error" is a venue-side rejection; missing the
// response within the request timeout is ErrOrderTimeout.
func (c *Client) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (*ports.OrderAck, error) {
	req := &request{
		Type:     "place_order",
		Symbol:   spec.Symbol,
		Side:     string(spec.Side),
		Quantity: spec.Quantity,
		OrderTyp: string(spec.Type),
		Extended: spec.ExtendedHours,
	}
	if spec.Type == domain.OrderTypeLimit {
		req.LimitPx = spec.LimitPrice
	}

	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, c.classify(err, "SubmitOrder", ports.ErrNotConnected)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("SubmitOrder failed: %w: %s", ports.ErrOrderRejected, resp.Message)
	}

	c.logger.Info(ctx, "Order submitted to gateway", map[string]interface{}{
		"orderID": resp.OrderID,
		"symbol":  spec.Symbol,
		"status":  resp.OrderStatus,
	})
	return &ports.OrderAck{
		OrderID:      resp.OrderID,
		Symbol:       spec.Symbol,
		Status:       resp.OrderStatus,
		AvgFillPrice: resp.AvgPrice,
		FilledQty:    resp.FilledQty,
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// exchange performs one request/response round trip under the session mutex.
func (c *Client) exchange(ctx context.Context, req *request) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ports.ErrNotConnected
	}

	deadline := time.Now().Add(c.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	return c.exchangeLocked(req)
}

// exchangeLocked writes one request line and reads one response line.
// Callers hold mu. Any transport error tears the session down so the next
// call reports ErrNotConnected.
func (c *Client) exchangeLocked(req *request) (*response, error) {
	c.seq++
	req.Seq = c.seq

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %s request: %v", ports.ErrInvalidRequest, req.Type, err)
	}
	payload = append(payload, '\n')

	if _, err := c.conn.Write(payload); err != nil {
		c.teardownLocked()
		return nil, err
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.teardownLocked()
		return nil, err
	}

	resp := &response{}
	if err := json.Unmarshal(line, resp); err != nil {
		c.teardownLocked()
		return nil, fmt.Errorf("malformed gateway response: %w", err)
	}
	if resp.Seq != req.Seq {
		c.teardownLocked()
		return nil, fmt.Errorf("gateway response out of sequence: sent %d, got %d", req.Seq, resp.Seq)
	}
	return resp, nil
}

func (c *Client) teardownLocked() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

// classify maps transport faults onto the adapter error contract. A timeout
// waiting for the response line is ErrOrderTimeout; anything else means the
// session is gone and reports the operation's dropped-session sentinel.
func (c *Client) classify(err error, operation string, dropped error) error {
	switch {
	case err == nil:
		return nil
	case os.IsTimeout(err):
		return fmt.Errorf("%s failed: %w: no response within %s", operation, ports.ErrOrderTimeout, c.requestTimeout)
	default:
		return fmt.Errorf("%s failed: %w: %v", operation, dropped, err)
	}
}
