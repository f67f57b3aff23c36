// Package restbroker adapts a commission-free REST brokerage to the venue
// adapter interface. Authentication is header-based with a key/secret pair;
// each call is one authenticated HTTP round trip. This is the secondary
// venue: it trades the extended sessions but not overnight.
package restbroker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

const defaultRequestTimeout = 10 * time.Second

const (
	headerKeyID  = "APCA-API-KEY-ID"
	headerSecret = "APCA-API-SECRET-KEY"
)

// Client implements the ports.VenueAdapter interface over the broker's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	logger     ports.Logger

	connMu    sync.Mutex
	connected bool
}

// Config holds configuration specific to the REST broker adapter.
type Config struct {
	BaseURL        string
	APIKey         string
	SecretKey      string
	RequestTimeout time.Duration
	Logger         ports.Logger
}

// New creates a REST broker adapter. Credentials are validated on Connect,
// not here.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for REST broker client")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: broker base URL is required", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: broker API key and secret are required", ports.ErrConfigurationError)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// Identity reports this adapter's slot in the venue priority order.
func (c *Client) Identity() domain.VenueID { return domain.VenueSecondary }

// Capabilities describes the broker: pre-market and after-hours with
// marketable limits, no overnight session.
func (c *Client) Capabilities() domain.VenueCapabilities {
	return domain.VenueCapabilities{
		SupportsExtendedHours:       true,
		SupportsOvernight:           false,
		RequiresLimitOutsideRegular: true,
	}
}

// API payloads.

type accountResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Cash           string `json:"cash"`
	BuyingPower    string `json:"buying_power"`
	PortfolioValue string `json:"portfolio_value"`
}

type positionResponse struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	MarketValue string `json:"market_value"`
}

type quoteResponse struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bid_price"`
	AskPrice float64 `json:"ask_price"`
	Last     float64 `json:"last_price"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ExtendedHours bool   `json:"extended_hours"`
}

type orderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledAvgPrice string `json:"filled_avg_price"`
	FilledQty      string `json:"filled_qty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Connect validates the credentials with an account lookup. Idempotent; the
// transport itself is stateless.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.connected {
		c.connMu.Unlock()
		return nil
	}
	c.connMu.Unlock()

	var account accountResponse
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &account); err != nil {
		return fmt.Errorf("%w: broker account validation failed: %v", ports.ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
	c.logger.Info(ctx, "REST broker connected", map[string]interface{}{"accountID": account.ID, "accountStatus": account.Status})
	return nil
}

// Disconnect drops the connected flag. Safe to call from any state.
func (c *Client) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
	c.logger.Info(ctx, "REST broker disconnected", nil)
	return nil
}

func (c *Client) isConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// AccountSnapshot returns account balances and open positions.
func (c *Client) AccountSnapshot(ctx context.Context) (*ports.AccountInfo, error) {
	if !c.isConnected() {
		return nil, ports.ErrVenueUnavailable
	}

	var account accountResponse
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &account); err != nil {
		return nil, fmt.Errorf("AccountSnapshot failed: %w", err)
	}
	var positions []positionResponse
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &positions); err != nil {
		return nil, fmt.Errorf("AccountSnapshot failed: %w", err)
	}

	info := &ports.AccountInfo{
		AccountID:      account.ID,
		Cash:           parseFloat(account.Cash),
		BuyingPower:    parseFloat(account.BuyingPower),
		PortfolioValue: parseFloat(account.PortfolioValue),
	}
	for _, p := range positions {
		info.Positions = append(info.Positions, ports.VenuePosition{
			Symbol:      p.Symbol,
			Quantity:    int64(parseFloat(p.Qty)),
			MarketValue: parseFloat(p.MarketValue),
		})
	}
	return info, nil
}

// Quote returns the latest bid/ask for the symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if !c.isConnected() {
		return nil, ports.ErrVenueUnavailable
	}

	var q quoteResponse
	if err := c.do(ctx, http.MethodGet, "/v2/stocks/"+symbol+"/quote", nil, &q); err != nil {
		return nil, fmt.Errorf("Quote failed: %w", err)
	}
	return &domain.Quote{
		Symbol:    symbol,
		Bid:       q.BidPrice,
		Ask:       q.AskPrice,
		Last:      q.Last,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SubmitOrder posts one order and reports the broker's acknowledgment.
func (c *Client) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (*ports.OrderAck, error) {
	if !c.isConnected() {
		return nil, ports.ErrNotConnected
	}

	req := orderRequest{
		Symbol:        spec.Symbol,
		Qty:           strconv.FormatInt(spec.Quantity, 10),
		Side:          strings.ToLower(string(spec.Side)),
		Type:          strings.ToLower(string(spec.Type)),
		TimeInForce:   "day",
		ExtendedHours: spec.ExtendedHours,
	}
	if spec.Type == domain.OrderTypeLimit {
		req.LimitPrice = strconv.FormatFloat(spec.LimitPrice, 'f', 2, 64)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("SubmitOrder failed: %w", err)
	}

	c.logger.Info(ctx, "Order submitted to REST broker", map[string]interface{}{
		"orderID": resp.ID,
		"symbol":  spec.Symbol,
		"status":  resp.Status,
	})
	return &ports.OrderAck{
		OrderID:      resp.ID,
		Symbol:       spec.Symbol,
		Status:       resp.Status,
		AvgFillPrice: parseFloat(resp.FilledAvgPrice),
		FilledQty:    int64(parseFloat(resp.FilledQty)),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

// do performs one authenticated request and decodes the JSON response into
// out. Non-2xx statuses are translated onto the adapter error contract.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to encode request body: %v", ports.ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInvalidRequest, err)
	}
	req.Header.Set(headerKeyID, c.apiKey)
	req.Header.Set(headerSecret, c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return fmt.Errorf("%w: %v", ports.ErrOrderTimeout, err)
		}
		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
		return fmt.Errorf("%w: %v", ports.ErrNotConnected, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("malformed broker response: %w", err)
		}
	}
	return nil
}

// statusError maps the broker's HTTP statuses onto standardized ports errors.
func (c *Client) statusError(status int, raw []byte) error {
	var ae apiError
	msg := string(raw)
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Message != "" {
		msg = ae.Message
	}

	var mapped error
	switch status {
	case http.StatusUnauthorized:
		mapped = ports.ErrAuthenticationFailed
	case http.StatusForbidden:
		// The broker uses 403 for both revoked keys and buying-power
		// violations; the message disambiguates.
		if strings.Contains(strings.ToLower(msg), "buying power") {
			mapped = ports.ErrInsufficientFunds
		} else {
			mapped = ports.ErrAuthenticationFailed
		}
	case http.StatusUnprocessableEntity:
		mapped = ports.ErrOrderRejected
	case http.StatusTooManyRequests:
		mapped = ports.ErrRateLimited
	case http.StatusNotFound:
		mapped = ports.ErrNotFound
	default:
		mapped = ports.ErrVenueUnavailable
	}
	return fmt.Errorf("%w: broker returned %d: %s", mapped, status, msg)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
