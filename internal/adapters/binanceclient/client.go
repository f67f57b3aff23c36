// Package binanceclient adapts the Binance futures API to the venue adapter
// interface. It serves as the tertiary venue: a 24h market with no session
// restrictions, used when neither equity venue will take orders.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"quantRouter/internal/domain"
	"quantRouter/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.VenueAdapter interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger

	connMu    sync.Mutex
	connected bool
}

// Config holds configuration specific to the Binance venue adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance venue adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// Identity reports this adapter's slot in the venue priority order.
func (c *Client) Identity() domain.VenueID { return domain.VenueTertiary }

// Capabilities describes a continuous market: every session is tradable and
// market orders are accepted around the clock.
func (c *Client) Capabilities() domain.VenueCapabilities {
	return domain.VenueCapabilities{
		SupportsExtendedHours:       true,
		SupportsOvernight:           true,
		RequiresLimitOutsideRegular: false,
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderRejected
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2019, -3005, -3041: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014: // Qty/price not within permissible range
			mappedErr = ports.ErrOrderRejected
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrOrderTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		c.markDisconnected()
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrNotConnected, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func (c *Client) markDisconnected() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
}

func (c *Client) isConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// Connect verifies reachability and synchronizes the local clock offset with
// the server, which signed requests depend on. Idempotent: calling it on an
// established session is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	op := "Connect"
	c.connMu.Lock()
	if c.connected {
		c.connMu.Unlock()
		return nil
	}
	c.connMu.Unlock()

	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, c.handleError(ctx, err, op))
	}
	if _, err := c.futuresClient.NewSetServerTimeService().Do(ctx); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, c.handleError(ctx, err, op))
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
	c.logger.Info(ctx, "Binance venue connected", nil)
	return nil
}

// Disconnect releases the session. The REST transport is stateless, so this
// only drops the connected flag.
func (c *Client) Disconnect(ctx context.Context) error {
	c.markDisconnected()
	c.logger.Info(ctx, "Binance venue disconnected", nil)
	return nil
}

// AccountSnapshot fetches futures account balances and open positions.
func (c *Client) AccountSnapshot(ctx context.Context) (*ports.AccountInfo, error) {
	op := "AccountSnapshot"
	if !c.isConnected() {
		return nil, ports.ErrVenueUnavailable
	}

	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	info := &ports.AccountInfo{
		Cash:           parseFloat(account.AvailableBalance),
		BuyingPower:    parseFloat(account.AvailableBalance),
		PortfolioValue: parseFloat(account.TotalMarginBalance),
	}
	for _, p := range account.Positions {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		info.Positions = append(info.Positions, ports.VenuePosition{
			Symbol:      p.Symbol,
			Quantity:    int64(amt),
			MarketValue: amt * parseFloat(p.EntryPrice),
		})
	}
	return info, nil
}

// Quote returns the current top of book for the symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*domain.Quote, error) {
	op := "Quote"
	if !c.isConnected() {
		return nil, ports.ErrVenueUnavailable
	}

	tickers, err := c.futuresClient.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%s failed: %w: no book ticker returned for %s", op, ports.ErrNotFound, symbol)
	}

	t := tickers[0]
	return &domain.Quote{
		Symbol:    symbol,
		Bid:       parseFloat(t.BidPrice),
		Ask:       parseFloat(t.AskPrice),
		Timestamp: time.Now().UTC(),
	}, nil
}

// SubmitOrder places a futures order matching the spec and reports the
// acknowledgement. The extended-hours flag is meaningless on a continuous
// market and is ignored.
func (c *Client) SubmitOrder(ctx context.Context, spec domain.OrderSpec) (*ports.OrderAck, error) {
	op := "SubmitOrder"
	if !c.isConnected() {
		return nil, ports.ErrNotConnected
	}

	side := futures.SideTypeBuy
	if spec.Side == domain.Sell {
		side = futures.SideTypeSell
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(spec.Symbol).
		Side(side).
		Quantity(strconv.FormatInt(spec.Quantity, 10))

	if spec.Type == domain.OrderTypeLimit {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(spec.LimitPrice, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, "Order submitted to Binance", map[string]interface{}{
		"orderID": resp.OrderID,
		"symbol":  resp.Symbol,
		"status":  resp.Status,
	})
	return &ports.OrderAck{
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		Symbol:       resp.Symbol,
		Status:       string(resp.Status),
		AvgFillPrice: parseFloat(resp.AvgPrice),
		FilledQty:    int64(parseFloat(resp.ExecutedQuantity)),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
