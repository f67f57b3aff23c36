package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantRouter/config"
	"quantRouter/internal/adapters/binanceclient"
	"quantRouter/internal/adapters/gateway"
	"quantRouter/internal/adapters/logger"
	"quantRouter/internal/adapters/restbroker"
	"quantRouter/internal/adapters/sqlite"
	"quantRouter/internal/domain"
	"quantRouter/internal/policy"
	"quantRouter/internal/ports"
	"quantRouter/internal/router"
	"quantRouter/internal/selector"
	"quantRouter/internal/session"
)

// signalLine is the stdin wire format for one indicator event. The indicator
// process upstream writes one JSON object per line.
type signalLine struct {
	Timestamp time.Time        `json:"timestamp"`
	Direction domain.Direction `json:"direction"`
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Venue Adapters
	adapters, err := buildAdapters(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize venue adapters")
		log.Fatalf("FATAL: Failed to initialize venue adapters: %v", err)
	}
	appLogger.Info(ctx, "Venue adapters initialized", map[string]interface{}{"count": len(adapters)})

	// 5. Initialize Venue Selector
	sel, err := selector.New(selector.Config{
		Adapters:   adapters,
		ForceVenue: cfg.ForceVenue,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize venue selector")
		log.Fatalf("FATAL: Failed to initialize venue selector: %v", err)
	}

	// 6. Initialize Session Classifier and Order Policy
	loc, err := time.LoadLocation(cfg.ExchangeTimezone)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load exchange timezone")
		log.Fatalf("FATAL: Failed to load exchange timezone: %v", err)
	}
	classifier := session.New(loc, cfg.Holidays)

	policyEngine, err := policyFromConfig(cfg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order policy")
		log.Fatalf("FATAL: Failed to initialize order policy: %v", err)
	}

	// 7. Initialize Execution Router
	execRouter, err := router.New(ctx, router.Config{
		Symbol:     cfg.Symbol,
		Logger:     appLogger,
		Selector:   sel,
		Policy:     policyEngine,
		Classifier: classifier,
		Snapshots:  repo,
		Executions: repo,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution router")
		log.Fatalf("FATAL: Failed to initialize execution router: %v", err)
	}
	appLogger.Info(ctx, "Execution router initialized", map[string]interface{}{"symbol": cfg.Symbol})

	// 8. Run until the signal feed ends or the process is interrupted
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(runCtx, appLogger, execRouter, sel); err != nil {
		appLogger.Error(ctx, err, "Execution router exited with error")
		log.Fatalf("FATAL: Execution router exited with error: %v", err)
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}

// run consumes indicator events from stdin, one JSON object per line, and
// routes each through the execution router. Returns when stdin closes or the
// context is cancelled.
func run(ctx context.Context, appLogger ports.Logger, execRouter *router.Router, sel *selector.Selector) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			appLogger.Info(ctx, "Shutdown requested, disconnecting venues")
			disconnectActive(sel)
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return err
					}
				default:
				}
				appLogger.Info(ctx, "Signal feed closed, shutting down")
				disconnectActive(sel)
				return nil
			}
			if line == "" {
				continue
			}

			var sig signalLine
			if err := json.Unmarshal([]byte(line), &sig); err != nil {
				appLogger.Warn(ctx, "Dropping malformed signal line", map[string]interface{}{"line": line, "error": err.Error()})
				continue
			}
			if sig.Timestamp.IsZero() {
				sig.Timestamp = time.Now()
			}

			res, err := execRouter.OnSignal(ctx, domain.IndicatorEvent{
				Timestamp: sig.Timestamp,
				Direction: sig.Direction,
			})
			if err != nil {
				// No venue will take orders right now. Keep consuming; the
				// next signal retries selection from scratch.
				appLogger.Error(ctx, err, "Signal failed", map[string]interface{}{"direction": sig.Direction})
				continue
			}
			appLogger.Info(ctx, "Signal processed", map[string]interface{}{
				"accepted": res.Accepted,
				"action":   res.Action,
				"reason":   res.Reason,
				"venue":    res.Venue,
			})
		}
	}
}

func disconnectActive(sel *selector.Selector) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sel.Shutdown(shutdownCtx)
}

// buildAdapters constructs one adapter per venue named in the priority order
// (or the forced pin), in priority position.
func buildAdapters(cfg *config.Config, appLogger ports.Logger) ([]ports.VenueAdapter, error) {
	pool := cfg.VenuePriority
	if cfg.ForceVenue != "" {
		pool = append([]domain.VenueID{cfg.ForceVenue}, pool...)
	}

	seen := make(map[domain.VenueID]bool)
	var adapters []ports.VenueAdapter
	for _, id := range pool {
		if seen[id] {
			continue
		}
		seen[id] = true

		switch id {
		case domain.VenuePrimary:
			gw, err := gateway.New(gateway.Config{
				Host:           cfg.GatewayHost,
				Port:           cfg.GatewayPort,
				ClientID:       cfg.GatewayClientID,
				RequestTimeout: cfg.GatewayTimeout,
				Logger:         appLogger,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, gw)
		case domain.VenueSecondary:
			broker, err := restbroker.New(restbroker.Config{
				BaseURL:   cfg.BrokerBaseURL,
				APIKey:    cfg.BrokerAPIKey,
				SecretKey: cfg.BrokerSecretKey,
				Logger:    appLogger,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, broker)
		case domain.VenueTertiary:
			binance, err := binanceclient.New(binanceclient.Config{
				APIKey:     cfg.BinanceAPIKey,
				SecretKey:  cfg.BinanceSecretKey,
				UseTestnet: cfg.IsTestnet,
				Logger:     appLogger,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, binance)
		}
	}
	return adapters, nil
}

func policyFromConfig(cfg *config.Config) (*policy.Engine, error) {
	return policy.New(policy.Settings{
		ExtendedHoursEnabled: cfg.ExtendedHoursEnabled,
		OvernightEnabled:     cfg.OvernightEnabled,
		MinInterval:          cfg.MinActionInterval,
		LimitBufferPct:       cfg.LimitBufferPct,
		OvernightBufferPct:   cfg.OvernightBufferPct,
		SharesPerTrade:       cfg.SharesPerTrade,
	})
}
