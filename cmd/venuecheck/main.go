// venuecheck probes every configured venue and reports which ones will take
// orders right now: connectivity, account buying power, and a current quote
// for the configured symbol. Run it before the session opens or after a
// failover to see what the selector will find.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"quantRouter/config"
	"quantRouter/internal/adapters/binanceclient"
	"quantRouter/internal/adapters/gateway"
	"quantRouter/internal/adapters/logger"
	"quantRouter/internal/adapters/restbroker"
	"quantRouter/internal/domain"
	"quantRouter/internal/ports"
)

const probeTimeout = 10 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Quiet logger: this tool writes its own report to stdout
	appLogger := logger.NewNop()

	adapters, err := buildAdapters(cfg, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize venue adapters: %v", err)
	}

	fmt.Printf("Probing %d venue(s) for %s\n\n", len(adapters), cfg.Symbol)

	available := 0
	for _, adapter := range adapters {
		if probe(adapter, cfg.Symbol) {
			available++
		}
		fmt.Println()
	}

	fmt.Printf("%d/%d venue(s) available\n", available, len(adapters))
	if available == 0 {
		log.Fatal("No venue can take orders right now")
	}
}

func probe(adapter ports.VenueAdapter, symbol string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	id := adapter.Identity()
	caps := adapter.Capabilities()
	fmt.Printf("%-10s extended_hours=%-5v overnight=%-5v\n", id, caps.SupportsExtendedHours, caps.SupportsOvernight)

	if err := adapter.Connect(ctx); err != nil {
		fmt.Printf("  connect:  FAILED (%v)\n", err)
		return false
	}
	defer adapter.Disconnect(ctx)
	fmt.Printf("  connect:  ok\n")

	if info, err := adapter.AccountSnapshot(ctx); err != nil {
		fmt.Printf("  account:  FAILED (%v)\n", err)
	} else {
		fmt.Printf("  account:  buying_power=%.2f portfolio_value=%.2f positions=%d\n",
			info.BuyingPower, info.PortfolioValue, len(info.Positions))
	}

	if q, err := adapter.Quote(ctx, symbol); err != nil {
		fmt.Printf("  quote:    FAILED (%v)\n", err)
	} else {
		fmt.Printf("  quote:    bid=%.2f ask=%.2f spread=%.4f\n", q.Bid, q.Ask, q.Spread())
	}
	return true
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
