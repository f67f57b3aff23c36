package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"quantRouter/internal/adapters/logger"
	"quantRouter/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Instrument
	Symbol         string
	SharesPerTrade int64

	// Session
	ExchangeTimezone string   // IANA name, e.g. America/New_York
	Holidays         []string // Exchange holidays as YYYY-MM-DD

	// Order policy
	ExtendedHoursEnabled bool
	OvernightEnabled     bool
	MinActionInterval    time.Duration // Minimum elapsed time between executed actions
	LimitBufferPct       float64       // Marketable limit offset, e.g. 0.01 for 1%
	OvernightBufferPct   float64       // Wider offset for the overnight session; 0 means 2x LimitBufferPct

	// Venue pool
	VenuePriority []domain.VenueID
	ForceVenue    domain.VenueID // Empty for AUTO mode

	// Gateway venue (PRIMARY)
	GatewayHost     string
	GatewayPort     int
	GatewayClientID int
	GatewayTimeout  time.Duration

	// REST broker venue (SECONDARY)
	BrokerBaseURL   string
	BrokerAPIKey    string
	BrokerSecretKey string

	// Binance venue (TERTIARY)
	BinanceAPIKey    string
	BinanceSecretKey string
	IsTestnet        bool

	// Database
	DBPath string

	// Logging
	LogLevel zapcore.Level
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Instrument
	cfg.Symbol = getEnv("SYMBOL", "TQQQ")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	shares, err := getEnvAsIntRequired("SHARES_PER_TRADE", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SHARES_PER_TRADE: %v", err))
	} else if shares <= 0 {
		errs = append(errs, "SHARES_PER_TRADE must be positive")
	}
	cfg.SharesPerTrade = int64(shares)

	// Session
	cfg.ExchangeTimezone = getEnv("EXCHANGE_TIMEZONE", "America/New_York")
	if _, tzErr := time.LoadLocation(cfg.ExchangeTimezone); tzErr != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_TIMEZONE: %v", tzErr))
	}
	if holidays := getEnv("EXCHANGE_HOLIDAYS", ""); holidays != "" {
		for _, day := range strings.Split(holidays, ",") {
			day = strings.TrimSpace(day)
			if day == "" {
				continue
			}
			if _, dayErr := time.Parse("2006-01-02", day); dayErr != nil {
				errs = append(errs, fmt.Sprintf("invalid EXCHANGE_HOLIDAYS entry '%s': expected YYYY-MM-DD", day))
				continue
			}
			cfg.Holidays = append(cfg.Holidays, day)
		}
	}

	// Order policy
	cfg.ExtendedHoursEnabled = getEnvAsBool("EXTENDED_HOURS", false)
	cfg.OvernightEnabled = getEnvAsBool("OVERNIGHT_TRADING", false)
	if cfg.OvernightEnabled && !cfg.ExtendedHoursEnabled {
		errs = append(errs, "OVERNIGHT_TRADING requires EXTENDED_HOURS")
	}

	minSeconds, err := getEnvAsIntRequired("MIN_SECONDS_BETWEEN_ACTIONS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_SECONDS_BETWEEN_ACTIONS: %v", err))
	} else if minSeconds < 0 {
		errs = append(errs, "MIN_SECONDS_BETWEEN_ACTIONS cannot be negative")
	}
	cfg.MinActionInterval = time.Duration(minSeconds) * time.Second

	cfg.LimitBufferPct, err = getEnvAsFloatRequired("LIMIT_PRICE_BUFFER_PCT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIMIT_PRICE_BUFFER_PCT: %v", err))
	} else if cfg.LimitBufferPct < 0 || cfg.LimitBufferPct >= 1.0 {
		errs = append(errs, "LIMIT_PRICE_BUFFER_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.OvernightBufferPct, err = getEnvAsFloatRequired("OVERNIGHT_BUFFER_PCT", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid OVERNIGHT_BUFFER_PCT: %v", err))
	} else if cfg.OvernightBufferPct < 0 || cfg.OvernightBufferPct >= 1.0 {
		errs = append(errs, "OVERNIGHT_BUFFER_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	// Venue pool
	priorityStr := getEnv("VENUE_PRIORITY", "PRIMARY,SECONDARY,TERTIARY")
	for _, tag := range strings.Split(priorityStr, ",") {
		id, idErr := parseVenueID(strings.TrimSpace(tag))
		if idErr != nil {
			errs = append(errs, fmt.Sprintf("invalid VENUE_PRIORITY: %v", idErr))
			continue
		}
		cfg.VenuePriority = append(cfg.VenuePriority, id)
	}
	if len(cfg.VenuePriority) == 0 {
		errs = append(errs, "VENUE_PRIORITY must name at least one venue")
	}

	if forced := getEnv("FORCE_VENUE", ""); forced != "" {
		id, idErr := parseVenueID(forced)
		if idErr != nil {
			errs = append(errs, fmt.Sprintf("invalid FORCE_VENUE: %v", idErr))
		} else {
			cfg.ForceVenue = id
		}
	}

	// Gateway venue
	cfg.GatewayHost = getEnv("GATEWAY_HOST", "127.0.0.1")
	cfg.GatewayPort, err = getEnvAsIntRequired("GATEWAY_PORT", 7496)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid GATEWAY_PORT: %v", err))
	} else if cfg.GatewayPort <= 0 || cfg.GatewayPort > 65535 {
		errs = append(errs, "GATEWAY_PORT must be a valid TCP port")
	}
	cfg.GatewayClientID = getEnvAsInt("GATEWAY_CLIENT_ID", 1)
	gatewayTimeoutSeconds := getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 10)
	if gatewayTimeoutSeconds <= 0 {
		errs = append(errs, "GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	cfg.GatewayTimeout = time.Duration(gatewayTimeoutSeconds) * time.Second

	// REST broker venue
	cfg.BrokerBaseURL = getEnv("BROKER_BASE_URL", "https://paper-api.alpaca.markets")
	cfg.BrokerAPIKey = getEnv("BROKER_API_KEY", "")
	cfg.BrokerSecretKey = getEnv("BROKER_API_SECRET", "")
	if cfg.venueConfigured(domain.VenueSecondary) && (cfg.BrokerAPIKey == "" || cfg.BrokerSecretKey == "") {
		errs = append(errs, "BROKER_API_KEY and BROKER_API_SECRET must be set when SECONDARY is in the venue pool")
	}

	// Binance venue
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if cfg.venueConfigured(domain.VenueTertiary) && (cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set when TERTIARY is in the venue pool")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/router.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// venueConfigured reports whether the venue participates in selection, either
// through the priority order or a forced pin.
func (c *Config) venueConfigured(id domain.VenueID) bool {
	if c.ForceVenue == id {
		return true
	}
	for _, v := range c.VenuePriority {
		if v == id {
			return true
		}
	}
	return false
}

func parseVenueID(tag string) (domain.VenueID, error) {
	switch domain.VenueID(strings.ToUpper(tag)) {
	case domain.VenuePrimary:
		return domain.VenuePrimary, nil
	case domain.VenueSecondary:
		return domain.VenueSecondary, nil
	case domain.VenueTertiary:
		return domain.VenueTertiary, nil
	default:
		return "", fmt.Errorf("unknown venue tag '%s'", tag)
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
