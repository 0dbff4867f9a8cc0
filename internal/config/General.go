package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/marginmesh/riskcore/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Thresholds are the protocol margin levels. Governance-configured, so
	// they are injected here rather than hard-coded.
	Thresholds types.Thresholds

	// MaxPriceAge is the oracle staleness cutoff. A quote older than this on
	// an asset with a non-zero balance fails the whole valuation.
	MaxPriceAge time.Duration

	// DefaultRateCurve applies to assets the registry has no dedicated curve for.
	DefaultRateCurve types.RateCurve

	// MinProviderDeposit is the minimum USD value for a first-time buffer
	// pool provider deposit.
	MinProviderDeposit sdkmath.LegacyDec

	// LoopInterval is the cadence of the maintenance pass over all accounts.
	LoopInterval time.Duration

	// PriceFeedPath is the JSON file the oracle file source reloads each tick.
	PriceFeedPath string
	// SeedPath is the JSON file seeding the registry and ledger at startup.
	SeedPath string

	// WebPort is the port for the read-only HTTP API.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	initial, err := getEnvAsDec("RISK_INITIAL_MARGIN")
	if err != nil {
		return err
	}
	maintenance, err := getEnvAsDec("RISK_MAINTENANCE_MARGIN")
	if err != nil {
		return err
	}
	critical, err := getEnvAsDec("RISK_CRITICAL_MARGIN")
	if err != nil {
		return err
	}
	Thresholds = types.Thresholds{Initial: initial, Maintenance: maintenance, Critical: critical}
	if err := Thresholds.Validate(); err != nil {
		return err
	}

	MaxPriceAge, err = getEnvAsDuration("RISK_MAX_PRICE_AGE")
	if err != nil {
		return err
	}

	base, err := getEnvAsDec("RATE_BASE")
	if err != nil {
		return err
	}
	slope1, err := getEnvAsDec("RATE_SLOPE1")
	if err != nil {
		return err
	}
	slope2, err := getEnvAsDec("RATE_SLOPE2")
	if err != nil {
		return err
	}
	kink, err := getEnvAsDec("RATE_KINK")
	if err != nil {
		return err
	}
	DefaultRateCurve = types.RateCurve{BaseRate: base, Slope1: slope1, Slope2: slope2, Kink: kink}
	if err := DefaultRateCurve.Validate(); err != nil {
		return err
	}

	MinProviderDeposit, err = getEnvAsDec("POOL_MIN_PROVIDER_DEPOSIT")
	if err != nil {
		return err
	}

	LoopInterval, err = getEnvAsDuration("RISK_LOOP_INTERVAL")
	if err != nil {
		return err
	}

	PriceFeedPath, err = getEnv("RISK_PRICE_FEED_PATH")
	if err != nil {
		return err
	}

	SeedPath, err = getEnv("RISK_SEED_PATH")
	if err != nil {
		return err
	}

	WebPort, err = getEnv("WEB_PORT")
	if err != nil {
		return err
	}

	log.Debug().
		Str("maintenance_margin", Thresholds.Maintenance.String()).
		Str("critical_margin", Thresholds.Critical.String()).
		Dur("max_price_age", MaxPriceAge).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsDec retrieves an environment variable as a LegacyDec. Returns error if not set or invalid.
func getEnvAsDec(key string) (sdkmath.LegacyDec, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	value, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil {
		return sdkmath.LegacyDec{}, errors.New("environment variable " + key + " must be a valid decimal, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration. Returns error if not set or invalid.
func getEnvAsDuration(key string) (time.Duration, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid duration, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
