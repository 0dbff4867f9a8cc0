package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RISK_INITIAL_MARGIN", "1.2")
	t.Setenv("RISK_MAINTENANCE_MARGIN", "1.0")
	t.Setenv("RISK_CRITICAL_MARGIN", "0.9")
	t.Setenv("RISK_MAX_PRICE_AGE", "5m")
	t.Setenv("RATE_BASE", "0.02")
	t.Setenv("RATE_SLOPE1", "0.1")
	t.Setenv("RATE_SLOPE2", "1.0")
	t.Setenv("RATE_KINK", "0.8")
	t.Setenv("POOL_MIN_PROVIDER_DEPOSIT", "100")
	t.Setenv("RISK_LOOP_INTERVAL", "30s")
	t.Setenv("RISK_PRICE_FEED_PATH", "/tmp/prices.json")
	t.Setenv("RISK_SEED_PATH", "/tmp/seed.json")
	t.Setenv("WEB_PORT", "8080")
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)

	require.NoError(t, LoadConfig())

	assert.Equal(t, 5*time.Minute, MaxPriceAge)
	assert.Equal(t, 30*time.Second, LoopInterval)
	assert.True(t, Thresholds.Maintenance.String() == "1.000000000000000000")
	assert.True(t, DefaultRateCurve.Kink.String() == "0.800000000000000000")
	assert.Equal(t, "8080", WebPort)
}

func TestLoadConfigMissingVariable(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RISK_CRITICAL_MARGIN", "")

	// An unset and an empty required variable are both rejected; empty cannot
	// parse as a decimal.
	require.Error(t, LoadConfig())
}

func TestLoadConfigRejectsInvertedThresholds(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RISK_MAINTENANCE_MARGIN", "0.5")

	require.Error(t, LoadConfig())
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RISK_MAX_PRICE_AGE", "five minutes")

	require.Error(t, LoadConfig())
}
