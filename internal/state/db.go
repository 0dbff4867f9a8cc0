// ./internal/state/db.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool for the audit trail. The live
// ledger never touches it; everything stored here is history.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return DB.Ping()
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS evaluations (
			evaluation_id BIGSERIAL PRIMARY KEY,
			account VARCHAR(128) NOT NULL,
			collateral DECIMAL(40, 18) NOT NULL,
			discounted_collateral DECIMAL(40, 18) NOT NULL,
			debt DECIMAL(40, 18) NOT NULL,
			net DECIMAL(40, 18) NOT NULL,
			risk_state VARCHAR(32) NOT NULL,
			saturated BOOLEAN NOT NULL DEFAULT FALSE,
			as_of TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_evaluations_account_time ON evaluations(account, as_of DESC);

		CREATE TABLE IF NOT EXISTS bailout_events (
			event_id UUID PRIMARY KEY,
			account VARCHAR(128) NOT NULL,
			kind VARCHAR(16) NOT NULL,
			net_value DECIMAL(40, 18) NOT NULL,
			shares_delta DECIMAL(40, 18) NOT NULL,
			value_per_share_before DECIMAL(40, 18) NOT NULL,
			value_per_share_after DECIMAL(40, 18) NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_bailout_events_account_time ON bailout_events(account, event_timestamp DESC);

		CREATE TABLE IF NOT EXISTS rate_samples (
			sample_id BIGSERIAL PRIMARY KEY,
			asset VARCHAR(64) NOT NULL,
			utilization DECIMAL(40, 18) NOT NULL,
			borrow_rate DECIMAL(40, 18) NOT NULL,
			sampled_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rate_samples_asset_time ON rate_samples(asset, sampled_at DESC);

		CREATE TABLE IF NOT EXISTS cycle_reports (
			cycle_id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			accounts_evaluated INTEGER NOT NULL,
			evaluation_errors INTEGER NOT NULL,
			margin_calls INTEGER NOT NULL,
			bailouts_executed INTEGER NOT NULL,
			halted BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_reports_time ON cycle_reports(started_at DESC);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes all audit tables. Used by the reset script only.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	dropSQL := `
		DROP TABLE IF EXISTS evaluations CASCADE;
		DROP TABLE IF EXISTS bailout_events CASCADE;
		DROP TABLE IF EXISTS rate_samples CASCADE;
		DROP TABLE IF EXISTS cycle_reports CASCADE;
	`
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}
	return nil
}
