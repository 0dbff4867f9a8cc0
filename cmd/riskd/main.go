package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/marginmesh/riskcore/internal/bailout"
	"github.com/marginmesh/riskcore/internal/config"
	"github.com/marginmesh/riskcore/internal/engine"
	"github.com/marginmesh/riskcore/internal/ledger"
	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/oracle"
	"github.com/marginmesh/riskcore/internal/registry"
	"github.com/marginmesh/riskcore/internal/seed"
	"github.com/marginmesh/riskcore/internal/state"
	"github.com/marginmesh/riskcore/internal/web"
)

// main is the entry point for the riskd process.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Portfolio risk engine starting...")

	// Initialize the audit database
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Collaborator Initialization ---
	snap, err := seed.Load(config.SeedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load seed snapshot")
	}

	assetRegistry, err := registry.NewInMemoryRegistry(snap.Assets, snap.Curves, config.DefaultRateCurve)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build asset registry")
	}

	priceSource, err := oracle.NewFileSource(config.PriceFeedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load price feed")
	}

	balanceLedger := ledger.NewInMemory(snap.Balances)
	if err := balanceLedger.CheckConservation(); err != nil {
		log.Fatal().Err(err).Msg("Seed ledger fails conservation check")
	}

	pool, err := bailout.NewPool(balanceLedger, config.Thresholds, config.MinProviderDeposit, config.MaxPriceAge)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build buffer pool")
	}

	// --- 3. Create Engine Instance with Dependency Injection ---
	riskEngine, err := engine.New(engine.Config{
		Registry:    assetRegistry,
		Oracle:      priceSource,
		Ledger:      balanceLedger,
		Pool:        pool,
		Thresholds:  config.Thresholds,
		MaxPriceAge: config.MaxPriceAge,
		AuditTrail:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create risk engine")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, riskEngine)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting risk API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Maintenance Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("interval", config.LoopInterval.String()).Msg("Starting maintenance loop")
	ticker := time.NewTicker(config.LoopInterval)
	defer ticker.Stop()

	runPass := func() {
		if err := priceSource.Reload(); err != nil {
			log.Error().Err(err).Msg("Price feed reload failed; skipping pass")
			return
		}
		report, err := riskEngine.MaintenancePass()
		if err != nil {
			log.Error().Err(err).Msg("Maintenance pass failed")
			return
		}
		if report.Halted {
			log.Error().Str("cycle_id", report.CycleID).Msg("Bailout processing halted; operator intervention required")
		}
	}

	runPass()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutdown signal received; stopping maintenance loop")
			return
		case <-ticker.C:
			runPass()
		}
	}
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
