package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/metrics"
	"github.com/marginmesh/riskcore/internal/state"
	"github.com/marginmesh/riskcore/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// RiskQuerier is the read-only engine surface the API serves. Mutating
// operations (bailout triggers, withdrawals) are deliberately not exposed
// over HTTP; they belong to the hosting runtime.
type RiskQuerier interface {
	EvaluateAccount(account types.AccountID) (types.PortfolioSnapshot, types.RiskState, error)
	PoolSummary() (types.PoolSummary, error)
	CurrentRates() map[types.AssetID]sdkmath.LegacyDec
	Halted() bool
}

// WebServer handles HTTP requests for risk data visualization
type WebServer struct {
	router  *mux.Router
	port    string
	querier RiskQuerier
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, querier RiskQuerier) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		querier: querier,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Prometheus metrics
	ws.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/accounts/{id}/evaluation", ws.handleGetEvaluation).Methods("GET")
	api.HandleFunc("/accounts/{id}/bailouts", ws.handleGetBailoutHistory).Methods("GET")
	api.HandleFunc("/pool/summary", ws.handleGetPoolSummary).Methods("GET")
	api.HandleFunc("/rates", ws.handleGetRates).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")

	// Add middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
	ws.router.Use(func(next http.Handler) http.Handler { return metrics.Middleware(next) })
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := state.TestDBConnection() == nil

	overallStatus := "OK"
	statusCode := http.StatusOK
	if ws.querier.Halted() {
		// A halted engine still serves queries; operators need the API to
		// inspect the pool. Flag it loudly anyway.
		overallStatus = "HALTED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "riskcore-portfolio-risk-engine",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"bailouts_halted":  ws.querier.Halted(),
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetEvaluation runs a read-only solvency evaluation for one account.
func (ws *WebServer) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	account := types.AccountID(mux.Vars(r)["id"])

	snapshot, riskState, err := ws.querier.EvaluateAccount(account)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrUnknownAccount):
			ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
		case errors.Is(err, types.ErrStalePrice), errors.Is(err, types.ErrUnknownAsset):
			ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		default:
			webLogger.Error().Err(err).Str("account", string(account)).Msg("Evaluation failed")
			ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to evaluate account")
		}
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"snapshot":   snapshot,
		"risk_state": riskState,
	})
}

// handleGetBailoutHistory returns recent pool operations for one account.
func (ws *WebServer) handleGetBailoutHistory(w http.ResponseWriter, r *http.Request) {
	account := types.AccountID(mux.Vars(r)["id"])
	limit := parseLimit(r, 20)

	events, err := state.RecentBailoutEvents(account, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get bailout history")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve bailout history")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"events": events})
}

// handleGetPoolSummary returns the buffer pool view at current prices.
func (ws *WebServer) handleGetPoolSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.querier.PoolSummary()
	if err != nil {
		if errors.Is(err, types.ErrStalePrice) {
			ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		webLogger.Error().Err(err).Msg("Failed to build pool summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve pool summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetRates returns the current derived rate table.
func (ws *WebServer) handleGetRates(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"rates":     ws.querier.CurrentRates(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleGetCycles returns recent maintenance pass reports.
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)

	reports, err := state.RecentCycleReports(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"cycles": reports})
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response with the given status code
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes a JSON error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	ws.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// corsMiddleware adds CORS headers for dashboard access
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs incoming HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
