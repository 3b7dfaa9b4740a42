// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-pnl/internal/adapter"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/service"
	"github.com/wallet-pnl/internal/types"
)

// Service interfaces for dependency injection and testing

// PnLServiceInterface defines the PnL computation used by the handlers
type PnLServiceInterface interface {
	ComputePnL(ctx context.Context, input *service.ComputePnLInput) (*service.PnLResult, error)
}

// IngestStatusReader returns the most recent ingestion run, nil if none
type IngestStatusReader interface {
	LastRun(ctx context.Context) (*types.IngestRunSummary, error)
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	pnlService   PnLServiceInterface
	ingestStatus IngestStatusReader
	checks       map[string]HealthCheck
	upstreams    []*adapter.Provider
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// Dependencies are the optional collaborators reported by /health and
// /ingest/status
type Dependencies struct {
	IngestStatus IngestStatusReader
	Checks       map[string]HealthCheck
	Upstreams    []*adapter.Provider
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, pnlService PnLServiceInterface, deps Dependencies) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		pnlService:   pnlService,
		ingestStatus: deps.IngestStatus,
		checks:       deps.Checks,
		upstreams:    deps.Upstreams,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Order matters: the logger must wrap everything that logs
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/calculate_pnl", s.handleCalculatePnL).Methods(http.MethodPost, http.MethodOptions)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallets/{address}/pnl", s.handleGetWalletPnL).Methods(http.MethodGet)
	api.HandleFunc("/ingest/status", s.handleIngestStatus).Methods(http.MethodGet)
}

// healthResponse is the body of GET /health
type healthResponse struct {
	Status    string                    `json:"status"`
	Service   string                    `json:"service"`
	Checks    map[string]string         `json:"checks,omitempty"`
	Upstreams []*adapter.ProviderHealth `json:"upstreams,omitempty"`
}

// handleHealth reports each dependency check. A failing check makes the
// service unhealthy; an open upstream circuit only degrades it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Service: "wallet-pnl"}
	statusCode := http.StatusOK

	if len(s.checks) > 0 {
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Checks = make(map[string]string, len(names))
		for _, name := range names {
			if err := s.checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				statusCode = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	for _, p := range s.upstreams {
		h := p.GetHealth()
		resp.Upstreams = append(resp.Upstreams, h)
		if !h.IsHealthy && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	respondJSON(w, statusCode, resp)
}

// handleIngestStatus handles GET /api/ingest/status
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	if s.ingestStatus == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Ingest status is not tracked", nil)
		return
	}

	summary, err := s.ingestStatus.LastRun(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if summary == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No ingestion run recorded", nil)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
