package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/metrics"
)

// RunService starts, cancels and reports orchestration runs.
type RunService interface {
	Submit(ctx context.Context, req backfill.Request) (backfill.RunSpec, error)
	Cancel() (string, bool)
	Status(ctx context.Context) (*backfill.StatusSummary, error)
}

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the components the API serves.
type Dependencies struct {
	Runs           RunService
	Datasets       *dataset.Store
	Metrics        *metrics.Manager
	Progress       http.HandlerFunc
	Checks         map[string]HealthChecker
	AllowedOrigins []string
	Log            logger.Logger
}

// Server represents the REST API server
type Server struct {
	server  *http.Server
	handler http.Handler
	log     logger.Logger
}

// NewServer creates a REST API server listening on addr.
func NewServer(addr string, deps Dependencies) *Server {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("rest")

	h := NewHandler(deps.Datasets, deps.Checks)
	runHandler := NewRunHandler(deps.Runs)

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log, deps.Metrics))

	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	if deps.Progress != nil {
		router.HandleFunc("/ws/progress", deps.Progress)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	// Datasets
	api.HandleFunc("/datasets/{name}", h.GetDataset).Methods(http.MethodGet)

	// Runs
	api.HandleFunc("/runs", runHandler.HandleStatus).Methods(http.MethodGet)
	api.HandleFunc("/runs", runHandler.HandleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/runs/active", runHandler.HandleActive).Methods(http.MethodGet)
	api.HandleFunc("/runs/active", runHandler.HandleCancel).Methods(http.MethodDelete)

	// CORS wraps the router so preflight requests never reach route matching.
	handler := CORSMiddleware(deps.AllowedOrigins)(router)

	return &Server{
		handler: handler,
		log:     log,
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "REST API listening", logger.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
