// Package api is the HTTP boundary: it maps requests onto the
// registry, orchestrator and monitor, and typed errors onto status
// codes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rizaleow/ovpn-manager/internal/db"
	"github.com/rizaleow/ovpn-manager/internal/monitor"
	"github.com/rizaleow/ovpn-manager/internal/orchestrator"
	"github.com/rizaleow/ovpn-manager/pkg/api"
	applogger "github.com/rizaleow/ovpn-manager/pkg/logger"
)

// InstanceRegistry is the registry surface the server depends on.
type InstanceRegistry interface {
	Create(ctx context.Context, name, displayName string) (*db.Instance, error)
	List(ctx context.Context) ([]db.Instance, error)
	Get(ctx context.Context, name string) (*db.Instance, error)
	Delete(ctx context.Context, name string) ([]string, error)
}

// Provisioner is the orchestrator surface the server depends on.
type Provisioner interface {
	Setup(ctx context.Context, name string, params orchestrator.SetupParams) error
	State(ctx context.Context, name string) (*db.Instance, *db.ServerConfig, *db.ProvisioningState, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	IssueClient(ctx context.Context, instance string, params orchestrator.IssueClientParams) (*db.ClientCredential, error)
	RevokeClient(ctx context.Context, instance, client string) (*orchestrator.RevokeResult, error)
	RenewClient(ctx context.Context, instance, client string) (*db.ClientCredential, error)
	ListClients(ctx context.Context, instance string) ([]db.ClientCredential, error)
	ClientProfile(ctx context.Context, instance, client string) (string, error)
}

// ConnectionReader is the monitor surface the server depends on.
type ConnectionReader interface {
	ActiveConnections(ctx context.Context, instance string) ([]monitor.Connection, error)
	History(ctx context.Context, instance string, page, limit int) (*monitor.HistoryPage, error)
	Bandwidth(ctx context.Context, instance string) ([]db.BandwidthStat, error)
}

// Server is the HTTP API server with lifecycle management.
type Server struct {
	server       *http.Server
	registry     InstanceRegistry
	orchestrator Provisioner
	monitor      ConnectionReader
	gatherer     prometheus.Gatherer
	logger       *applogger.Logger
	version      string
}

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Address string
	Version string
}

// NewServer creates an API server instance. The gatherer may be nil
// when no metrics endpoint is wanted.
func NewServer(config ServerConfig, reg InstanceRegistry, orch Provisioner,
	mon ConnectionReader, gatherer prometheus.Gatherer, logger *applogger.Logger) *Server {
	return &Server{
		registry:     reg,
		orchestrator: orch,
		monitor:      mon,
		gatherer:     gatherer,
		logger:       logger.WithComponent("api"),
		version:      config.Version,
		server: &http.Server{
			Addr:         config.Address,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server and begins serving requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	s.server.Handler = s.registerRoutes(mux)

	s.logger.InfoContext(ctx, "starting API server", "address", s.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("api server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.InfoContext(ctx, "API server started", "address", s.server.Addr)
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}

// Handler builds the routed handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.registerRoutes(http.NewServeMux())
}

func (s *Server) registerRoutes(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("GET /health", s.healthHandler())

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/v1/instances", s.createInstanceHandler())
	mux.HandleFunc("GET /api/v1/instances", s.listInstancesHandler())
	mux.HandleFunc("GET /api/v1/instances/{name}", s.getInstanceHandler())
	mux.HandleFunc("DELETE /api/v1/instances/{name}", s.deleteInstanceHandler())

	mux.HandleFunc("POST /api/v1/instances/{name}/setup", s.setupHandler())
	mux.HandleFunc("POST /api/v1/instances/{name}/start", s.serviceHandler(s.orchestrator.Start, "started"))
	mux.HandleFunc("POST /api/v1/instances/{name}/stop", s.serviceHandler(s.orchestrator.Stop, "stopped"))
	mux.HandleFunc("POST /api/v1/instances/{name}/restart", s.serviceHandler(s.orchestrator.Restart, "restarted"))

	mux.HandleFunc("POST /api/v1/instances/{name}/clients", s.issueClientHandler())
	mux.HandleFunc("GET /api/v1/instances/{name}/clients", s.listClientsHandler())
	mux.HandleFunc("DELETE /api/v1/instances/{name}/clients/{client}", s.revokeClientHandler())
	mux.HandleFunc("POST /api/v1/instances/{name}/clients/{client}/renew", s.renewClientHandler())
	mux.HandleFunc("GET /api/v1/instances/{name}/clients/{client}/profile", s.clientProfileHandler())

	mux.HandleFunc("GET /api/v1/instances/{name}/connections", s.connectionsHandler())
	mux.HandleFunc("GET /api/v1/instances/{name}/connections/history", s.historyHandler())
	mux.HandleFunc("GET /api/v1/instances/{name}/bandwidth", s.bandwidthHandler())

	return Chain(
		Recovery(),
		RequestID(s.logger),
		Logging(),
	)(mux)
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := api.HealthResponse{
			Status:  "healthy",
			Version: s.version,
		}
		if err := WriteSuccess(w, response); err != nil {
			s.logger.ErrorCtx(r.Context(), "failed to encode health response", err)
		}
	}
}
