package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cachecluster/pkg/cachelog"
	"cachecluster/pkg/cachemanager"
	"cachecluster/pkg/config"
	"cachecluster/pkg/health"
	"cachecluster/pkg/metrics"
)

// Server is the cluster's admin HTTP surface: node health, cluster
// statistics, and the Prometheus scrape endpoint.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger          cachelog.Logger
	cfg             *config.Config
	router          *mux.Router
	httpServer      *http.Server
	manager         *cachemanager.Manager
	monitor         *health.Monitor
	discovery       *health.StaticDiscovery
	metricsRegistry *metrics.Registry
	limiter         *rateLimiter
}

// NewServer wires a Server over an already-constructed manager and health
// monitor. discovery is the same ServiceDiscovery the monitor was built
// with; the server uses it to resolve a node's advertised host/port for
// its health responses.
func NewServer(ctx context.Context, cfg *config.Config, logger cachelog.Logger,
	manager *cachemanager.Manager, monitor *health.Monitor, discovery *health.StaticDiscovery,
	metricsRegistry *metrics.Registry) (*Server, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	router := mux.NewRouter()

	s := &Server{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		cfg:             cfg,
		router:          router,
		manager:         manager,
		monitor:         monitor,
		discovery:       discovery,
		metricsRegistry: metricsRegistry,
		limiter:         newRateLimiter(adminRateLimitRequests, adminRateLimitWindow),
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go s.limiter.cleanupLoop(serverCtx)

	s.registerEndpoints()

	return s, nil
}

// Start runs the HTTP server and the health monitor's cron schedule until
// the process receives SIGINT/SIGTERM or the server's context is
// cancelled (by a POST /health/shutdown call), then shuts both down
// gracefully.
func (s *Server) Start() error {
	if err := s.monitor.Start(s.ctx); err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		s.logger.WithFields(map[string]interface{}{
			"address": s.httpServer.Addr,
			"tls":     s.cfg.Server.TLSEnabled,
		}).Info("starting admin HTTP server")

		var err error
		if s.cfg.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin HTTP server error", err)
			select {
			case <-s.ctx.Done():
			default:
				s.cancel()
			}
		}
	}()

	select {
	case <-s.ctx.Done():
		s.logger.Info("server context canceled")
	case sig := <-sigChan:
		s.logger.WithField("signal", sig.String()).Info("received shutdown signal")
		s.cancel()
	}

	s.logger.Info("shutting down admin server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("admin HTTP server shutdown error", err)
	}

	s.monitor.Stop()

	s.logger.Info("admin server shutdown complete")
	return nil
}

func (s *Server) registerEndpoints() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.authMiddleware)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metricsRegistry.GetRegistry(), promhttp.HandlerOpts{})).Methods("GET")

	s.router.HandleFunc("/health/ping", s.handlePing).Methods("GET")
	s.router.HandleFunc("/health/nodes", s.handleListNodes).Methods("GET")
	s.router.HandleFunc("/health/nodes/{id}", s.handleGetNode).Methods("GET")
	s.router.HandleFunc("/health/nodes/{id}/check", s.handleCheckNode).Methods("POST")
	s.router.HandleFunc("/health/healthy", s.handleHealthyNodes).Methods("GET")
	s.router.HandleFunc("/health/unhealthy", s.handleUnhealthyNodes).Methods("GET")
	s.router.HandleFunc("/health/summary", s.handleHealthSummary).Methods("GET")
	s.router.HandleFunc("/health/shutdown", s.handleShutdown).Methods("POST")

	s.router.HandleFunc("/cluster/stats", s.handleClusterStats).Methods("GET")
}

// writeResponse writes a JSON response.
func (s *Server) writeResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", err)
		}
	}
}

// ErrorResponse is the JSON body written on a handler error.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		s.logger.Error("failed to encode error response", err)
	}
}
