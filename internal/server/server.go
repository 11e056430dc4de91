// Package server assembles the HTTP surface around the sync engine.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"

	"github.com/iudanet/roomsync/internal/config"
	"github.com/iudanet/roomsync/internal/server/auth"
	"github.com/iudanet/roomsync/internal/server/handlers"
	"github.com/iudanet/roomsync/internal/server/middleware"
	"github.com/iudanet/roomsync/internal/server/storage"
	"github.com/iudanet/roomsync/internal/server/sync"
)

const shutdownTimeout = 10 * time.Second

// Server ties the router, engine and store together
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New assembles the server. The caller owns the store and closes it after
// Run returns.
func New(cfg config.Config, store storage.Store, engine *sync.Engine, version string, logger *slog.Logger) *Server {
	verifier := auth.NewVerifier(cfg.AuthSecret)

	socketHandler := handlers.NewSocketHandler(engine, store, verifier, logger)
	pullHandler := handlers.NewPullHandler(store, logger)
	healthHandler := handlers.NewHealthHandler(logger, version)

	router := mux.NewRouter()
	router.HandleFunc("/sync/{roomID}", socketHandler.Connect).Methods(http.MethodGet)
	router.HandleFunc("/pull", pullHandler.Pull).Methods(http.MethodPost)
	router.HandleFunc("/healthz", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	}).Methods(http.MethodGet)

	var handler http.Handler = router
	if cfg.RateLimit > 0 {
		handler = middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateWindow, logger)(handler)
	}
	handler = middleware.LoggingWithSkip(logger, []string{"/healthz", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then drains connections
func (s *Server) Run(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
