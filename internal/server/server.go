// Package server wires the router, middleware, handlers and storage together
// and runs the HTTP server with graceful shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codeexec/internal/auth"
	"github.com/sakif/codeexec/internal/executor"
	"github.com/sakif/codeexec/internal/handler"
	"github.com/sakif/codeexec/internal/metrics"
	"github.com/sakif/codeexec/internal/middleware"
	sqliteRepo "github.com/sakif/codeexec/internal/repository/sqlite"
	"github.com/sakif/codeexec/internal/service"
)

type Config struct {
	Port   int
	DBPath string
	// JWTSecret enables bearer auth on /api when set.
	JWTSecret string
	Limits    service.Limits
}

type Server struct {
	router  *chi.Mux
	config  Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Collector
}

// New opens the run store and builds the routes. The registry's executors
// are served as-is; wrap them with metrics.Instrument beforehand to have
// executions counted.
func New(cfg Config, logger *slog.Logger, registry *executor.Registry, collector *metrics.Collector) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: collector,
	}

	if err := s.setupRoutes(registry); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes(registry *executor.Registry) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)

	var rec middleware.RequestRecorder
	if s.metrics != nil {
		rec = s.metrics
	}
	s.router.Use(middleware.Logger(s.logger, rec))

	s.router.Get("/healthz", s.handleHealth(registry))
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	svc := service.NewExecutionService(registry, s.db, s.config.Limits, s.logger)
	executeHandler := handler.NewExecuteHandler(svc, s.logger)
	runHandler := handler.NewRunHandler(svc, s.logger)

	var requireAuth func(http.Handler) http.Handler
	if s.config.JWTSecret != "" {
		tokens, err := auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return err
		}
		requireAuth = auth.RequireAuth(tokens)
	} else {
		s.logger.Warn("JWT secret not set, API authentication is disabled")
	}

	s.router.Route("/api", func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Get("/executors", executeHandler.HandleListExecutors)
		r.Post("/executors/{name}/execute", executeHandler.HandleExecute)
		r.Post("/executors/{name}/batch", executeHandler.HandleBatch)
		r.Get("/runs", runHandler.HandleList)
		r.Get("/runs/{id}", runHandler.HandleGet)
	})

	return nil
}

type healthResponse struct {
	Status    string   `json:"status"`
	Executors []string `json:"executors"`
}

func (s *Server) handleHealth(registry *executor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Executors: registry.Names()}
		status := http.StatusOK
		if err := s.db.Ping(); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the run store. Start calls it on return.
func (s *Server) Close() error { return s.db.Close() }

// Start serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Executions can legitimately run for a while.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
