package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/modreg/internal/engine"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Options configures the admin server.
type Options struct {
	Addr string
	// Manifest is the declarative baseline reloaded by POST /v1/modules/sync.
	Manifest       string
	AllowInstall   bool
	AllowUninstall bool
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router   *chi.Mux
	registry engine.Registry
	metrics  *prometheus.Registry
	logger   *slog.Logger
	opts     Options

	// stopping is closed when Run begins shutdown; streaming handlers
	// return on it so Shutdown does not wait for them.
	stopping chan struct{}
}

// NewServer creates and configures a new HTTP server.
func NewServer(opts Options, reg engine.Registry, logger *slog.Logger) *Server {
	srv := &Server{
		router:   chi.NewRouter(),
		registry: reg,
		metrics:  prometheus.NewRegistry(),
		logger:   logger,
		opts:     opts,
		stopping: make(chan struct{}),
	}
	srv.metrics.MustRegister(newModuleCollector(reg, logger))

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", s.metricsHandler())

	s.router.Route("/v1/modules", func(r chi.Router) {
		r.Get("/", s.handleListModules)
		r.Post("/", s.handleInstallModule)
		r.Get("/stats", s.handleGetStats)
		r.Get("/enabled", s.handleListEnabled)
		r.Get("/events", s.handleStreamEvents)
		r.Post("/sync", s.handleSync)
		r.Post("/clear-cache", s.handleClearCache)
		r.Get("/{key}", s.handleGetModule)
		r.Delete("/{key}", s.handleUninstallModule)
		r.Post("/{key}/enable", s.handleEnableModule)
		r.Post("/{key}/disable", s.handleDisableModule)
		r.Patch("/{key}/settings", s.handleUpdateSettings)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.opts.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		close(s.stopping)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
