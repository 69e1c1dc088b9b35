package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/semaphore"

	"github.com/solhaven/agenthost/tasks"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second

	defaultBlockingLimit = 8
)

// Server turns one registered handler into an HTTP service exposing
// POST /invocations and GET /ping.
type Server struct {
	router *chi.Mux
	tasks  *tasks.Registry
	logger *slog.Logger
	addr   string

	mu      sync.RWMutex
	handler *descriptor

	blockingSem  *semaphore.Weighted
	debugActions bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithDebugActions enables the in-band control protocol on the
// invocation endpoint.
func WithDebugActions(enabled bool) Option {
	return func(s *Server) { s.debugActions = enabled }
}

// WithBlockingLimit bounds how many blocking handlers may run at once.
func WithBlockingLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.blockingSem = semaphore.NewWeighted(n)
		}
	}
}

// New creates and configures a runtime host server.
func New(addr string, reg *tasks.Registry, logger *slog.Logger, opts ...Option) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		tasks:       reg,
		logger:      logger,
		addr:        addr,
		blockingSem: semaphore.NewWeighted(defaultBlockingLimit),
	}

	for _, opt := range opts {
		opt(srv)
	}

	reg.SetCountHook(func(active int) {
		activeTasks.Set(float64(active))
	})

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Post("/invocations", s.handleInvocations)
	s.router.Get("/ping", s.handlePing)
	s.router.Handle("/metrics", metricsHandler())
}

// Router returns the chi router, mainly for tests and embedding.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Tasks returns the registry backing health tracking, so embedders can
// register and complete background work.
func (s *Server) Tasks() *tasks.Registry {
	return s.tasks
}

// SetPingHandler registers a custom status source consulted when no
// forced status is set.
func (s *Server) SetPingHandler(fn func() tasks.Status) {
	s.tasks.SetStatusProvider(fn)
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
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
