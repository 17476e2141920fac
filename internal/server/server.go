// Package server exposes the pattern store over a local HTTP API.
package server

import (
	"container/list"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadre-oss/patternmem/internal/event"
	"github.com/cadre-oss/patternmem/internal/session"
	"github.com/cadre-oss/patternmem/internal/store"
	"github.com/cadre-oss/patternmem/internal/telemetry"
)

// Server is the patternmem HTTP server.
type Server struct {
	store   *store.Store
	metrics *telemetry.Metrics
	broker  *Broker
	logger  *telemetry.Logger
	version string
	router  chi.Router

	sessionOpts []session.Option
	maxSessions int
	mu          sync.Mutex
	sessions    map[string]*list.Element
	lru         *list.List // most recently used agent at the front
}

// DefaultMaxSessions bounds the per-agent sessions the server keeps.
const DefaultMaxSessions = 256

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithSessionOptions sets the options applied to per-agent sessions created
// for the suggest and choice endpoints.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithMaxSessions bounds the number of cached per-agent sessions. The least
// recently used session is dropped when the bound is reached; its agent gets
// a fresh session on the next request.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// New creates a new server instance.
func New(st *store.Store, eventBus *event.Bus, logger *telemetry.Logger, opts ...Option) *Server {
	s := &Server{
		store:    st,
		broker:   NewBroker(logger),
		logger:   logger,
		version:     "dev",
		maxSessions: DefaultMaxSessions,
		sessions:    make(map[string]*list.Element),
		lru:         list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Register the broker as an event hook so store events reach SSE clients.
	eventBus.Register(s.broker)
	s.router = s.setupRoutes()
	return s
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting patternmem API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api/patterns", func(r chi.Router) {
		r.Post("/", s.handleInsert)
		r.Get("/{id}", s.handleGet)
		r.Delete("/{id}", s.handleRemove)
		r.Put("/{id}/supersede", s.handleSupersede)
	})

	r.Get("/api/query", s.handleQuery)
	r.Get("/api/resolve", s.handleResolve)
	r.Get("/api/stats", s.handleStats)
	r.Post("/api/prune", s.handlePrune)
	r.Post("/api/flush", s.handleFlush)

	// Sessions
	r.Post("/api/suggest", s.handleSuggest)
	r.Post("/api/choices", s.handleRecordChoice)

	// SSE events
	r.Get("/api/events", s.handleSSEEvents)

	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}

// session returns the cached session for agentID, creating it on first use.
func (s *Server) session(agentID string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.sessions[agentID]; ok {
		s.lru.MoveToFront(el)
		return el.Value.(*session.Session)
	}

	for s.lru.Len() >= s.maxSessions {
		oldest := s.lru.Back()
		s.lru.Remove(oldest)
		delete(s.sessions, oldest.Value.(*session.Session).AgentID())
	}

	opts := make([]session.Option, 0, len(s.sessionOpts)+1)
	opts = append(opts, session.WithLogger(s.logger))
	opts = append(opts, s.sessionOpts...)
	sess := session.New(s.store, agentID, opts...)
	s.sessions[agentID] = s.lru.PushFront(sess)
	return sess
}

// sessionCount returns the number of cached sessions.
func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
