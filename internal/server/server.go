// Package server exposes the journal over a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-journal/internal/broker"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Broker is the broker session surface served under /api/brokers/kite.
type Broker interface {
	LoginURL() (string, error)
	ExchangeToken(ctx context.Context, input string) (*broker.Profile, error)
	Profile(ctx context.Context) (*broker.Profile, error)
}

// MasterRefresher reloads the contract master cache.
type MasterRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	ListenAddr     string
	CORSOrigins    []string
	RequestTimeout time.Duration
	Log            zerolog.Logger
	Journal        *journal.Service
	Broker         Broker
	Master         MasterRefresher
	DB             Pinger
	Metrics        *metrics.Metrics
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	journal *journal.Service
	broker  Broker
	master  MasterRefresher
	db      Pinger
	metrics *metrics.Metrics
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		journal: cfg.Journal,
		broker:  cfg.Broker,
		master:  cfg.Master,
		db:      cfg.DB,
		metrics: cfg.Metrics,
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.setupMiddleware(cfg.CORSOrigins, timeout)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(origins []string, timeout time.Duration) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(timeout))

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/trades", func(r chi.Router) {
			r.Get("/", s.handleListTrades)
			r.Post("/", s.handleCreateTrade)
			r.Get("/live", s.handleLivePrices)
			r.Route("/{tradeID}", func(r chi.Router) {
				r.Get("/", s.handleGetTrade)
				r.Put("/", s.handleUpdateTrade)
				r.Patch("/", s.handleUpdateTrade)
				r.Delete("/", s.handleDeleteTrade)
			})
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Post("/", s.handleCreateSnapshot)
			r.Route("/{snapshotID}", func(r chi.Router) {
				r.Get("/", s.handleGetSnapshot)
				r.Put("/", s.handleUpdateSnapshot)
				r.Patch("/", s.handleUpdateSnapshot)
				r.Delete("/", s.handleDeleteSnapshot)
			})
		})

		r.Get("/analytics/summary", s.handleAnalytics)

		r.Route("/brokers/kite", func(r chi.Router) {
			r.Get("/auth-url", s.handleAuthURL)
			r.Post("/token", s.handleExchangeToken)
			r.Get("/profile", s.handleProfile)
			r.Post("/master", s.handleRefreshMaster)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// requestIDMiddleware reuses the caller's request id or issues a new one and
// attaches a tagged logger to the request context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logging.WithLogger(r.Context(), s.log)
		ctx = logging.WithRequestID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", logging.RequestID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":            "ok",
		"broker_configured": s.journal.BrokerConfigured(),
	}
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}
