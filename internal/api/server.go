// Package api exposes the operator agent over HTTP and WebSocket: a
// management surface for the agent's own CLI and for third-party tooling
// that wants to start/stop/register/inspect a running host without shelling
// out to fabhostd directly.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabhost/agent/infrastructure/logging"
	"github.com/fabhost/agent/infrastructure/metrics"
	"github.com/fabhost/agent/infrastructure/middleware"
	"github.com/fabhost/agent/infrastructure/service"
	"github.com/fabhost/agent/internal/agent"
)

// Config configures the management API's transport and access control.
type Config struct {
	Addr string

	// APIKey, when non-empty, gates every /api/* route behind an exact
	// X-API-Key match. /health is always open.
	APIKey string

	// CORSOrigins is the allowed-origin list; an empty slice defaults to
	// localhost only, per spec.md §4.5.
	CORSOrigins []string

	// MetricsEnabled mounts /metrics behind prometheus's own handler and
	// wraps every request with MetricsMiddleware.
	MetricsEnabled bool

	LogHistoryLimit int

	// RateLimitPerSecond caps sustained requests per caller key (API key or
	// client IP). Zero disables rate limiting.
	RateLimitPerSecond int
	RateLimitBurst     int

	// RequestTimeout bounds how long a single request may run before its
	// context is cancelled. Zero applies middleware.NewTimeoutMiddleware's
	// own default.
	RequestTimeout time.Duration
}

func (c *Config) setDefaults() {
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"localhost", "127.0.0.1"}
	}
	if c.LogHistoryLimit <= 0 {
		c.LogHistoryLimit = 2000
	}
}

// Server is the management API's HTTP+WS surface over one Agent.
type Server struct {
	cfg     Config
	agent   *agent.Agent
	logger  *logging.Logger
	metrics *metrics.Metrics
	started time.Time
	router  *mux.Router
}

// New builds a Server wired to agent. The returned Server is ready to Run.
func New(a *agent.Agent, cfg Config, logger *logging.Logger) *Server {
	cfg.setDefaults()
	if logger == nil {
		logger = logging.NewFromEnv("management-api")
	}
	s := &Server{
		cfg:     cfg,
		agent:   a,
		logger:  logger,
		metrics: metrics.New("fabhostd"),
		started: time.Now(),
	}
	s.router = s.newRouter()
	return s
}

// Handler returns the fully wrapped HTTP handler, for tests or embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run blocks serving the management API until ctx is cancelled or the
// process receives SIGINT/SIGTERM/SIGQUIT. On shutdown, the wrapped Agent
// (and its child inference process, if running) is torn down before the
// HTTP listener is drained.
func (s *Server) Run(ctx context.Context) error {
	return service.Serve(ctx, service.ServeOptions{
		Addr:    s.cfg.Addr,
		Handler: s.router,
		Logger:  s.logger,
		OnShutdown: []func(){
			func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := s.agent.Shutdown(shutdownCtx); err != nil {
					s.logger.Error(shutdownCtx, "agent shutdown failed", err, nil)
				}
			},
		},
	})
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	recovery := middleware.NewRecoveryMiddleware(s.logger)
	cors := middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedHeaders: []string{"Content-Type", "X-API-Key", "X-Trace-ID"},
	})
	bodyLimit := middleware.NewBodyLimitMiddleware(1 << 20)
	security := middleware.NewSecurityHeadersMiddleware(nil)
	validation := middleware.NewValidationMiddleware(middleware.ValidationConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		ContentTypes:   []string{"application/json"},
	})

	// Applied to every route, including /health and /ws/logs: the logging
	// and metrics wrappers pass http.Hijacker through, so none of these
	// interferes with the websocket upgrade.
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(recovery.Handler)
	if s.cfg.MetricsEnabled {
		r.Use(middleware.MetricsMiddleware("fabhostd", s.metrics))
	}
	r.Use(security.Handler)
	r.Use(cors.Handler)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws/logs", s.handleLogStream)

	// /api/* gets the middleware that would otherwise break a websocket
	// upgrade: TimeoutMiddleware wraps the ResponseWriter in a type that
	// doesn't promote http.Hijacker, and rate limiting/API-key auth have
	// no business gating a log stream a caller already holds open.
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(bodyLimit.Handler)
	apiRouter.Use(validation.Handler)
	apiRouter.Use(middleware.NewTimeoutMiddleware(s.cfg.RequestTimeout).Handler)
	if s.cfg.APIKey != "" {
		apiRouter.Use(middleware.APIKeyMiddleware(s.cfg.APIKey))
	}
	if s.cfg.RateLimitPerSecond > 0 {
		limiter := middleware.NewRateLimiter(s.cfg.RateLimitPerSecond, s.cfg.RateLimitBurst, s.logger)
		apiRouter.Use(limiter.Handler)
	}

	apiRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	apiRouter.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	apiRouter.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	apiRouter.HandleFunc("/update-pricing", s.handleUpdatePricing).Methods(http.MethodPost)
	apiRouter.HandleFunc("/withdraw", s.handleWithdraw).Methods(http.MethodPost)
	apiRouter.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	apiRouter.HandleFunc("/earnings", s.handleEarnings).Methods(http.MethodGet)

	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
