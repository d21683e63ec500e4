// Package server hosts the webhook handler behind a chi router, alongside
// health and event stream endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mattjoyce/hookbus/internal/auth"
	"github.com/mattjoyce/hookbus/internal/events"
	"github.com/mattjoyce/hookbus/internal/webhook"
)

// Config holds HTTP server settings.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Tracing         bool
	Tokens          []auth.TokenConfig // authorize GET /events
}

// Server represents the hookbus HTTP server.
type Server struct {
	config    Config
	webhook   *webhook.Handler
	bus       *events.Bus
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// HealthzResponse is the body of GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	WebhookPath   string `json:"webhook_path"`
	Stream        bool   `json:"stream"`
}

// New creates a server. A nil hub disables GET /events; otherwise every
// event and rejection on bus is mirrored into it, and the endpoint requires
// a bearer token from config.Tokens with an events scope.
func New(config Config, hook *webhook.Handler, bus *events.Bus, hub *events.Hub, logger *slog.Logger) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config:    config,
		webhook:   hook,
		bus:       bus,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
	if hub != nil {
		mirror(bus, hub)
	}
	return s
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server starting", "listen", s.config.Listen, "webhook_path", s.webhook.Path(), "stream", s.hub != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the router. The webhook handler runs as middleware so that
// everything it does not intercept falls through to the routes below.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	if s.config.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "hookbus")
		})
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.webhook.Middleware)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	if s.hub != nil {
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.config.Tokens))
			r.With(auth.RequireScopes(auth.ScopeEventsRead, auth.ScopeEventsWrite)).Get("/events", s.handleEvents)
		})
	}
	return r
}

// loggingMiddleware logs HTTP requests (excludes bodies and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		WebhookPath:   s.webhook.Path(),
		Stream:        s.hub != nil,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
