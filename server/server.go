package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/sampleops/auth"
	"github.com/jonwraymond/sampleops/cache"
	"github.com/jonwraymond/sampleops/generate"
	"github.com/jonwraymond/sampleops/health"
	"github.com/jonwraymond/sampleops/observe"
)

// Defaults.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
)

// RequestIDHeader carries the request ID. Incoming values are kept, missing
// ones are generated.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// Config configures a Server.
type Config struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration

	// Generator serves /v1/generate. Required.
	Generator *generate.Generator

	// Cache backs the cache admin routes. Nil leaves them unregistered.
	Cache cache.Cache

	// Health backs the health routes.
	// Default: an empty aggregator
	Health *health.Aggregator

	// Authenticator protects /v1 routes. Nil disables authentication.
	Authenticator auth.Authenticator

	// AdminRole is required for the cache routes when authentication is
	// enabled. Empty admits every authenticated caller.
	AdminRole string

	// Temperature is used when a prompt request omits it. Template
	// requests use the template's temperature.
	Temperature float64

	// Metrics serves /metrics.
	// Default: promhttp.Handler()
	Metrics http.Handler

	// MaxBodyBytes bounds request bodies.
	// Default: 1 MiB
	MaxBodyBytes int64

	Logger observe.Logger
}

// Server is the HTTP surface of sampleops.
type Server struct {
	cfg     Config
	logger  observe.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server with its routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Generator == nil {
		return nil, ErrNilGenerator
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Health == nil {
		cfg.Health = health.NewAggregator()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger, mux: http.NewServeMux()}
	s.routes()
	s.handler = withRequestID(s.mux)
	return s, nil
}

func (s *Server) routes() {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/generate", s.handleGenerate)
	api.HandleFunc("GET /v1/templates", s.handleTemplates)
	if s.cfg.Cache != nil {
		api.Handle("GET /v1/cache/stats", s.admin(s.handleCacheStats))
		api.Handle("DELETE /v1/cache", s.admin(s.handleCacheClear))
		api.Handle("POST /v1/cache/cleanup", s.admin(s.handleCacheCleanup))
	}

	var v1 http.Handler = api
	if s.cfg.Authenticator != nil {
		v1 = auth.Middleware(s.cfg.Authenticator, s.logger)(api)
	}
	s.mux.Handle("/v1/", v1)

	health.RegisterHandlers(s.mux, s.cfg.Health)
	s.mux.Handle("GET /metrics", s.cfg.Metrics)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	if s.cfg.Authenticator == nil || s.cfg.AdminRole == "" {
		return h
	}
	return auth.RequireRole(s.cfg.AdminRole)(h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored by the server.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "server listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info(ctx, "server shutting down")
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
