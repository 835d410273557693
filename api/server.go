package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// RouteRegistrar is implemented by every controller that mounts routes on
// the server's router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// ServerConfig contains the HTTP server's transport parameters.
type ServerConfig struct {
	// ListenAddr is the address and port the HTTP server will listen on.
	ListenAddr string

	// Log is the structured logger for server operations.
	Log *zap.Logger

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout time.Duration
}

// Server hosts the node's HTTP API: a chi router with the controllers'
// routes plus liveness and readiness endpoints.
type Server struct {
	cfg     *ServerConfig
	isReady atomic.Bool
	log     *zap.Logger

	srv *http.Server
}

// NewServer builds a server from the given controllers.
func NewServer(cfg *ServerConfig, registrars ...RouteRegistrar) *Server {
	srv := &Server{
		cfg: cfg,
		log: cfg.Log,
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.createRouter(registrars),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	srv.isReady.Store(true)
	return srv
}

// Handler returns the server's root handler. Tests mount it directly.
func (srv *Server) Handler() http.Handler {
	return srv.srv.Handler
}

func (srv *Server) createRouter(registrars []RouteRegistrar) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	mux.Use(srv.logRequests)

	for _, registrar := range registrars {
		registrar.RegisterRoutes(mux)
	}

	mux.Get("/health", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)

	return mux
}

func (srv *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		srv.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// RunInBackground starts the HTTP server in a goroutine.
func (srv *Server) RunInBackground() {
	go func() {
		srv.log.Info("starting HTTP server", zap.String("listenAddress", srv.cfg.ListenAddr))
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// up to the configured grace period.
func (srv *Server) Shutdown() {
	srv.isReady.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("graceful HTTP server shutdown failed", zap.Error(err))
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}
}
