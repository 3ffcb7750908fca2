// Package controller contains the HTTP control API of the daemon.
package controller

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"worktrack/internal/controller/handlers"
	"worktrack/internal/controller/middleware"
)

// Options configure the control API.
type Options struct {
	// TokenHash protects the /v1 routes. Empty disables auth.
	TokenHash string
	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit float64
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the control API.
type Server struct {
	httpServer *http.Server
}

// New creates a new control API server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(h, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewHandler builds the routed and instrumented handler tree.
func NewHandler(h *handlers.Handlers, opts Options) http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /v1/status", h.GetStatus)
	api.HandleFunc("POST /v1/start", h.Start)
	api.HandleFunc("POST /v1/stop", h.Stop)
	api.HandleFunc("POST /v1/restart", h.Restart)
	api.HandleFunc("PUT /v1/jobs", h.UpdateJobs)
	api.HandleFunc("POST /v1/cancel", h.Cancel)
	api.HandleFunc("POST /v1/resume", h.Resume)
	api.HandleFunc("POST /v1/manual/mode", h.ManualMode)
	api.HandleFunc("POST /v1/manual/start", h.ManualStart)
	api.HandleFunc("POST /v1/manual/stop", h.ManualStop)
	api.HandleFunc("POST /v1/force-stop", h.ForceStop)
	api.HandleFunc("POST /v1/app/resume", h.AppResume)
	api.HandleFunc("GET /v1/records", h.ListRecords)

	// Device uploads
	api.HandleFunc("POST /v1/location", h.PushLocation)
	api.HandleFunc("PUT /v1/location/permission", h.SetPermission)
	api.HandleFunc("GET /v1/geofence", h.GetGeofence)
	api.HandleFunc("POST /v1/geofence/check", h.CheckGeofence)

	limiter := middleware.NewRateLimiter(opts.RateLimit)
	protected := limiter.Middleware()(middleware.RequireToken(opts.TokenHash)(api))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	mux.Handle("/v1/", protected)

	return otelhttp.NewHandler(middleware.RequestID(mux), "worktrack.api")
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
