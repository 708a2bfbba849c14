// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tandem-dev/tandem/internal/config"
	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

func init() {
	// Clients expect a bare {"error": "..."} envelope, not problem+json.
	huma.NewError = func(status int, msg string, _ ...error) huma.StatusError {
		return &apiError{status: status, Message: msg}
	}
}

// apiError is the wire form of every error response.
type apiError struct {
	status  int
	Message string `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// ContentType forces plain JSON for the error envelope.
func (e *apiError) ContentType(string) string { return "application/json" }

// Server is the loop backend HTTP server.
type Server struct {
	router chi.Router
	api    huma.API
	cfg    config.ServeConfig
	reg    *Registry
	driver *Driver
}

// New creates a server over a fresh registry.
func New(cfg config.ServeConfig) (*Server, error) {
	if cfg.Listen == "" {
		return nil, tanderr.New(tanderr.CodeServerStartFailure, "listen address is required")
	}
	if cfg.TurnInterval <= 0 {
		cfg.TurnInterval = time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("Tandem Loop Server", "0.1.0")
	humaConfig.Info.Description = "Multi-participant AI loop backend"
	api := humachi.New(r, humaConfig)

	reg := NewRegistry()
	srv := &Server{
		router: r,
		api:    api,
		cfg:    cfg,
		reg:    reg,
		driver: NewDriver(reg, cfg.TurnInterval, nil),
	}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthResponse, error) {
		return &healthResponse{Body: healthBody{Status: "ok"}}, nil
	})

	srv.registerRoutes()
	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry exposes the in-memory store, mainly for tests.
func (s *Server) Registry() *Registry {
	return s.reg
}

// Start runs the HTTP server and the turn driver, blocking until the context
// is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return tanderr.Wrapf(err, tanderr.CodeServerStartFailure, "listening on %s", s.cfg.Listen)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	driverCtx, stopDriver := context.WithCancel(ctx)
	defer stopDriver()
	go s.driver.Run(driverCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return tanderr.Wrap(err, tanderr.CodeServerStartFailure, "serving")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return tanderr.Wrap(err, tanderr.CodeServerStartFailure, "shutting down")
	}
	return <-errCh
}

type healthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

type healthResponse struct {
	Body healthBody
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
