// Package core provides the API chassis for the ScribePay service.
// It creates the chi router and enforces cross-cutting concerns -- panic
// recovery, request correlation, logging, authentication, and error
// handling -- before requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scribepay/internal/config"
	"scribepay/internal/types"
)

// Authenticator resolves a bearer credential to the Actor it belongs to.
// The production implementation introspects the token against the identity
// service; tests inject fakes.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RouteRegistrar mounts a handler's routes onto a router group. Handlers
// register themselves via this indirection to avoid an import cycle between
// core and the handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the ScribePay API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// V1RouteRegistrars is populated by the application entry point before
	// MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. The caller is responsible for setting the Authenticator and
// V1RouteRegistrars, then calling MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
