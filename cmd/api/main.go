// Package main is the entry point for the ScribePay API server.
//
// It loads configuration, connects the Postgres pool, wires the gateway and
// identity clients, and starts the HTTP server with the core chassis
// (middleware, routing, health checks).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scribepay/internal/api/handlers"
	"scribepay/internal/billing"
	"scribepay/internal/config"
	"scribepay/internal/core"
	"scribepay/internal/db"
	"scribepay/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("scribepay API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
		"gateway_sandbox", cfg.Gateway.Sandbox,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Outbound clients. The identity client sits on the hot path of every
	// authenticated request, so it gets the tighter timeout.
	payfastClient := external.NewPayfastClient(
		&http.Client{Timeout: cfg.Gateway.CancelTimeout},
		external.PayfastClientConfig{
			MerchantID: cfg.Gateway.MerchantID,
			Passphrase: cfg.Gateway.Passphrase,
			Sandbox:    cfg.Gateway.Sandbox,
			BaseURL:    cfg.Gateway.APIBaseURL,
			Logger:     logger,
		},
	)
	identityClient := external.NewIdentityClient(
		&http.Client{Timeout: cfg.Identity.Timeout},
		external.IdentityClientConfig{
			BaseURL: cfg.Identity.BaseURL,
			Logger:  logger,
		},
	)
	srv.Authenticator = identityClient

	// Repositories and the notification state machine.
	subRepo := db.NewSubscriptionRepository(pool, logger)
	purchaseRepo := db.NewPurchaseRepository(pool, logger)
	reconciler := billing.NewReconciler(subRepo, purchaseRepo, logger)

	webhookHandler := handlers.NewPayfastWebhookHandler(
		reconciler,
		cfg.Gateway.MerchantID,
		cfg.Gateway.Passphrase,
		logger,
	)
	cancellationHandler := handlers.NewCancellationHandler(
		subRepo,
		payfastClient,
		srv.Validator,
		logger,
	)

	// The webhook group is public; the cancellation group opts into bearer
	// auth against the identity service.
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		webhookHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireAuth)
				cancellationHandler.RegisterRoutes(r)
			})
		},
	)

	srv.HealthProbes = append(srv.HealthProbes, &databaseProbe{pool: pool})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// databaseProbe reports Postgres connectivity for the health endpoint.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func (p *databaseProbe) Name() string { return "database" }

func (p *databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
