// Package cli provides the start-up steps shared by cmd/ledger,
// cmd/ledger-worker and cmd/ledgerctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads the configuration and runs validate on it. A nil
// validate runs the shared checks only.
func LoadConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if validate == nil {
		validate = (*config.Config).Validate
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger installs the process logger described by cfg.
func SetupLogger(cfg *config.Config) *log.Logger {
	return log.Setup(cfg.Env, cfg.LogLevel)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// OpenBackend opens the store (and the event publisher, when configured)
// selected by cfg.
func OpenBackend(ctx context.Context, cfg *config.Config) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory().CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", bcfg.Type, err)
	}
	return res, nil
}

// OpenMirror returns the export target selected by cfg: the Google sheet
// when one is configured, an in-memory mirror otherwise.
func OpenMirror(ctx context.Context, cfg *config.Config) (sheets.TransactionMirror, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory().CreateMirror(ctx, bcfg)
}

// Server is the part of http.Server that ServeUntilDone drives.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// ServeUntilDone runs srv until ctx is cancelled or the listener fails,
// then shuts it down, giving in-flight requests up to timeout.
func ServeUntilDone(ctx context.Context, srv Server, timeout time.Duration) error {
	logger := log.For(log.ComponentApp)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(gctx, "Shutting down", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
