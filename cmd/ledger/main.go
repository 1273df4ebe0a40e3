package main

import (
	"context"
	"fmt"
	"os"

	"ledger/internal/cli"
	"ledger/internal/config"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	if err := run(); err != nil {
		log.For(log.ComponentApp).ErrorContext(context.Background(), "Ledger server failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateServer)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	res, err := cli.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(context.Background(), "Backend cleanup failed", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:    services.NewTransactionService(res.Store, res.Publisher),
		Accounts:  services.NewAccountService(res.Store),
		Summaries: services.NewSummaryService(res.Store),
		Verifier:  services.NewVerifyService(res.Store),
		Store:     res.Store,
	}, apphttp.Options{
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	logger.InfoContext(ctx, "Starting ledger server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Publisher != nil)

	if err := cli.ServeUntilDone(ctx, srv, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("serve on port %s: %w", cfg.Port, err)
	}
	logger.InfoContext(ctx, "Server stopped gracefully")
	return nil
}
