package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.For(log.ComponentWorker).ErrorContext(context.Background(), "Ledger worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	// The worker reads the store directly and does not publish events.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	res, err := cli.OpenBackend(ctx, &storeCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(context.Background(), "Backend cleanup failed", log.FieldError, err)
		}
	}()

	mirror, err := cli.OpenMirror(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer client.Close()

	export := worker.NewExportWorker(res.Store, mirror)
	logger.InfoContext(ctx, "Starting ledger worker",
		log.FieldOperation, log.OpStartup,
		"queue", cfg.AMQPQueue,
		"sheets", cfg.SheetsEnabled())

	if err := client.ConsumeLedgerEvents(ctx, export.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume ledger events: %w", err)
	}
	logger.InfoContext(context.Background(), "Worker stopped gracefully")
	return nil
}
