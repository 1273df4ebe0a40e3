package backend

import (
	"context"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/sheets"
	gsheet "ledger/internal/sheets/google"
	mirror "ledger/internal/sheets/memory"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory() Factory {
	return &DefaultFactory{logger: log.For(log.ComponentBackend)}
}

// CreateBackend opens the configured store and, when AMQP is configured,
// the event publisher. An unreachable broker is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	result := &Result{Store: store}
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Publisher = amqpClient
		}
	}

	result.Cleanup = func() error {
		var firstErr error
		if amqpClient != nil {
			firstErr = amqpClient.Close()
		}
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return result, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (storage.Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres backend")
		return repo, nil
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// CreateMirror returns the Google Sheets mirror when a spreadsheet is
// configured and an in-memory mirror otherwise.
func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (sheets.TransactionMirror, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.InfoContext(ctx, "Google Sheets disabled, exporting to memory")
		return mirror.New(), nil
	}

	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}

var _ services.EventPublisher = (*amqp.Client)(nil)
