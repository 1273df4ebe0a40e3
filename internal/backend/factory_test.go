package backend

import (
	"context"
	"path/filepath"
	"testing"

	"ledger/internal/config"
	mirror "ledger/internal/sheets/memory"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "postgres",
		PostgresDSN:         "postgres://localhost/ledger",
		AMQPURL:             "amqp://localhost/",
		GoogleSpreadsheetID: "sheet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != PostgresBackend || cfg.PostgresDSN == "" || cfg.AMQPURL == "" || cfg.GoogleSpreadsheetID != "sheet" {
		t.Errorf("fields not copied: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		if err := tt.config.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()

	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := res.Store.(*memory.Store); !ok {
		t.Errorf("expected memory store, got %T", res.Store)
	}
	if res.Publisher != nil {
		t.Error("publisher should be nil without AMQP")
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}

	res, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	if _, ok := res.Store.(*storage.SQLRepository); !ok {
		t.Errorf("expected SQL repository, got %T", res.Store)
	}
	if err := res.Store.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}

	if _, err := f.CreateBackend(ctx, Config{Type: "nope"}); err == nil {
		t.Error("expected error for invalid backend")
	}
}

func TestCreateMirror(t *testing.T) {
	ctx := context.Background()
	f := NewFactory()

	m, err := f.CreateMirror(ctx, Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateMirror: %v", err)
	}
	if _, ok := m.(*mirror.Mirror); !ok {
		t.Errorf("expected memory mirror, got %T", m)
	}

	if _, err := f.CreateMirror(ctx, Config{GoogleSpreadsheetID: "sheet"}); err == nil {
		t.Error("expected error without service account credentials")
	}
}
