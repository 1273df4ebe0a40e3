package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Backends accepted in DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Env      string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment (local, dev, prod)"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// HTTP Server
	Port               string        `yaml:"port" env:"PORT" env-default:"8080"`
	JWTSecret          string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	// Storage
	DataBackend  string `yaml:"data_backend" env:"DATA_BACKEND" env-default:"sqlite"`
	SQLiteDBPath string `yaml:"sqlite_db_path" env:"SQLITE_DB_PATH" env-default:"./data/ledger.db"`
	PostgresDSN  string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`

	// AMQP; an empty URL disables event publishing.
	AMQPURL      string `yaml:"amqp_url" env:"AMQP_URL"`
	AMQPExchange string `yaml:"amqp_exchange" env:"AMQP_EXCHANGE" env-default:"ledger"`
	AMQPQueue    string `yaml:"amqp_queue" env:"AMQP_QUEUE" env-default:"ledger_export"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id" env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `yaml:"google_sheet_name" env:"GOOGLE_SHEET_NAME" env-default:"Transactions"`
	GoogleServiceAccountJSON string `yaml:"google_service_account_json" env:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file" env:"GOOGLE_SERVICE_ACCOUNT_FILE"`
}

// Load reads the configuration from the environment. When CONFIG_PATH names
// a YAML file it is read first and the environment overrides it.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings shared by every command and returns all
// problems at once.
func (c *Config) Validate() error {
	return joinProblems(c.problems())
}

// ValidateServer additionally checks what the HTTP API needs.
func (c *Config) ValidateServer() error {
	problems := c.problems()

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.ShutdownTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	return joinProblems(problems)
}

// ValidateWorker additionally checks what the export worker needs.
func (c *Config) ValidateWorker() error {
	problems := c.problems()
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the export worker")
	}
	return joinProblems(problems)
}

func (c *Config) problems() []string {
	var problems []string

	switch c.Env {
	case "local", "dev", "prod":
	default:
		problems = append(problems, fmt.Sprintf("invalid env '%s': must be one of [local dev prod]", c.Env))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			problems = append(problems, "POSTGRES_DSN is required when using postgres backend")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided with GOOGLE_SPREADSHEET_ID")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	return problems
}

// SheetsEnabled reports whether a spreadsheet mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// AMQPEnabled reports whether ledger events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func joinProblems(problems []string) error {
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
