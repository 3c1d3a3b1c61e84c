// Package config loads process configuration from config.yaml with
// environment variable overrides. Secrets come from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// ErrLimits marks a pipeline-limit setting that failed validation, so the
// caller can exit with the limit-breach code rather than the generic
// config one.
var ErrLimits = errors.New("invalid limits configuration")

// Config holds all configuration for insight-engine.
// Environment variables always override YAML values; fields tagged
// yaml:"-" are secrets and never read from the file.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // set at load time from build info

	// Engine store (conversations, query history)
	Store StoreConfig `yaml:"store"`

	// Warehouse the generated SQL runs against
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Redis-backed generated-SQL cache (optional)
	Redis RedisConfig `yaml:"redis"`

	// Language model and embedding providers
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline limits
	Limits LimitsConfig `yaml:"limits"`
}

// StoreConfig holds the engine's own PostgreSQL store.
type StoreConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insight"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"insight_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"./migrations"`
}

// ConnectionString returns a PostgreSQL connection string for the store.
func (c *StoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// WarehouseConfig holds the analytics warehouse connection. Driver picks the
// adapter: "postgres" or "mssql".
type WarehouseConfig struct {
	Driver   string `yaml:"driver" env:"WAREHOUSE_DRIVER" env-default:"postgres"`
	Host     string `yaml:"host" env:"WAREHOUSE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"WAREHOUSE_PORT" env-default:"5432"`
	Database string `yaml:"database" env:"WAREHOUSE_DATABASE" env-default:"sales"`
	User     string `yaml:"user" env:"WAREHOUSE_USER" env-default:"insight_reader"`
	Password string `yaml:"-" env:"WAREHOUSE_PASSWORD"` // secret
	SSLMode  string `yaml:"ssl_mode" env:"WAREHOUSE_SSLMODE" env-default:"disable"`
	// Project is the logical project prefix used in fully-qualified
	// identifiers; empty for plain host databases.
	Project string `yaml:"project" env:"WAREHOUSE_PROJECT" env-default:""`
	// Dataset is the default dataset (schema) queried.
	Dataset string `yaml:"dataset" env:"WAREHOUSE_DATASET" env-default:"public"`
}

// RedisConfig holds the optional Redis cache. Empty host disables it.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // secret
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LLMConfig holds the SQL-generation model. Provider is "openai" (any
// OpenAI-compatible endpoint) or "anthropic".
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // secret
}

// EmbeddingConfig holds the embedding provider. With provider "hash" (or an
// empty API key) the deterministic fallback is used: degraded retrieval
// quality, but index builds never crash offline.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" env:"EMBEDDING_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey   string `yaml:"-" env:"EMBEDDING_API_KEY"` // secret; falls back to LLM_API_KEY
}

// LimitsConfig holds pipeline-wide limits and defaults.
type LimitsConfig struct {
	MaxTables                int   `yaml:"max_tables" env:"MAX_TABLES" env-default:"5"`
	MaxExamples              int   `yaml:"max_examples" env:"MAX_EXAMPLES" env-default:"4"`
	ConversationContextTurns int   `yaml:"conversation_context_turns" env:"CONVERSATION_CONTEXT_TURNS" env-default:"6"`
	QueryLogCapacity         int   `yaml:"query_log_capacity" env:"QUERY_LOG_CAPACITY" env-default:"1000"`
	ConcurrencyCeiling       int   `yaml:"concurrency_ceiling" env:"CONCURRENCY_CEILING" env-default:"16"`
	RequestBudgetSeconds     int   `yaml:"request_budget_seconds" env:"REQUEST_BUDGET_SECONDS" env-default:"180"`
	ByteScanLimit            int64 `yaml:"byte_scan_limit" env:"BYTE_SCAN_LIMIT" env-default:"10737418240"`
	RowCap                   int   `yaml:"row_cap" env:"ROW_CAP" env-default:"10000"`
	CacheTTLMinutes          int   `yaml:"cache_ttl_minutes" env:"CACHE_TTL_MINUTES" env-default:"15"`
}

// Load reads configuration from config.yaml with environment overrides.
// A missing config.yaml is fine; the defaults and environment carry it.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Warehouse.Driver {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported warehouse driver %q", c.Warehouse.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	if c.Limits.MaxTables <= 0 || c.Limits.MaxExamples < 0 {
		return fmt.Errorf("%w: limits.max_tables must be positive", ErrLimits)
	}
	if c.Limits.ConcurrencyCeiling <= 0 {
		return fmt.Errorf("%w: limits.concurrency_ceiling must be positive", ErrLimits)
	}
	if c.Limits.ByteScanLimit <= 0 {
		return fmt.Errorf("%w: limits.byte_scan_limit must be positive", ErrLimits)
	}
	return nil
}

// EmbeddingAPIKey returns the embedding key, falling back to the LLM key.
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	return c.LLM.APIKey
}
