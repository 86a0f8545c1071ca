// Package config loads application configuration with multi-source
// priority: environment variables override the config file, which
// overrides defaults. PostgreSQL settings can alternatively come from
// a single DATABASE_URL, the form most cloud platforms inject.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loomhq/loom/internal/store"
)

var (
	// ErrMissingSourceToken indicates the content source token is not set.
	ErrMissingSourceToken = errors.New("missing source token")

	// ErrNoDatabases indicates no source databases are configured.
	ErrNoDatabases = errors.New("no source databases configured")

	// ErrInvalidTable indicates a database maps to an unknown table.
	ErrInvalidTable = errors.New("invalid target table")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresSSLMode indicates an unsupported SSL mode.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingProviderKey indicates no model provider has credentials.
	ErrMissingProviderKey = errors.New("missing provider API key")

	// ErrInvalidStrategy indicates an unknown router strategy.
	ErrInvalidStrategy = errors.New("invalid router strategy")
)

// Database binds one source database to a target table.
type Database struct {
	ID      string            `mapstructure:"id" json:"id"`
	Name    string            `mapstructure:"name" json:"name"`
	Table   string            `mapstructure:"table" json:"table"`
	Mapping map[string]string `mapstructure:"mapping" json:"mapping"`
}

// Provider configures one OpenAI-compatible model provider.
type Provider struct {
	Name    string `mapstructure:"name" json:"name"`
	APIKey  string `mapstructure:"api_key" json:"-"` // SENSITIVE
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// Config stores application configuration.
type Config struct {
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Content source
	SourceToken string     `mapstructure:"source_token" json:"-"` // SENSITIVE
	Databases   []Database `mapstructure:"databases" json:"databases"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	ObjectStoreRoot string `mapstructure:"object_store_root" json:"object_store_root"`

	// Model providers
	GeminiAPIKey   string     `mapstructure:"gemini_api_key" json:"-"` // SENSITIVE
	Providers      []Provider `mapstructure:"providers" json:"providers"`
	RouterStrategy string     `mapstructure:"router_strategy" json:"router_strategy"`

	// Cache and sync behavior
	CacheCapacity int           `mapstructure:"cache_capacity" json:"cache_capacity"`
	SyncInterval  time.Duration `mapstructure:"sync_interval" json:"sync_interval"`

	// Observability. An empty telemetry endpoint leaves tracing off.
	TelemetryEndpoint string `mapstructure:"telemetry_endpoint" json:"telemetry_endpoint"`
	Environment       string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from defaults, an optional loom.yaml in the
// working directory or ~/.loom, and LOOM_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("loom")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.loom")

	setDefaults(v)

	v.SetEnvPrefix("LOOM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "loom")
	v.SetDefault("postgres_db_name", "loom")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("object_store_root", "./objects")
	v.SetDefault("router_strategy", "quality")
	v.SetDefault("cache_capacity", 1000)
	v.SetDefault("sync_interval", 15*time.Minute)
	v.SetDefault("environment", "dev")
}

var validSSLModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

var validStrategies = map[string]bool{
	"speed": true, "cost": true, "quality": true,
}

// Validate fails fast on configuration that cannot possibly work.
func (c *Config) Validate() error {
	if c.SourceToken == "" {
		return ErrMissingSourceToken
	}
	if len(c.Databases) == 0 {
		return ErrNoDatabases
	}
	for _, db := range c.Databases {
		if !store.Table(db.Table).Valid() {
			return fmt.Errorf("%w: %q (database %s)", ErrInvalidTable, db.Table, db.ID)
		}
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	if c.GeminiAPIKey == "" && len(c.Providers) == 0 {
		return ErrMissingProviderKey
	}
	if !validStrategies[c.RouterStrategy] {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.RouterStrategy)
	}
	return nil
}
