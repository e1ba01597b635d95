// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".kioku/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
	// EnvPrefix prefixes environment overrides, e.g. KIOKU_SERVER_PORT
	EnvPrefix = "KIOKU"
)

// Load reads configuration from ~/.kioku/configs/config.json. A missing
// file yields the defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(homeDir, DefaultConfigDir))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromPath loads configuration from a specific JSON or YAML file
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the provider SDKs' conventional variables work without the prefix
	_ = v.BindEnv("providers.anthropic_api_key", "KIOKU_PROVIDERS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("providers.openai_api_key", "KIOKU_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("auth.master_key", "KIOKU_AUTH_MASTER_KEY", "KIOKU_MASTER_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.log_level", d.Server.LogLevel)

	v.SetDefault("database.type", d.Database.Type)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.pgvector_dsn", "")

	v.SetDefault("providers.summarizer", d.Providers.Summarizer)
	v.SetDefault("providers.embedder", d.Providers.Embedder)
	v.SetDefault("providers.summarizer_model", "")
	v.SetDefault("providers.embedding_model", d.Providers.EmbeddingModel)
	v.SetDefault("providers.dimensions", d.Providers.Dimensions)
	v.SetDefault("providers.max_tokens", d.Providers.MaxTokens)
	v.SetDefault("providers.anthropic_base_url", "")
	v.SetDefault("providers.openai_base_url", "")
	v.SetDefault("providers.max_retries", d.Providers.MaxRetries)
	v.SetDefault("providers.requests_per_second", d.Providers.RequestsPerSec)
	v.SetDefault("providers.burst", d.Providers.Burst)
	v.SetDefault("providers.timeout_seconds", d.Providers.TimeoutSeconds)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.policies_file", "")
	v.SetDefault("rate_limit.cleanup_interval_seconds", d.RateLimit.CleanupIntervalSeconds)

	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.keys_file", "")

	v.SetDefault("search.overfetch_factor", d.Search.OverfetchFactor)
	v.SetDefault("search.list_overfetch", d.Search.ListOverfetch)
	v.SetDefault("search.max_candidates", d.Search.MaxCandidates)

	v.SetDefault("batch.save_concurrency", d.Batch.SaveConcurrency)
	v.SetDefault("batch.search_concurrency", d.Batch.SearchConcurrency)
	v.SetDefault("batch.item_timeout_seconds", d.Batch.ItemTimeoutSeconds)

	v.SetDefault("scheduler.sweep_interval_minutes", d.Scheduler.SweepIntervalMinutes)

	v.SetDefault("mcp.user", d.MCP.User)
}

// Validate re-checks the configuration after programmatic overrides
func (c *Config) Validate() error {
	return validate(c)
}

// validate checks if the configuration is valid and fills derived values
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	switch cfg.Database.Type {
	case DatabaseSQLite:
		if cfg.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required when type is 'sqlite'")
		}
	case DatabasePostgres:
		if cfg.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required when type is 'postgres'")
		}
	default:
		return fmt.Errorf("database.type must be 'sqlite' or 'postgres', got '%s'", cfg.Database.Type)
	}

	switch cfg.Store.Backend {
	case StoreDatabase:
	case StorePGVector:
		if cfg.Store.PGVectorDSN == "" {
			cfg.Store.PGVectorDSN = cfg.Database.PostgresDSN
		}
		if cfg.Store.PGVectorDSN == "" {
			return fmt.Errorf("store.pgvector_dsn or database.postgres_dsn is required when store.backend is 'pgvector'")
		}
	default:
		return fmt.Errorf("store.backend must be 'database' or 'pgvector', got '%s'", cfg.Store.Backend)
	}

	p := &cfg.Providers
	if !isValidType(p.Summarizer, ValidSummarizers()) {
		return fmt.Errorf("providers.summarizer must be one of %v, got '%s'", ValidSummarizers(), p.Summarizer)
	}
	if !isValidType(p.Embedder, ValidEmbedders()) {
		return fmt.Errorf("providers.embedder must be one of %v, got '%s'", ValidEmbedders(), p.Embedder)
	}
	if p.Summarizer == ProviderClaude && p.AnthropicAPIKey == "" {
		return fmt.Errorf("providers.anthropic_api_key (or ANTHROPIC_API_KEY) is required for the claude summarizer")
	}
	if (p.Summarizer == ProviderOpenAI || p.Embedder == ProviderOpenAI) && p.OpenAIAPIKey == "" {
		return fmt.Errorf("providers.openai_api_key (or OPENAI_API_KEY) is required for openai providers")
	}
	if p.Dimensions < 1 {
		return fmt.Errorf("providers.dimensions must be at least 1, got %d", p.Dimensions)
	}
	if p.TimeoutSeconds < 1 {
		return fmt.Errorf("providers.timeout_seconds must be at least 1, got %d", p.TimeoutSeconds)
	}

	if cfg.Batch.SaveConcurrency < 1 || cfg.Batch.SearchConcurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1")
	}
	if cfg.Scheduler.SweepIntervalMinutes < 0 {
		return fmt.Errorf("scheduler.sweep_interval_minutes must not be negative, got %d", cfg.Scheduler.SweepIntervalMinutes)
	}

	if cfg.Auth.Enabled && cfg.Auth.MasterKey == "" && len(cfg.Auth.Keys) == 0 && cfg.Auth.KeysFile == "" {
		return fmt.Errorf("auth.enabled requires auth.master_key, auth.keys or auth.keys_file")
	}

	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be debug, info, warn or error, got '%s'", cfg.Server.LogLevel)
	}
	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	user := os.Getenv("USER")
	if user == "" {
		user = "default"
	}

	return &Config{
		Server: ServerConfig{
			Host:     "localhost",
			Port:     8000,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Type:         DatabaseSQLite,
			SQLitePath:   filepath.Join(homeDir, ".kioku/db/kioku.db"),
			MaxOpenConns: 10,
		},
		Store: StoreConfig{
			Backend: StoreDatabase,
		},
		Providers: ProvidersConfig{
			Summarizer:     ProviderMock,
			Embedder:       ProviderMock,
			EmbeddingModel: "text-embedding-3-small",
			Dimensions:     1536,
			MaxTokens:      1000,
			MaxRetries:     2,
			RequestsPerSec: 10,
			Burst:          5,
			TimeoutSeconds: 30,
		},
		RateLimit: RateLimitConfig{
			Enabled:                true,
			CleanupIntervalSeconds: 300,
		},
		Search: SearchConfig{
			OverfetchFactor: 3,
			ListOverfetch:   10,
			MaxCandidates:   1000,
		},
		Batch: BatchConfig{
			SaveConcurrency:   10,
			SearchConcurrency: 5,
		},
		Scheduler: SchedulerConfig{
			SweepIntervalMinutes: 5,
		},
		MCP: MCPConfig{
			User: user,
		},
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
