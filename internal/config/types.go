// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"slices"
	"time"

	"github.com/tejzpr/kioku/internal/ratelimit"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Providers ProvidersConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Search    SearchConfig    `mapstructure:"search"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Debug exposes internal error detail in responses
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"` // "debug", "info", "warn" or "error"
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Type         string `mapstructure:"type"` // "sqlite" or "postgres"
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// StoreConfig selects the candidate store
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "database" or "pgvector"
	// PGVectorDSN defaults to database.postgres_dsn
	PGVectorDSN string `mapstructure:"pgvector_dsn"`
}

// ProvidersConfig selects and configures the summarizer and embedder
type ProvidersConfig struct {
	Summarizer       string  `mapstructure:"summarizer"` // "claude", "openai" or "mock"
	Embedder         string  `mapstructure:"embedder"`   // "openai" or "mock"
	SummarizerModel  string  `mapstructure:"summarizer_model"`
	EmbeddingModel   string  `mapstructure:"embedding_model"`
	Dimensions       int     `mapstructure:"dimensions"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	AnthropicAPIKey  string  `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string  `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey     string  `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string  `mapstructure:"openai_base_url"`
	MaxRetries       int     `mapstructure:"max_retries"`
	RequestsPerSec   float64 `mapstructure:"requests_per_second"`
	Burst            int     `mapstructure:"burst"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
}

// Timeout is the per-call provider deadline
func (p ProvidersConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RateLimitConfig configures request admission
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// PoliciesFile is an optional YAML file loaded over the built-in policies
	PoliciesFile           string                      `mapstructure:"policies_file"`
	Default                *ratelimit.Policy           `mapstructure:"default"`
	Endpoints              map[string]ratelimit.Policy `mapstructure:"endpoints"`
	CleanupIntervalSeconds int                         `mapstructure:"cleanup_interval_seconds"`
}

// AuthConfig holds API key authentication settings
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	MasterKey string   `mapstructure:"master_key"`
	Keys      []string `mapstructure:"keys"`
	KeysFile  string   `mapstructure:"keys_file"`
}

// SearchConfig tunes candidate over-fetching
type SearchConfig struct {
	OverfetchFactor int `mapstructure:"overfetch_factor"`
	ListOverfetch   int `mapstructure:"list_overfetch"`
	MaxCandidates   int `mapstructure:"max_candidates"`
}

// BatchConfig bounds batch fan-out
type BatchConfig struct {
	SaveConcurrency    int `mapstructure:"save_concurrency"`
	SearchConcurrency  int `mapstructure:"search_concurrency"`
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds"`
}

// SchedulerConfig configures periodic maintenance
type SchedulerConfig struct {
	// SweepIntervalMinutes runs the rate limiter sweep; zero disables it
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

// MCPConfig configures the stdio tool server
type MCPConfig struct {
	// User labels saved memories and scopes reads
	User string `mapstructure:"user"`
}

// Valid option values
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	StoreDatabase = "database"
	StorePGVector = "pgvector"

	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// ValidSummarizers returns all valid summarizer values
func ValidSummarizers() []string {
	return []string{ProviderClaude, ProviderOpenAI, ProviderMock}
}

// ValidEmbedders returns all valid embedder values
func ValidEmbedders() []string {
	return []string{ProviderOpenAI, ProviderMock}
}

func isValidType(aType string, validTypes []string) bool {
	return slices.Contains(validTypes, aType)
}
