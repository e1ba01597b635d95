// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tejzpr/kioku/internal/auth"
	"github.com/tejzpr/kioku/internal/config"
	"github.com/tejzpr/kioku/internal/database"
	"github.com/tejzpr/kioku/internal/metrics"
	"github.com/tejzpr/kioku/internal/provider"
	"github.com/tejzpr/kioku/internal/ratelimit"
	"github.com/tejzpr/kioku/internal/recall"
	"github.com/tejzpr/kioku/internal/server"
	"github.com/tejzpr/kioku/internal/service"
	"github.com/tejzpr/kioku/internal/store"
	"github.com/tejzpr/kioku/pkg/scheduler"
)

// app holds everything built from the configuration
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	svc      *service.Service
	store    store.Store
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	sched    *scheduler.Scheduler
}

func (a *app) Close() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store_close_failed", "error", err)
	}
}

// admitter returns the limiter as an interface, nil when rate limiting is off
func (a *app) admitter() server.Admitter {
	if a.limiter == nil {
		return nil
	}
	return a.limiter
}

func runServe(ctx context.Context, f *rootFlags) error {
	ctx, stop := signal.NotifyContext(orBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, f)
	if err != nil {
		return err
	}
	defer a.Close()

	var authn *auth.Authenticator
	if a.cfg.Auth.Enabled {
		authn, err = auth.NewAuthenticator(auth.Config{
			Enabled:   true,
			MasterKey: a.cfg.Auth.MasterKey,
			Keys:      a.cfg.Auth.Keys,
			KeysFile:  a.cfg.Auth.KeysFile,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to load api keys: %w", err)
		}
	}

	h := server.NewHTTPServer(server.HTTPDeps{
		Service:  a.svc,
		Limiter:  a.admitter(),
		Auth:     authn,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Logger:   a.logger,
		Debug:    a.cfg.Server.Debug,
		Settings: debugSettings(a.cfg),
		Version:  Version,
	})
	return h.ListenAndServe(ctx, a.cfg.Server.Addr())
}

func runMCP(ctx context.Context, f *rootFlags, user string) error {
	ctx, stop := signal.NotifyContext(orBackground(ctx), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, f)
	if err != nil {
		return err
	}
	defer a.Close()

	if user == "" {
		user = a.cfg.MCP.User
	}
	return server.NewMCPServer(a.svc, a.admitter(), user, Version, a.logger).ServeStdio()
}

// setup loads configuration and wires the store, providers, limiter and
// metrics
func setup(ctx context.Context, f *rootFlags) (*app, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration_loaded",
		"database", cfg.Database.Type,
		"store", cfg.Store.Backend,
		"summarizer", cfg.Providers.Summarizer,
		"embedder", cfg.Providers.Embedder,
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := cfg.Providers
	popts := provider.Options{
		Summarizer:        p.Summarizer,
		Embedder:          p.Embedder,
		SummarizerModel:   p.SummarizerModel,
		EmbeddingModel:    p.EmbeddingModel,
		Dimensions:        p.Dimensions,
		MaxTokens:         p.MaxTokens,
		AnthropicAPIKey:   p.AnthropicAPIKey,
		AnthropicBaseURL:  p.AnthropicBaseURL,
		OpenAIAPIKey:      p.OpenAIAPIKey,
		OpenAIBaseURL:     p.OpenAIBaseURL,
		MaxRetries:        p.MaxRetries,
		RequestsPerSecond: p.RequestsPerSec,
		Burst:             p.Burst,
	}
	summarizer, err := provider.NewSummarizer(popts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	embedder, err := provider.NewEmbedder(popts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a := &app{cfg: cfg, logger: logger, store: st, metrics: m, registry: registry}

	a.svc = service.New(summarizer, embedder, st, service.Options{
		ProviderTimeout:   p.Timeout(),
		SaveConcurrency:   cfg.Batch.SaveConcurrency,
		SearchConcurrency: cfg.Batch.SearchConcurrency,
		BatchItemTimeout:  time.Duration(cfg.Batch.ItemTimeoutSeconds) * time.Second,
		Recall: recall.Options{
			OverfetchFactor: cfg.Search.OverfetchFactor,
			ListOverfetch:   cfg.Search.ListOverfetch,
			MaxCandidates:   cfg.Search.MaxCandidates,
		},
		Logger:   logger,
		Observer: m,
	})

	if cfg.RateLimit.Enabled {
		policies, err := loadPolicies(cfg.RateLimit)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.limiter = ratelimit.New(policies,
			ratelimit.WithCleanupInterval(time.Duration(cfg.RateLimit.CleanupIntervalSeconds)*time.Second))
		logger.Info("rate_limiter_initialized", "endpoints", len(policies.Endpoints))

		if cfg.Scheduler.SweepIntervalMinutes > 0 {
			a.sched = scheduler.NewScheduler(a.limiter, time.Duration(cfg.Scheduler.SweepIntervalMinutes)*time.Minute, logger)
			a.sched.Start()
		}
	}
	return a, nil
}

// loadConfig reads the config file and applies CLI flag overrides, which
// take the highest priority
func loadConfig(f *rootFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFromPath(f.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	applyCLIOverrides(cfg, f)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyCLIOverrides(cfg *config.Config, f *rootFlags) {
	if f.dbType != "" {
		cfg.Database.Type = f.dbType
	}
	if f.dbPath != "" {
		cfg.Database.SQLitePath = f.dbPath
	}
	if f.dbDSN != "" {
		cfg.Database.PostgresDSN = f.dbDSN
	}
	if f.port > 0 {
		cfg.Server.Port = f.port
	}
}

// loadPolicies layers built-in policies, the policies file and config keys
func loadPolicies(rl config.RateLimitConfig) (ratelimit.Policies, error) {
	policies := ratelimit.DefaultPolicies()
	if rl.PoliciesFile != "" {
		var err error
		if policies, err = ratelimit.LoadPolicies(rl.PoliciesFile); err != nil {
			return ratelimit.Policies{}, err
		}
	}
	overlay := ratelimit.Policies{Endpoints: rl.Endpoints}
	if rl.Default != nil {
		overlay.Default = *rl.Default
	}
	return policies.Merge(overlay), nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend == config.StorePGVector {
		st, err := store.NewPGVectorStore(ctx, cfg.Store.PGVectorDSN, cfg.Providers.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to open pgvector store: %w", err)
		}
		return st, nil
	}

	db, err := database.Connect(&database.Config{
		Type:         cfg.Database.Type,
		SQLitePath:   cfg.Database.SQLitePath,
		PostgresDSN:  cfg.Database.PostgresDSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		// gorm must never write to stdout while MCP owns it
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, err
	}
	st, err := newDatabaseStore(db)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to open database store: %w", err)
	}
	return st, nil
}

// newDatabaseStore builds the gorm-backed store over an open connection
var newDatabaseStore = func(db *gorm.DB) (store.Store, error) {
	st, err := store.NewGormStore(db)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// debugSettings lists the settings shown on /debug/system-info. Keys and
// DSNs are never included.
func debugSettings(cfg *config.Config) map[string]string {
	return map[string]string{
		"port":                 strconv.Itoa(cfg.Server.Port),
		"log_level":            cfg.Server.LogLevel,
		"database_type":        cfg.Database.Type,
		"store_backend":        cfg.Store.Backend,
		"summarizer":           cfg.Providers.Summarizer,
		"embedder":             cfg.Providers.Embedder,
		"embedding_model":      cfg.Providers.EmbeddingModel,
		"embedding_dimensions": strconv.Itoa(cfg.Providers.Dimensions),
		"rate_limit_enabled":   strconv.FormatBool(cfg.RateLimit.Enabled),
		"auth_enabled":         strconv.FormatBool(cfg.Auth.Enabled),
	}
}

// newLogger writes JSON to stderr; stdout belongs to MCP in stdio mode
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
