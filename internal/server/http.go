// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tejzpr/kioku/internal/auth"
	"github.com/tejzpr/kioku/internal/metrics"
	"github.com/tejzpr/kioku/internal/service"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 10 * time.Second

// HTTPDeps are the collaborators of the HTTP server
type HTTPDeps struct {
	Service *service.Service
	// Limiter may be nil to disable rate limiting
	Limiter Admitter
	// Auth may be nil to skip authentication
	Auth    *auth.Authenticator
	Metrics *metrics.Metrics
	// Gatherer serves /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// Debug exposes internal error detail in responses and enables the
	// /debug routes
	Debug bool
	// Settings are the non-secret settings shown by /debug/system-info
	Settings map[string]string
	Version  string
}

// HTTPServer serves the REST API
type HTTPServer struct {
	svc      *service.Service
	limiter  Admitter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	debug    bool
	settings map[string]string
	version  string
	engine   *gin.Engine
}

// NewHTTPServer builds the gin engine and registers all routes
func NewHTTPServer(deps HTTPDeps) *HTTPServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPServer{
		svc:      deps.Service,
		limiter:  deps.Limiter,
		metrics:  deps.Metrics,
		logger:   logger,
		debug:    deps.Debug,
		settings: deps.Settings,
		version:  deps.Version,
		engine:   gin.New(),
	}

	h.engine.Use(h.recovery(), h.requestLogger(), deps.Metrics.Middleware())
	if deps.Auth != nil {
		h.engine.Use(deps.Auth.Middleware(IsPublicPath))
	}
	h.engine.Use(h.rateLimit())

	h.RegisterRoutes(h.engine, deps.Gatherer)
	return h
}

// RegisterRoutes registers all HTTP routes
func (h *HTTPServer) RegisterRoutes(r gin.IRoutes, gatherer prometheus.Gatherer) {
	r.GET("/", h.handleRoot)
	r.GET("/health", h.handleHealth)
	r.GET("/health/stats", h.handleStats)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/save", h.handleSave)
	r.POST("/batch-save", h.handleBatchSave)
	r.POST("/search", h.handleSearch)
	r.POST("/batch-search", h.handleBatchSearch)

	r.GET("/memories", h.handleList)
	r.GET("/memory/:id", h.handleGet)
	r.DELETE("/memory/:id", h.handleDelete)
	r.PUT("/memory/:id", h.handleUpdate)

	if h.debug {
		r.GET("/debug/system-info", h.handleSystemInfo)
		r.GET("/debug/last-memories", h.handleLastMemories)
	}
}

// Handler returns the http.Handler for the API
func (h *HTTPServer) Handler() http.Handler {
	return h.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (h *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("http_server_started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		h.logger.Info("http_server_stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
