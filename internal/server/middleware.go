// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejzpr/kioku/internal/auth"
	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/ratelimit"
)

// Admitter decides whether an identity may call an endpoint.
// *ratelimit.Limiter implements it.
type Admitter interface {
	Allow(identity, endpoint string) (ratelimit.Decision, error)
}

var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/docs":         true,
	"/redoc":        true,
	"/openapi.json": true,
	"/metrics":      true,
}

// IsPublicPath reports whether path bypasses authentication and rate limiting
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// requestLogger logs every request once it completes
func (h *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", millis(time.Since(start)),
			"client_ip", c.ClientIP(),
		)
	}
}

// recovery turns handler panics into an internal error payload
func (h *HTTPServer) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				h.fail(c, memory.NewInternalError("http", fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

// rateLimit admits requests through the limiter. A limiter fault lets the
// request through.
func (h *HTTPServer) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if h.limiter == nil || IsPublicPath(path) {
			c.Next()
			return
		}

		identity := auth.IPIdentity(c.ClientIP())
		if p, ok := auth.PrincipalFromContext(c.Request.Context()); ok && p.Identity != "" {
			identity = p.Identity
		}

		d, err := safeAllow(h.limiter, identity, path)
		if err != nil {
			h.metrics.ObserveLimiterFault()
			h.logger.Error("rate_limit_check_failed", "identity", identity, "path", path, "error", err)
			c.Next()
			return
		}

		if !d.Allowed {
			h.metrics.ObserveDenial(d.Reason, d.Pattern)
			h.logger.Warn("rate_limit_exceeded",
				"identity", identity,
				"path", path,
				"reason", d.Reason,
				"retry_after_s", d.RetryAfter.Seconds(),
			)
			retry := retryAfterSeconds(d.RetryAfter)
			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Error", d.Reason)
			c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":     false,
				"error":       "rate limit exceeded",
				"error_type":  memory.KindRateLimit.String(),
				"reason":      d.Reason,
				"retry_after": retry,
			})
			return
		}

		if d.Policy.PerMinute > 0 {
			c.Header("X-RateLimit-Limit-RPM", strconv.Itoa(d.Policy.PerMinute))
			c.Header("X-RateLimit-Remaining-Minute", strconv.Itoa(d.RemainingMinute()))
		}
		if d.Policy.PerHour > 0 {
			c.Header("X-RateLimit-Limit-RPH", strconv.Itoa(d.Policy.PerHour))
			c.Header("X-RateLimit-Remaining-Hour", strconv.Itoa(d.RemainingHour()))
		}
		c.Next()
	}
}

// safeAllow converts a limiter panic into an error
func safeAllow(l Admitter, identity, endpoint string) (d ratelimit.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate limiter panic: %v", r)
		}
	}()
	return l.Allow(identity, endpoint)
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
