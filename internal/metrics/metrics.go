// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics exposes Prometheus instrumentation for the service.
//
// Metrics are registered against the registry passed to New so tests can
// use a private registry. All methods are safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

const namespace = "kioku"

// Metrics holds every collector the service reports
type Metrics struct {
	// HTTPRequestsTotal counts requests by method, route and status code
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration measures handler latency by method and route
	HTTPRequestDuration *prometheus.HistogramVec

	// OperationsTotal counts pipeline operations by operation and outcome.
	// outcome is "success" or an error kind such as provider_error.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration measures pipeline latency by operation
	OperationDuration *prometheus.HistogramVec

	// BatchItemsTotal counts batch items by operation and outcome
	BatchItemsTotal *prometheus.CounterVec

	// EmotionTagsTotal counts emotion tags attached to saved memories
	EmotionTagsTotal *prometheus.CounterVec

	// RateLimitDenialsTotal counts rejected requests by reason and policy
	RateLimitDenialsTotal *prometheus.CounterVec
	// RateLimitFaultsTotal counts limiter faults that were failed open
	RateLimitFaultsTotal prometheus.Counter
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "memory",
				Name:      "operations_total",
				Help:      "Memory operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "memory",
				Name:      "operation_duration_seconds",
				Help:      "Memory operation latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		BatchItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "items_total",
				Help:      "Batch items by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		EmotionTagsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "memory",
				Name:      "emotion_tags_total",
				Help:      "Emotion tags attached to saved memories",
			},
			[]string{"emotion"},
		),
		RateLimitDenialsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "denials_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"reason", "policy"},
		),
		RateLimitFaultsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "faults_total",
				Help:      "Rate limiter faults that let the request through",
			},
		),
	}
}

// Outcome labels an operation result
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return memory.KindOf(err).String()
}

// ObserveOperation records one pipeline operation
func (m *Metrics) ObserveOperation(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveBatch records the item outcomes of a finished batch
func (m *Metrics) ObserveBatch(op string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.BatchItemsTotal.WithLabelValues(op, "success").Add(float64(succeeded))
	m.BatchItemsTotal.WithLabelValues(op, "failure").Add(float64(failed))
}

// ObserveEmotions counts the tags of a saved memory
func (m *Metrics) ObserveEmotions(tags []emotion.Tag) {
	if m == nil {
		return
	}
	for _, t := range tags {
		m.EmotionTagsTotal.WithLabelValues(t.String()).Inc()
	}
}

// ObserveDenial records a rate limiter rejection
func (m *Metrics) ObserveDenial(reason, policy string) {
	if m == nil {
		return
	}
	m.RateLimitDenialsTotal.WithLabelValues(reason, policy).Inc()
}

// ObserveLimiterFault records a limiter fault that was failed open
func (m *Metrics) ObserveLimiterFault() {
	if m == nil {
		return
	}
	m.RateLimitFaultsTotal.Inc()
}

// Middleware instruments gin handlers. Unmatched routes are labelled
// "unmatched" to keep cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
