// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("save", nil, 10*time.Millisecond)
	m.ObserveOperation("save", memory.NewProviderError("summarize", "bad", nil), time.Millisecond)
	m.ObserveOperation("save", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("save", "provider_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("save", "internal_error")))
}

func TestObserveBatchAndEmotions(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBatch("batch_save", 3, 1)
	m.ObserveEmotions([]emotion.Tag{emotion.Joy, emotion.Joy, emotion.Reunion})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchItemsTotal.WithLabelValues("batch_save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchItemsTotal.WithLabelValues("batch_save", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmotionTagsTotal.WithLabelValues(emotion.Joy.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmotionTagsTotal.WithLabelValues(emotion.Reunion.String())))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("save", nil, time.Second)
		m.ObserveBatch("batch_save", 1, 1)
		m.ObserveEmotions([]emotion.Tag{emotion.Joy})
		m.ObserveDenial("burst_limit_exceeded", "/save")
		m.ObserveLimiterFault()
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/memory/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/memory/abc", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/memory/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
