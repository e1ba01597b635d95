// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
	"github.com/tejzpr/kioku/internal/service"
)

// handleRoot describes the service
func (h *HTTPServer) handleRoot(c *gin.Context) {
	endpoints := gin.H{
		"save":         "POST /save",
		"batch_save":   "POST /batch-save",
		"search":       "POST /search",
		"batch_search": "POST /batch-search",
		"list":         "GET /memories",
		"get":          "GET /memory/{id}",
		"delete":       "DELETE /memory/{id}",
		"health":       "GET /health",
		"stats":        "GET /health/stats",
		"metrics":      "GET /metrics",
	}
	if h.debug {
		endpoints["debug_system_info"] = "GET /debug/system-info"
		endpoints["debug_last_memories"] = "GET /debug/last-memories"
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        "kioku",
		"version":     h.version,
		"description": "emotion-tagged memory recall service",
		"endpoints":   endpoints,
		"emotions":    service.EmotionVocabulary(),
	})
}

// handleHealth reports component health; 503 when any component is down
func (h *HTTPServer) handleHealth(c *gin.Context) {
	report := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *HTTPServer) handleStats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *HTTPServer) handleSave(c *gin.Context) {
	start := time.Now()

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, memory.NewValidationError("save", "invalid request body"))
		return
	}
	if err := validateStruct("save", req); err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.svc.Save(c.Request.Context(), req.toTurn())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"memory_id":          rec.ID.String(),
		"summary":            rec.Summary,
		"emotions":           emotion.Strings(rec.Emotions),
		"processing_time_ms": millis(time.Since(start)),
	})
}

type batchSaveItem struct {
	Index            int      `json:"index"`
	Success          bool     `json:"success"`
	MemoryID         string   `json:"memory_id,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	Emotions         []string `json:"emotions"`
	ProcessingTimeMS float64  `json:"processing_time_ms"`
	Error            string   `json:"error,omitempty"`
	ErrorType        string   `json:"error_type,omitempty"`
}

func (h *HTTPServer) handleBatchSave(c *gin.Context) {
	var reqs []saveRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		h.fail(c, memory.NewValidationError("batch_save", "request body must be a JSON array of save requests"))
		return
	}
	if len(reqs) <= memory.MaxBatchSaveSize {
		for i, r := range reqs {
			if err := validateStruct("batch_save", r); err != nil {
				h.fail(c, memory.NewValidationError("batch_save", "request %d: %s", i+1, memory.Message(err)))
				return
			}
		}
	}

	turns := make([]memory.Turn, len(reqs))
	for i, r := range reqs {
		turns[i] = r.toTurn()
	}

	report, err := h.svc.BatchSave(c.Request.Context(), turns)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]batchSaveItem, len(report.Results))
	for i, r := range report.Results {
		item := batchSaveItem{Index: r.Index, Emotions: []string{}, ProcessingTimeMS: millis(r.Duration)}
		if r.Err != nil {
			item.Error = h.publicMessage(r.Err)
			item.ErrorType = errorType(r.Err)
		} else {
			item.Success = true
			item.MemoryID = r.Value.ID.String()
			item.Summary = r.Value.Summary
			item.Emotions = emotion.Strings(r.Value.Emotions)
		}
		items[i] = item
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            report.Success(),
		"total_requested":    report.Total,
		"successful_saves":   report.Succeeded,
		"failed_saves":       report.Failed,
		"results":            items,
		"processing_time_ms": millis(report.Elapsed),
		"summary": gin.H{
			"success_rate":               report.SuccessRate,
			"average_processing_time_ms": millis(report.AverageDuration),
			"total_emotions_detected":    report.DistinctEmotions,
		},
	})
}

func (h *HTTPServer) handleSearch(c *gin.Context) {
	start := time.Now()

	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, memory.NewValidationError("search", "invalid request body"))
		return
	}
	if err := validateStruct("search", req); err != nil {
		h.fail(c, err)
		return
	}
	q, err := req.toQuery()
	if err != nil {
		h.fail(c, err)
		return
	}

	results, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"results":            toResultDTOs(results),
		"total_count":        len(results),
		"query_processed":    q.Query,
		"processing_time_ms": millis(time.Since(start)),
	})
}

type batchSearchItem struct {
	Index            int         `json:"index"`
	Query            string      `json:"query"`
	Success          bool        `json:"success"`
	Results          []resultDTO `json:"results"`
	TotalCount       int         `json:"total_count"`
	ProcessingTimeMS float64     `json:"processing_time_ms"`
	Error            string      `json:"error,omitempty"`
	ErrorType        string      `json:"error_type,omitempty"`
}

func (h *HTTPServer) handleBatchSearch(c *gin.Context) {
	var req batchSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, memory.NewValidationError("batch_search", "invalid request body"))
		return
	}
	if err := validateStruct("batch_search", req); err != nil {
		h.fail(c, err)
		return
	}
	topK := memory.DefaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	report, err := h.svc.BatchSearch(c.Request.Context(), service.BatchSearchRequest{
		Queries: req.Queries,
		TopK:    topK,
		UserID:  strings.TrimSpace(req.UserID),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]batchSearchItem, len(report.Results))
	for i, r := range report.Results {
		item := batchSearchItem{
			Index:            r.Index,
			Query:            report.Queries[i],
			Results:          []resultDTO{},
			ProcessingTimeMS: millis(r.Duration),
		}
		if r.Err != nil {
			item.Error = h.publicMessage(r.Err)
			item.ErrorType = errorType(r.Err)
		} else {
			item.Success = true
			item.Results = toResultDTOs(r.Value)
			item.TotalCount = len(r.Value)
		}
		items[i] = item
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             report.Success(),
		"total_queries":       report.Total,
		"successful_searches": report.Succeeded,
		"failed_searches":     report.Failed,
		"results":             items,
		"processing_time_ms":  millis(report.Elapsed),
	})
}

// handleList serves GET /memories. emotions may repeat or be comma separated.
func (h *HTTPServer) handleList(c *gin.Context) {
	limit, err := intQuery(c, "limit", memory.DefaultListLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		h.fail(c, err)
		return
	}

	var emotions []string
	for _, v := range c.QueryArray("emotions") {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				emotions = append(emotions, part)
			}
		}
	}
	f, err := buildFilter("list", c.Query("user_id"), emotions, c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		h.fail(c, err)
		return
	}

	records, err := h.svc.List(c.Request.Context(), memory.ListQuery{Limit: limit, Offset: offset, Filter: f})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]memoryDTO, len(records))
	for i, r := range records {
		out[i] = toMemoryDTO(r)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"memories": out,
		"count":    len(out),
		"limit":    limit,
		"offset":   offset,
	})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, memory.NewValidationError("list", "%s must be an integer", name)
	}
	return n, nil
}

func (h *HTTPServer) handleGet(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "memory": toMemoryDTO(rec)})
}

func (h *HTTPServer) handleDelete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "memory_id": id, "message": "memory deleted"})
}

func (h *HTTPServer) handleUpdate(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		h.fail(c, memory.NewValidationError("update", "request body must be a JSON object"))
		return
	}
	if err := h.svc.UpdateMetadata(c.Request.Context(), c.Param("id"), fields); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
