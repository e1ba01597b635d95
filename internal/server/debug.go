// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// Debug listing bounds
const (
	debugDefaultCount = 10
	debugMaxCount     = 100
	debugPreviewRunes = 100
)

// handleSystemInfo reports stats, component health and the non-secret
// settings the server was started with
func (h *HTTPServer) handleSystemInfo(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.svc.Stats(ctx)
	if err != nil {
		h.logger.Error("debug_system_info_failed", "error", err)
		h.fail(c, err)
		return
	}

	settings := h.settings
	if settings == nil {
		settings = map[string]string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"system_stats": st,
		"health":       h.svc.Health(ctx),
		"environment":  settings,
		"runtime": gin.H{
			"version":    h.version,
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type debugMemoryDTO struct {
	ID           string   `json:"id"`
	Summary      string   `json:"summary"`
	Emotions     []string `json:"emotions"`
	CreatedAt    string   `json:"created_at"`
	UserID       string   `json:"user_id"`
	SessionID    string   `json:"session_id"`
	AppName      string   `json:"app_name"`
	OriginalUser string   `json:"original_user"`
	OriginalAI   string   `json:"original_ai"`
}

// handleLastMemories lists the newest memories with shortened message text
func (h *HTTPServer) handleLastMemories(c *gin.Context) {
	count, err := intQuery(c, "count", debugDefaultCount)
	if err != nil {
		h.fail(c, err)
		return
	}
	if count < 1 || count > debugMaxCount {
		h.fail(c, memory.NewValidationError("debug", "count must be between 1 and %d", debugMaxCount))
		return
	}

	records, err := h.svc.List(c.Request.Context(), memory.ListQuery{Limit: count})
	if err != nil {
		h.logger.Error("debug_last_memories_failed", "error", err)
		h.fail(c, err)
		return
	}

	out := make([]debugMemoryDTO, len(records))
	for i, r := range records {
		out[i] = debugMemoryDTO{
			ID:           r.ID.String(),
			Summary:      r.Summary,
			Emotions:     emotion.Strings(r.Emotions),
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
			UserID:       r.UserID,
			SessionID:    r.SessionID,
			AppName:      r.AppName,
			OriginalUser: preview(r.OriginalUser),
			OriginalAI:   preview(r.OriginalAI),
		}
	}
	h.logger.Info("debug_last_memories_retrieved", "count", len(out))

	c.JSON(http.StatusOK, gin.H{
		"memories":        out,
		"total_retrieved": len(out),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// preview shortens s to debugPreviewRunes runes, marking the cut with "..."
func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= debugPreviewRunes {
		return s
	}
	return string(runes[:debugPreviewRunes]) + "..."
}
