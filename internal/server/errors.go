// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tejzpr/kioku/internal/memory"
)

// statusClientClosedRequest is reported when the caller cancelled the request
const statusClientClosedRequest = 499

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	kind := memory.KindOf(err)
	if kind != memory.KindValidation && memory.IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	switch kind {
	case memory.KindValidation:
		return http.StatusBadRequest
	case memory.KindNotFound:
		return http.StatusNotFound
	case memory.KindNotImplemented:
		return http.StatusNotImplemented
	case memory.KindRateLimit:
		return http.StatusTooManyRequests
	case memory.KindProvider:
		if memory.SubKindOf(err) == memory.SubQuotaExceeded {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case memory.KindStore:
		return http.StatusServiceUnavailable
	case memory.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorType labels a failure for clients
func errorType(err error) string {
	switch memory.SubKindOf(err) {
	case memory.SubTimeout:
		return "timeout_error"
	case memory.SubQuotaExceeded:
		return "quota_exceeded"
	}
	return memory.KindOf(err).String()
}

// publicMessage is the client-facing message. Internal details are only
// exposed in debug mode.
func (h *HTTPServer) publicMessage(err error) string {
	if h.debug {
		return err.Error()
	}
	if memory.KindOf(err) == memory.KindInternal {
		return "internal server error"
	}
	return memory.Message(err)
}

// fail writes the failure payload for err
func (h *HTTPServer) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request_failed",
			"path", c.Request.URL.Path,
			"status", status,
			"error_type", errorType(err),
			"error", err,
		)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success":    false,
		"error":      h.publicMessage(err),
		"error_type": errorType(err),
	})
}
