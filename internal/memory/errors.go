// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for callers and transports
type Kind int

const (
	// KindInternal is an unexpected failure
	KindInternal Kind = iota
	// KindValidation is bad caller input; providers and stores are never reached
	KindValidation
	// KindProvider is a summarizer or embedder failure
	KindProvider
	// KindStore is a candidate store failure
	KindStore
	// KindRateLimit is a rate limiter denial
	KindRateLimit
	// KindNotFound is a missing record
	KindNotFound
	// KindNotImplemented is an operation that exists but is not supported
	KindNotImplemented
	// KindCanceled is work abandoned because the caller's context was cancelled
	KindCanceled
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindProvider:
		return "provider_error"
	case KindStore:
		return "store_error"
	case KindRateLimit:
		return "rate_limit_exceeded"
	case KindNotFound:
		return "not_found"
	case KindNotImplemented:
		return "not_implemented"
	case KindCanceled:
		return "canceled"
	default:
		return "internal_error"
	}
}

// SubKind refines provider and store errors
type SubKind int

const (
	// SubNone carries no refinement
	SubNone SubKind = iota
	// SubTimeout is a call that ran past its deadline
	SubTimeout
	// SubQuotaExceeded is a provider refusing for quota or rate reasons
	SubQuotaExceeded
)

// Error is the typed error returned across the service
type Error struct {
	Kind    Kind
	Sub     SubKind
	Op      string
	Message string
	// RetryAfter is set on rate limit denials
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal when err is untyped.
// A bare context deadline is reported as a provider timeout and a bare
// cancellation as KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindProvider
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindInternal
}

// SubKindOf returns the sub-kind of err
func SubKindOf(err error) SubKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Sub
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return SubTimeout
	}
	return SubNone
}

// IsTimeout reports whether err is a timeout
func IsTimeout(err error) bool {
	return SubKindOf(err) == SubTimeout
}

// IsKind reports whether err has the given kind
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the caller-facing message of err without the wrapped cause
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewValidationError reports invalid caller input
func NewValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewProviderError reports a provider failure
func NewProviderError(op, message string, err error) *Error {
	e := &Error{Kind: KindProvider, Op: op, Message: message, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Sub = SubTimeout
	}
	return e
}

// NewTimeoutError reports a provider call that exceeded its deadline
func NewTimeoutError(op string, err error) *Error {
	return &Error{Kind: KindProvider, Sub: SubTimeout, Op: op, Message: "provider timed out", Err: err}
}

// NewQuotaError reports a provider quota or upstream rate limit
func NewQuotaError(op string, err error) *Error {
	return &Error{Kind: KindProvider, Sub: SubQuotaExceeded, Op: op, Message: "provider quota exceeded", Err: err}
}

// NewStoreError reports a candidate store failure
func NewStoreError(op, message string, err error) *Error {
	e := &Error{Kind: KindStore, Op: op, Message: message, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		e.Sub = SubTimeout
	}
	return e
}

// NewCanceledError reports work stopped by a cancelled context
func NewCanceledError(op string, err error) *Error {
	return &Error{Kind: KindCanceled, Op: op, Message: "request canceled", Err: err}
}

// ProviderContextError types a provider call stopped by its context.
// Cancellation is not a timeout.
func ProviderContextError(op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return NewCanceledError(op, err)
	}
	return NewTimeoutError(op, err)
}

// NewNotFoundError reports a missing record
func NewNotFoundError(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf("memory not found: %s", id)}
}

// NewNotImplementedError reports an unsupported operation
func NewNotImplementedError(op, message string) *Error {
	return &Error{Kind: KindNotImplemented, Op: op, Message: message}
}

// NewRateLimitError reports a rate limiter denial
func NewRateLimitError(op, reason string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Op: op, Message: reason, RetryAfter: retryAfter}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}
