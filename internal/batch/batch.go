// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package batch fans work out over a bounded worker pool and collects one
// result per item, in input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tejzpr/kioku/internal/memory"
)

// Result is the outcome of one item
type Result[R any] struct {
	Index    int
	Value    R
	Err      error
	Duration time.Duration
}

// OK reports whether the item succeeded
func (r Result[R]) OK() bool {
	return r.Err == nil
}

type config struct {
	itemTimeout time.Duration
}

// Option configures Run
type Option func(*config)

// WithItemTimeout bounds each item through its context. An item that
// fails after its deadline fails with a timeout error, and its siblings
// are unaffected. An item that ignores the deadline and succeeds is still
// reported as a success.
func WithItemTimeout(d time.Duration) Option {
	return func(c *config) {
		c.itemTimeout = d
	}
}

// Run calls fn for every item with at most limit calls in flight. A failing
// or panicking item never cancels the others. Each result is the item's
// real outcome: Run waits for fn to return rather than abandoning it.
func Run[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, index int, item T) (R, error), opts ...Option) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(min(limit, len(items)))

	for i, item := range items {
		g.Go(func() error {
			start := time.Now()
			value, err := runOne(ctx, cfg, i, item, fn)
			results[i] = Result[R]{Index: i, Value: value, Err: err, Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, cfg config, index int, item T, fn func(context.Context, int, T) (R, error)) (R, error) {
	if err := ctx.Err(); err != nil {
		var zero R
		return zero, contextError(err)
	}

	if cfg.itemTimeout <= 0 {
		return call(ctx, index, item, fn)
	}

	itemCtx, cancel := context.WithTimeout(ctx, cfg.itemTimeout)
	defer cancel()

	value, err := call(itemCtx, index, item, fn)
	if err == nil {
		return value, nil
	}
	var typed *memory.Error
	if errors.As(err, &typed) {
		return value, err
	}
	if ctxErr := itemCtx.Err(); ctxErr != nil {
		return value, contextError(ctxErr)
	}
	return value, err
}

// contextError types an item stopped by its context
func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return memory.NewCanceledError("batch", err)
	}
	return &memory.Error{Kind: memory.KindInternal, Sub: memory.SubTimeout, Op: "batch", Message: "item timed out", Err: err}
}

// call invokes fn and converts a panic into an internal error
func call[T, R any](ctx context.Context, index int, item T, fn func(context.Context, int, T) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			value = zero
			err = memory.NewInternalError("batch", fmt.Errorf("item %d panicked: %v", index, r))
		}
	}()
	return fn(ctx, index, item)
}

// Summary aggregates a finished batch
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	// SuccessRate is a percentage rounded to one decimal
	SuccessRate     float64
	AverageDuration time.Duration
	Elapsed         time.Duration
}

// Success reports whether every item succeeded
func (s Summary) Success() bool {
	return s.Failed == 0
}

// Summarize counts successes and failures across results
func Summarize[R any](results []Result[R], elapsed time.Duration) Summary {
	s := Summary{Total: len(results), Elapsed: elapsed}
	var total time.Duration
	for _, r := range results {
		if r.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		total += r.Duration
	}
	if s.Total > 0 {
		s.SuccessRate = math.Round(float64(s.Succeeded)/float64(s.Total)*1000) / 10
		s.AverageDuration = total / time.Duration(s.Total)
	}
	return s
}
