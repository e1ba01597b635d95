// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejzpr/kioku/internal/memory"
)

func TestRun_PreservesOrderUnderStaggeredLatency(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}
	results := Run(context.Background(), items, 4, func(ctx context.Context, i int, item int) (int, error) {
		// later items finish first
		time.Sleep(time.Duration(len(items)-i) * 5 * time.Millisecond)
		return item * 10, nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i*10, r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := make([]int, 30)

	Run(context.Background(), items, 3, func(ctx context.Context, i int, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestRun_PartialFailureIsIsolated(t *testing.T) {
	items := []string{"ok", "fail", "ok", "panic", "ok"}
	results := Run(context.Background(), items, 2, func(ctx context.Context, i int, item string) (string, error) {
		switch item {
		case "fail":
			return "", memory.NewProviderError("summarize", "upstream error", errors.New("500"))
		case "panic":
			panic("boom")
		}
		return "done", nil
	})

	require.Len(t, results, 5)
	assert.True(t, results[0].OK())
	assert.Equal(t, memory.KindProvider, memory.KindOf(results[1].Err))
	assert.True(t, results[2].OK())
	assert.Equal(t, memory.KindInternal, memory.KindOf(results[3].Err))
	assert.Contains(t, results[3].Err.Error(), "item 3 panicked")
	assert.True(t, results[4].OK())

	s := Summarize(results, time.Second)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 60.0, s.SuccessRate)
	assert.False(t, s.Success())
}

func TestRun_ItemTimeout(t *testing.T) {
	items := []time.Duration{0, 200 * time.Millisecond, 0}
	results := Run(context.Background(), items, 3, func(ctx context.Context, i int, d time.Duration) (int, error) {
		select {
		case <-time.After(d):
			return i, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}, WithItemTimeout(50*time.Millisecond))

	assert.True(t, results[0].OK())
	assert.True(t, memory.IsTimeout(results[1].Err))
	assert.Contains(t, results[1].Err.Error(), "item timed out")
	assert.NotEqual(t, memory.KindProvider, memory.KindOf(results[1].Err))
	assert.True(t, results[2].OK())
	assert.Equal(t, 2, results[2].Value)
}

func TestRun_ItemTimeoutReportsLateSuccess(t *testing.T) {
	var committed atomic.Int32
	results := Run(context.Background(), []int{7}, 1, func(ctx context.Context, i int, item int) (int, error) {
		// ignores the deadline and finishes its work anyway
		time.Sleep(100 * time.Millisecond)
		committed.Add(1)
		return item, nil
	}, WithItemTimeout(20*time.Millisecond))

	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
	assert.Equal(t, 7, results[0].Value)
	assert.Equal(t, int32(1), committed.Load())
}

func TestRun_ItemTimeoutKeepsTypedErrors(t *testing.T) {
	results := Run(context.Background(), []int{1}, 1, func(ctx context.Context, i int, item int) (int, error) {
		<-ctx.Done()
		return 0, memory.NewStoreError("save", "deadline passed before persisting", ctx.Err())
	}, WithItemTimeout(10*time.Millisecond))

	assert.Equal(t, memory.KindStore, memory.KindOf(results[0].Err))
	assert.True(t, memory.IsTimeout(results[0].Err))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := Run(ctx, []int{1, 2, 3}, 2, func(ctx context.Context, i int, item int) (int, error) {
		calls.Add(1)
		return item, nil
	})

	assert.Equal(t, int32(0), calls.Load())
	for _, r := range results {
		assert.Equal(t, memory.KindCanceled, memory.KindOf(r.Err))
		assert.False(t, memory.IsTimeout(r.Err))
	}
}

func TestRun_ExpiredContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	results := Run(ctx, []int{1}, 1, func(ctx context.Context, i int, item int) (int, error) {
		return item, nil
	})
	assert.True(t, memory.IsTimeout(results[0].Err))
}

func TestRun_Empty(t *testing.T) {
	results := Run(context.Background(), []int{}, 5, func(ctx context.Context, i int, item int) (int, error) {
		return item, nil
	})
	assert.Empty(t, results)
}

func TestSummarize_SuccessRateRounding(t *testing.T) {
	results := []Result[int]{
		{Duration: 10 * time.Millisecond},
		{Duration: 20 * time.Millisecond},
		{Err: errors.New("x"), Duration: 30 * time.Millisecond},
	}
	s := Summarize(results, 0)
	assert.Equal(t, 66.7, s.SuccessRate)
	assert.Equal(t, 20*time.Millisecond, s.AverageDuration)
}
