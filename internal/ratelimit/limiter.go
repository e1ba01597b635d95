// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ratelimit admits requests per caller identity against burst,
// per-minute and per-hour caps chosen by endpoint.
package ratelimit

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Denial reasons
const (
	ReasonBurst  = "burst_limit_exceeded"
	ReasonMinute = "minute_limit_exceeded"
	ReasonHour   = "hour_limit_exceeded"
)

// Windows and intervals
const (
	BurstWindow            = time.Second
	MinuteWindow           = time.Minute
	HourWindow             = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
)

// ErrEmptyIdentity is returned when no caller identity is supplied
var ErrEmptyIdentity = errors.New("rate limit identity is empty")

// Decision is the outcome of an admission check
type Decision struct {
	Allowed bool
	// Reason names the first violated cap when denied
	Reason string
	// Limit is the violated cap when denied
	Limit      int
	RetryAfter time.Duration

	Identity    string
	Pattern     string
	Policy      Policy
	MinuteCount int
	HourCount   int
	BurstCount  int
}

// RemainingMinute is how many requests are left in the minute window.
// It is -1 when the minute cap is unlimited.
func (d Decision) RemainingMinute() int {
	return remaining(d.Policy.PerMinute, d.MinuteCount)
}

// RemainingHour is how many requests are left in the hour window.
// It is -1 when the hour cap is unlimited.
func (d Decision) RemainingHour() int {
	return remaining(d.Policy.PerHour, d.HourCount)
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return -1
	}
	return max(0, limit-used)
}

// window is the request history of one identity. times is sorted ascending.
type window struct {
	mu    sync.Mutex
	times []time.Time
	burst int
	last  time.Time
	// dead is set once the window has been swept from the map
	dead bool
}

// prune drops entries that have left the hour window
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-HourWindow)
	i := sort.Search(len(w.times), func(i int) bool { return w.times[i].After(cutoff) })
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// countSince returns the number of entries strictly after cutoff and the
// oldest of them
func (w *window) countSince(cutoff time.Time) (int, time.Time) {
	i := sort.Search(len(w.times), func(i int) bool { return w.times[i].After(cutoff) })
	if i == len(w.times) {
		return 0, time.Time{}
	}
	return len(w.times) - i, w.times[i]
}

// evaluate checks the caps in burst, minute, hour order. w.mu must be held.
func (w *window) evaluate(now time.Time, pol Policy) Decision {
	w.prune(now)
	if !w.last.IsZero() && now.Sub(w.last) >= BurstWindow {
		w.burst = 0
	}

	minute, oldestMinute := w.countSince(now.Add(-MinuteWindow))
	hour, oldestHour := w.countSince(now.Add(-HourWindow))
	d := Decision{Policy: pol, MinuteCount: minute, HourCount: hour, BurstCount: w.burst}

	switch {
	case pol.Burst > 0 && w.burst >= pol.Burst:
		d.Reason, d.Limit = ReasonBurst, pol.Burst
		d.RetryAfter = BurstWindow - now.Sub(w.last)
	case pol.PerMinute > 0 && minute >= pol.PerMinute:
		d.Reason, d.Limit = ReasonMinute, pol.PerMinute
		d.RetryAfter = MinuteWindow - now.Sub(oldestMinute)
	case pol.PerHour > 0 && hour >= pol.PerHour:
		d.Reason, d.Limit = ReasonHour, pol.PerHour
		d.RetryAfter = HourWindow - now.Sub(oldestHour)
	default:
		d.Allowed = true
	}
	if d.RetryAfter < 0 {
		d.RetryAfter = 0
	}
	return d
}

// record appends now to the history. w.mu must be held.
func (w *window) record(now time.Time) {
	// Clock skew can hand us a time before the last entry; keep the slice sorted.
	if n := len(w.times); n > 0 && now.Before(w.times[n-1]) {
		now = w.times[n-1]
	}
	w.times = append(w.times, now)
	w.burst++
	w.last = now
}

// Limiter tracks request history per identity
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window

	policies        Policies
	now             func() time.Time
	cleanupInterval time.Duration

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithCleanupInterval sets how often Record sweeps idle identities.
// Zero or less disables opportunistic sweeps.
func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.cleanupInterval = d
	}
}

// New creates a limiter with the given policies
func New(policies Policies, opts ...Option) *Limiter {
	l := &Limiter{
		windows:         make(map[string]*window),
		policies:        policies,
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Policies returns the configured policies
func (l *Limiter) Policies() Policies {
	return l.policies
}

// Allow checks the caps for identity at endpoint and records the request
// when admitted. Check and record happen under the identity's lock.
func (l *Limiter) Allow(identity, endpoint string) (Decision, error) {
	return l.admit(identity, endpoint, true)
}

// Check evaluates the caps without recording anything
func (l *Limiter) Check(identity, endpoint string) (Decision, error) {
	return l.admit(identity, endpoint, false)
}

// Record adds a request to identity's history without checking caps
func (l *Limiter) Record(identity string) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	now := l.now()
	for {
		w := l.window(identity)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		w.prune(now)
		if !w.last.IsZero() && now.Sub(w.last) >= BurstWindow {
			w.burst = 0
		}
		w.record(now)
		w.mu.Unlock()
		break
	}
	l.maybeSweep(now)
	return nil
}

func (l *Limiter) admit(identity, endpoint string, record bool) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrEmptyIdentity
	}
	pattern, pol := l.policies.Resolve(endpoint)
	now := l.now()

	var d Decision
	for {
		w := l.window(identity)
		w.mu.Lock()
		if w.dead {
			// swept between lookup and lock; fetch a fresh window
			w.mu.Unlock()
			continue
		}
		d = w.evaluate(now, pol)
		if d.Allowed && record {
			w.record(now)
			d.MinuteCount++
			d.HourCount++
			d.BurstCount = w.burst
		}
		w.mu.Unlock()
		break
	}
	d.Identity = identity
	d.Pattern = pattern

	if record && d.Allowed {
		l.maybeSweep(now)
	}
	return d, nil
}

func (l *Limiter) window(identity string) *window {
	l.mu.RLock()
	w, ok := l.windows[identity]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[identity]; ok {
		return w
	}
	w = &window{}
	l.windows[identity] = w
	return w
}

func (l *Limiter) maybeSweep(now time.Time) {
	if l.cleanupInterval <= 0 {
		return
	}
	l.sweepMu.Lock()
	due := now.Sub(l.lastSweep) >= l.cleanupInterval
	if due {
		l.lastSweep = now
	}
	l.sweepMu.Unlock()
	if due {
		l.Sweep(now)
	}
}

// Sweep removes identities with no requests inside the hour window and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		w.mu.Lock()
		w.prune(now)
		if len(w.times) == 0 {
			w.dead = true
			delete(l.windows, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// SweepNow sweeps using the limiter's clock
func (l *Limiter) SweepNow() int {
	return l.Sweep(l.now())
}

// Len returns the number of tracked identities
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

// Usage reports the current counts for identity without recording
type Usage struct {
	MinuteCount int
	HourCount   int
	BurstCount  int
	LastRequest time.Time
}

// Usage returns the current counts for identity
func (l *Limiter) Usage(identity string) Usage {
	l.mu.RLock()
	w, ok := l.windows[identity]
	l.mu.RUnlock()
	if !ok {
		return Usage{}
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	minute, _ := w.countSince(now.Add(-MinuteWindow))
	hour, _ := w.countSince(now.Add(-HourWindow))
	return Usage{MinuteCount: minute, HourCount: hour, BurstCount: w.burst, LastRequest: w.last}
}
