// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// Sweeper drops state that has aged out. *ratelimit.Limiter implements it.
type Sweeper interface {
	SweepNow() int
}

// Scheduler periodically sweeps idle rate limit identities
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a new scheduler
func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("scheduler_started", "interval", s.interval.String())
}

// Stop stops the scheduler and waits for a running sweep to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
	})
}

func (s *Scheduler) sweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rate_limit_sweep_failed", "panic", r)
		}
	}()
	if n := s.sweeper.SweepNow(); n > 0 {
		s.logger.Info("rate_limit_sweep_completed", "removed_identities", n)
	}
}
