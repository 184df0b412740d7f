// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler runs filing passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/hwfiler/internal/collector"
)

// Passer runs one filing pass.
type Passer interface {
	Run(ctx context.Context) (*collector.RunResult, error)
}

// Scheduler triggers a pass at start and then every interval.
type Scheduler struct {
	passer   Passer
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. A non-positive interval falls back to five minutes.
func New(passer Passer, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{passer: passer, interval: interval}
}

// Start launches the loop in the background. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.tick(loopCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				slog.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	slog.Info("scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for an in-flight pass to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.passer.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, collector.ErrRunInProgress):
		slog.Info("scheduled pass skipped, another pass is running")
	case ctx.Err() != nil:
	default:
		// The pass already logged its details; the next tick retries.
		slog.Warn("scheduled pass failed", "error", err)
	}
}
