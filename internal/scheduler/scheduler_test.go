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

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bcem/hwfiler/internal/collector"
)

type countingPasser struct {
	calls atomic.Int32
	err   error
	ran   chan struct{}
}

func (p *countingPasser) Run(ctx context.Context) (*collector.RunResult, error) {
	p.calls.Add(1)
	select {
	case p.ran <- struct{}{}:
	default:
	}
	return &collector.RunResult{}, p.err
}

func TestScheduler_RunsAtStart(t *testing.T) {
	p := &countingPasser{ran: make(chan struct{}, 1)}
	s := New(p, time.Hour)
	s.Start(context.Background())

	select {
	case <-p.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a pass at start")
	}
	s.Stop()

	if got := p.calls.Load(); got != 1 {
		t.Errorf("expected 1 pass, got %d", got)
	}
}

func TestScheduler_RunsEachInterval(t *testing.T) {
	p := &countingPasser{ran: make(chan struct{}, 1), err: errors.New("mailbox down")}
	s := New(p, 10*time.Millisecond)
	s.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 3 {
		select {
		case <-p.ran:
		case <-deadline:
			t.Fatalf("expected repeated passes, got %d", p.calls.Load())
		}
	}
	s.Stop()

	after := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if p.calls.Load() != after {
		t.Error("passes continued after Stop")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(&countingPasser{}, 0)
	if s.interval != 5*time.Minute {
		t.Errorf("expected default interval, got %v", s.interval)
	}
	s.Stop()
}
