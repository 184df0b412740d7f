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

package lease

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Claimer and AttemptCounter for single-instance
// deployments without Redis. Attempt counts are lost on restart.
type Local struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	claims   map[string]time.Time
	attempts map[string]int64
}

// NewLocal creates an in-memory lease. A zero ttl uses DefaultClaimTTL.
func NewLocal(ttl time.Duration) *Local {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Local{
		ttl:      ttl,
		now:      time.Now,
		claims:   make(map[string]time.Time),
		attempts: make(map[string]int64),
	}
}

func (l *Local) Claim(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.claims[id]; ok && now.Before(exp) {
		return false, nil
	}
	l.claims[id] = now.Add(l.ttl)
	return true, nil
}

func (l *Local) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, id)
	return nil
}

func (l *Local) Increment(_ context.Context, id string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[id]++
	return l.attempts[id], nil
}

func (l *Local) Reset(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, id)
	return nil
}
