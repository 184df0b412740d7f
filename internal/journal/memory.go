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

package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcem/hwfiler/internal/models"
)

// Memory is an in-process journal. It only protects against failures
// within a single process lifetime.
type Memory struct {
	mu      sync.Mutex
	intents map[string]*models.Intent
}

func NewMemory() *Memory {
	return &Memory{intents: make(map[string]*models.Intent)}
}

func (m *Memory) Begin(_ context.Context, intent models.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if prev, ok := m.intents[intent.Key]; ok {
		intent.CreatedAt = prev.CreatedAt
	} else {
		intent.CreatedAt = now
	}
	intent.UpdatedAt = now
	intent.Logged, intent.Stored, intent.Outcome = false, false, ""
	m.intents[intent.Key] = &intent
	return nil
}

func (m *Memory) MarkLogged(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[key]
	if !ok {
		return ErrNotFound
	}
	in.Logged = true
	in.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) MarkStored(_ context.Context, key, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.intents[key]
	if !ok {
		return ErrNotFound
	}
	in.Stored = true
	in.Outcome = outcome
	in.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) Unlogged(context.Context) ([]models.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Intent
	for _, in := range m.intents {
		if in.Stored && !in.Logged {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
