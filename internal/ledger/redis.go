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

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/hwfiler/internal/models"
)

// EventTypeFiled is the event type published for every ledger record.
const EventTypeFiled = "homework.filed"

// Event is the JSON envelope pushed to the Redis list.
type Event struct {
	ID          string                   `json:"id"`
	Type        string                   `json:"type"`
	Record      models.TransactionRecord `json:"record"`
	PublishedAt string                   `json:"published_at"`
}

// RedisSink pushes records as JSON events onto a Redis list, where
// downstream consumers (grading tools, notifiers) can pick them up.
type RedisSink struct {
	rdb  redis.Cmdable
	list string
}

// NewRedisSink creates a sink pushing to the named list.
func NewRedisSink(rdb redis.Cmdable, list string) *RedisSink {
	return &RedisSink{rdb: rdb, list: list}
}

func (s *RedisSink) Name() string { return "redis" }

// Append LPUSHes the record; consumers pop from the other end.
func (s *RedisSink) Append(ctx context.Context, record models.TransactionRecord) error {
	msg, err := newEvent(record)
	if err != nil {
		return err
	}

	if err := s.rdb.LPush(ctx, s.list, msg).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("published ledger event",
		"list", s.list,
		"path", record.Path,
	)
	return nil
}

func newEvent(record models.TransactionRecord) (string, error) {
	data, err := json.Marshal(Event{
		ID:          uuid.New().String(),
		Type:        EventTypeFiled,
		Record:      record,
		PublishedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("marshal ledger event: %w", err)
	}
	return string(data), nil
}
