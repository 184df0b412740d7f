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

// Package ledger appends one row per filed attachment to append-only
// tabular destinations (a spreadsheet, a Postgres table, a Redis list).
// Appends are best-effort: failures are logged and never block the write
// of the attachment itself.
package ledger

import (
	"context"
	"log/slog"

	"github.com/bcem/hwfiler/internal/models"
)

// Sink is one append-only destination for transaction records.
type Sink interface {
	Name() string
	Append(ctx context.Context, record models.TransactionRecord) error
}

// Logger fans a record out to every configured sink.
type Logger struct {
	sinks []Sink
}

// NewLogger creates a logger writing to the given sinks.
func NewLogger(sinks ...Sink) *Logger {
	return &Logger{sinks: sinks}
}

// Append writes record to every sink. It reports whether at least one sink
// accepted it; individual failures are only logged. With no sinks
// configured it reports false.
func (l *Logger) Append(ctx context.Context, record models.TransactionRecord) bool {
	accepted := false
	for _, s := range l.sinks {
		if err := s.Append(ctx, record); err != nil {
			slog.Warn("ledger append failed",
				"sink", s.Name(),
				"path", record.Path,
				"error", err,
			)
			continue
		}
		accepted = true
	}
	return accepted
}

// Sinks returns the names of the configured sinks.
func (l *Logger) Sinks() []string {
	names := make([]string, 0, len(l.sinks))
	for _, s := range l.sinks {
		names = append(names, s.Name())
	}
	return names
}
