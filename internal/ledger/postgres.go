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
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/hwfiler/internal/models"
)

// PostgresSink appends records to the hw_transactions table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink backed by pool, ensuring the table exists.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresSink, error) {
	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("postgres ledger initialised")
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS hw_transactions (
			id            BIGSERIAL PRIMARY KEY,
			student_name  TEXT NOT NULL,
			student_id    TEXT NOT NULL,
			homework      TEXT NOT NULL,
			message_time  TIMESTAMPTZ NOT NULL,
			sender        TEXT NOT NULL,
			path          TEXT NOT NULL,
			logged_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_hw_tx_student ON hw_transactions(student_id);
		CREATE INDEX IF NOT EXISTS idx_hw_tx_path ON hw_transactions(path);
	`)
	return err
}

func (s *PostgresSink) Name() string { return "postgres" }

// Append inserts one row. Duplicate rows are allowed, matching the
// append-only semantics of the spreadsheet ledger.
func (s *PostgresSink) Append(ctx context.Context, r models.TransactionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hw_transactions
			(student_name, student_id, homework, message_time, sender, path)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.StudentName, r.StudentID, r.Homework, r.Timestamp, r.Sender, r.Path)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
