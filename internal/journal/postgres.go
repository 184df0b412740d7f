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
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/hwfiler/internal/models"
)

// Postgres keeps intents in the hw_intents table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a journal backed by pool. It ensures the table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	slog.Info("postgres journal initialised")
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS hw_intents (
			intent_key    TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			message_id    TEXT NOT NULL,
			student_name  TEXT NOT NULL,
			student_id    TEXT NOT NULL,
			homework      TEXT NOT NULL,
			message_time  TIMESTAMPTZ NOT NULL,
			sender        TEXT NOT NULL,
			path          TEXT NOT NULL,
			logged        BOOLEAN NOT NULL DEFAULT FALSE,
			stored        BOOLEAN NOT NULL DEFAULT FALSE,
			outcome       TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW(),
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_hw_intents_pending ON hw_intents(stored, logged);
	`)
	return err
}

// Begin upserts the intent, clearing any earlier progress on the same key.
func (p *Postgres) Begin(ctx context.Context, in models.Intent) error {
	r := in.Record
	_, err := p.pool.Exec(ctx, `
		INSERT INTO hw_intents
			(intent_key, run_id, message_id, student_name, student_id, homework,
			 message_time, sender, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (intent_key) DO UPDATE SET
			run_id       = EXCLUDED.run_id,
			message_id   = EXCLUDED.message_id,
			student_name = EXCLUDED.student_name,
			student_id   = EXCLUDED.student_id,
			homework     = EXCLUDED.homework,
			message_time = EXCLUDED.message_time,
			sender       = EXCLUDED.sender,
			path         = EXCLUDED.path,
			logged       = FALSE,
			stored       = FALSE,
			outcome      = '',
			updated_at   = NOW()
	`, in.Key, in.RunID, in.MessageID, r.StudentName, r.StudentID, r.Homework,
		r.Timestamp, r.Sender, r.Path)
	if err != nil {
		return fmt.Errorf("begin intent %s: %w", in.Key, err)
	}
	return nil
}

func (p *Postgres) MarkLogged(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE hw_intents SET logged = TRUE, updated_at = NOW()
		WHERE intent_key = $1
	`, key)
	if err != nil {
		return fmt.Errorf("mark intent %s logged: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) MarkStored(ctx context.Context, key, outcome string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE hw_intents SET stored = TRUE, outcome = $2, updated_at = NOW()
		WHERE intent_key = $1
	`, key, outcome)
	if err != nil {
		return fmt.Errorf("mark intent %s stored: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Unlogged(ctx context.Context) ([]models.Intent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT intent_key, run_id, message_id, student_name, student_id, homework,
		       message_time, sender, path, logged, stored, outcome,
		       created_at, updated_at
		FROM hw_intents
		WHERE stored AND NOT logged
		ORDER BY created_at, intent_key
	`)
	if err != nil {
		return nil, fmt.Errorf("query unlogged intents: %w", err)
	}
	defer rows.Close()
	return collectIntents(rows)
}

func collectIntents(rows pgx.Rows) ([]models.Intent, error) {
	var intents []models.Intent
	for rows.Next() {
		var in models.Intent
		r := &in.Record
		if err := rows.Scan(
			&in.Key, &in.RunID, &in.MessageID, &r.StudentName, &r.StudentID, &r.Homework,
			&r.Timestamp, &r.Sender, &r.Path, &in.Logged, &in.Stored, &in.Outcome,
			&in.CreatedAt, &in.UpdatedAt,
		); err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	return intents, rows.Err()
}
