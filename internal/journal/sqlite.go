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
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bcem/hwfiler/internal/models"
)

// SQLite keeps intents in a local SQLite file, for single-host deployments
// without Postgres.
type SQLite struct {
	db *sqlx.DB
}

// intentRow is the flat column layout of hw_intents.
type intentRow struct {
	Key         string    `db:"intent_key"`
	RunID       string    `db:"run_id"`
	MessageID   string    `db:"message_id"`
	StudentName string    `db:"student_name"`
	StudentID   string    `db:"student_id"`
	Homework    string    `db:"homework"`
	MessageTime time.Time `db:"message_time"`
	Sender      string    `db:"sender"`
	Path        string    `db:"path"`
	Logged      bool      `db:"logged"`
	Stored      bool      `db:"stored"`
	Outcome     string    `db:"outcome"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r intentRow) intent() models.Intent {
	return models.Intent{
		Key:       r.Key,
		RunID:     r.RunID,
		MessageID: r.MessageID,
		Record: models.TransactionRecord{
			StudentName: r.StudentName,
			StudentID:   r.StudentID,
			Homework:    r.Homework,
			Timestamp:   r.MessageTime,
			Sender:      r.Sender,
			Path:        r.Path,
		},
		Logged:    r.Logged,
		Stored:    r.Stored,
		Outcome:   r.Outcome,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS hw_intents (
			intent_key    TEXT PRIMARY KEY,
			run_id        TEXT NOT NULL,
			message_id    TEXT NOT NULL,
			student_name  TEXT NOT NULL,
			student_id    TEXT NOT NULL,
			homework      TEXT NOT NULL,
			message_time  DATETIME NOT NULL,
			sender        TEXT NOT NULL,
			path          TEXT NOT NULL,
			logged        BOOLEAN NOT NULL DEFAULT 0,
			stored        BOOLEAN NOT NULL DEFAULT 0,
			outcome       TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_hw_intents_pending ON hw_intents(stored, logged);
	`)
	return err
}

// Begin upserts the intent, clearing any earlier progress on the same key.
func (s *SQLite) Begin(ctx context.Context, in models.Intent) error {
	now := time.Now().UTC()
	r := in.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hw_intents
			(intent_key, run_id, message_id, student_name, student_id, homework,
			 message_time, sender, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (intent_key) DO UPDATE SET
			run_id       = excluded.run_id,
			message_id   = excluded.message_id,
			student_name = excluded.student_name,
			student_id   = excluded.student_id,
			homework     = excluded.homework,
			message_time = excluded.message_time,
			sender       = excluded.sender,
			path         = excluded.path,
			logged       = 0,
			stored       = 0,
			outcome      = '',
			updated_at   = excluded.updated_at
	`, in.Key, in.RunID, in.MessageID, r.StudentName, r.StudentID, r.Homework,
		r.Timestamp.UTC(), r.Sender, r.Path, now, now)
	if err != nil {
		return fmt.Errorf("begin intent %s: %w", in.Key, err)
	}
	return nil
}

func (s *SQLite) MarkLogged(ctx context.Context, key string) error {
	return s.update(ctx, key,
		"UPDATE hw_intents SET logged = 1, updated_at = ? WHERE intent_key = ?",
		time.Now().UTC(), key)
}

func (s *SQLite) MarkStored(ctx context.Context, key, outcome string) error {
	return s.update(ctx, key,
		"UPDATE hw_intents SET stored = 1, outcome = ?, updated_at = ? WHERE intent_key = ?",
		outcome, time.Now().UTC(), key)
}

func (s *SQLite) update(ctx context.Context, key, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update intent %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update intent %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Unlogged(ctx context.Context) ([]models.Intent, error) {
	var rows []intentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT intent_key, run_id, message_id, student_name, student_id, homework,
		       message_time, sender, path, logged, stored, outcome,
		       created_at, updated_at
		FROM hw_intents
		WHERE stored = 1 AND logged = 0
		ORDER BY created_at, intent_key
	`)
	if err != nil {
		return nil, fmt.Errorf("query unlogged intents: %w", err)
	}

	intents := make([]models.Intent, 0, len(rows))
	for _, r := range rows {
		intents = append(intents, r.intent())
	}
	return intents, nil
}
