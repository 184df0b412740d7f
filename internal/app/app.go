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

// Package app wires configuration into a ready filing runner. Both commands
// share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/bcem/hwfiler/internal/collector"
	"github.com/bcem/hwfiler/internal/config"
	"github.com/bcem/hwfiler/internal/gapi"
	"github.com/bcem/hwfiler/internal/journal"
	"github.com/bcem/hwfiler/internal/lease"
	"github.com/bcem/hwfiler/internal/ledger"
	"github.com/bcem/hwfiler/internal/mailbox"
	"github.com/bcem/hwfiler/internal/server"
	"github.com/bcem/hwfiler/internal/storage"
)

// App holds the runner and the connections it depends on.
type App struct {
	Runner *collector.Runner
	// Checks are the dependencies pinged by the health endpoint.
	Checks []server.Check

	closers []io.Closer
	pool    *pgxpool.Pool
}

// Close releases every connection opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// LogLevel parses LOG_LEVEL-style names, defaulting to info.
func LogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Build connects to every configured backend and assembles the runner.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if err := a.build(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	// --- Postgres (journal and/or ledger) ---
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("create postgres pool: %w", err)
		}
		a.pool = pool
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		a.Checks = append(a.Checks, server.Check{Name: "postgres", Ping: pool.Ping})
	}

	// --- Redis (claims, attempts, ledger events) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, rdb)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("connected to Redis")
		a.Checks = append(a.Checks, server.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	// --- Google APIs ---
	var gopts []option.ClientOption
	if cfg.NeedsGoogle() {
		opts, err := googleOptions(ctx, cfg.Google)
		if err != nil {
			return err
		}
		gopts = opts
	}

	box, err := a.buildMailbox(ctx, cfg, gopts)
	if err != nil {
		return err
	}
	writer, err := a.buildWriter(ctx, cfg, gopts)
	if err != nil {
		return err
	}
	sinks, err := a.buildSinks(ctx, cfg, gopts, rdb)
	if err != nil {
		return err
	}
	jrnl, err := a.buildJournal(ctx, cfg)
	if err != nil {
		return err
	}

	var claims lease.Claimer
	var attempts lease.AttemptCounter
	if rdb != nil {
		r := lease.NewRedis(rdb, cfg.ClaimTTL)
		claims, attempts = r, r
	} else {
		l := lease.NewLocal(cfg.ClaimTTL)
		claims, attempts = l, l
	}

	ledgerLog := ledger.NewLogger(sinks...)
	slog.Info("ledger ready", "sinks", ledgerLog.Sinks())

	a.Runner = collector.NewRunner(collector.RunnerConfig{
		Mailbox:     box,
		Writer:      writer,
		Ledger:      ledgerLog,
		Journal:     jrnl,
		Claims:      claims,
		Attempts:    attempts,
		RootLabel:   cfg.Label,
		Template:    cfg.Template,
		BatchSize:   cfg.BatchSize,
		Location:    cfg.Location,
		Sanitize:    cfg.Sanitize,
		MaxAttempts: cfg.MaxAttempts,
		ReviewLabel: cfg.ReviewLabel,
	})
	return nil
}

// breaker creates a circuit breaker for a Google API and reports it on the
// health endpoint.
func (a *App) breaker(name string) *gapi.Breaker {
	b := gapi.NewBreaker(name)
	a.Checks = append(a.Checks, server.Check{Name: name, Ping: b.Ping})
	return b
}

func googleOptions(ctx context.Context, gc config.GoogleConfig) ([]option.ClientOption, error) {
	if gc.CredentialsFile == "" {
		return nil, fmt.Errorf("google.credentials_file is required for gmail, drive or sheets")
	}
	data, err := os.ReadFile(gc.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	client, err := gapi.NewHTTPClient(ctx, gapi.Credentials{
		JSON:    data,
		Token:   []byte(gc.Token),
		Subject: gc.Subject,
	})
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(client)}, nil
}

func (a *App) buildMailbox(ctx context.Context, cfg *config.Config, gopts []option.ClientOption) (mailbox.Store, error) {
	if cfg.Mailbox.Provider == "imap" {
		store := mailbox.NewIMAPStore(mailbox.IMAPConfig(cfg.Mailbox.IMAP))
		a.closers = append(a.closers, store)
		slog.Info("mailbox ready", "provider", "imap", "host", cfg.Mailbox.IMAP.Host)
		return store, nil
	}

	svc, err := gmail.NewService(ctx, gopts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	slog.Info("mailbox ready", "provider", "gmail")
	return mailbox.NewGmailStore(svc, cfg.Google.User, a.breaker("gmail")), nil
}

func (a *App) buildWriter(ctx context.Context, cfg *config.Config, gopts []option.ClientOption) (*storage.Writer, error) {
	if cfg.Storage.Provider == "local" {
		slog.Info("storage ready", "provider", "local", "base_path", cfg.Storage.BasePath)
		return storage.NewWriter(storage.NewOSStore(cfg.Storage.BasePath)), nil
	}

	svc, err := drive.NewService(ctx, gopts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	slog.Info("storage ready", "provider", "drive", "root", cfg.Storage.DriveRootID)
	return storage.NewWriter(storage.NewDriveStore(svc, cfg.Storage.DriveRootID, a.breaker("drive"))), nil
}

func (a *App) buildSinks(ctx context.Context, cfg *config.Config, gopts []option.ClientOption, rdb *redis.Client) ([]ledger.Sink, error) {
	var sinks []ledger.Sink

	if cfg.Ledger.SpreadsheetID != "" {
		svc, err := sheets.NewService(ctx, gopts...)
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		sinks = append(sinks, ledger.NewSheetsSink(svc, cfg.Ledger.SpreadsheetID, cfg.Ledger.Sheet, a.breaker("sheets")))
	}
	if cfg.Ledger.Postgres {
		sink, err := ledger.NewPostgresSink(ctx, a.pool)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Ledger.RedisList != "" && rdb != nil {
		sinks = append(sinks, ledger.NewRedisSink(rdb, cfg.Ledger.RedisList))
	}

	return sinks, nil
}

func (a *App) buildJournal(ctx context.Context, cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Provider {
	case "postgres":
		return journal.NewPostgres(ctx, a.pool)
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, j)
		return j, nil
	default:
		return journal.NewMemory(), nil
	}
}
