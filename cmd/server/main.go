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

// hwfiler server
//
// Long-running filer. It:
//  1. Loads configuration from config.yaml, the environment and the keyring
//  2. Connects to the mailbox, storage, ledger and journal backends
//  3. Runs a filing pass at start and then every poll_interval
//  4. Serves /health and POST /run
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcem/hwfiler/internal/app"
	"github.com/bcem/hwfiler/internal/config"
	"github.com/bcem/hwfiler/internal/credential"
	"github.com/bcem/hwfiler/internal/scheduler"
	"github.com/bcem/hwfiler/internal/server"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: app.LogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	slog.Info("starting hwfiler server")

	// --- Load Configuration ---
	var secrets config.SecretSource
	if store, err := credential.Open(); err != nil {
		slog.Warn("keyring unavailable, secrets must come from config or environment", "error", err)
	} else {
		secrets = store
	}

	cfg, err := config.Load(secrets)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"label", cfg.Label,
		"mailbox", cfg.Mailbox.Provider,
		"storage", cfg.Storage.Provider,
		"journal", cfg.Journal.Provider,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// --- HTTP server ---
	handler := server.NewHandler(a.Runner, a.Checks...)
	ready, err := server.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Scheduler ---
	sched := scheduler.New(a.Runner, cfg.PollInterval)
	sched.Start(ctx)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	sched.Stop()

	slog.Info("hwfiler server stopped")
}
