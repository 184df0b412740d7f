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

// hwfiler runs a single filing pass and exits.
//
// Usage:
//
//	go run ./cmd/hwfiler/ [--config config.yaml] [--label submitted-hw] [--template "studentHw/$y/$id/$name"]
//	echo "$PASSWORD" | go run ./cmd/hwfiler/ secret set imap-password
//	go run ./cmd/hwfiler/ secret delete imap-password
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcem/hwfiler/internal/app"
	"github.com/bcem/hwfiler/internal/config"
	"github.com/bcem/hwfiler/internal/credential"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: app.LogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if len(os.Args) > 1 && os.Args[1] == "secret" {
		store, err := credential.Open()
		if err != nil {
			slog.Error("failed to open keyring", "error", err)
			os.Exit(1)
		}
		if err := runSecret(store, os.Args[2:], os.Stdin); err != nil {
			slog.Error("secret command failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// --- CLI Flags ---
	configFlag := flag.String("config", "", "Path to config.yaml (default $CONFIG_PATH or config.yaml)")
	labelFlag := flag.String("label", "", "Root label to file from (overrides config)")
	templateFlag := flag.String("template", "", "Path template (overrides config)")
	flag.Parse()

	// --- Load Configuration ---
	var secrets config.SecretSource
	if store, err := credential.Open(); err != nil {
		slog.Warn("keyring unavailable, secrets must come from config or environment", "error", err)
	} else {
		secrets = store
	}

	var cfg *config.Config
	var err error
	if *configFlag != "" {
		cfg, err = config.LoadFile(*configFlag, secrets)
	} else {
		cfg, err = config.Load(secrets)
	}
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *labelFlag != "" {
		cfg.Label = *labelFlag
	}
	if *templateFlag != "" {
		cfg.Template = *templateFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise", "error", err)
		os.Exit(1)
	}

	result, err := a.Runner.Run(ctx)
	a.Close()
	if err != nil {
		os.Exit(1)
	}

	// --- Summary ---
	for _, lr := range result.Labels {
		slog.Info("label result",
			"label", lr.Label,
			"threads", lr.Threads,
			"messages", lr.Messages,
			"written", lr.Written,
			"skipped", lr.Skipped,
			"invalid", lr.Invalid,
		)
	}
}
