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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bcem/hwfiler/internal/credential"
)

const (
	DefaultLabel       = "submitted-hw"
	DefaultReviewLabel = "submitted-hw-review"
)

// IMAPConfig holds the IMAP mailbox connection.
type IMAPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	TLS            bool
	ArchiveMailbox string
}

// MailboxConfig selects the mailbox host ("gmail" or "imap").
type MailboxConfig struct {
	Provider string
	IMAP     IMAPConfig
}

// StorageConfig selects where attachments go ("drive" or "local").
type StorageConfig struct {
	Provider    string
	DriveRootID string
	BasePath    string
}

// LedgerConfig lists the ledger destinations. Each is optional.
type LedgerConfig struct {
	SpreadsheetID string
	Sheet         string
	Postgres      bool
	RedisList     string
}

// GoogleConfig holds Google API credentials.
type GoogleConfig struct {
	CredentialsFile string
	TokenFile       string
	// Token is the OAuth user token JSON, read from TokenFile or the keyring.
	Token   string
	Subject string
	User    string
}

// JournalConfig selects the intent journal ("postgres", "sqlite" or "memory").
type JournalConfig struct {
	Provider   string
	SQLitePath string
}

// Config holds all configuration for the filer.
type Config struct {
	Label       string
	Template    string
	BatchSize   int
	Location    *time.Location
	Sanitize    bool
	MaxAttempts int
	ReviewLabel string

	Mailbox MailboxConfig
	Storage StorageConfig
	Ledger  LedgerConfig
	Google  GoogleConfig
	Journal JournalConfig

	RedisURL    string
	DatabaseURL string

	PollInterval time.Duration
	ClaimTTL     time.Duration
	Port         int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Label       string `yaml:"label"`
	Template    string `yaml:"template"`
	BatchSize   int    `yaml:"batch_size"`
	Timezone    string `yaml:"timezone"`
	Sanitize    *bool  `yaml:"sanitize"`
	MaxAttempts *int   `yaml:"max_attempts"`
	ReviewLabel string `yaml:"review_label"`
	Mailbox     struct {
		Provider string `yaml:"provider"`
		IMAP     struct {
			Host           string `yaml:"host"`
			Port           int    `yaml:"port"`
			Username       string `yaml:"username"`
			Password       string `yaml:"password"`
			TLS            *bool  `yaml:"tls"`
			ArchiveMailbox string `yaml:"archive_mailbox"`
		} `yaml:"imap"`
	} `yaml:"mailbox"`
	Storage struct {
		Provider    string `yaml:"provider"`
		DriveRootID string `yaml:"drive_root_id"`
		BasePath    string `yaml:"base_path"`
	} `yaml:"storage"`
	Ledger struct {
		Sheets struct {
			SpreadsheetID string `yaml:"spreadsheet_id"`
			Sheet         string `yaml:"sheet"`
		} `yaml:"sheets"`
		Postgres  bool   `yaml:"postgres"`
		RedisList string `yaml:"redis_list"`
	} `yaml:"ledger"`
	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		Subject         string `yaml:"subject"`
		User            string `yaml:"user"`
	} `yaml:"google"`
	Journal struct {
		Provider   string `yaml:"provider"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"journal"`
	RedisURL     string `yaml:"redis_url"`
	DatabaseURL  string `yaml:"database_url"`
	PollInterval string `yaml:"poll_interval"`
	ClaimTTL     string `yaml:"claim_ttl"`
	Port         int    `yaml:"port"`
}

// Load reads configuration from the file named by CONFIG_PATH
// (default config.yaml).
func Load(secrets SecretSource) (*Config, error) {
	return LoadFile(envOrDefault("CONFIG_PATH", "config.yaml"), secrets)
}

// LoadFile reads configuration from path (with env var expansion) and
// environment variables for settings the file leaves empty. A .env file in
// the working directory is loaded into the environment first. Secrets the
// file and environment leave empty are taken from secrets, which may be nil.
func LoadFile(path string, secrets SecretSource) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return Parse(data, secrets)
}

// bracedVar matches ${VAR}. Bare $name is left alone since path templates
// use it for placeholders.
var bracedVar = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	return bracedVar.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Parse builds a Config from YAML, expanding ${VAR} references.
func Parse(data []byte, secrets SecretSource) (*Config, error) {
	expanded := expandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Label:       firstNonEmpty(raw.Label, envOrDefault("HW_LABEL", DefaultLabel)),
		Template:    firstNonEmpty(raw.Template, os.Getenv("HW_TEMPLATE")),
		BatchSize:   firstPositive(raw.BatchSize, envOrDefaultInt("BATCH_SIZE", 50)),
		Sanitize:    true,
		ReviewLabel: firstNonEmpty(raw.ReviewLabel, DefaultReviewLabel),
		Mailbox: MailboxConfig{
			Provider: firstNonEmpty(raw.Mailbox.Provider, "gmail"),
			IMAP: IMAPConfig{
				Host:           raw.Mailbox.IMAP.Host,
				Port:           firstPositive(raw.Mailbox.IMAP.Port, 993),
				Username:       raw.Mailbox.IMAP.Username,
				Password:       firstNonEmpty(raw.Mailbox.IMAP.Password, os.Getenv("IMAP_PASSWORD")),
				TLS:            true,
				ArchiveMailbox: raw.Mailbox.IMAP.ArchiveMailbox,
			},
		},
		Storage: StorageConfig{
			Provider:    firstNonEmpty(raw.Storage.Provider, "drive"),
			DriveRootID: raw.Storage.DriveRootID,
			BasePath:    firstNonEmpty(raw.Storage.BasePath, "."),
		},
		Ledger: LedgerConfig{
			SpreadsheetID: raw.Ledger.Sheets.SpreadsheetID,
			Sheet:         raw.Ledger.Sheets.Sheet,
			Postgres:      raw.Ledger.Postgres,
			RedisList:     raw.Ledger.RedisList,
		},
		Google: GoogleConfig{
			CredentialsFile: firstNonEmpty(raw.Google.CredentialsFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
			TokenFile:       raw.Google.TokenFile,
			Subject:         raw.Google.Subject,
			User:            raw.Google.User,
		},
		Journal: JournalConfig{
			Provider:   raw.Journal.Provider,
			SQLitePath: firstNonEmpty(raw.Journal.SQLitePath, "hwfiler-journal.db"),
		},
		RedisURL:     firstNonEmpty(raw.RedisURL, os.Getenv("REDIS_URL")),
		DatabaseURL:  firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),
		PollInterval: envOrDefaultDuration("POLL_INTERVAL", 5*time.Minute),
		ClaimTTL:     envOrDefaultDuration("CLAIM_TTL", 10*time.Minute),
		Port:         firstPositive(raw.Port, envOrDefaultInt("PORT", 8080)),
	}

	if raw.Sanitize != nil {
		cfg.Sanitize = *raw.Sanitize
	}
	if raw.MaxAttempts != nil {
		cfg.MaxAttempts = *raw.MaxAttempts
	} else {
		cfg.MaxAttempts = envOrDefaultInt("MAX_ATTEMPTS", 0)
	}
	if raw.Mailbox.IMAP.TLS != nil {
		cfg.Mailbox.IMAP.TLS = *raw.Mailbox.IMAP.TLS
	}

	var err error
	if raw.PollInterval != "" {
		if cfg.PollInterval, err = time.ParseDuration(raw.PollInterval); err != nil {
			return nil, fmt.Errorf("parse poll_interval: %w", err)
		}
	}
	if raw.ClaimTTL != "" {
		if cfg.ClaimTTL, err = time.ParseDuration(raw.ClaimTTL); err != nil {
			return nil, fmt.Errorf("parse claim_ttl: %w", err)
		}
	}

	tz := firstNonEmpty(raw.Timezone, os.Getenv("TZ"), "Local")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	if err := cfg.fillSecrets(secrets); err != nil {
		return nil, err
	}

	if cfg.Journal.Provider == "" {
		cfg.Journal.Provider = "sqlite"
		if cfg.DatabaseURL != "" {
			cfg.Journal.Provider = "postgres"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected providers have what they need.
func (c *Config) Validate() error {
	var errs []error

	if c.BatchSize > 500 {
		errs = append(errs, fmt.Errorf("batch_size %d exceeds the maximum of 500", c.BatchSize))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must not be negative"))
	}

	switch c.Mailbox.Provider {
	case "gmail":
	case "imap":
		if c.Mailbox.IMAP.Host == "" || c.Mailbox.IMAP.Username == "" {
			errs = append(errs, fmt.Errorf("mailbox.imap.host and mailbox.imap.username are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mailbox.provider %q", c.Mailbox.Provider))
	}

	switch c.Storage.Provider {
	case "drive", "local":
	default:
		errs = append(errs, fmt.Errorf("unknown storage.provider %q", c.Storage.Provider))
	}

	switch c.Journal.Provider {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("journal.provider postgres requires database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal.provider %q", c.Journal.Provider))
	}

	if c.Ledger.SpreadsheetID == "" && !c.Ledger.Postgres && c.Ledger.RedisList == "" {
		errs = append(errs, fmt.Errorf("at least one ledger destination is required"))
	}
	if c.Ledger.Postgres && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("ledger.postgres requires database_url"))
	}
	if c.Ledger.RedisList != "" && c.RedisURL == "" {
		errs = append(errs, fmt.Errorf("ledger.redis_list requires redis_url"))
	}

	return errors.Join(errs...)
}

// NeedsGoogle reports whether any configured component calls Google APIs.
func (c *Config) NeedsGoogle() bool {
	return c.Mailbox.Provider == "gmail" || c.Storage.Provider == "drive" || c.Ledger.SpreadsheetID != ""
}

// SecretSource supplies secrets missing from the config.
type SecretSource interface {
	Fill(value, key string) (string, error)
}

// fillSecrets reads the Google token file when one is configured and
// completes empty secrets from src.
func (c *Config) fillSecrets(src SecretSource) error {
	if c.Google.TokenFile != "" {
		data, err := os.ReadFile(c.Google.TokenFile)
		if err != nil {
			return fmt.Errorf("read google token file: %w", err)
		}
		c.Google.Token = string(data)
	}
	if src == nil {
		return nil
	}

	var err error
	if c.Mailbox.Provider == "imap" {
		if c.Mailbox.IMAP.Password, err = src.Fill(c.Mailbox.IMAP.Password, credential.KeyIMAPPassword); err != nil {
			return err
		}
	}
	if c.Google.Token, err = src.Fill(c.Google.Token, credential.KeyGoogleToken); err != nil {
		return err
	}
	if c.DatabaseURL, err = src.Fill(c.DatabaseURL, credential.KeyDatabaseURL); err != nil {
		return err
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
