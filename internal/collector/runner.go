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

// Package collector runs one filing pass: it walks every starred message
// under the root label, files each attachment at its templated path, logs a
// ledger row per attachment, then clears the star and archives the thread.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/hwfiler/internal/discovery"
	"github.com/bcem/hwfiler/internal/journal"
	"github.com/bcem/hwfiler/internal/lease"
	"github.com/bcem/hwfiler/internal/mailbox"
	"github.com/bcem/hwfiler/internal/models"
	"github.com/bcem/hwfiler/internal/pathtmpl"
	"github.com/bcem/hwfiler/internal/storage"
	"github.com/bcem/hwfiler/internal/subject"
)

const (
	DefaultBatchSize = 50
	MaxBatchSize     = 500
)

// ErrRunInProgress is returned when Run is called while a pass is active.
var ErrRunInProgress = errors.New("a filing pass is already running")

// Writer stores attachment content without overwriting.
type Writer interface {
	Write(ctx context.Context, content []byte, path string) (storage.Outcome, error)
}

// Ledger appends transaction rows; it reports whether any destination
// accepted the row and never fails the caller.
type Ledger interface {
	Append(ctx context.Context, record models.TransactionRecord) bool
}

// Counts are the per-label tallies of a pass.
type Counts struct {
	Threads          int `json:"threads"`
	Messages         int `json:"messages"`
	Invalid          int `json:"invalid"`
	ClaimedElsewhere int `json:"claimed_elsewhere"`
	Reviewed         int `json:"reviewed"`
	Attachments      int `json:"attachments"`
	Written          int `json:"written"`
	Skipped          int `json:"skipped"`
	LogFailures      int `json:"log_failures"`
}

func (c *Counts) add(o Counts) {
	c.Threads += o.Threads
	c.Messages += o.Messages
	c.Invalid += o.Invalid
	c.ClaimedElsewhere += o.ClaimedElsewhere
	c.Reviewed += o.Reviewed
	c.Attachments += o.Attachments
	c.Written += o.Written
	c.Skipped += o.Skipped
	c.LogFailures += o.LogFailures
}

// LabelResult tracks progress within one label.
type LabelResult struct {
	Label string `json:"label"`
	Counts
}

// RunResult summarises a pass. On an aborted pass it covers the work done
// before the failure.
type RunResult struct {
	RunID      string        `json:"run_id"`
	Labels     []LabelResult `json:"labels"`
	Totals     Counts        `json:"totals"`
	Reconciled int           `json:"reconciled"`
	Elapsed    time.Duration `json:"elapsed"`
}

// RunnerConfig holds the dependencies and settings of a Runner.
type RunnerConfig struct {
	Mailbox  mailbox.Store
	Writer   Writer
	Ledger   Ledger
	Journal  journal.Journal
	Claims   lease.Claimer
	Attempts lease.AttemptCounter

	RootLabel string
	Template  string
	BatchSize int
	Location  *time.Location
	Sanitize  bool
	// MaxAttempts > 0 moves a message to ReviewLabel after that many
	// unparseable passes. Zero leaves it starred forever.
	MaxAttempts int
	ReviewLabel string
}

// Runner performs filing passes. It is safe for concurrent use; overlapping
// calls to Run are rejected.
type Runner struct {
	cfg       RunnerConfig
	discovery *discovery.Discovery
	mu        sync.Mutex
}

// NewRunner creates a runner, filling unset settings with defaults.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Template == "" {
		cfg.Template = pathtmpl.DefaultTemplate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.NewMemory()
	}
	if cfg.Claims == nil || cfg.Attempts == nil {
		local := lease.NewLocal(0)
		if cfg.Claims == nil {
			cfg.Claims = local
		}
		if cfg.Attempts == nil {
			cfg.Attempts = local
		}
	}
	return &Runner{
		cfg:       cfg,
		discovery: discovery.NewDiscovery(cfg.Mailbox),
	}
}

// Run performs one pass over the root label and its sub-labels. Failures of
// the mailbox or the content store abort the pass; work already done stays
// done.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	log := slog.With("run_id", result.RunID)

	log.Info("starting filing pass",
		"label", r.cfg.RootLabel,
		"batch_size", r.cfg.BatchSize,
	)

	result.Reconciled = r.reconcile(ctx, log)

	err := r.run(ctx, log, result)
	result.Elapsed = time.Since(start)
	if err != nil {
		log.Error("filing pass aborted",
			"written", result.Totals.Written,
			"elapsed", result.Elapsed,
			"error", err,
		)
		return result, err
	}

	log.Info("filing pass complete",
		"labels", len(result.Labels),
		"messages", result.Totals.Messages,
		"written", result.Totals.Written,
		"skipped", result.Totals.Skipped,
		"invalid", result.Totals.Invalid,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, result *RunResult) error {
	var exclude []string
	if r.cfg.ReviewLabel != "" {
		exclude = append(exclude, r.cfg.ReviewLabel)
	}
	labels, err := r.discovery.DiscoverLabels(ctx, r.cfg.RootLabel, exclude)
	if err != nil {
		return err
	}

	for _, label := range labels {
		lr, err := r.processLabel(ctx, log, result.RunID, label)
		result.Labels = append(result.Labels, lr)
		result.Totals.add(lr.Counts)
		if err != nil {
			return fmt.Errorf("label %s: %w", label.Name, err)
		}
	}
	return nil
}

// reconcile re-appends ledger rows for attachments that were stored while
// every ledger destination was failing.
func (r *Runner) reconcile(ctx context.Context, log *slog.Logger) int {
	pending, err := r.cfg.Journal.Unlogged(ctx)
	if err != nil {
		log.Warn("journal reconciliation skipped", "error", err)
		return 0
	}

	n := 0
	for _, in := range pending {
		if !r.cfg.Ledger.Append(ctx, in.Record) {
			continue
		}
		if err := r.cfg.Journal.MarkLogged(ctx, in.Key); err != nil {
			log.Warn("mark reconciled intent failed", "key", in.Key, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		log.Info("reconciled missing ledger rows", "count", n)
	}
	return n
}

// starredThreads pages through the label until a short page.
func (r *Runner) starredThreads(ctx context.Context, label mailbox.Label) ([]mailbox.Thread, error) {
	var result []mailbox.Thread
	for offset := 0; ; offset += r.cfg.BatchSize {
		threads, err := r.cfg.Mailbox.ListThreads(ctx, label, offset, r.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list threads at offset %d: %w", offset, err)
		}
		for _, t := range threads {
			if t.HasStarred() {
				result = append(result, t)
			}
		}
		if len(threads) < r.cfg.BatchSize {
			return result, nil
		}
	}
}

func (r *Runner) processLabel(ctx context.Context, log *slog.Logger, runID string, label mailbox.Label) (LabelResult, error) {
	lr := LabelResult{Label: label.Name}

	threads, err := r.starredThreads(ctx, label)
	if err != nil {
		return lr, err
	}
	log.Info("threads to process", "label", label.Name, "threads", len(threads))

	for _, thread := range threads {
		if err := ctx.Err(); err != nil {
			return lr, err
		}
		lr.Threads++

		for mi, msg := range thread.Messages {
			if !msg.Starred {
				continue
			}
			if err := r.processMessage(ctx, log, runID, label, mi, msg, &lr); err != nil {
				return lr, fmt.Errorf("message %s: %w", msg.ID, err)
			}
		}

		if err := r.cfg.Mailbox.MarkReadAndArchive(ctx, thread); err != nil {
			return lr, err
		}
	}
	return lr, nil
}

func (r *Runner) processMessage(ctx context.Context, log *slog.Logger, runID string, label mailbox.Label, index int, msg mailbox.Message, lr *LabelResult) error {
	claimed, err := r.cfg.Claims.Claim(ctx, msg.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("message claimed by another pass", "message_id", msg.ID)
		lr.ClaimedElsewhere++
		return nil
	}
	// A filed message keeps its claim until the TTL expires, so a pass
	// working from an older listing cannot file it again. Anything else
	// releases it for the next pass.
	filed := false
	defer func() {
		if filed {
			return
		}
		if err := r.cfg.Claims.Release(context.WithoutCancel(ctx), msg.ID); err != nil {
			log.Warn("release claim failed", "message_id", msg.ID, "error", err)
		}
	}()

	lr.Messages++
	log.Info("processing message",
		"message_id", msg.ID,
		"date", msg.Date,
		"subject", msg.Subject,
	)

	parsed, ok := subject.Parse(msg.Subject)
	if !ok {
		lr.Invalid++
		return r.handleInvalid(ctx, log, msg, lr)
	}

	atts, err := r.cfg.Mailbox.Attachments(ctx, msg)
	if err != nil {
		return err
	}

	date := msg.Date.In(r.cfg.Location)
	for ai, att := range atts {
		if err := r.fileAttachment(ctx, log, runID, label, index, ai, msg, date, parsed, att, lr); err != nil {
			return err
		}
	}

	if err := r.cfg.Mailbox.ClearMark(ctx, msg); err != nil {
		return err
	}
	filed = true
	if err := r.cfg.Attempts.Reset(ctx, msg.ID); err != nil {
		log.Warn("reset attempts failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

// handleInvalid leaves the star in place so the message is retried, unless
// it has failed MaxAttempts times, in which case it is moved to review.
func (r *Runner) handleInvalid(ctx context.Context, log *slog.Logger, msg mailbox.Message, lr *LabelResult) error {
	n, err := r.cfg.Attempts.Increment(ctx, msg.ID)
	if err != nil {
		log.Warn("count parse attempt failed", "message_id", msg.ID, "error", err)
		return nil
	}

	if r.cfg.MaxAttempts <= 0 || n < int64(r.cfg.MaxAttempts) || r.cfg.ReviewLabel == "" {
		log.Info("subject not in submission format",
			"message_id", msg.ID,
			"subject", msg.Subject,
			"attempts", n,
		)
		return nil
	}

	if err := r.cfg.Mailbox.FlagForReview(ctx, msg, r.cfg.ReviewLabel); err != nil {
		return err
	}
	if err := r.cfg.Attempts.Reset(ctx, msg.ID); err != nil {
		log.Warn("reset attempts failed", "message_id", msg.ID, "error", err)
	}
	lr.Reviewed++
	log.Warn("message moved to review",
		"message_id", msg.ID,
		"subject", msg.Subject,
		"review_label", r.cfg.ReviewLabel,
		"attempts", n,
	)
	return nil
}

func (r *Runner) fileAttachment(
	ctx context.Context,
	log *slog.Logger,
	runID string,
	label mailbox.Label,
	mi, ai int,
	msg mailbox.Message,
	date time.Time,
	parsed models.ParsedSubject,
	att mailbox.Attachment,
	lr *LabelResult,
) error {
	lr.Attachments++

	tc := pathtmpl.NewContext(pathtmpl.ContextInput{
		AttachmentName:  att.Name,
		From:            msg.From,
		LabelName:       label.Name,
		RootLabel:       r.cfg.RootLabel,
		Subject:         parsed,
		Date:            date,
		MessageIndex:    mi,
		AttachmentIndex: ai,
	})
	if r.cfg.Sanitize {
		tc = pathtmpl.SanitizeContext(tc)
	}
	path := pathtmpl.Expand(r.cfg.Template, tc)

	record := models.TransactionRecord{
		StudentName: parsed.StudentName,
		StudentID:   parsed.StudentID,
		Homework:    parsed.Homework,
		Timestamp:   date,
		Sender:      models.SenderAddress(msg.From),
		Path:        path,
	}

	key := models.IntentKey(msg.ID, ai)
	log.Debug("derived attachment path", "key", key, "path", path)
	if err := r.cfg.Journal.Begin(ctx, models.Intent{
		Key:       key,
		RunID:     runID,
		MessageID: msg.ID,
		Record:    record,
	}); err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	if r.cfg.Ledger.Append(ctx, record) {
		if err := r.cfg.Journal.MarkLogged(ctx, key); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	} else {
		lr.LogFailures++
	}

	out, err := r.cfg.Writer.Write(ctx, att.Data, path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := r.cfg.Journal.MarkStored(ctx, key, string(out.Status)); err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	switch out.Status {
	case storage.StatusWritten:
		lr.Written++
	case storage.StatusSkipped:
		lr.Skipped++
	}
	return nil
}
