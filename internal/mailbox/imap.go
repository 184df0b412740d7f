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

package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// IMAPConfig holds the connection settings of an IMAP mailbox.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS; otherwise STARTTLS is required.
	TLS bool
	// ArchiveMailbox receives archived messages. Empty means archiving
	// only marks messages read.
	ArchiveMailbox string
}

// IMAPStore maps the mailbox model onto IMAP: folders are labels, every
// message is its own thread, and the \Flagged flag is the star.
//
// A single connection is used and calls are serialized.
type IMAPStore struct {
	cfg IMAPConfig

	// dial opens an unauthenticated connection.
	dial func() (*imapclient.Client, error)

	mu       sync.Mutex
	client   *imapclient.Client
	delim    rune
	selected string
	validity uint32
	// snapshots holds the UIDs of a mailbox as seen when paging started, so
	// messages moved away mid-pass do not shift later offsets.
	snapshots map[string][]imap.UID
	mailboxes map[string]bool
}

// NewIMAPStore creates a store; the connection is opened on first use.
func NewIMAPStore(cfg IMAPConfig) *IMAPStore {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	s := &IMAPStore{
		cfg:       cfg,
		delim:     '/',
		snapshots: make(map[string][]imap.UID),
		mailboxes: make(map[string]bool),
	}
	s.dial = s.dialServer
	return s
}

func (s *IMAPStore) addr() string {
	return s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
}

func (s *IMAPStore) dialServer() (*imapclient.Client, error) {
	if s.cfg.TLS {
		return imapclient.DialTLS(s.addr(), nil)
	}
	return imapclient.DialStartTLS(s.addr(), nil)
}

func (s *IMAPStore) connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.client != nil {
		// Idle timeouts and network drops only show up on the next command.
		err := s.client.Noop().Wait()
		if err == nil {
			return s.client, nil
		}
		slog.Warn("IMAP connection lost, reconnecting", "addr", s.addr(), "error", err)
		_ = s.client.Close()
		s.client = nil
		s.selected = ""
	}

	client, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("connect to IMAP %s: %w", s.addr(), err)
	}

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("IMAP login as %s: %w", s.cfg.Username, err)
	}

	slog.Info("connected to IMAP server", "addr", s.addr(), "user", s.cfg.Username)
	s.client = client
	s.selected = ""
	return client, nil
}

// Close logs out and drops the connection.
func (s *IMAPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	_ = s.client.Close()
	s.client = nil
	return err
}

// ListLabels returns every selectable mailbox.
func (s *IMAPStore) ListLabels(ctx context.Context) ([]Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}

	var labels []Label
	for _, box := range boxes {
		if box.Delim != 0 {
			s.delim = box.Delim
		}
		s.mailboxes[box.Mailbox] = true
		if hasAttr(box.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		labels = append(labels, Label{
			ID:   box.Mailbox,
			Name: labelName(box.Mailbox, box.Delim),
		})
	}
	return labels, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

// labelName rewrites a mailbox path to use '/' as the separator.
func labelName(mailbox string, delim rune) string {
	if delim == 0 || delim == '/' {
		return mailbox
	}
	return strings.ReplaceAll(mailbox, string(delim), "/")
}

func (s *IMAPStore) mailboxName(label string) string {
	if s.delim == '/' {
		return label
	}
	return strings.ReplaceAll(label, "/", string(s.delim))
}

func (s *IMAPStore) selectMailbox(client *imapclient.Client, mailbox string) error {
	if s.selected == mailbox {
		return nil
	}
	data, err := client.Select(mailbox, nil).Wait()
	if err != nil {
		s.selected = ""
		return fmt.Errorf("select %s: %w", mailbox, err)
	}
	s.selected = mailbox
	s.validity = data.UIDValidity
	return nil
}

// ListThreads returns messages newest first.
func (s *IMAPStore) ListThreads(ctx context.Context, label Label, offset, limit int) ([]Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.selectMailbox(client, label.ID); err != nil {
		return nil, err
	}

	uids, ok := s.snapshots[label.ID]
	if offset == 0 || !ok {
		data, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", label.ID, err)
		}
		uids = data.AllUIDs()
		for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
			uids[i], uids[j] = uids[j], uids[i]
		}
		s.snapshots[label.ID] = uids
	}

	if offset >= len(uids) {
		return nil, nil
	}
	page := uids[offset:min(offset+limit, len(uids))]

	bufs, err := client.Fetch(imap.UIDSetNum(page...), &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		Envelope:     true,
		InternalDate: true,
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", label.ID, err)
	}

	byUID := make(map[imap.UID]*imapclient.FetchMessageBuffer, len(bufs))
	for _, buf := range bufs {
		byUID[buf.UID] = buf
	}

	threads := make([]Thread, 0, len(page))
	for _, uid := range page {
		buf, ok := byUID[uid]
		if !ok {
			// Expunged since the snapshot.
			continue
		}
		msg := messageFromBuffer(buf)
		msg.ID = formatMessageID(label.ID, s.validity, uid)
		msg.ThreadID = msg.ID
		threads = append(threads, Thread{ID: msg.ID, Messages: []Message{msg}})
	}
	return threads, nil
}

func messageFromBuffer(buf *imapclient.FetchMessageBuffer) Message {
	msg := Message{Date: buf.InternalDate}
	if env := buf.Envelope; env != nil {
		msg.Subject = env.Subject
		if !env.Date.IsZero() {
			msg.Date = env.Date
		}
		if len(env.From) > 0 {
			from := env.From[0]
			if from.Name != "" {
				msg.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				msg.From = from.Addr()
			}
		}
	}
	for _, f := range buf.Flags {
		if f == imap.FlagFlagged {
			msg.Starred = true
		}
	}
	return msg
}

// formatMessageID encodes where a message lives. The mailbox comes last
// since it may contain any character.
func formatMessageID(mailbox string, validity uint32, uid imap.UID) string {
	return fmt.Sprintf("%d:%d:%s", validity, uid, mailbox)
}

func parseMessageID(id string) (mailbox string, validity uint32, uid imap.UID, err error) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("malformed IMAP message id %q", id)
	}
	v, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed IMAP message id %q: %w", id, err)
	}
	u, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed IMAP message id %q: %w", id, err)
	}
	return parts[2], uint32(v), imap.UID(u), nil
}

// locate selects the message's mailbox and checks the UID is still valid.
func (s *IMAPStore) locate(ctx context.Context, id string) (*imapclient.Client, imap.UIDSet, error) {
	mailbox, validity, uid, err := parseMessageID(id)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.selectMailbox(client, mailbox); err != nil {
		return nil, nil, err
	}
	if s.validity != validity {
		return nil, nil, fmt.Errorf("mailbox %s UIDVALIDITY changed", mailbox)
	}
	return client, imap.UIDSetNum(uid), nil
}

// Attachments fetches the message body without setting \Seen.
func (s *IMAPStore) Attachments(ctx context.Context, msg Message) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, set, err := s.locate(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	bufs, err := client.Fetch(set, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch body of %s: %w", msg.ID, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("message %s not found", msg.ID)
	}

	raw := bufs[0].FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message %s has no body", msg.ID)
	}
	return parseAttachments(raw)
}

// parseAttachments returns the attachment parts of a raw RFC 5322 message.
func parseAttachments(raw []byte) ([]Attachment, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	var atts []Attachment
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message part: %w", err)
		}

		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		name, err := h.Filename()
		if err != nil || name == "" {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("read attachment %q: %w", name, err)
		}
		atts = append(atts, Attachment{Name: name, ContentType: contentType, Data: body})
	}
	return atts, nil
}

// ClearMark removes \Flagged.
func (s *IMAPStore) ClearMark(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, set, err := s.locate(ctx, msg.ID)
	if err != nil {
		return err
	}
	return storeFlags(client, set, imap.StoreFlagsDel, imap.FlagFlagged)
}

func storeFlags(client *imapclient.Client, set imap.UIDSet, op imap.StoreFlagsOp, flags ...imap.Flag) error {
	err := client.Store(set, &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  flags,
	}, nil).Close()
	if err != nil {
		return fmt.Errorf("store flags %v: %w", flags, err)
	}
	return nil
}

// MarkReadAndArchive sets \Seen and moves messages that no longer carry
// \Flagged to the archive mailbox. Still-flagged messages stay in place so
// the next pass sees them again.
func (s *IMAPStore) MarkReadAndArchive(ctx context.Context, thread Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range thread.Messages {
		client, set, err := s.locate(ctx, msg.ID)
		if err != nil {
			return err
		}
		if err := storeFlags(client, set, imap.StoreFlagsAdd, imap.FlagSeen); err != nil {
			return err
		}
		if s.cfg.ArchiveMailbox == "" {
			continue
		}

		data, err := client.UIDSearch(&imap.SearchCriteria{
			UID:     []imap.UIDSet{set},
			NotFlag: []imap.Flag{imap.FlagFlagged},
		}, nil).Wait()
		if err != nil {
			return fmt.Errorf("search %s: %w", msg.ID, err)
		}
		uids := data.AllUIDs()
		if len(uids) == 0 {
			continue
		}
		if err := s.ensureMailbox(client, s.cfg.ArchiveMailbox); err != nil {
			return err
		}
		if _, err := client.Move(imap.UIDSetNum(uids...), s.cfg.ArchiveMailbox).Wait(); err != nil {
			return fmt.Errorf("move %s to %s: %w", msg.ID, s.cfg.ArchiveMailbox, err)
		}
	}
	return nil
}

// FlagForReview clears \Flagged and moves the message to the review
// mailbox, creating it if needed.
func (s *IMAPStore) FlagForReview(ctx context.Context, msg Message, reviewLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, set, err := s.locate(ctx, msg.ID)
	if err != nil {
		return err
	}
	if err := storeFlags(client, set, imap.StoreFlagsDel, imap.FlagFlagged); err != nil {
		return err
	}

	target := s.mailboxName(reviewLabel)
	if err := s.ensureMailbox(client, target); err != nil {
		return err
	}
	if _, err := client.Move(set, target).Wait(); err != nil {
		return fmt.Errorf("move %s to %s: %w", msg.ID, target, err)
	}
	return nil
}

func (s *IMAPStore) ensureMailbox(client *imapclient.Client, name string) error {
	if s.mailboxes[name] {
		return nil
	}
	boxes, err := client.List("", name, nil).Collect()
	if err != nil {
		return fmt.Errorf("list %s: %w", name, err)
	}
	if len(boxes) == 0 {
		if err := client.Create(name, nil).Wait(); err != nil {
			return fmt.Errorf("create mailbox %s: %w", name, err)
		}
		slog.Info("created IMAP mailbox", "mailbox", name)
	}
	s.mailboxes[name] = true
	return nil
}
