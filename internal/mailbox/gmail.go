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
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/bcem/hwfiler/internal/gapi"
)

const (
	labelStarred = "STARRED"
	labelUnread  = "UNREAD"
	labelInbox   = "INBOX"
)

// GmailStore reads and relabels mail through the Gmail API.
type GmailStore struct {
	svc     *gmail.Service
	user    string
	breaker *gapi.Breaker

	mu sync.Mutex
	// pageTokens maps label ID -> offset -> page token for that offset.
	pageTokens map[string]map[int]string
	// labelIDs caches label name -> ID for review labels.
	labelIDs map[string]string
}

// NewGmailStore creates a store for user ("" means the authenticated user).
func NewGmailStore(svc *gmail.Service, user string, breaker *gapi.Breaker) *GmailStore {
	if user == "" {
		user = "me"
	}
	return &GmailStore{
		svc:        svc,
		user:       user,
		breaker:    breaker,
		pageTokens: make(map[string]map[int]string),
		labelIDs:   make(map[string]string),
	}
}

// ListLabels returns the user-defined labels.
func (s *GmailStore) ListLabels(ctx context.Context) ([]Label, error) {
	var resp *gmail.ListLabelsResponse
	err := s.breaker.Do("gmail.labels.list", func() error {
		var err error
		resp, err = s.svc.Users.Labels.List(s.user).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list gmail labels: %w", err)
	}

	var labels []Label
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range resp.Labels {
		s.labelIDs[l.Name] = l.Id
		if l.Type != "user" {
			continue
		}
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// ListThreads pages through the label's threads. The API pages by token, so
// the token for each offset is remembered; an unseen offset is reached by
// walking from the start.
func (s *GmailStore) ListThreads(ctx context.Context, label Label, offset, limit int) ([]Thread, error) {
	token, ok, err := s.pageToken(ctx, label.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	refs, next, err := s.listRefs(ctx, label.ID, token, limit)
	if err != nil {
		return nil, err
	}
	if next != "" {
		s.rememberToken(label.ID, offset+limit, next)
	}

	threads := make([]Thread, 0, len(refs))
	for _, ref := range refs {
		t, err := s.getThread(ctx, ref.Id)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// listRefs collects up to limit thread refs starting at token. The API may
// return a short page that still carries a NextPageToken, so pages are
// followed until limit is reached or the label ends. next starts the thread
// after the last one returned and is "" at the end of the label.
func (s *GmailStore) listRefs(ctx context.Context, labelID, token string, limit int) ([]*gmail.Thread, string, error) {
	var refs []*gmail.Thread
	for {
		resp, err := s.listPage(ctx, labelID, token, limit-len(refs))
		if err != nil {
			return nil, "", err
		}
		refs = append(refs, resp.Threads...)
		token = resp.NextPageToken
		if len(refs) >= limit || token == "" {
			return refs, token, nil
		}
	}
}

func (s *GmailStore) listPage(ctx context.Context, labelID, token string, limit int) (*gmail.ListThreadsResponse, error) {
	var resp *gmail.ListThreadsResponse
	err := s.breaker.Do("gmail.threads.list", func() error {
		call := s.svc.Users.Threads.List(s.user).
			LabelIds(labelID).
			MaxResults(int64(limit)).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list threads in %s: %w", labelID, err)
	}
	return resp, nil
}

// pageToken returns the token that starts the page at offset. ok is false
// when the label has fewer than offset threads.
func (s *GmailStore) pageToken(ctx context.Context, labelID string, offset, limit int) (string, bool, error) {
	if offset == 0 {
		return "", true, nil
	}

	s.mu.Lock()
	token, ok := s.pageTokens[labelID][offset]
	s.mu.Unlock()
	if ok {
		return token, true, nil
	}

	token = ""
	for at := 0; at < offset; {
		refs, next, err := s.listRefs(ctx, labelID, token, min(limit, offset-at))
		if err != nil {
			return "", false, err
		}
		if next == "" {
			return "", false, nil
		}
		at += len(refs)
		token = next
		s.rememberToken(labelID, at, token)
	}
	return token, true, nil
}

func (s *GmailStore) rememberToken(labelID string, offset int, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageTokens[labelID] == nil {
		s.pageTokens[labelID] = make(map[int]string)
	}
	s.pageTokens[labelID][offset] = token
}

func (s *GmailStore) getThread(ctx context.Context, id string) (Thread, error) {
	var gt *gmail.Thread
	err := s.breaker.Do("gmail.threads.get", func() error {
		var err error
		gt, err = s.svc.Users.Threads.Get(s.user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}

	t := Thread{ID: gt.Id, Messages: make([]Message, 0, len(gt.Messages))}
	for _, gm := range gt.Messages {
		t.Messages = append(t.Messages, convertMessage(gm))
	}
	return t, nil
}

func convertMessage(gm *gmail.Message) Message {
	m := Message{
		ID:       gm.Id,
		ThreadID: gm.ThreadId,
	}
	for _, l := range gm.LabelIds {
		if l == labelStarred {
			m.Starred = true
		}
	}
	if gm.InternalDate > 0 {
		m.Date = time.UnixMilli(gm.InternalDate)
	}

	if gm.Payload == nil {
		return m
	}
	for _, h := range gm.Payload.Headers {
		switch h.Name {
		case "Subject":
			m.Subject = h.Value
		case "From":
			m.From = h.Value
		case "Date":
			if m.Date.IsZero() {
				if t, err := mail.ParseDate(h.Value); err == nil {
					m.Date = t
				}
			}
		}
	}
	m.parts = collectParts(gm.Payload, nil)
	return m
}

// collectParts walks the MIME tree depth first and keeps every part that
// carries a filename.
func collectParts(part *gmail.MessagePart, out []partRef) []partRef {
	if part.Filename != "" {
		ref := partRef{name: part.Filename, contentType: part.MimeType}
		if part.Body != nil {
			ref.attachmentID = part.Body.AttachmentId
			ref.data = part.Body.Data
		}
		out = append(out, ref)
	}
	for _, p := range part.Parts {
		out = collectParts(p, out)
	}
	return out
}

// Attachments downloads every attachment of msg.
func (s *GmailStore) Attachments(ctx context.Context, msg Message) ([]Attachment, error) {
	atts := make([]Attachment, 0, len(msg.parts))
	for _, ref := range msg.parts {
		data := ref.data
		if ref.attachmentID != "" {
			var body *gmail.MessagePartBody
			err := s.breaker.Do("gmail.attachments.get", func() error {
				var err error
				body, err = s.svc.Users.Messages.Attachments.Get(s.user, msg.ID, ref.attachmentID).Context(ctx).Do()
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("get attachment %q of %s: %w", ref.name, msg.ID, err)
			}
			data = body.Data
		}

		content, err := decodeBase64URL(data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment %q of %s: %w", ref.name, msg.ID, err)
		}
		atts = append(atts, Attachment{
			Name:        ref.name,
			ContentType: ref.contentType,
			Data:        content,
		})
	}
	return atts, nil
}

// decodeBase64URL accepts the URL-safe alphabet with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// ClearMark removes the star from msg.
func (s *GmailStore) ClearMark(ctx context.Context, msg Message) error {
	return s.modifyMessage(ctx, msg.ID, nil, []string{labelStarred})
}

// MarkReadAndArchive removes UNREAD and INBOX from every message of the
// thread. The thread keeps its user labels.
func (s *GmailStore) MarkReadAndArchive(ctx context.Context, thread Thread) error {
	err := s.breaker.Do("gmail.threads.modify", func() error {
		_, err := s.svc.Users.Threads.Modify(s.user, thread.ID, &gmail.ModifyThreadRequest{
			RemoveLabelIds: []string{labelUnread, labelInbox},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("archive thread %s: %w", thread.ID, err)
	}
	return nil
}

// FlagForReview adds reviewLabel (created on first use) and clears the star.
func (s *GmailStore) FlagForReview(ctx context.Context, msg Message, reviewLabel string) error {
	labelID, err := s.ensureLabel(ctx, reviewLabel)
	if err != nil {
		return err
	}
	return s.modifyMessage(ctx, msg.ID, []string{labelID}, []string{labelStarred})
}

func (s *GmailStore) ensureLabel(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	id, ok := s.labelIDs[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := s.ListLabels(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	id, ok = s.labelIDs[name]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var created *gmail.Label
	err := s.breaker.Do("gmail.labels.create", func() error {
		var err error
		created, err = s.svc.Users.Labels.Create(s.user, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}

	slog.Info("created gmail label", "label", name, "id", created.Id)
	s.mu.Lock()
	s.labelIDs[name] = created.Id
	s.mu.Unlock()
	return created.Id, nil
}

func (s *GmailStore) modifyMessage(ctx context.Context, id string, add, remove []string) error {
	err := s.breaker.Do("gmail.messages.modify", func() error {
		_, err := s.svc.Users.Messages.Modify(s.user, id, &gmail.ModifyMessageRequest{
			AddLabelIds:    add,
			RemoveLabelIds: remove,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}
