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

// Package mailbox reads pre-labelled submission mail and updates its state
// (mark, read, archive) through a small Store interface with Gmail and IMAP
// adapters.
package mailbox

import (
	"context"
	"time"
)

// Label is a mailbox label (Gmail) or folder (IMAP). Name always uses '/'
// as the hierarchy separator.
type Label struct {
	ID   string
	Name string
}

// Message is one message of a thread, as far as the filer needs it.
type Message struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Date     time.Time
	Starred  bool

	// parts is filled by adapters that learn the attachment layout while
	// listing threads.
	parts []partRef
}

// Thread is a conversation; Messages are in chronological order.
type Thread struct {
	ID       string
	Messages []Message
}

// HasStarred reports whether any message in the thread carries the mark.
func (t Thread) HasStarred() bool {
	for _, m := range t.Messages {
		if m.Starred {
			return true
		}
	}
	return false
}

// Attachment is a named blob attached to a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store is the mailbox host.
type Store interface {
	// ListLabels returns every user label.
	ListLabels(ctx context.Context) ([]Label, error)
	// ListThreads returns up to limit threads of label starting at offset.
	// A result shorter than limit means there are no more threads.
	ListThreads(ctx context.Context, label Label, offset, limit int) ([]Thread, error)
	// Attachments returns the message's attachments in their listed order.
	Attachments(ctx context.Context, msg Message) ([]Attachment, error)
	// ClearMark removes the star from the message.
	ClearMark(ctx context.Context, msg Message) error
	// MarkReadAndArchive marks the whole thread read and archives it.
	MarkReadAndArchive(ctx context.Context, thread Thread) error
	// FlagForReview moves a message that keeps failing to parse out of the
	// work queue: it gains the review label and loses the star.
	FlagForReview(ctx context.Context, msg Message, reviewLabel string) error
}

type partRef struct {
	name         string
	contentType  string
	data         string // inline base64url body
	attachmentID string
}
