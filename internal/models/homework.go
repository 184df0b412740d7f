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

// Package models defines the data structures shared across the filer.
package models

import (
	"regexp"
	"strconv"
	"time"
)

// ParsedSubject holds the fields extracted from a submission subject line
// of the form "<homework>@<student name>#<student id>".
type ParsedSubject struct {
	Homework    string `json:"homework"`
	StudentName string `json:"student_name"`
	StudentID   string `json:"student_id"`
}

// TransactionRecord is one ledger row describing a filed attachment.
type TransactionRecord struct {
	StudentName string    `json:"student_name"`
	StudentID   string    `json:"student_id"`
	Homework    string    `json:"homework"`
	Timestamp   time.Time `json:"timestamp"`
	Sender      string    `json:"sender"`
	Path        string    `json:"path"`
}

// Row renders the record in ledger column order:
// student name, student id, homework, message timestamp, sender, path.
func (r TransactionRecord) Row() []string {
	return []string{
		r.StudentName,
		r.StudentID,
		r.Homework,
		r.Timestamp.Format(time.RFC3339),
		r.Sender,
		r.Path,
	}
}

var angleAddress = regexp.MustCompile(`^.+<([^>]+)>$`)

// SenderAddress reduces a From value like "Bob <bob@example.com>" to the bare
// address. Values without a display name are returned unchanged.
func SenderAddress(from string) string {
	return angleAddress.ReplaceAllString(from, "$1")
}

// Intent is a journal entry recorded before an attachment is logged and
// written, so a crash between the two writes can be reconciled.
type Intent struct {
	Key       string            `json:"key"`
	RunID     string            `json:"run_id"`
	MessageID string            `json:"message_id"`
	Record    TransactionRecord `json:"record"`
	Stored    bool              `json:"stored"`
	Logged    bool              `json:"logged"`
	Outcome   string            `json:"outcome"` // "", "written", "skipped"
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IntentKey identifies one attachment of one message.
func IntentKey(messageID string, attachmentIndex int) string {
	return messageID + ":" + strconv.Itoa(attachmentIndex)
}
