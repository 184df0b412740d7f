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

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSenderAddress(t *testing.T) {
	tests := map[string]string{
		"Bob Smith <bob@example.com>": "bob@example.com",
		"bob@example.com":             "bob@example.com",
		"<bob@example.com>":           "<bob@example.com>",
		"":                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SenderAddress(in), "input %q", in)
	}
}

func TestTransactionRecord_Row(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 1, 0, time.UTC)
	r := TransactionRecord{
		StudentName: "Alice",
		StudentID:   "123",
		Homework:    "hw1 ",
		Timestamp:   ts,
		Sender:      "alice@example.com",
		Path:        "studentHw/2024/123/x.pdf",
	}

	assert.Equal(t, []string{
		"Alice", "123", "hw1 ", "2024-03-07T09:05:01Z", "alice@example.com", "studentHw/2024/123/x.pdf",
	}, r.Row())
}

func TestIntentKey(t *testing.T) {
	assert.Equal(t, "msg-1:0", IntentKey("msg-1", 0))
	assert.Equal(t, "msg-1:12", IntentKey("msg-1", 12))
}
