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

package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/hwfiler/internal/models"
	"github.com/bcem/hwfiler/internal/testutil"
)

func testIntent(key string) models.Intent {
	return models.Intent{
		Key:       key,
		RunID:     "run-1",
		MessageID: "msg-1",
		Record: models.TransactionRecord{
			StudentName: "Bob",
			StudentID:   "77",
			Homework:    "hw2 ",
			Timestamp:   time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
			Sender:      "bob@x.org",
			Path:        "studentHw/2024/77/" + key + ".pdf",
		},
	}
}

// exerciseJournal runs the behaviour every Journal must share.
func exerciseJournal(t *testing.T, j Journal) {
	ctx := context.Background()

	require.NoError(t, j.Begin(ctx, testIntent("msg-1:0")))
	require.NoError(t, j.Begin(ctx, testIntent("msg-1:1")))
	require.NoError(t, j.Begin(ctx, testIntent("msg-1:2")))

	// 0: logged and stored. 1: stored only. 2: neither.
	require.NoError(t, j.MarkLogged(ctx, "msg-1:0"))
	require.NoError(t, j.MarkStored(ctx, "msg-1:0", "written"))
	require.NoError(t, j.MarkStored(ctx, "msg-1:1", "skipped"))

	pending, err := j.Unlogged(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-1:1", pending[0].Key)
	assert.Equal(t, "skipped", pending[0].Outcome)
	assert.Equal(t, "Bob", pending[0].Record.StudentName)
	assert.Equal(t, "hw2 ", pending[0].Record.Homework)
	assert.True(t, pending[0].Record.Timestamp.Equal(testIntent("x").Record.Timestamp))

	require.NoError(t, j.MarkLogged(ctx, "msg-1:1"))
	pending, err = j.Unlogged(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Beginning again resets progress.
	require.NoError(t, j.Begin(ctx, testIntent("msg-1:0")))
	require.NoError(t, j.MarkStored(ctx, "msg-1:0", "written"))
	pending, err = j.Unlogged(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-1:0", pending[0].Key)

	err = j.MarkLogged(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	err = j.MarkStored(ctx, "missing", "written")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestMemory(t *testing.T) {
	exerciseJournal(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	j, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer j.Close()

	exerciseJournal(t, j)
}

func TestSQLite_ReopenKeepsIntents(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	ctx := context.Background()

	j, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, j.Begin(ctx, testIntent("msg-1:0")))
	require.NoError(t, j.MarkStored(ctx, "msg-1:0", "written"))
	require.NoError(t, j.Close())

	j, err = NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	pending, err := j.Unlogged(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestPostgres(t *testing.T) {
	pool := testutil.StartPostgres(t)

	j, err := NewPostgres(context.Background(), pool)
	require.NoError(t, err)

	exerciseJournal(t, j)
}
