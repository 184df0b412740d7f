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

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/hwfiler/internal/models"
	"github.com/bcem/hwfiler/internal/testutil"
)

func TestPostgresSink_AppendsDuplicates(t *testing.T) {
	pool := testutil.StartPostgres(t)
	ctx := context.Background()

	sink, err := NewPostgresSink(ctx, pool)
	require.NoError(t, err)

	// Re-creating the sink must tolerate the existing table.
	sink, err = NewPostgresSink(ctx, pool)
	require.NoError(t, err)

	require.NoError(t, sink.Append(ctx, testRecord()))
	require.NoError(t, sink.Append(ctx, testRecord()))

	rows, err := pool.Query(ctx, `
		SELECT student_id, message_time, path
		FROM hw_transactions
		ORDER BY id
	`)
	require.NoError(t, err)
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var r models.TransactionRecord
		require.NoError(t, rows.Scan(&r.StudentID, &r.Timestamp, &r.Path))
		records = append(records, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, records, 2)
	assert.Equal(t, "77", records[0].StudentID)
	assert.Equal(t, "studentHw/2024/77/file.pdf", records[0].Path)
	assert.True(t, records[0].Timestamp.Equal(testRecord().Timestamp))
}

func TestRedisSink_PushesEvent(t *testing.T) {
	rdb := testutil.StartRedis(t)
	ctx := context.Background()

	sink := NewRedisSink(rdb, "hwfiler:ledger")
	require.NoError(t, sink.Append(ctx, testRecord()))

	msgs, err := rdb.LRange(ctx, "hwfiler:ledger", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], `"type":"homework.filed"`)
	assert.Contains(t, msgs[0], `"student_id":"77"`)
}
