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

package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/bcem/hwfiler/internal/gapi"
)

func TestBreakerReportsOnHealth(t *testing.T) {
	a := &App{}
	b := a.breaker("drive")

	require.Len(t, a.Checks, 1)
	check := a.Checks[0]
	assert.Equal(t, "drive", check.Name)
	assert.NoError(t, check.Ping(context.Background()))

	for i := 0; i < 6; i++ {
		_ = b.Do("files.create", func() error { return &googleapi.Error{Code: 503} })
	}
	assert.ErrorIs(t, check.Ping(context.Background()), gapi.ErrOpen)
}

func TestLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, LogLevel(name), name)
	}
}
