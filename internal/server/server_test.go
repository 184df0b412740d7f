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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcem/hwfiler/internal/collector"
)

type stubPasser struct {
	result *collector.RunResult
	err    error
}

func (s stubPasser) Run(context.Context) (*collector.RunResult, error) {
	return s.result, s.err
}

func ok(context.Context) error { return nil }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		status int
		body   string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all pass", []Check{{"redis", ok}, {"postgres", ok}}, http.StatusOK, "healthy"},
		{"redis down", []Check{
			{"redis", func(context.Context) error { return errors.New("refused") }},
			{"postgres", ok},
		}, http.StatusServiceUnavailable, "redis unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(stubPasser{}, tt.checks...)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body["status"])
		})
	}
}

func TestRun_OK(t *testing.T) {
	result := &collector.RunResult{RunID: "r1"}
	result.Totals.Written = 3
	h := NewHandler(stubPasser{result: result})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got collector.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, 3, got.Totals.Written)
}

func TestRun_Conflict(t *testing.T) {
	h := NewHandler(stubPasser{err: collector.ErrRunInProgress})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRun_Aborted(t *testing.T) {
	partial := &collector.RunResult{RunID: "r2"}
	h := NewHandler(stubPasser{result: partial, err: errors.New("drive unavailable")})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body struct {
		Error  string               `json:"error"`
		Result *collector.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "drive unavailable", body.Error)
	require.NotNil(t, body.Result)
	assert.Equal(t, "r2", body.Result.RunID)
}

func TestRun_MethodNotAllowed(t *testing.T) {
	h := NewHandler(stubPasser{})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready, err := Serve(ctx, 0, NewHandler(stubPasser{}))
	require.NoError(t, err)
	<-ready
}
