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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// fakeGmail serves a fixed set of threads for a single label.
type fakeGmail struct {
	mu       sync.Mutex
	labels   []*gmail.Label
	threads  []*gmail.Thread
	attach   map[string]string
	modified map[string]*gmail.ModifyMessageRequest
	archived []string
	created  []string
	lists    []string // page tokens seen by threads.list
	pageSize int      // most threads per list response, 2 when unset
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	parts := strings.Split(path, "/")

	switch {
	case path == "labels" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(&gmail.ListLabelsResponse{Labels: f.labels})

	case path == "labels" && r.Method == http.MethodPost:
		var l gmail.Label
		json.NewDecoder(r.Body).Decode(&l)
		l.Id = "Label_" + l.Name
		f.labels = append(f.labels, &l)
		f.created = append(f.created, l.Name)
		json.NewEncoder(w).Encode(&l)

	case path == "threads" && r.Method == http.MethodGet:
		token := r.URL.Query().Get("pageToken")
		f.lists = append(f.lists, token)
		start := 0
		if token != "" {
			start = int(token[len(token)-1] - '0')
		}
		limit := 2
		if f.pageSize > 0 {
			limit = f.pageSize
		}
		if n, _ := strconv.Atoi(r.URL.Query().Get("maxResults")); n > 0 && n < limit {
			limit = n
		}
		end := min(start+limit, len(f.threads))
		resp := &gmail.ListThreadsResponse{}
		for _, t := range f.threads[start:end] {
			resp.Threads = append(resp.Threads, &gmail.Thread{Id: t.Id})
		}
		if end < len(f.threads) {
			resp.NextPageToken = "page" + string(rune('0'+end))
		}
		json.NewEncoder(w).Encode(resp)

	case len(parts) == 2 && parts[0] == "threads" && r.Method == http.MethodGet:
		for _, t := range f.threads {
			if t.Id == parts[1] {
				json.NewEncoder(w).Encode(t)
				return
			}
		}
		http.NotFound(w, r)

	case len(parts) == 3 && parts[0] == "threads" && parts[2] == "modify":
		f.archived = append(f.archived, parts[1])
		json.NewEncoder(w).Encode(&gmail.Thread{Id: parts[1]})

	case len(parts) == 3 && parts[0] == "messages" && parts[2] == "modify":
		var req gmail.ModifyMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.modified[parts[1]] = &req
		json.NewEncoder(w).Encode(&gmail.Message{Id: parts[1]})

	case len(parts) == 4 && parts[0] == "messages" && parts[2] == "attachments":
		data, ok := f.attach[parts[3]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(&gmail.MessagePartBody{Data: data})

	default:
		http.NotFound(w, r)
	}
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func newFakeGmail() *fakeGmail {
	date := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	thread := func(id string, starred bool) *gmail.Thread {
		labels := []string{"Label_hw", "INBOX"}
		if starred {
			labels = append(labels, "STARRED")
		}
		return &gmail.Thread{Id: id, Messages: []*gmail.Message{{
			Id:           id + "-m0",
			ThreadId:     id,
			LabelIds:     labels,
			InternalDate: date.UnixMilli(),
			Payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Headers: []*gmail.MessagePartHeader{
					{Name: "Subject", Value: "hw2 @Bob#77"},
					{Name: "From", Value: "Bob <bob@x.org>"},
				},
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("hello")}},
					{MimeType: "application/pdf", Filename: "file.PDF", Body: &gmail.MessagePartBody{AttachmentId: "att-1"}},
					{MimeType: "text/plain", Filename: "notes.txt", Body: &gmail.MessagePartBody{Data: b64("inline notes")}},
				},
			},
		}}}
	}

	return &fakeGmail{
		labels: []*gmail.Label{
			{Id: "INBOX", Name: "INBOX", Type: "system"},
			{Id: "Label_hw", Name: "submitted-hw", Type: "user"},
			{Id: "Label_hw1", Name: "submitted-hw/week1", Type: "user"},
		},
		threads: []*gmail.Thread{
			thread("t1", true),
			thread("t2", false),
			thread("t3", true),
		},
		attach:   map[string]string{"att-1": b64("%PDF-1.4")},
		modified: make(map[string]*gmail.ModifyMessageRequest),
	}
}

func newTestGmailStore(t *testing.T, fake *fakeGmail) *GmailStore {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	return NewGmailStore(svc, "", nil)
}

func TestGmailStore_ListLabels(t *testing.T) {
	store := newTestGmailStore(t, newFakeGmail())

	labels, err := store.ListLabels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Label{
		{ID: "Label_hw", Name: "submitted-hw"},
		{ID: "Label_hw1", Name: "submitted-hw/week1"},
	}, labels)
}

func TestGmailStore_ListThreadsPages(t *testing.T) {
	fake := newFakeGmail()
	store := newTestGmailStore(t, fake)
	ctx := context.Background()
	label := Label{ID: "Label_hw", Name: "submitted-hw"}

	first, err := store.ListThreads(ctx, label, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "t1", first[0].ID)
	assert.True(t, first[0].HasStarred())
	assert.False(t, first[1].HasStarred())

	second, err := store.ListThreads(ctx, label, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "t3", second[0].ID)

	assert.Equal(t, []string{"", "page2"}, fake.lists, "second page reuses the cached token")

	msg := first[0].Messages[0]
	assert.Equal(t, "hw2 @Bob#77", msg.Subject)
	assert.Equal(t, "Bob <bob@x.org>", msg.From)
	assert.True(t, msg.Date.Equal(time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)))
}

func TestGmailStore_ListThreadsWalksToUnseenOffset(t *testing.T) {
	fake := newFakeGmail()
	store := newTestGmailStore(t, fake)

	threads, err := store.ListThreads(context.Background(), Label{ID: "Label_hw"}, 2, 2)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "t3", threads[0].ID)
	assert.Equal(t, []string{"", "page2"}, fake.lists)
}

func TestGmailStore_ListThreadsFollowsShortPages(t *testing.T) {
	fake := newFakeGmail()
	fake.pageSize = 1
	store := newTestGmailStore(t, fake)

	threads, err := store.ListThreads(context.Background(), Label{ID: "Label_hw"}, 0, 3)
	require.NoError(t, err)
	require.Len(t, threads, 3)
	assert.Equal(t, "t3", threads[2].ID)
	assert.Equal(t, []string{"", "page1", "page2"}, fake.lists)
}

func TestGmailStore_ShortPagesKeepOffsetsAligned(t *testing.T) {
	fake := newFakeGmail()
	fake.pageSize = 1
	store := newTestGmailStore(t, fake)
	ctx := context.Background()
	label := Label{ID: "Label_hw"}

	first, err := store.ListThreads(ctx, label, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := store.ListThreads(ctx, label, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "t3", second[0].ID)
	assert.Equal(t, []string{"", "page1", "page2"}, fake.lists, "offset 2 resumes from the cached token")

	// A fresh store walking to offset 2 lands on the same thread.
	fake.lists = nil
	walked, err := newTestGmailStore(t, fake).ListThreads(ctx, label, 2, 2)
	require.NoError(t, err)
	require.Len(t, walked, 1)
	assert.Equal(t, "t3", walked[0].ID)
}

func TestGmailStore_ListThreadsPastEnd(t *testing.T) {
	store := newTestGmailStore(t, newFakeGmail())

	threads, err := store.ListThreads(context.Background(), Label{ID: "Label_hw"}, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, threads)
}

func TestGmailStore_Attachments(t *testing.T) {
	store := newTestGmailStore(t, newFakeGmail())
	ctx := context.Background()

	threads, err := store.ListThreads(ctx, Label{ID: "Label_hw"}, 0, 2)
	require.NoError(t, err)

	atts, err := store.Attachments(ctx, threads[0].Messages[0])
	require.NoError(t, err)
	require.Len(t, atts, 2)
	assert.Equal(t, "file.PDF", atts[0].Name)
	assert.Equal(t, "%PDF-1.4", string(atts[0].Data))
	assert.Equal(t, "notes.txt", atts[1].Name)
	assert.Equal(t, "inline notes", string(atts[1].Data))
}

func TestGmailStore_MarksAndArchive(t *testing.T) {
	fake := newFakeGmail()
	store := newTestGmailStore(t, fake)
	ctx := context.Background()

	msg := Message{ID: "t1-m0", ThreadID: "t1"}
	require.NoError(t, store.ClearMark(ctx, msg))
	require.NoError(t, store.MarkReadAndArchive(ctx, Thread{ID: "t1"}))

	assert.Equal(t, []string{"STARRED"}, fake.modified["t1-m0"].RemoveLabelIds)
	assert.Equal(t, []string{"t1"}, fake.archived)
}

func TestGmailStore_FlagForReviewCreatesLabelOnce(t *testing.T) {
	fake := newFakeGmail()
	store := newTestGmailStore(t, fake)
	ctx := context.Background()

	require.NoError(t, store.FlagForReview(ctx, Message{ID: "t1-m0"}, "hw-review"))
	require.NoError(t, store.FlagForReview(ctx, Message{ID: "t3-m0"}, "hw-review"))

	assert.Equal(t, []string{"hw-review"}, fake.created)
	req := fake.modified["t3-m0"]
	assert.Equal(t, []string{"Label_hw-review"}, req.AddLabelIds)
	assert.Equal(t, []string{"STARRED"}, req.RemoveLabelIds)
}

func TestDecodeBase64URL(t *testing.T) {
	for _, in := range []string{"aGk_", "aGk-Pz8=", "aGk-Pz8"} {
		_, err := decodeBase64URL(in)
		assert.NoError(t, err, in)
	}
}
