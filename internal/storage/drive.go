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

package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"

	"github.com/bcem/hwfiler/internal/gapi"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStore keeps attachments in Google Drive folders.
type DriveStore struct {
	svc     *drive.Service
	rootID  string
	breaker *gapi.Breaker

	// folders caches resolved folder IDs keyed by slash-joined path.
	folders map[string]string
	mu      sync.Mutex
}

// NewDriveStore creates a Drive-backed store. rootID is the folder that
// paths are resolved from; "" means the user's My Drive root.
func NewDriveStore(svc *drive.Service, rootID string, breaker *gapi.Breaker) *DriveStore {
	if rootID == "" {
		rootID = "root"
	}
	return &DriveStore{
		svc:     svc,
		rootID:  rootID,
		breaker: breaker,
		folders: make(map[string]string),
	}
}

// ResolveOrCreatePath finds each folder by exact name under its parent,
// creating it when absent.
func (s *DriveStore) ResolveOrCreatePath(ctx context.Context, segments []string) (Folder, error) {
	parentID := s.rootID
	for i, name := range segments {
		path := strings.Join(segments[:i+1], "/")

		s.mu.Lock()
		id, ok := s.folders[path]
		s.mu.Unlock()
		if ok {
			parentID = id
			continue
		}

		id, err := s.findChild(ctx, parentID, name, true)
		if err != nil {
			return Folder{}, err
		}
		if id == "" {
			id, err = s.createFolder(ctx, parentID, name)
			if err != nil {
				return Folder{}, err
			}
			slog.Debug("drive folder created", "path", path, "id", id)
		}

		s.mu.Lock()
		s.folders[path] = id
		s.mu.Unlock()
		parentID = id
	}

	return Folder{ID: parentID, Path: strings.Join(segments, "/")}, nil
}

// FindByName reports whether a non-folder file named name exists in folder.
func (s *DriveStore) FindByName(ctx context.Context, folder Folder, name string) (bool, error) {
	id, err := s.findChild(ctx, folder.ID, name, false)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// Store uploads content as a new file in folder.
func (s *DriveStore) Store(ctx context.Context, folder Folder, name string, content []byte) error {
	file := &drive.File{
		Name:    name,
		Parents: []string{folder.ID},
	}
	return s.breaker.Do("drive.files.create", func() error {
		_, err := s.svc.Files.Create(file).
			Media(bytes.NewReader(content)).
			Fields("id").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("upload %s: %w", name, err)
		}
		return nil
	})
}

// findChild returns the ID of the first untrashed child of parentID with
// the given name, or "" when there is none.
func (s *DriveStore) findChild(ctx context.Context, parentID, name string, folder bool) (string, error) {
	q := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", escapeQuery(parentID), escapeQuery(name))
	if folder {
		q += fmt.Sprintf(" and mimeType = '%s'", folderMimeType)
	} else {
		q += fmt.Sprintf(" and mimeType != '%s'", folderMimeType)
	}

	var list *drive.FileList
	err := s.breaker.Do("drive.files.list", func() error {
		var err error
		list, err = s.svc.Files.List().
			Q(q).
			Fields("files(id, name)").
			PageSize(1).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("list %q in %s: %w", name, parentID, err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (s *DriveStore) createFolder(ctx context.Context, parentID, name string) (string, error) {
	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}

	var created *drive.File
	err := s.breaker.Do("drive.files.create", func() error {
		var err error
		created, err = s.svc.Files.Create(folder).
			Fields("id").
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return created.Id, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query
// string literal.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
