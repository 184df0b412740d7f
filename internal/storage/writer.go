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

// Package storage writes attachment content into a hierarchical content
// store without ever overwriting an existing entry.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrEmptyName is returned when a path has no final file name.
var ErrEmptyName = errors.New("path has no file name")

// Folder identifies a resolved container in a ContentStore.
type Folder struct {
	ID   string // store-specific handle (Drive file ID, filesystem path)
	Path string // slash-joined segments from the store root
}

// ContentStore is the hierarchical store the Writer drives.
type ContentStore interface {
	// ResolveOrCreatePath walks segments from the store root, creating any
	// missing folder, and returns the last one.
	ResolveOrCreatePath(ctx context.Context, segments []string) (Folder, error)
	// FindByName reports whether folder already holds an entry named name.
	FindByName(ctx context.Context, folder Folder, name string) (bool, error)
	// Store saves content under name in folder.
	Store(ctx context.Context, folder Folder, name string, content []byte) error
}

// Status is the result of a write.
type Status string

const (
	StatusWritten Status = "written"
	StatusSkipped Status = "skipped"
)

// Outcome describes what Write did.
type Outcome struct {
	Status Status
	Path   string
	Reason string // set when skipped
}

// Writer stores content at derived paths, refusing to overwrite.
type Writer struct {
	store ContentStore
}

// NewWriter creates a writer on top of the given content store.
func NewWriter(store ContentStore) *Writer {
	return &Writer{store: store}
}

// Write stores content at path unless an entry with the same name already
// exists there, in which case the write is skipped. A skip is not an error.
func (w *Writer) Write(ctx context.Context, content []byte, path string) (Outcome, error) {
	dir, name := SplitPath(path)
	if name == "" {
		return Outcome{}, fmt.Errorf("write %q: %w", path, ErrEmptyName)
	}

	folder, err := w.store.ResolveOrCreatePath(ctx, dir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve folder for %q: %w", path, err)
	}

	exists, err := w.store.FindByName(ctx, folder, name)
	if err != nil {
		return Outcome{}, fmt.Errorf("check existing %q: %w", path, err)
	}
	if exists {
		slog.Info("file already exists, not overwritten",
			"path", path,
		)
		return Outcome{Status: StatusSkipped, Path: path, Reason: "already exists"}, nil
	}

	if err := w.store.Store(ctx, folder, name, content); err != nil {
		return Outcome{}, fmt.Errorf("store %q: %w", path, err)
	}

	slog.Info("file saved", "path", path, "bytes", len(content))
	return Outcome{Status: StatusWritten, Path: path}, nil
}

// SplitPath splits a slash-separated path into its non-empty directory
// segments and the final file name.
func SplitPath(path string) (dir []string, name string) {
	parts := strings.Split(path, "/")
	name = parts[len(parts)-1]
	for _, p := range parts[:len(parts)-1] {
		if p != "" {
			dir = append(dir, p)
		}
	}
	return dir, name
}
