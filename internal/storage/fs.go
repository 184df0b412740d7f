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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FSStore keeps attachments in a directory tree on an afero filesystem.
type FSStore struct {
	fs   afero.Fs
	base string
}

// NewFSStore creates a store rooted at base on fs.
func NewFSStore(fs afero.Fs, base string) *FSStore {
	return &FSStore{fs: fs, base: base}
}

// NewOSStore creates a store rooted at base on the local disk.
func NewOSStore(base string) *FSStore {
	return NewFSStore(afero.NewOsFs(), base)
}

// ResolveOrCreatePath creates the nested directories under the base path.
func (s *FSStore) ResolveOrCreatePath(_ context.Context, segments []string) (Folder, error) {
	dir := filepath.Join(append([]string{s.base}, segments...)...)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return Folder{}, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return Folder{ID: dir, Path: strings.Join(segments, "/")}, nil
}

// FindByName reports whether an entry with name exists in folder.
func (s *FSStore) FindByName(_ context.Context, folder Folder, name string) (bool, error) {
	_, err := s.fs.Stat(filepath.Join(folder.ID, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, err)
}

// Store writes content to a new file. O_EXCL makes a concurrent writer that
// lost the race fail instead of overwriting.
func (s *FSStore) Store(_ context.Context, folder Folder, name string, content []byte) error {
	f, err := s.fs.OpenFile(filepath.Join(folder.ID, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
