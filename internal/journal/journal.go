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

// Package journal records an intent before each attachment is logged and
// written. The ledger append and the file write are two independent stores;
// the journal lets a later pass find files that were stored while their
// ledger row was lost, and append the missing row.
package journal

import (
	"context"
	"errors"

	"github.com/bcem/hwfiler/internal/models"
)

// ErrNotFound is returned when a key has no intent.
var ErrNotFound = errors.New("intent not found")

// Journal is the write-ahead record of per-attachment work.
type Journal interface {
	// Begin records (or resets) the intent for intent.Key.
	Begin(ctx context.Context, intent models.Intent) error
	// MarkLogged notes that the ledger row was appended.
	MarkLogged(ctx context.Context, key string) error
	// MarkStored notes the write outcome ("written" or "skipped").
	MarkStored(ctx context.Context, key, outcome string) error
	// Unlogged returns intents that were stored but never logged, oldest
	// first.
	Unlogged(ctx context.Context) ([]models.Intent, error)
}
