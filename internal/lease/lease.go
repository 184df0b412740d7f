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

// Package lease keeps concurrent passes from processing the same message:
// a short-lived claim per message ID, plus a counter of failed parse
// attempts that survives across passes.
package lease

import (
	"context"
	"time"
)

const (
	// DefaultClaimTTL bounds how long a crashed pass can block a message.
	DefaultClaimTTL = 10 * time.Minute

	// DefaultAttemptTTL is how long a parse-failure count is remembered.
	DefaultAttemptTTL = 30 * 24 * time.Hour
)

// Claimer grants exclusive, expiring claims on message IDs.
type Claimer interface {
	// Claim reports whether the caller now holds id. False means another
	// holder has it.
	Claim(ctx context.Context, id string) (bool, error)
	// Release drops a claim held by the caller.
	Release(ctx context.Context, id string) error
}

// AttemptCounter counts failed parse attempts per message ID.
type AttemptCounter interface {
	Increment(ctx context.Context, id string) (int64, error)
	Reset(ctx context.Context, id string) error
}
