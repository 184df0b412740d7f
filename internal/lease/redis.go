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

package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	claimPrefix   = "hwfiler:claim:"
	attemptPrefix = "hwfiler:attempts:"
)

// releaseScript deletes the claim only while it still holds our token, so
// a claim that expired and was taken by another pass is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis implements Claimer and AttemptCounter on a shared Redis.
type Redis struct {
	rdb        redis.Cmdable
	owner      string
	claimTTL   time.Duration
	attemptTTL time.Duration
}

// NewRedis creates a lease with a fresh owner token. A zero claimTTL uses
// DefaultClaimTTL.
func NewRedis(rdb redis.Cmdable, claimTTL time.Duration) *Redis {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &Redis{
		rdb:        rdb,
		owner:      uuid.NewString(),
		claimTTL:   claimTTL,
		attemptTTL: DefaultAttemptTTL,
	}
}

// Claim sets the claim key with SET NX.
func (r *Redis) Claim(ctx context.Context, id string) (bool, error) {
	set, err := r.rdb.SetNX(ctx, claimPrefix+id, r.owner, r.claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim SETNX: %w", err)
	}
	return set, nil
}

func (r *Redis) Release(ctx context.Context, id string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{claimPrefix + id}, r.owner).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Increment bumps the attempt counter and refreshes its expiry.
func (r *Redis) Increment(ctx context.Context, id string) (int64, error) {
	key := attemptPrefix + id
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.attemptTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("attempts INCR: %w", err)
	}
	return incr.Val(), nil
}

func (r *Redis) Reset(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, attemptPrefix+id).Err(); err != nil {
		return fmt.Errorf("attempts DEL: %w", err)
	}
	return nil
}
