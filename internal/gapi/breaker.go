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

// Package gapi holds the plumbing shared by the Google API adapters (Gmail,
// Drive, Sheets): OAuth2 HTTP clients and a circuit breaker.
package gapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

// Breaker wraps Google API calls so sustained server-side failures fail fast
// instead of hammering the API. A nil *Breaker calls through directly.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker that opens after more than 5 consecutive
// failures, or a 60% failure ratio over at least 10 requests.
func NewBreaker(name string) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var ce *clientError
			return err == nil || errors.As(err, &ce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Do runs fn under the breaker. Client errors (4xx other than 429) are
// returned unchanged and do not count against the breaker.
func (b *Breaker) Do(op string, fn func() error) error {
	if b == nil {
		return fn()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if IsClientError(err) {
				return nil, &clientError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var ce *clientError
	if errors.As(err, &ce) {
		return ce.err
	}

	if err != nil {
		slog.Debug("google api call failed",
			"operation", op,
			"breaker_state", b.cb.State().String(),
			"error", err,
		)
	}
	return err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	return b != nil && b.cb.State() == gobreaker.StateOpen
}

// ErrOpen is reported by Ping while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Ping fails while the breaker is open. It matches the health check
// signature so an API outage shows up on /health.
func (b *Breaker) Ping(context.Context) error {
	if b.Open() {
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrOpen)
	}
	return nil
}

// IsClientError reports whether err is a googleapi error in the 4xx range,
// excluding 429 which signals throttling.
func IsClientError(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429
}

// clientError keeps client errors from tripping the breaker.
type clientError struct {
	err error
}

func (e *clientError) Error() string { return e.err.Error() }

func (e *clientError) Unwrap() error { return e.err }
