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

package gapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker("test")
	notFound := &googleapi.Error{Code: 404, Message: "not found"}

	for i := 0; i < 20; i++ {
		err := b.Do("get", func() error { return notFound })
		require.Error(t, err)
		assert.Equal(t, notFound, err)
	}

	assert.False(t, b.Open())
	assert.NoError(t, b.Ping(context.Background()))
}

func TestBreaker_ServerErrorsTrip(t *testing.T) {
	b := NewBreaker("test")
	unavailable := &googleapi.Error{Code: 503, Message: "backend error"}

	for i := 0; i < 6; i++ {
		_ = b.Do("list", func() error { return unavailable })
	}

	assert.True(t, b.Open())
	err := b.Ping(context.Background())
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorContains(t, err, "test")

	called := false
	err = b.Do("list", func() error { called = true; return nil })
	assert.False(t, called, "open breaker must not call through")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreaker_Nil(t *testing.T) {
	var b *Breaker
	sentinel := errors.New("boom")

	assert.ErrorIs(t, b.Do("x", func() error { return sentinel }), sentinel)
	assert.NoError(t, b.Do("x", func() error { return nil }))
	assert.False(t, b.Open())
	assert.NoError(t, b.Ping(context.Background()))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&googleapi.Error{Code: 400}))
	assert.True(t, IsClientError(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 403})))
	assert.False(t, IsClientError(&googleapi.Error{Code: 429}))
	assert.False(t, IsClientError(&googleapi.Error{Code: 500}))
	assert.False(t, IsClientError(context.Canceled))
}

func TestNewHTTPClient_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewHTTPClient(ctx, Credentials{})
	assert.Error(t, err)

	_, err = NewHTTPClient(ctx, Credentials{JSON: []byte("not json")})
	assert.Error(t, err)

	secret := []byte(`{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`)
	_, err = NewHTTPClient(ctx, Credentials{JSON: secret})
	assert.ErrorContains(t, err, "without a user token")

	client, err := NewHTTPClient(ctx, Credentials{JSON: secret, Token: []byte(`{"access_token":"a","refresh_token":"r"}`)})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
