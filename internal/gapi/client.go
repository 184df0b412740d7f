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
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// Scopes needed by the filer: read and relabel mail, create Drive files,
// append spreadsheet rows.
var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailLabelsScope,
	drive.DriveScope,
	sheets.SpreadsheetsScope,
}

// Credentials selects how the HTTP client authenticates.
type Credentials struct {
	// JSON is either a service account key or an OAuth client secret
	// ("installed"/"web") file.
	JSON []byte
	// Token is a previously obtained OAuth2 user token, required when JSON
	// is an OAuth client secret.
	Token []byte
	// Subject is the user to impersonate with a service account
	// (domain-wide delegation). Ignored for user tokens.
	Subject string
}

// NewHTTPClient builds an authenticated client for the Google APIs.
func NewHTTPClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	if len(creds.JSON) == 0 {
		return nil, fmt.Errorf("google credentials are empty")
	}

	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(creds.JSON, &kind); err != nil {
		return nil, fmt.Errorf("decode google credentials: %w", err)
	}

	if kind.Type == "service_account" {
		jwtCfg, err := google.JWTConfigFromJSON(creds.JSON, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		jwtCfg.Subject = creds.Subject
		return jwtCfg.Client(ctx), nil
	}

	oauthCfg, err := google.ConfigFromJSON(creds.JSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client secret: %w", err)
	}
	if len(creds.Token) == 0 {
		return nil, fmt.Errorf("oauth client secret given without a user token")
	}

	var tok oauth2.Token
	if err := json.Unmarshal(creds.Token, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return oauthCfg.Client(ctx, &tok), nil
}
