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

package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/sheets/v4"

	"github.com/bcem/hwfiler/internal/gapi"
	"github.com/bcem/hwfiler/internal/models"
)

// SheetsSink appends rows to a Google spreadsheet. When no sheet title is
// configured, the first sheet of the spreadsheet is used.
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	breaker       *gapi.Breaker

	sheet string
	mu    sync.Mutex
}

// NewSheetsSink creates a sink for spreadsheetID. sheet may be empty.
func NewSheetsSink(svc *sheets.Service, spreadsheetID, sheet string, breaker *gapi.Breaker) *SheetsSink {
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		breaker:       breaker,
	}
}

func (s *SheetsSink) Name() string { return "sheets" }

// Append adds the record as a new row after the last row of the sheet.
// Values are stored as-is, so subject text starting with '=' never becomes
// a formula.
func (s *SheetsSink) Append(ctx context.Context, record models.TransactionRecord) error {
	sheet, err := s.sheetTitle(ctx)
	if err != nil {
		return err
	}

	row := record.Row()
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}

	return s.breaker.Do("sheets.values.append", func() error {
		_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoteSheet(sheet), &sheets.ValueRange{
			Values: [][]interface{}{values},
		}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("append row to %s: %w", s.spreadsheetID, err)
		}
		return nil
	})
}

// sheetTitle resolves the target sheet, caching it after the first success.
func (s *SheetsSink) sheetTitle(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet != "" {
		return s.sheet, nil
	}

	var ss *sheets.Spreadsheet
	err := s.breaker.Do("sheets.get", func() error {
		var err error
		ss, err = s.svc.Spreadsheets.Get(s.spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get spreadsheet %s: %w", s.spreadsheetID, err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("spreadsheet %s has no sheets", s.spreadsheetID)
	}

	s.sheet = ss.Sheets[0].Properties.Title
	return s.sheet, nil
}

// quoteSheet turns a sheet title into an A1 range covering the whole sheet.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
