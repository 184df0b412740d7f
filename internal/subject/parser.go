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

// Package subject parses submission subject lines of the form
//
//	<homework>@<student name>#<student id>
//
// Text is taken verbatim: no trimming, case folding, or character checks.
package subject

import (
	"log/slog"
	"strings"

	"github.com/bcem/hwfiler/internal/models"
)

// Parse splits s on the first '@' and the remainder on the first '#'.
// ok is false when either delimiter is missing or any part is empty; the
// returned record is then zero, never partially filled.
func Parse(s string) (parsed models.ParsedSubject, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("subject parse failed", "subject", s, "panic", r)
			parsed, ok = models.ParsedSubject{}, false
		}
	}()

	hw, rest, found := strings.Cut(s, "@")
	if !found {
		return models.ParsedSubject{}, false
	}

	name, id, found := strings.Cut(rest, "#")
	if !found {
		return models.ParsedSubject{}, false
	}

	if hw == "" || name == "" || id == "" {
		return models.ParsedSubject{}, false
	}

	return models.ParsedSubject{
		Homework:    hw,
		StudentName: name,
		StudentID:   id,
	}, true
}
