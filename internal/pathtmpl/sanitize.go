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

package pathtmpl

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// senderControlled lists the keys whose values come from message content
// and therefore must not be able to introduce path structure.
var senderControlled = []string{"name", "ext", "from", "student", "id", "hw"}

// Sanitize turns an arbitrary value into a single safe path segment.
// Separators, control characters, '$' and characters rejected by common
// file stores are replaced with '_'; surrounding spaces and dots are trimmed.
func Sanitize(value string) string {
	value = norm.NFC.String(value)

	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r == '/', r == '\\', r == '$':
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "_"
	}
	return out
}

// SanitizeContext returns a copy of ctx with sender-controlled values
// sanitized. Empty values stay empty. The sublabel is sanitized per segment
// so nested labels still map to nested folders.
func SanitizeContext(ctx Context) Context {
	out := make(Context, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}

	for _, k := range senderControlled {
		if v, ok := out[k]; ok && v != "" {
			out[k] = Sanitize(v)
		}
	}

	if sub, ok := out["sublabel"]; ok && sub != "" {
		parts := strings.Split(sub, "/")
		for i, p := range parts {
			parts[i] = Sanitize(p)
		}
		out["sublabel"] = strings.Join(parts, "/")
	}

	return out
}
