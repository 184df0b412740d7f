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

// Package pathtmpl derives storage paths for attachments from a template
// such as
//
//	studentHw/$y/$id/$sublabel/$y-$m-$d_$student_$hw_$mc_$ac.$ext
//
// by substituting "$key" placeholders with values from a Context.
package pathtmpl

import (
	"sort"
	"strings"
)

// DefaultTemplate is the path template used when none is configured.
const DefaultTemplate = "studentHw/$y/$id/$sublabel/$y-$m-$d_$student_$hw_$mc_$ac.$ext"

// Context maps placeholder keys (without the leading '$') to values.
type Context map[string]string

// Expand replaces every "$key" in tmpl with ctx[key]. Keys are applied
// longest first so "$mc" is never consumed by "$m". Placeholders with no
// key in ctx are left untouched.
func Expand(tmpl string, ctx Context) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		if len(keys[a]) != len(keys[b]) {
			return len(keys[a]) > len(keys[b])
		}
		return keys[a] < keys[b]
	})

	for _, k := range keys {
		tmpl = strings.ReplaceAll(tmpl, "$"+k, ctx[k])
	}
	return tmpl
}
