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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/hwfiler/internal/models"
)

// ContextInput is everything known about one attachment when its path is
// derived.
type ContextInput struct {
	AttachmentName  string
	From            string
	LabelName       string
	RootLabel       string
	Subject         models.ParsedSubject
	Date            time.Time
	MessageIndex    int
	AttachmentIndex int
}

// NewContext assembles the placeholder values for one attachment. Date keys
// are rendered in the location already carried by in.Date.
func NewContext(in ContextInput) Context {
	d := in.Date
	return Context{
		"name":     in.AttachmentName,
		"ext":      Extension(in.AttachmentName),
		"from":     in.From,
		"sublabel": SubLabel(in.LabelName, in.RootLabel),
		"student":  in.Subject.StudentName,
		"id":       in.Subject.StudentID,
		"hw":       in.Subject.Homework,
		"y":        fmt.Sprintf("%04d", d.Year()%10000),
		"m":        fmt.Sprintf("%02d", int(d.Month())),
		"d":        fmt.Sprintf("%02d", d.Day()),
		"h":        fmt.Sprintf("%02d", d.Hour()),
		"i":        fmt.Sprintf("%02d", d.Minute()),
		"s":        fmt.Sprintf("%02d", d.Second()),
		"mc":       strconv.Itoa(in.MessageIndex),
		"ac":       strconv.Itoa(in.AttachmentIndex),
	}
}

// Extension returns the lowercased text after the last '.' in name, or ""
// when name has no extension.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// SubLabel returns the part of labelName below root ("root/a/b" -> "a/b").
// The root label itself yields "".
func SubLabel(labelName, root string) string {
	if len(labelName) <= len(root)+1 {
		return ""
	}
	return labelName[len(root)+1:]
}
