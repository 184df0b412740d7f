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

// Package discovery finds the labels a pass works on: the configured root
// label and every label nested beneath it.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcem/hwfiler/internal/mailbox"
)

// LabelLister is the part of the mailbox that discovery needs.
type LabelLister interface {
	ListLabels(ctx context.Context) ([]mailbox.Label, error)
}

// Discovery matches mailbox labels against a root label.
type Discovery struct {
	lister LabelLister
}

// NewDiscovery creates a label discovery over lister.
func NewDiscovery(lister LabelLister) *Discovery {
	return &Discovery{lister: lister}
}

// DiscoverLabels returns the root label and its sub-labels, in the order
// the mailbox lists them. Labels named in exclude (compared
// case-insensitively) are dropped, so a review label nested under the root
// is not picked up as work.
func (d *Discovery) DiscoverLabels(ctx context.Context, root string, exclude []string) ([]mailbox.Label, error) {
	all, err := d.lister.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	excludeSet := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excludeSet[strings.ToLower(name)] = true
	}

	var labels []mailbox.Label
	for _, l := range SubLabels(all, root) {
		if excludeSet[strings.ToLower(l.Name)] {
			slog.Debug("excluding label", "label", l.Name)
			continue
		}
		labels = append(labels, l)
	}

	slog.Info("label discovery complete",
		"root", root,
		"discovered", len(labels),
	)
	return labels, nil
}

// SubLabels keeps labels whose name equals root or starts with root + "/".
// A sibling such as "rootother" does not match.
func SubLabels(labels []mailbox.Label, root string) []mailbox.Label {
	var matches []mailbox.Label
	for _, l := range labels {
		if l.Name == root || strings.HasPrefix(l.Name, root+"/") {
			matches = append(matches, l)
		}
	}
	return matches
}
