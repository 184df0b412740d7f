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

package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/bcem/hwfiler/internal/mailbox"
)

type mockLister struct {
	labels []mailbox.Label
	err    error
}

func (m *mockLister) ListLabels(context.Context) ([]mailbox.Label, error) {
	return m.labels, m.err
}

func names(labels []mailbox.Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Name
	}
	return out
}

var testLabels = []mailbox.Label{
	{ID: "1", Name: "submitted-hw"},
	{ID: "2", Name: "submitted-hw/week1"},
	{ID: "3", Name: "submitted-hw/week1/late"},
	{ID: "4", Name: "submitted-hwother"},
	{ID: "5", Name: "other/submitted-hw"},
	{ID: "6", Name: "submitted-hw/review"},
}

// TestSubLabels verifies root and nested matches, and that a sibling with
// the root as a plain prefix is rejected.
func TestSubLabels(t *testing.T) {
	got := names(SubLabels(testLabels, "submitted-hw"))
	want := []string{"submitted-hw", "submitted-hw/week1", "submitted-hw/week1/late", "submitted-hw/review"}

	if len(got) != len(want) {
		t.Fatalf("expected %d labels, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("label %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// TestSubLabels_NoRoot verifies sub-labels match even without the root.
func TestSubLabels_NoRoot(t *testing.T) {
	got := SubLabels([]mailbox.Label{{Name: "hw/a"}, {Name: "hwa"}}, "hw")
	if len(got) != 1 || got[0].Name != "hw/a" {
		t.Errorf("expected only hw/a, got %v", names(got))
	}
}

// TestDiscoverLabels_Exclusions verifies case-insensitive exclusion.
func TestDiscoverLabels_Exclusions(t *testing.T) {
	d := NewDiscovery(&mockLister{labels: testLabels})

	got, err := d.DiscoverLabels(context.Background(), "submitted-hw", []string{"Submitted-HW/Review"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, l := range got {
		if l.Name == "submitted-hw/review" {
			t.Error("excluded label should not appear in results")
		}
	}
	if len(got) != 3 {
		t.Errorf("expected 3 labels, got %v", names(got))
	}
}

// TestDiscoverLabels_Error verifies lister failures propagate.
func TestDiscoverLabels_Error(t *testing.T) {
	d := NewDiscovery(&mockLister{err: errors.New("boom")})

	if _, err := d.DiscoverLabels(context.Background(), "hw", nil); err == nil {
		t.Fatal("expected error")
	}
}
