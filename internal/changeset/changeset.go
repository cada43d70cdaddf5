// Package changeset computes which documentation files a run changed.
package changeset

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/docpublisher/internal/git"
)

// Entry is one changed file. Path is slash separated and relative to the
// repository root.
type Entry struct {
	Path    string           `json:"path"`
	OldPath string           `json:"old_path,omitempty"`
	Action  git.ChangeAction `json:"action"`
}

// ChangeSet is the ordered set of documentation files changed between Base
// and Head. A degraded set is empty because no base could be resolved.
type ChangeSet struct {
	Base     string  `json:"base,omitempty"`
	Head     string  `json:"head,omitempty"`
	Entries  []Entry `json:"entries"`
	Degraded bool    `json:"degraded"`
	Reason   string  `json:"reason,omitempty"`
}

// New builds a ChangeSet ordered by path with duplicates removed.
func New(base, head string, entries []Entry) ChangeSet {
	seen := make(map[string]bool, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return ChangeSet{Base: base, Head: head, Entries: out}
}

// Degraded returns an empty set carrying the reason detection gave up.
func Degraded(reason string) ChangeSet {
	return ChangeSet{Entries: []Entry{}, Degraded: true, Reason: reason}
}

// Empty reports whether nothing changed (or nothing could be determined).
func (c ChangeSet) Empty() bool { return len(c.Entries) == 0 }

// Paths returns the changed paths in order.
func (c ChangeSet) Paths() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Path
	}
	return out
}

// Under returns the still-existing entries below root whose path relative to
// root matches pattern, together with those relative paths. Deleted files
// are left out because they have no rendered page.
func (c ChangeSet) Under(root, pattern string) []string {
	root = strings.Trim(path.Clean("/"+root), "/")
	var out []string
	for _, e := range c.Entries {
		if e.Action == git.ActionDeleted {
			continue
		}
		rel := e.Path
		if root != "" {
			if !strings.HasPrefix(rel, root+"/") {
				continue
			}
			rel = strings.TrimPrefix(rel, root+"/")
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			out = append(out, rel)
		}
	}
	return out
}
