package git

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// ErrUnresolved is returned when a revision does not resolve to a commit.
var ErrUnresolved = errors.New("revision not resolvable")

// Repo is an opened repository.
type Repo struct {
	path string
	repo *git.Repository
}

// Open opens the repository containing path.
func Open(repoPath string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, ClassifyGitError(err, "open", repoPath)
	}
	return &Repo{path: repoPath, repo: r}, nil
}

// Wrap adapts an already opened go-git repository.
func Wrap(r *git.Repository, repoPath string) *Repo {
	return &Repo{path: repoPath, repo: r}
}

// Repository exposes the underlying go-git repository.
func (r *Repo) Repository() *git.Repository { return r.repo }

// IsZeroSHA reports whether s is the all-zero object id CI systems send for new branches.
func IsZeroSHA(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Trim(s, "0") == ""
}

// Resolve turns a branch name, tag, SHA or revision expression into a commit
// hash. An empty rev means HEAD. Branch names that only exist on origin are
// tried as remote-tracking refs.
func (r *Repo) Resolve(rev string) (plumbing.Hash, error) {
	if rev == "" {
		rev = "HEAD"
	}
	if IsZeroSHA(rev) {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrUnresolved, rev)
	}
	candidates := []string{rev}
	if !strings.ContainsAny(rev, "~^@:") && !plumbing.IsHash(rev) {
		candidates = append(candidates, "refs/remotes/origin/"+rev)
	}
	for _, c := range candidates {
		h, err := r.repo.ResolveRevision(plumbing.Revision(c))
		if err != nil {
			continue
		}
		if _, err := r.repo.CommitObject(*h); err != nil {
			continue
		}
		return *h, nil
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrUnresolved, rev)
}

// MergeBase returns the best common ancestor of a and b.
func (r *Repo) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := r.repo.CommitObject(a)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load commit %s: %w", a, err)
	}
	cb, err := r.repo.CommitObject(b)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("load commit %s: %w", b, err)
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("merge base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("%w: no common ancestor of %s and %s", ErrUnresolved, a, b)
	}
	return bases[0].Hash, nil
}

// FirstParent returns the first parent of h; ok is false for a root commit.
func (r *Repo) FirstParent(h plumbing.Hash) (parent plumbing.Hash, ok bool, err error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("load commit %s: %w", h, err)
	}
	if c.NumParents() == 0 {
		return plumbing.ZeroHash, false, nil
	}
	return c.ParentHashes[0], true, nil
}

// IsAncestor reports whether a is reachable from b.
func (r *Repo) IsAncestor(a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := r.repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

// ChangeAction is the kind of change a path underwent.
type ChangeAction string

const (
	ActionAdded    ChangeAction = "added"
	ActionModified ChangeAction = "modified"
	ActionDeleted  ChangeAction = "deleted"
	ActionRenamed  ChangeAction = "renamed"
)

// FileChange is one changed path between two commits. Path is the new path
// (the old one for deletions); OldPath is set for renames.
type FileChange struct {
	Path    string
	OldPath string
	Action  ChangeAction
}

// Diff lists paths changed between from and to that fall under prefix
// (slash separated, relative to the repository root; empty means all).
// Renames are detected.
func (r *Repo) Diff(ctx context.Context, from, to plumbing.Hash, prefix string) ([]FileChange, error) {
	fromTree, err := r.commitTree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := r.commitTree(to)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff trees: %w", err)
	}

	prefix = strings.Trim(path.Clean("/"+prefix), "/")
	var out []FileChange
	for _, ch := range changes {
		fc, err := toFileChange(ch)
		if err != nil {
			return nil, err
		}
		if !underPrefix(fc.Path, prefix) && (fc.OldPath == "" || !underPrefix(fc.OldPath, prefix)) {
			continue
		}
		out = append(out, fc)
	}
	return out, nil
}

func (r *Repo) commitTree(h plumbing.Hash) (*object.Tree, error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", h, err)
	}
	t, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", h, err)
	}
	return t, nil
}

func toFileChange(ch *object.Change) (FileChange, error) {
	action, err := ch.Action()
	if err != nil {
		return FileChange{}, fmt.Errorf("change action: %w", err)
	}
	switch action {
	case merkletrie.Insert:
		return FileChange{Path: ch.To.Name, Action: ActionAdded}, nil
	case merkletrie.Delete:
		return FileChange{Path: ch.From.Name, Action: ActionDeleted}, nil
	default:
		if ch.From.Name != ch.To.Name {
			return FileChange{Path: ch.To.Name, OldPath: ch.From.Name, Action: ActionRenamed}, nil
		}
		return FileChange{Path: ch.To.Name, Action: ActionModified}, nil
	}
}

func underPrefix(p, prefix string) bool {
	if prefix == "" || prefix == "." {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
