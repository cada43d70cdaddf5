package helpers

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SetupTestGitRepo initializes a temporary git repository for testing.
// Returns the repository, its worktree, and the absolute path to the temporary directory.
func SetupTestGitRepo(t *testing.T) (*git.Repository, *git.Worktree, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := git.PlainInit(tempDir, false)
	if err != nil {
		t.Fatalf("failed to initialize git repo: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	return repo, w, tempDir
}

// Commit writes files (slash paths relative to the repo root), removes the
// paths in remove, and commits everything. Returns the new commit hash.
func Commit(t *testing.T, w *git.Worktree, root, msg string, files map[string]string, remove ...string) plumbing.Hash {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(files[name]), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := w.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	for _, name := range remove {
		if _, err := w.Remove(name); err != nil {
			t.Fatalf("remove %s: %v", name, err)
		}
	}

	hash, err := w.Commit(msg, &git.CommitOptions{
		Author:            &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
		AllowEmptyCommits: true,
	})
	if err != nil {
		t.Fatalf("commit %q: %v", msg, err)
	}
	return hash
}

// Branch creates a branch at hash and checks it out.
func Branch(t *testing.T, w *git.Worktree, name string, hash plumbing.Hash) {
	t.Helper()
	err := w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Hash:   hash,
		Create: true,
	})
	if err != nil {
		t.Fatalf("checkout -b %s: %v", name, err)
	}
}
