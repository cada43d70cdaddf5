package git

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Author identifies the committer of deployment commits.
type Author struct {
	Name  string
	Email string
}

// CommitResult describes the outcome of CommitDirectory.
type CommitResult struct {
	Commit plumbing.Hash
	Tree   plumbing.Hash
	// Changed is false when the tree matched the branch head and no commit was made.
	Changed bool
}

// TokenAuth returns HTTP basic auth for a repository token, or nil for an empty token.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: token}
}

// RemoteURL returns the first URL configured for the named remote.
func (r *Repo) RemoteURL(name string) (string, error) {
	rem, err := r.repo.Remote(name)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", name, err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", name)
	}
	return urls[0], nil
}

// CommitDirectory writes dir as the complete tree of branch, on top of the
// branch's current head when it exists. Only the object store and the branch
// ref are touched; no worktree is read or written.
func CommitDirectory(repo *git.Repository, branch, dir string, author Author, message string) (CommitResult, error) {
	st := repo.Storer
	treeHash, err := writeTree(st, dir)
	if err != nil {
		return CommitResult{}, err
	}

	refName := plumbing.NewBranchReferenceName(branch)
	var parents []plumbing.Hash
	if ref, err := st.Reference(refName); err == nil {
		head, err := object.GetCommit(st, ref.Hash())
		if err != nil {
			return CommitResult{}, fmt.Errorf("load %s head: %w", branch, err)
		}
		if head.TreeHash == treeHash {
			return CommitResult{Commit: head.Hash, Tree: treeHash}, nil
		}
		parents = []plumbing.Hash{head.Hash}
	} else if !stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return CommitResult{}, fmt.Errorf("read ref %s: %w", refName, err)
	}

	sig := object.Signature{Name: author.Name, Email: author.Email, When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := st.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return CommitResult{}, fmt.Errorf("encode commit: %w", err)
	}
	commitHash, err := st.SetEncodedObject(obj)
	if err != nil {
		return CommitResult{}, fmt.Errorf("store commit: %w", err)
	}
	if err := st.SetReference(plumbing.NewHashReference(refName, commitHash)); err != nil {
		return CommitResult{}, fmt.Errorf("update %s: %w", refName, err)
	}
	return CommitResult{Commit: commitHash, Tree: treeHash, Changed: true}, nil
}

type treeEntries []object.TreeEntry

func (e treeEntries) sortKey(i int) string {
	if e[i].Mode == filemode.Dir {
		return e[i].Name + "/"
	}
	return e[i].Name
}

// writeTree stores dir recursively and returns the root tree hash. Empty
// directories are omitted, matching git.
func writeTree(st storage.Storer, dir string) (plumbing.Hash, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("read %s: %w", dir, err)
	}
	var tree treeEntries
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		info, err := os.Lstat(p)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		switch {
		case info.IsDir():
			sub, err := os.ReadDir(p)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			if len(sub) == 0 {
				continue
			}
			h, err := writeTree(st, p)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			tree = append(tree, object.TreeEntry{Name: e.Name(), Mode: filemode.Dir, Hash: h})
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			h, err := writeBlob(st, strings.NewReader(target))
			if err != nil {
				return plumbing.ZeroHash, err
			}
			tree = append(tree, object.TreeEntry{Name: e.Name(), Mode: filemode.Symlink, Hash: h})
		case info.Mode().IsRegular():
			f, err := os.Open(p)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			h, err := writeBlob(st, f)
			_ = f.Close()
			if err != nil {
				return plumbing.ZeroHash, err
			}
			mode := filemode.Regular
			if info.Mode()&0o111 != 0 {
				mode = filemode.Executable
			}
			tree = append(tree, object.TreeEntry{Name: e.Name(), Mode: mode, Hash: h})
		}
	}
	sort.Slice(tree, func(i, j int) bool { return tree.sortKey(i) < tree.sortKey(j) })

	t := &object.Tree{Entries: tree}
	obj := st.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree %s: %w", dir, err)
	}
	return st.SetEncodedObject(obj)
}

func writeBlob(st storage.Storer, r io.Reader) (plumbing.Hash, error) {
	obj := st.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

// PublishOptions configures PublishBranch.
type PublishOptions struct {
	URL     string
	Branch  string
	Dir     string
	Author  Author
	Message string
	Auth    transport.AuthMethod
}

// PublishBranch commits Dir onto Branch of a remote repository. A local
// path is written directly; any other URL is fetched into memory, committed
// and pushed as a fast-forward.
func PublishBranch(ctx context.Context, opts PublishOptions) (CommitResult, error) {
	if fi, err := os.Stat(opts.URL); err == nil && fi.IsDir() {
		r, err := git.PlainOpen(opts.URL)
		if err != nil {
			return CommitResult{}, ClassifyGitError(err, "open", opts.URL)
		}
		return CommitDirectory(r, opts.Branch, opts.Dir, opts.Author, opts.Message)
	}

	r, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return CommitResult{}, fmt.Errorf("init in-memory repository: %w", err)
	}
	if _, err := r.CreateRemote(&gitconfig.RemoteConfig{Name: "target", URLs: []string{opts.URL}}); err != nil {
		return CommitResult{}, fmt.Errorf("create remote: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(opts.Branch)
	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", ref, ref))
	err = r.FetchContext(ctx, &git.FetchOptions{RemoteName: "target", RefSpecs: []gitconfig.RefSpec{spec}, Auth: opts.Auth})
	var noMatch git.NoMatchingRefSpecError
	switch {
	case err == nil, stderrors.Is(err, git.NoErrAlreadyUpToDate):
	case stderrors.As(err, &noMatch), stderrors.Is(err, transport.ErrEmptyRemoteRepository):
		// first deployment creates the branch
	default:
		return CommitResult{}, ClassifyGitError(err, "fetch", opts.URL)
	}

	res, err := CommitDirectory(r, opts.Branch, opts.Dir, opts.Author, opts.Message)
	if err != nil || !res.Changed {
		return res, err
	}
	push := gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))
	err = r.PushContext(ctx, &git.PushOptions{RemoteName: "target", RefSpecs: []gitconfig.RefSpec{push}, Auth: opts.Auth})
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return CommitResult{}, ClassifyGitError(err, "push", opts.URL)
	}
	return res, nil
}
