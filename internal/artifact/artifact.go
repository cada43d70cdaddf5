// Package artifact describes the rendered site tree produced by a build and
// packages it for publishing.
//
// An Artifact is immutable once created: its Digest covers every file path
// and content, and Verify detects any later modification of the tree.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ErrEmpty is returned when the build produced no files.
var ErrEmpty = errors.New("artifact directory is empty")

// ErrModified is returned by Verify when the tree changed after creation.
var ErrModified = errors.New("artifact modified after build")

// Artifact is the rendered site directory tree.
type Artifact struct {
	Dir       string
	FileCount int
	Size      int64
	// Digest is sha256 over sorted "path:sha256(content)" lines.
	Digest string
}

// FromDir snapshots dir into an Artifact.
func FromDir(dir string) (Artifact, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Artifact{}, fmt.Errorf("resolve artifact dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact dir: %w", err)
	}
	if !info.IsDir() {
		return Artifact{}, fmt.Errorf("artifact path %s is not a directory", abs)
	}

	digest, count, size, err := digestTree(abs)
	if err != nil {
		return Artifact{}, err
	}
	if count == 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrEmpty, abs)
	}
	return Artifact{Dir: abs, FileCount: count, Size: size, Digest: digest}, nil
}

// Verify recomputes the digest and fails if the tree no longer matches.
func (a Artifact) Verify() error {
	digest, _, _, err := digestTree(a.Dir)
	if err != nil {
		return err
	}
	if digest != a.Digest {
		return fmt.Errorf("%w: %s", ErrModified, a.Dir)
	}
	return nil
}

// ShortDigest is the first 12 hex characters of the digest.
func (a Artifact) ShortDigest() string {
	if len(a.Digest) < 12 {
		return a.Digest
	}
	return a.Digest[:12]
}

// Files lists the artifact's regular files as slash-separated relative paths,
// sorted.
func (a Artifact) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(a.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(a.Dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifact files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func digestTree(root string) (string, int, int64, error) {
	type entry struct {
		rel string
		sum string
	}
	var (
		entries []entry
		size    int64
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum, n, err := hashFile(path)
		if err != nil {
			return err
		}
		size += n
		entries = append(entries, entry{rel: filepath.ToSlash(rel), sum: sum})
		return nil
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("digest artifact: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s:%s\n", e.rel, e.sum)
	}
	return hex.EncodeToString(h.Sum(nil)), len(entries), size, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path) // #nosec G304 -- walking the artifact tree
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
