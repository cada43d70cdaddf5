package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteTree creates files (slash paths relative to root) with the given contents.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// FileAssertions checks file system state below a base directory.
type FileAssertions struct {
	t       *testing.T
	baseDir string
}

// NewFileAssertions creates a new file assertions helper.
func NewFileAssertions(t *testing.T, baseDir string) *FileAssertions {
	return &FileAssertions{t: t, baseDir: baseDir}
}

// Exists fails the test when relativePath is missing.
func (fa *FileAssertions) Exists(relativePath string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(filepath.Join(fa.baseDir, relativePath)); err != nil {
		fa.t.Errorf("expected %s to exist: %v", relativePath, err)
	}
	return fa
}

// Absent fails the test when relativePath exists.
func (fa *FileAssertions) Absent(relativePath string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(filepath.Join(fa.baseDir, relativePath)); err == nil {
		fa.t.Errorf("expected %s to be absent", relativePath)
	}
	return fa
}

// Contains fails the test unless relativePath contains want.
func (fa *FileAssertions) Contains(relativePath, want string) *FileAssertions {
	fa.t.Helper()
	// #nosec G304 - test helper, paths are controlled by test code
	data, err := os.ReadFile(filepath.Join(fa.baseDir, relativePath))
	if err != nil {
		fa.t.Errorf("read %s: %v", relativePath, err)
		return fa
	}
	if !strings.Contains(string(data), want) {
		fa.t.Errorf("expected %s to contain %q, got:\n%s", relativePath, want, data)
	}
	return fa
}
