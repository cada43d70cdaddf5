package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEphemeralWorkspace(t *testing.T) {
	base := t.TempDir()
	m := NewManager(base, "0123456789abcdef")
	require.Empty(t, m.Path())

	require.NoError(t, m.Create())
	dir := m.Path()
	require.True(t, strings.HasPrefix(filepath.Base(dir), "docpublisher-01234567-"))

	sub, err := m.Subdir("deps")
	require.NoError(t, err)
	require.DirExists(t, sub)

	require.NoError(t, m.Cleanup())
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
	require.Empty(t, m.Path())
}

func TestEphemeralWorkspacesAreUnique(t *testing.T) {
	base := t.TempDir()
	a, b := NewManager(base, "run"), NewManager(base, "run")
	require.NoError(t, a.Create())
	require.NoError(t, b.Create())
	require.NotEqual(t, a.Path(), b.Path())
}

func TestPersistentWorkspaceSurvivesCleanup(t *testing.T) {
	base := t.TempDir()
	m := NewPersistentManager(base, "cache")
	require.True(t, m.Persistent())
	require.NoError(t, m.Create())
	require.Equal(t, filepath.Join(base, "cache"), m.Path())
	require.NoError(t, m.Cleanup())
	require.DirExists(t, filepath.Join(base, "cache"))
}

func TestSubdirBeforeCreate(t *testing.T) {
	_, err := NewManager(t.TempDir(), "").Subdir("x")
	require.Error(t, err)
}
