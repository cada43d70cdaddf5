package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
)

func siteTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	helpers.WriteTree(t, dir, map[string]string{
		"index.html":                      "<html>home</html>",
		"tutorials/intro/index.html":      "<html>intro</html>",
		"assets/style.css":                "body{}",
		"tutorials/intro/images/plot.svg": "<svg/>",
	})
	return dir
}

func TestFromDirDigestIsStable(t *testing.T) {
	dir := siteTree(t)

	a, err := FromDir(dir)
	require.NoError(t, err)
	require.Equal(t, 4, a.FileCount)
	require.Len(t, a.Digest, 64)
	require.Len(t, a.ShortDigest(), 12)

	b, err := FromDir(dir)
	require.NoError(t, err)
	require.Equal(t, a.Digest, b.Digest)

	files, err := a.Files()
	require.NoError(t, err)
	require.Equal(t, []string{
		"assets/style.css",
		"index.html",
		"tutorials/intro/images/plot.svg",
		"tutorials/intro/index.html",
	}, files)
}

func TestFromDirErrors(t *testing.T) {
	_, err := FromDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	_, err = FromDir(t.TempDir())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestVerifyDetectsModification(t *testing.T) {
	dir := siteTree(t)
	a, err := FromDir(dir)
	require.NoError(t, err)
	require.NoError(t, a.Verify())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("changed"), 0o600))
	require.ErrorIs(t, a.Verify(), ErrModified)

	_, err = Package(a, t.TempDir())
	require.ErrorIs(t, err, ErrModified)
}

func TestPackageUnpackRoundTrip(t *testing.T) {
	dir := siteTree(t)
	a, err := FromDir(dir)
	require.NoError(t, err)

	archiveDir := t.TempDir()
	path, err := Package(a, archiveDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(archiveDir, "site-"+a.ShortDigest()+".tar.gz"), path)

	first, err := os.ReadFile(path)
	require.NoError(t, err)
	again, err := Package(a, archiveDir)
	require.NoError(t, err)
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	require.Equal(t, first, second, "packaging must be deterministic")

	out := t.TempDir()
	require.NoError(t, Unpack(path, out))
	unpacked, err := FromDir(out)
	require.NoError(t, err)
	require.Equal(t, a.Digest, unpacked.Digest)

	leftovers, err := filepath.Glob(filepath.Join(archiveDir, ".site-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}
