package linkcheck

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
)

func TestPagePath(t *testing.T) {
	cases := map[string]string{
		"a/b/c.ipynb":                 "a/b/c/index.html",
		"a/b/index.ipynb":             "a/b/index.html",
		"index.ipynb":                 "index.html",
		"quickstart.ipynb":            "quickstart/index.html",
		"tutorials/storm/storm.ipynb": "tutorials/storm/storm/index.html",
	}
	for src, want := range cases {
		require.Equal(t, want, PagePath(src), src)
	}
}

func newSelector(t *testing.T) *Selector {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	site := filepath.Join(root, "site")
	helpers.WriteTree(t, docs, map[string]string{
		"quickstart.ipynb":            "{}",
		"tutorials/storm/storm.ipynb": "{}",
		"tutorials/rag/index.ipynb":   "{}",
		"how-tos/unrendered.ipynb":    "{}",
		"concepts/overview.md":        "# overview",
	})
	helpers.WriteTree(t, site, map[string]string{
		"quickstart/index.html":            "<html></html>",
		"tutorials/storm/storm/index.html": "<html></html>",
		"tutorials/rag/index.html":         "<html></html>",
		"concepts/overview/index.html":     "<html></html>",
	})
	return &Selector{
		DocsDir:  docs,
		SiteDir:  site,
		Glob:     "**/*.ipynb",
		Excluded: []string{"tutorials/storm/storm.ipynb"},
	}
}

func TestSelectorAllExcludesPagesAndDropsMissing(t *testing.T) {
	s := newSelector(t)

	pages, err := s.All()
	require.NoError(t, err)

	var rels []string
	for _, p := range pages {
		rels = append(rels, p.Rel)
		require.FileExists(t, p.HTML)
	}
	require.Equal(t, []string{"quickstart/index.html", "tutorials/rag/index.html"}, rels)
}

func TestSelectorChangedKeepsNotebooksOnly(t *testing.T) {
	s := newSelector(t)

	pages := s.Changed([]string{"concepts/overview.md", "quickstart.ipynb", "tutorials/storm/storm.ipynb"})
	require.Len(t, pages, 1)
	require.Equal(t, "quickstart.ipynb", pages[0].Source)
	require.Equal(t, "quickstart/index.html", pages[0].Rel)

	require.Empty(t, s.Changed(nil))
	require.Empty(t, s.Changed([]string{"concepts/overview.md"}))
}

func TestSelectorExcludedPattern(t *testing.T) {
	s := newSelector(t)
	s.Excluded = []string{"tutorials/**"}

	pages, err := s.All()
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "quickstart.ipynb", pages[0].Source)
}
