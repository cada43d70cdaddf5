package git

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
)

func TestCommitDirectoryCreatesAndAdvancesBranch(t *testing.T) {
	repo, w, dir := helpers.SetupTestGitRepo(t)
	mainHead := helpers.Commit(t, w, dir, "init", map[string]string{"README.md": "x"})

	site := t.TempDir()
	helpers.WriteTree(t, site, map[string]string{
		"index.html":             "<html>home</html>",
		"tutorials/a/index.html": "<html>a</html>",
		"assets/app.js":          "console.log(1)",
	})
	author := Author{Name: "bot", Email: "bot@example.com"}

	first, err := CommitDirectory(repo, "gh-pages", site, author, "deploy 1")
	require.NoError(t, err)
	require.True(t, first.Changed)

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	require.Equal(t, first.Commit, ref.Hash())

	commit, err := repo.CommitObject(first.Commit)
	require.NoError(t, err)
	require.Zero(t, commit.NumParents())
	f, err := commit.File("tutorials/a/index.html")
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	require.Equal(t, "<html>a</html>", content)

	again, err := CommitDirectory(repo, "gh-pages", site, author, "deploy 2")
	require.NoError(t, err)
	require.False(t, again.Changed)
	require.Equal(t, first.Commit, again.Commit)

	helpers.WriteTree(t, site, map[string]string{"index.html": "<html>v2</html>"})
	second, err := CommitDirectory(repo, "gh-pages", site, author, "deploy 3")
	require.NoError(t, err)
	require.True(t, second.Changed)
	c2, err := repo.CommitObject(second.Commit)
	require.NoError(t, err)
	require.Equal(t, []plumbing.Hash{first.Commit}, c2.ParentHashes)

	head, err := repo.Head()
	require.NoError(t, err)
	require.Equal(t, mainHead, head.Hash(), "HEAD must not move")
}

func TestPublishBranchToLocalPath(t *testing.T) {
	target := t.TempDir()
	_, err := git.PlainInit(target, true)
	require.NoError(t, err)

	site := t.TempDir()
	helpers.WriteTree(t, site, map[string]string{"index.html": "ok"})

	res, err := PublishBranch(context.Background(), PublishOptions{
		URL:     target,
		Branch:  "gh-pages",
		Dir:     site,
		Author:  Author{Name: "bot", Email: "bot@example.com"},
		Message: "deploy",
	})
	require.NoError(t, err)
	require.True(t, res.Changed)

	r, err := git.PlainOpen(target)
	require.NoError(t, err)
	ref, err := r.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	require.Equal(t, res.Commit, ref.Hash())
}

func TestTokenAuth(t *testing.T) {
	require.Nil(t, TokenAuth(""))
	require.NotNil(t, TokenAuth("tok"))
}
