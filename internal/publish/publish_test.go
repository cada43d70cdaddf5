package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/deploylock"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
	helpers "git.home.luguber.info/inful/docpublisher/internal/testutil/testutils"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

func builtSite(t *testing.T, files map[string]string) artifact.Artifact {
	t.Helper()
	dir := t.TempDir()
	helpers.WriteTree(t, dir, files)
	a, err := artifact.FromDir(dir)
	require.NoError(t, err)
	return a
}

func lockOptions() deploylock.Options {
	return deploylock.Options{
		TTL:     time.Minute,
		Backoff: retry.NewPolicy(config.RetryBackoffFixed, 5*time.Millisecond, 5*time.Millisecond, 0),
	}
}

func newPublisher(t *testing.T, target Target, locker deploylock.Locker) *Publisher {
	return &Publisher{
		Target:     target,
		Locker:     locker,
		Lock:       lockOptions(),
		Group:      "pages",
		ArchiveDir: t.TempDir(),
	}
}

func TestDirectoryTargetReplacesSite(t *testing.T) {
	served := filepath.Join(t.TempDir(), "public")
	helpers.WriteTree(t, served, map[string]string{"stale.html": "old"})

	p := newPublisher(t, &DirectoryTarget{Path: served}, deploylock.NewMemoryLocker())
	site := builtSite(t, map[string]string{"index.html": "home", "guide/index.html": "guide"})

	d, err := p.Publish(context.Background(), site, "run-1")
	require.NoError(t, err)
	require.True(t, d.Changed)
	require.Equal(t, "directory", d.Target)
	require.Equal(t, site.Digest, d.Digest)
	require.FileExists(t, d.Archive)

	helpers.NewFileAssertions(t, served).
		Exists("index.html").
		Contains("guide/index.html", "guide").
		Absent("stale.html")
	require.NoDirExists(t, served+"_stage")
	require.NoDirExists(t, served+".prev")

	again, err := p.Publish(context.Background(), site, "run-2")
	require.NoError(t, err)
	require.False(t, again.Changed)
}

func TestGitBranchTargetCommitsSite(t *testing.T) {
	remote := t.TempDir()
	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)

	target := &GitBranchTarget{
		Remote: remote,
		Branch: "gh-pages",
		Author: git.Author{Name: "bot", Email: "bot@example.com"},
	}
	p := newPublisher(t, target, deploylock.NewMemoryLocker())
	site := builtSite(t, map[string]string{"index.html": "home"})

	d, err := p.Publish(context.Background(), site, "run-1")
	require.NoError(t, err)
	require.True(t, d.Changed)
	require.NotEmpty(t, d.Commit)

	r, err := gogit.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := r.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	require.Equal(t, d.Commit, ref.Hash().String())

	again, err := p.Publish(context.Background(), site, "run-2")
	require.NoError(t, err)
	require.False(t, again.Changed)
}

func TestGitBranchTargetResolvesRemoteName(t *testing.T) {
	remote := t.TempDir()
	_, err := gogit.PlainInit(remote, true)
	require.NoError(t, err)

	repo, _, repoDir := helpers.SetupTestGitRepo(t)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remote}})
	require.NoError(t, err)

	target := &GitBranchTarget{RepoDir: repoDir, Remote: "origin", Branch: "gh-pages"}
	require.NoError(t, target.Configure(context.Background()))
	require.Equal(t, remote, target.url)

	missing := &GitBranchTarget{RepoDir: repoDir, Remote: "upstream", Branch: "gh-pages"}
	require.Error(t, missing.Configure(context.Background()))
}

type failingTarget struct {
	configureErr error
	deploys      int
}

func (f *failingTarget) Name() string { return "fake" }

func (f *failingTarget) Configure(context.Context) error { return f.configureErr }

func (f *failingTarget) Deploy(context.Context, string, artifact.Artifact) (Deployment, error) {
	f.deploys++
	return Deployment{Location: "fake"}, nil
}

func TestPublishConfigureFailure(t *testing.T) {
	target := &failingTarget{configureErr: errors.New("no credentials")}
	p := newPublisher(t, target, deploylock.NewMemoryLocker())

	_, err := p.Publish(context.Background(), builtSite(t, map[string]string{"index.html": "x"}), "run-1")
	require.ErrorIs(t, err, ErrConfigure)
	require.Zero(t, target.deploys)
}

func TestPublishWaitsOnHeldLock(t *testing.T) {
	locker := deploylock.NewMemoryLocker()
	ok, err := locker.TryAcquire(context.Background(), "pages", "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	target := &failingTarget{}
	p := newPublisher(t, target, locker)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err = p.Publish(ctx, builtSite(t, map[string]string{"index.html": "x"}), "run-1")
	require.ErrorIs(t, err, ErrLock)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, target.deploys)

	require.NoError(t, locker.Release(context.Background(), "pages", "other-run"))
	d, err := p.Publish(context.Background(), builtSite(t, map[string]string{"index.html": "x"}), "run-1")
	require.NoError(t, err)
	require.Equal(t, 1, target.deploys)
	require.Equal(t, "fake", d.Target)
}

func TestPublishRejectsModifiedArtifact(t *testing.T) {
	site := builtSite(t, map[string]string{"index.html": "x"})
	require.NoError(t, os.WriteFile(filepath.Join(site.Dir, "index.html"), []byte("tampered"), 0o600))

	target := &failingTarget{}
	_, err := newPublisher(t, target, deploylock.NewMemoryLocker()).Publish(context.Background(), site, "run-1")
	require.ErrorIs(t, err, ErrUpload)
	require.ErrorIs(t, err, artifact.ErrModified)
	require.Zero(t, target.deploys)
}

func TestNewFromConfig(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Parse([]byte("repository:\n  path: " + root + "\npublish:\n  target: git\n  lock:\n    backend: memory\n"))
	require.NoError(t, err)

	scratch := t.TempDir()
	p, closer, err := New(cfg, trigger.Secrets{RepoToken: trigger.NewSecret("GITHUB_TOKEN", "tok")}, scratch, nil)
	require.NoError(t, err)
	defer func() { _ = closer() }()

	g, ok := p.Target.(*GitBranchTarget)
	require.True(t, ok)
	require.Equal(t, "gh-pages", g.Branch)
	require.Equal(t, "tok", g.Token.Reveal())
	require.Equal(t, scratch, g.ScratchDir)
	require.Equal(t, "pages", p.Group)
	require.IsType(t, &deploylock.MemoryLocker{}, p.Locker)
}
