package publish

import (
	"context"
	"fmt"
	"os"
	"strings"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// GitBranchTarget serves the site from a branch of a git remote, the
// pages-branch convention.
type GitBranchTarget struct {
	RepoDir string
	// Remote is a remote name of RepoDir, a URL, or a local repository path.
	Remote  string
	Branch  string
	Author  git.Author
	Token   trigger.Secret
	NoPush  bool
	Message string

	// ScratchDir holds the unpacked tree during a deploy; empty means the OS temp dir.
	ScratchDir string

	url string
}

// Name implements Target.
func (g *GitBranchTarget) Name() string { return "git" }

// Configure resolves the remote to a URL. With NoPush the site is committed
// to the branch of RepoDir itself.
func (g *GitBranchTarget) Configure(context.Context) error {
	if g.Branch == "" {
		return fmt.Errorf("git target branch is empty")
	}
	if g.NoPush || isLocation(g.Remote) {
		g.url = g.Remote
		if g.NoPush {
			g.url = g.RepoDir
		}
		return nil
	}
	repo, err := git.Open(g.RepoDir)
	if err != nil {
		return err
	}
	url, err := repo.RemoteURL(g.Remote)
	if err != nil {
		return err
	}
	g.url = url
	return nil
}

// Deploy implements Target.
func (g *GitBranchTarget) Deploy(ctx context.Context, archive string, a artifact.Artifact) (Deployment, error) {
	if g.url == "" {
		return Deployment{}, fmt.Errorf("git target not configured")
	}
	tree, err := os.MkdirTemp(g.ScratchDir, "deploy-")
	if err != nil {
		return Deployment{}, err
	}
	defer func() { _ = os.RemoveAll(tree) }()
	if err := artifact.Unpack(archive, tree); err != nil {
		return Deployment{}, err
	}

	msg := g.Message
	if msg == "" {
		msg = "Deploy site " + a.ShortDigest()
	}
	res, err := git.PublishBranch(ctx, git.PublishOptions{
		URL:     g.url,
		Branch:  g.Branch,
		Dir:     tree,
		Author:  g.Author,
		Message: msg,
		Auth:    git.TokenAuth(g.Token.Reveal()),
	})
	if err != nil {
		return Deployment{}, err
	}
	return Deployment{
		Location: g.url + "#" + g.Branch,
		Commit:   res.Commit.String(),
		Changed:  res.Changed,
	}, nil
}

func isLocation(remote string) bool {
	if strings.Contains(remote, "://") || strings.HasPrefix(remote, "git@") {
		return true
	}
	fi, err := os.Stat(remote)
	return err == nil && fi.IsDir()
}
