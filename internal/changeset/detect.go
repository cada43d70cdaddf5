package changeset

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// Detect computes the ChangeSet for run below docsDir. It never fails: when
// no base resolves it returns a degraded empty set and logs why.
//
// Pull requests diff the merge base of base and head against head. Other
// events diff the pre-push commit (or, failing that, the first parent of
// head) against head. A before commit that is not an ancestor of head (force
// push) is replaced by the merge base of the two.
func Detect(ctx context.Context, repo *git.Repo, run trigger.Run, docsDir string) ChangeSet {
	cs, err := detect(ctx, repo, run, docsDir)
	if err != nil {
		slog.Warn("Change detection degraded; continuing with empty change set",
			logfields.RunID(run.ID), logfields.Error(err))
		return Degraded(err.Error())
	}
	slog.Info("Change detection complete",
		logfields.RunID(run.ID),
		logfields.Count(len(cs.Entries)),
		slog.String("base", cs.Base),
		slog.String("head", cs.Head))
	return cs
}

func detect(ctx context.Context, repo *git.Repo, run trigger.Run, docsDir string) (ChangeSet, error) {
	if repo == nil {
		return ChangeSet{}, fmt.Errorf("no repository")
	}
	head, err := repo.Resolve(run.HeadRef)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("resolve head: %w", err)
	}

	var base plumbing.Hash
	if run.Event == trigger.EventPullRequest {
		base, err = pullRequestBase(repo, run.BaseRef, head)
	} else {
		base, err = pushBase(repo, run.BeforeRef, head)
	}
	if err != nil {
		return ChangeSet{}, err
	}

	changes, err := repo.Diff(ctx, base, head, docsDir)
	if err != nil {
		return ChangeSet{}, err
	}
	entries := make([]Entry, len(changes))
	for i, c := range changes {
		entries[i] = Entry{Path: c.Path, OldPath: c.OldPath, Action: c.Action}
	}
	return New(base.String(), head.String(), entries), nil
}

func pullRequestBase(repo *git.Repo, baseRef string, head plumbing.Hash) (plumbing.Hash, error) {
	if baseRef == "" {
		return plumbing.ZeroHash, fmt.Errorf("pull request has no base ref")
	}
	base, err := repo.Resolve(baseRef)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve base: %w", err)
	}
	if mb, err := repo.MergeBase(base, head); err == nil {
		return mb, nil
	}
	return base, nil
}

func pushBase(repo *git.Repo, beforeRef string, head plumbing.Hash) (plumbing.Hash, error) {
	if git.IsZeroSHA(beforeRef) {
		return plumbing.ZeroHash, fmt.Errorf("push created a new branch; no previous commit")
	}
	if beforeRef != "" {
		before, err := repo.Resolve(beforeRef)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("resolve before: %w", err)
		}
		ok, err := repo.IsAncestor(before, head)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if ok {
			return before, nil
		}
		return repo.MergeBase(before, head)
	}
	parent, ok, err := repo.FirstParent(head)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("head %s is a root commit", head)
	}
	return parent, nil
}
