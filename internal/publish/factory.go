package publish

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/deploylock"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// NewTarget builds the configured hosting target. scratchDir receives
// temporary deploy trees.
func NewTarget(cfg *config.Config, secrets trigger.Secrets, scratchDir string, logger *slog.Logger) (Target, error) {
	switch cfg.Publish.Target {
	case config.PublishDirectory:
		return &DirectoryTarget{Path: cfg.Resolve(cfg.Publish.Directory.Path), Logger: logger}, nil
	case config.PublishGit:
		g := cfg.Publish.Git
		return &GitBranchTarget{
			RepoDir: cfg.Repository.Path,
			Remote:  g.Remote,
			Branch:  g.Branch,
			Author:  git.Author{Name: g.AuthorName, Email: g.AuthorEmail},
			Token:   secrets.RepoToken,
			NoPush:  g.NoPush,

			ScratchDir: scratchDir,
		}, nil
	default:
		return nil, fmt.Errorf("unknown publish target %q", cfg.Publish.Target)
	}
}

// New wires a Publisher from configuration. The returned closer releases
// the lock database.
func New(cfg *config.Config, secrets trigger.Secrets, scratchDir string, logger *slog.Logger) (*Publisher, func() error, error) {
	target, err := NewTarget(cfg, secrets, scratchDir, logger)
	if err != nil {
		return nil, nil, err
	}
	locker, err := deploylock.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &Publisher{
		Target:     target,
		Locker:     locker,
		Lock:       deploylock.OptionsFromConfig(cfg.Publish.Lock, logger),
		Group:      cfg.Publish.Group,
		ArchiveDir: cfg.Resolve(cfg.Publish.ArchiveDir),
		Logger:     logger,
	}, locker.Close, nil
}
