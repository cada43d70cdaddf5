package pipeline

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"

	"git.home.luguber.info/inful/docpublisher/internal/build"
	"git.home.luguber.info/inful/docpublisher/internal/changeset"
	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/deps"
	"git.home.luguber.info/inful/docpublisher/internal/git"
	"git.home.luguber.info/inful/docpublisher/internal/linkcheck"
	"git.home.luguber.info/inful/docpublisher/internal/lint"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/publish"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
	"git.home.luguber.info/inful/docpublisher/internal/workspace"
)

// Options are the process-scoped collaborators of Assemble.
type Options struct {
	// Runner defaults to runner.NewExec().
	Runner     runner.Runner
	Events     EventRecorder
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	LintOutput io.Writer
}

// Assemble wires the production pipeline for run. The returned closer
// releases the link cache connection, the lock database and the run
// workspace; it is never nil.
func Assemble(ctx context.Context, cfg *config.Config, run trigger.Run, secrets trigger.Secrets, opts Options) (*Pipeline, func() error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := opts.Runner
	if r == nil {
		r = runner.NewExec()
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return stderrors.Join(errs...)
	}

	workDir := cfg.Resolve(cfg.Repository.WorkDir)
	ws := workspace.NewManager(workDir, run.ID)
	if err := ws.Create(); err != nil {
		return nil, closeAll, err
	}
	closers = append(closers, ws.Cleanup)

	cache := workspace.NewPersistentManager(workDir, "deps")
	if err := cache.Create(); err != nil {
		return nil, closeAll, err
	}

	repo, err := git.Open(cfg.Repository.Path)
	if err != nil {
		// change detection degrades to an empty set
		logger.Warn("Repository unavailable for change detection", logfields.Path(cfg.Repository.Path), logfields.Error(err))
		repo = nil
	}

	builder := build.NewGeneratorService(cfg, r)
	builder.Logger = logger

	step, closeLinks, err := linkcheck.NewStep(ctx, cfg, linkcheck.Options{
		Runner:  r,
		RunID:   run.ID,
		Branch:  run.Branch,
		Logger:  logger,
		Secrets: secrets,
	})
	if err != nil {
		return nil, closeAll, err
	}
	closers = append(closers, closeLinks)

	p := &Pipeline{
		Config:  cfg,
		Run:     run,
		Secrets: secrets,
		Detect: func(ctx context.Context) changeset.ChangeSet {
			return changeset.Detect(ctx, repo, run, cfg.Repository.DocsDir)
		},
		Installer: &deps.Installer{
			Runner:   r,
			RepoDir:  cfg.Repository.Path,
			CacheDir: cache.Path(),
			Sets:     cfg.Install.Sets,
			Private:  cfg.Install.Private,
		},
		Runner:     r,
		Linter:     lint.New(lint.Options{}),
		Builder:    builder,
		LinkCheck:  step,
		Events:     opts.Events,
		Metrics:    opts.Metrics,
		Logger:     logger,
		LintOutput: opts.LintOutput,
	}

	// only release runs touch the deploy target and its lock
	if run.IsRelease {
		scratch, err := ws.Subdir("deploy")
		if err != nil {
			return nil, closeAll, err
		}
		pub, closeLock, err := publish.New(cfg, secrets, scratch, logger)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, closeLock)
		p.Publisher = pub
	}
	return p, closeAll, nil
}
