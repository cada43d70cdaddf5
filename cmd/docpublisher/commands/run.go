package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	ferrors "git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/pipeline"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// TriggerFlags select the run. Without --event the CI environment is read.
type TriggerFlags struct {
	Event  string `help:"Trigger event (push, pull_request, schedule, workflow_dispatch); defaults to GITHUB_EVENT_NAME"`
	Branch string `help:"Branch being built; the head branch for pull requests"`
	Base   string `help:"Pull request base branch or commit"`
	Head   string `help:"Commit to build (default HEAD)"`
	Before string `help:"Commit before the push (default first parent)"`
}

// Params resolves the trigger parameters from flags or environment.
func (f TriggerFlags) Params(getenv func(string) string) (trigger.Params, error) {
	if f.Event == "" {
		p, err := trigger.FromEnv(getenv)
		if err != nil {
			return trigger.Params{}, ferrors.ValidationError("no trigger given").
				WithCause(err).
				WithHint("pass --event and --branch or run inside CI").
				Build()
		}
		return p, nil
	}
	ev, err := trigger.ParseEvent(f.Event)
	if err != nil {
		return trigger.Params{}, ferrors.ValidationError("invalid --event").WithCause(err).Build()
	}
	return trigger.Params{Event: ev, Branch: f.Branch, BaseRef: f.Base, HeadRef: f.Head, BeforeRef: f.Before}, nil
}

// RunCmd implements the 'run' command.
type RunCmd struct {
	TriggerFlags `embed:""`

	DryRun bool `name:"dry-run" help:"Print which steps would run and why, then exit"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	params, err := r.Params(g.getenv)
	if err != nil {
		return err
	}

	if r.DryRun {
		run, err := trigger.NewRun(params, cfg.Repository.DefaultBranch)
		if err != nil {
			return ferrors.ValidationError("invalid trigger").WithCause(err).Build()
		}
		return pipeline.NewPlan(run, cfg).Write(g.out())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunOnce(ctx, g, cfg, params)
}

// RunOnce executes one pipeline run, prints its summary and pushes metrics.
func RunOnce(ctx context.Context, g *Global, cfg *config.Config, params trigger.Params) error {
	hist, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = hist.Close() }()

	rec, prom := newMetrics(cfg)
	pr := &pipelineRunner{global: g, events: hist.events(), metrics: rec}
	sum, runErr := pr.execute(ctx, cfg, params)
	if sum != nil {
		if err := sum.Write(g.out()); err != nil && runErr == nil {
			runErr = err
		}
	}
	pushMetrics(ctx, cfg, prom)
	return runErr
}
