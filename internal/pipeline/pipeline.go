// Package pipeline runs one documentation build-and-publish run.
//
// A run has two stages. Stage A computes the ChangeSet in its own goroutine;
// stage B runs install, test, lint, build, linkcheck and publish strictly in
// order. Only linkcheck waits for stage A. The first failing step ends the
// run, and stage B is bounded by the configured wall-clock timeout.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/build"
	"git.home.luguber.info/inful/docpublisher/internal/changeset"
	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/deps"
	"git.home.luguber.info/inful/docpublisher/internal/eventstore"
	"git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
	"git.home.luguber.info/inful/docpublisher/internal/linkcheck"
	"git.home.luguber.info/inful/docpublisher/internal/lint"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/publish"
	"git.home.luguber.info/inful/docpublisher/internal/runner"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// ErrLintFailed is returned when the built-in linter reports errors.
var ErrLintFailed = stderrors.New("documentation lint failed")

// Detector computes the run's ChangeSet. It must not fail; an unresolvable
// base yields a degraded, empty set.
type Detector func(ctx context.Context) changeset.ChangeSet

// Installer installs dependencies.
type Installer interface {
	Install(ctx context.Context) ([]deps.Outcome, error)
}

// Linter lints the documentation tree.
type Linter interface {
	LintPath(path string) (*lint.Result, error)
}

// LinkChecker selects pages and checks their links.
type LinkChecker interface {
	Run(ctx context.Context, mode linkcheck.Mode, changed []string) (*linkcheck.Outcome, error)
}

// Publisher deploys an artifact.
type Publisher interface {
	Publish(ctx context.Context, a artifact.Artifact, runID string) (publish.Deployment, error)
}

// EventRecorder persists run history.
type EventRecorder interface {
	Record(ctx context.Context, e eventstore.Event) error
}

// Pipeline holds everything one run needs. Optional fields: Events, Metrics,
// Logger, LintOutput.
type Pipeline struct {
	Config    *config.Config
	Run       trigger.Run
	Secrets   trigger.Secrets
	Detect    Detector
	Installer Installer
	Runner    runner.Runner
	Linter    Linter
	Builder   build.Service
	LinkCheck LinkChecker
	Publisher Publisher

	Events     EventRecorder
	Metrics    metrics.Recorder
	Logger     *slog.Logger
	LintOutput io.Writer
}

// runState carries values between steps.
type runState struct {
	changes  <-chan changeset.ChangeSet
	summary  *Summary
	linkMode linkcheck.Mode
}

// Execute runs the pipeline. The returned summary is always non-nil; the
// error is a classified error naming the failed step.
func (p *Pipeline) Execute(parent context.Context) (*Summary, error) {
	logger := p.logger().With(logfields.RunID(p.Run.ID))
	recorder := p.metrics()
	plan := NewPlan(p.Run, p.Config)
	sum := &Summary{Run: p.Run, Plan: plan, Started: time.Now()}
	// history and metrics outlive a cancelled run
	recordCtx := context.WithoutCancel(parent)

	logger.Info("Pipeline run started", slog.Any("run", p.Run), slog.Any("secrets", p.Secrets))
	if ev, err := eventstore.NewRunStarted(p.Run.ID, eventstore.RunStartedMeta{
		Event:   string(p.Run.Event),
		Branch:  p.Run.Branch,
		Release: p.Run.IsRelease,
		BaseRef: p.Run.BaseRef,
		HeadRef: p.Run.HeadRef,
	}); err == nil {
		p.record(recordCtx, logger, ev)
	}

	timeout := p.Config.Pipeline.TimeoutDuration()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	changes := make(chan changeset.ChangeSet, 1)
	go func() { changes <- p.Detect(ctx) }()

	st := &runState{changes: changes, summary: sum, linkMode: plan.LinkMode}
	var runErr error
	for _, planned := range plan.Steps {
		if runErr != nil {
			p.finishStep(recordCtx, logger, sum, StepResult{Name: planned.Name, Status: StatusNotRun, Detail: "previous step failed"})
			continue
		}
		if !planned.Run {
			p.finishStep(recordCtx, logger, sum, StepResult{Name: planned.Name, Status: StatusSkipped, Detail: planned.Reason})
			continue
		}

		logger.Info("Step started", logfields.Step(string(planned.Name)))
		start := time.Now()
		detail, skipped, err := p.runStep(ctx, planned.Name, st, logger)
		res := StepResult{Name: planned.Name, Duration: time.Since(start), Detail: detail, Status: StatusSucceeded}
		switch {
		case err != nil:
			runErr = p.classify(ctx, planned.Name, timeout, err)
			res.Status = StatusFailed
			res.Err = runErr
			sum.FailedStep = planned.Name
		case skipped:
			res.Status = StatusSkipped
		}
		recorder.ObserveStepDuration(string(planned.Name), res.Duration)
		p.finishStep(recordCtx, logger, sum, res)
	}

	if sum.ChangeSet == nil {
		select {
		case cs := <-changes:
			sum.ChangeSet = &cs
		default:
		}
	}

	sum.Duration = time.Since(sum.Started)
	sum.Err = runErr
	sum.Status = StatusSucceeded
	outcome := metrics.ResultSucceeded
	if runErr != nil {
		sum.Status = StatusFailed
		outcome = metrics.ResultFailed
	}
	recorder.ObserveRunDuration(sum.Duration)
	recorder.IncRunOutcome(outcome, p.Run.IsRelease)

	result := eventstore.RunResult{
		Status:     string(sum.Status),
		DurationMS: sum.Duration.Milliseconds(),
		FailedStep: string(sum.FailedStep),
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if sum.Artifact != nil {
		result.Digest = sum.Artifact.Digest
	}
	if ev, err := eventstore.NewRunCompleted(p.Run.ID, result); err == nil {
		p.record(recordCtx, logger, ev)
	}

	if runErr != nil {
		logger.Error("Pipeline run failed", logfields.Step(string(sum.FailedStep)),
			logfields.DurationMS(float64(sum.Duration.Milliseconds())), logfields.Error(runErr))
		return sum, runErr
	}
	logger.Info("Pipeline run succeeded", logfields.DurationMS(float64(sum.Duration.Milliseconds())))
	return sum, nil
}

func (p *Pipeline) runStep(ctx context.Context, name StepName, st *runState, logger *slog.Logger) (string, bool, error) {
	switch name {
	case StepInstall:
		return p.install(ctx)
	case StepTest:
		return p.command(ctx, "test", p.Config.Steps.Test)
	case StepLint:
		if !p.Config.Steps.Lint.Empty() {
			return p.command(ctx, "lint", p.Config.Steps.Lint)
		}
		return p.lint(logger)
	case StepBuild:
		return p.build(ctx, st)
	case StepLinkCheck:
		return p.linkCheck(ctx, st)
	case StepPublish:
		return p.publish(ctx, st)
	default:
		return "", false, fmt.Errorf("unknown step %q", name)
	}
}

func (p *Pipeline) install(ctx context.Context) (string, bool, error) {
	outcomes, err := p.Installer.Install(ctx)
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			parts = append(parts, o.Name+" skipped")
		case o.Cached:
			parts = append(parts, o.Name+" cached")
		default:
			parts = append(parts, o.Name+" installed")
		}
		if o.Key != "" {
			p.metrics().IncDependencyCache(o.Name, o.Cached)
		}
	}
	return strings.Join(parts, ", "), false, err
}

func (p *Pipeline) command(ctx context.Context, step string, c config.Command) (string, bool, error) {
	_, err := p.Runner.Run(ctx, runner.Command{
		Step: step,
		Args: c.Run,
		Dir:  filepath.Join(p.Config.Repository.Path, c.Dir),
		Env:  deps.EnvList(c.Env),
	})
	if err != nil {
		return "", false, err
	}
	return strings.Join(c.Run, " "), false, nil
}

func (p *Pipeline) lint(logger *slog.Logger) (string, bool, error) {
	result, err := p.Linter.LintPath(p.Config.Resolve(p.Config.Repository.DocsDir))
	if err != nil {
		return "", false, err
	}
	detail := fmt.Sprintf("%d files, %d errors, %d warnings", result.FilesTotal, result.ErrorCount(), result.WarningCount())
	if len(result.Issues) > 0 {
		out := p.LintOutput
		if out == nil {
			out = os.Stderr
		}
		if err := (lint.TextFormatter{}).Format(out, result); err != nil {
			logger.Warn("Failed to write lint report", logfields.Error(err))
		}
	}
	if result.HasErrors() {
		return detail, false, fmt.Errorf("%w: %d errors", ErrLintFailed, result.ErrorCount())
	}
	return detail, false, nil
}

func (p *Pipeline) build(ctx context.Context, st *runState) (string, bool, error) {
	res, err := p.Builder.Run(ctx, build.Request{Release: p.Run.IsRelease, Secrets: p.Secrets})
	if err != nil {
		return "", false, err
	}
	a := res.Artifact
	st.summary.Artifact = &a
	return fmt.Sprintf("%d files, digest %s, %s=%t", a.FileCount, a.ShortDigest(), p.Config.Build.StatsEnv, res.StatsEnabled), false, nil
}

func (p *Pipeline) linkCheck(ctx context.Context, st *runState) (string, bool, error) {
	var cs changeset.ChangeSet
	select {
	case cs = <-st.changes:
	case <-ctx.Done():
		return "", false, fmt.Errorf("waiting for change detection: %w", ctx.Err())
	}
	st.summary.ChangeSet = &cs

	changed := cs.Under(p.Config.Repository.DocsDir, p.Config.Repository.NotebookGlob)
	out, err := p.LinkCheck.Run(ctx, st.linkMode, changed)
	st.summary.LinkCheck = out
	if out == nil {
		return "", false, err
	}
	if out.Skipped {
		return out.Reason, true, err
	}
	r := out.Report
	if r == nil {
		return string(out.Mode), false, err
	}
	p.metrics().ObserveLinkCheck(string(out.Mode), r.Checked, len(r.Broken), len(r.Excluded))
	if r.NoMatch {
		return fmt.Sprintf("%s: no items matched", out.Mode), false, err
	}
	return fmt.Sprintf("%s: %d pages, %d links checked, %d broken, %d excluded",
		out.Mode, len(out.Pages), r.Checked, len(r.Broken), len(r.Excluded)), false, err
}

func (p *Pipeline) publish(ctx context.Context, st *runState) (string, bool, error) {
	if st.summary.Artifact == nil {
		return "", false, fmt.Errorf("no artifact to publish")
	}
	d, err := p.Publisher.Publish(ctx, *st.summary.Artifact, p.Run.ID)
	if err != nil {
		return "", false, err
	}
	st.summary.Deployment = &d
	p.metrics().ObserveLockWait(p.Config.Publish.Group, d.LockWaited)
	detail := d.Location
	if d.Commit != "" {
		detail += " @ " + shortHash(d.Commit)
	}
	if !d.Changed {
		detail += " (unchanged)"
	}
	return detail, false, nil
}

var stepCategory = map[StepName]errors.ErrorCategory{
	StepInstall:   errors.CategoryInstall,
	StepTest:      errors.CategoryTest,
	StepLint:      errors.CategoryLint,
	StepBuild:     errors.CategoryBuild,
	StepLinkCheck: errors.CategoryLinkCheck,
	StepPublish:   errors.CategoryPublish,
}

// classify turns a step failure into the run's classified error. A failure
// caused by the stage deadline is a timeout regardless of the step.
func (p *Pipeline) classify(ctx context.Context, step StepName, timeout time.Duration, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.TimeoutError(fmt.Sprintf("pipeline exceeded %s during %s", timeout, step)).
			WithCause(err).
			WithContext("step", string(step)).
			Build()
	}
	category := stepCategory[step]
	if stderrors.Is(err, publish.ErrLock) {
		category = errors.CategoryLock
	}
	if stderrors.Is(err, context.Canceled) {
		category = errors.CategoryRuntime
	}
	b := errors.StepError(category, fmt.Sprintf("%s step failed", step)).
		WithCause(err).
		WithContext("step", string(step))
	if code, ok := runner.ExitCode(err); ok {
		b = b.WithContext("exit_code", code)
	}
	return b.Build()
}

func (p *Pipeline) finishStep(ctx context.Context, logger *slog.Logger, sum *Summary, res StepResult) {
	sum.Steps = append(sum.Steps, res)
	p.metrics().IncStepResult(string(res.Name), res.Status.metricLabel())

	attrs := []any{logfields.Step(string(res.Name)), logfields.Status(string(res.Status)),
		logfields.DurationMS(float64(res.Duration.Milliseconds()))}
	if res.Detail != "" {
		attrs = append(attrs, slog.String("detail", res.Detail))
	}
	switch res.Status {
	case StatusFailed:
		logger.Error("Step failed", append(attrs, logfields.Error(res.Err))...)
	case StatusSucceeded, StatusSkipped:
		logger.Info("Step finished", attrs...)
	}

	rec := eventstore.StepRecord{
		Step:       string(res.Name),
		Status:     string(res.Status),
		DurationMS: res.Duration.Milliseconds(),
		Detail:     res.Detail,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if ev, err := eventstore.NewStepFinished(p.Run.ID, rec); err == nil {
		p.record(ctx, logger, ev)
	}
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, e eventstore.Event) {
	if p.Events == nil {
		return
	}
	if err := p.Events.Record(ctx, e); err != nil {
		logger.Warn("Failed to record run history", slog.String("event_type", e.Type()), logfields.Error(err))
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) metrics() metrics.Recorder {
	if p.Metrics != nil {
		return p.Metrics
	}
	return metrics.NoopRecorder{}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
