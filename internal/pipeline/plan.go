package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/linkcheck"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// StepName identifies a stage B step.
type StepName string

const (
	StepInstall   StepName = "install"
	StepTest      StepName = "test"
	StepLint      StepName = "lint"
	StepBuild     StepName = "build"
	StepLinkCheck StepName = "linkcheck"
	StepPublish   StepName = "publish"
)

// Steps is the fixed stage B order.
var Steps = []StepName{StepInstall, StepTest, StepLint, StepBuild, StepLinkCheck, StepPublish}

// PlannedStep is the decision for one step, made before anything executes.
type PlannedStep struct {
	Name   StepName
	Run    bool
	Reason string
}

// Plan is the immutable execution plan for a run.
type Plan struct {
	Run      trigger.Run
	LinkMode linkcheck.Mode
	Steps    []PlannedStep
}

// NewPlan decides which steps run. Validation and build always run; publish
// runs iff the run is a release run.
func NewPlan(run trigger.Run, cfg *config.Config) Plan {
	mode := linkcheck.ModeIncremental
	if run.FullLinkCheck() {
		mode = linkcheck.ModeFull
	}

	lintReason := "built-in linter on " + cfg.Repository.DocsDir
	if !cfg.Steps.Lint.Empty() {
		lintReason = "command"
	}
	linkReason := string(mode) + " mode"
	if mode == linkcheck.ModeIncremental {
		linkReason += "; skipped at run time when no notebook changed"
	}
	publishReason := fmt.Sprintf("%s target, group %s", cfg.Publish.Target, cfg.Publish.Group)
	if !run.IsRelease {
		publishReason = fmt.Sprintf("not a release run (%s on %s)", run.Event, run.Branch)
	}

	testStep := PlannedStep{Name: StepTest, Run: true}
	if cfg.Steps.Test.Empty() {
		testStep = PlannedStep{Name: StepTest, Reason: "no test command configured"}
	}

	return Plan{
		Run:      run,
		LinkMode: mode,
		Steps: []PlannedStep{
			{Name: StepInstall, Run: true, Reason: fmt.Sprintf("%d package sets", len(cfg.Install.Sets))},
			testStep,
			{Name: StepLint, Run: true, Reason: lintReason},
			{Name: StepBuild, Run: true, Reason: fmt.Sprintf("%s=%t", cfg.Build.StatsEnv, run.IsRelease)},
			{Name: StepLinkCheck, Run: true, Reason: linkReason},
			{Name: StepPublish, Run: run.IsRelease, Reason: publishReason},
		},
	}
}

// Step returns the planned decision for name.
func (p Plan) Step(name StepName) PlannedStep {
	for _, s := range p.Steps {
		if s.Name == name {
			return s
		}
	}
	return PlannedStep{Name: name}
}

// Write renders the plan for --dry-run.
func (p Plan) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Run %s: %s on %s (release: %t)\n\n", p.Run.ID, p.Run.Event, p.Run.Branch, p.Run.IsRelease); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tACTION\tDETAIL")
	fmt.Fprintf(tw, "changes\trun\tconcurrent with install; %s\n", p.Run.Event)
	for _, s := range p.Steps {
		action := "run"
		if !s.Run {
			action = "skip"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, action, s.Reason)
	}
	return tw.Flush()
}
