package pipeline

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/changeset"
	"git.home.luguber.info/inful/docpublisher/internal/linkcheck"
	"git.home.luguber.info/inful/docpublisher/internal/metrics"
	"git.home.luguber.info/inful/docpublisher/internal/publish"
	"git.home.luguber.info/inful/docpublisher/internal/trigger"
)

// Status is the outcome of a step or a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	// StatusNotRun marks steps after a failed one.
	StatusNotRun Status = "not_run"
)

func (s Status) metricLabel() metrics.ResultLabel {
	switch s {
	case StatusSucceeded:
		return metrics.ResultSucceeded
	case StatusFailed:
		return metrics.ResultFailed
	case StatusSkipped:
		return metrics.ResultSkipped
	default:
		return metrics.ResultCanceled
	}
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name     StepName
	Status   Status
	Duration time.Duration
	Detail   string
	Err      error
}

// Summary describes a finished run.
type Summary struct {
	Run        trigger.Run
	Plan       Plan
	Status     Status
	FailedStep StepName
	Steps      []StepResult

	ChangeSet  *changeset.ChangeSet
	Artifact   *artifact.Artifact
	LinkCheck  *linkcheck.Outcome
	Deployment *publish.Deployment

	Started  time.Time
	Duration time.Duration
	Err      error
}

// Step returns the result recorded for name.
func (s *Summary) Step(name StepName) (StepResult, bool) {
	for _, r := range s.Steps {
		if r.Name == name {
			return r, true
		}
	}
	return StepResult{}, false
}

// Write renders the per-step table printed at the end of a run.
func (s *Summary) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tDETAIL")
	if s.ChangeSet != nil {
		detail := fmt.Sprintf("%d files", len(s.ChangeSet.Entries))
		if s.ChangeSet.Degraded {
			detail = "degraded: " + s.ChangeSet.Reason
		}
		fmt.Fprintf(tw, "changes\t%s\t-\t%s\n", StatusSucceeded, detail)
	}
	for _, r := range s.Steps {
		dur := "-"
		if r.Duration > 0 {
			dur = r.Duration.Round(time.Millisecond).String()
		}
		detail := r.Detail
		if r.Err != nil {
			detail = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Status, dur, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nRun %s %s in %s\n", s.Run.ID, s.Status, s.Duration.Round(time.Millisecond))
	return err
}
