// Package trigger describes one pipeline run: the event that started it, the
// branch it runs for, the refs change detection compares, and whether it is a
// release run.
package trigger

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

// Event is the trigger type of a run.
type Event string

const (
	EventPush             Event = "push"
	EventPullRequest      Event = "pull_request"
	EventSchedule         Event = "schedule"
	EventWorkflowDispatch Event = "workflow_dispatch"
)

// ParseEvent accepts the canonical names plus a few CI aliases.
func ParseEvent(raw string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "push":
		return EventPush, nil
	case "pull_request", "pull_request_target", "pr":
		return EventPullRequest, nil
	case "schedule", "scheduled", "cron":
		return EventSchedule, nil
	case "workflow_dispatch", "manual", "dispatch":
		return EventWorkflowDispatch, nil
	default:
		return "", fmt.Errorf("unknown trigger event: %q", raw)
	}
}

// Params are the raw inputs a run is created from.
type Params struct {
	Event Event
	// Branch is the branch the run builds. For pull requests it is the head branch.
	Branch string
	// BaseRef is the pull request base (branch name or SHA).
	BaseRef string
	// HeadRef is the commit being built; empty means HEAD.
	HeadRef string
	// BeforeRef is the pre-push commit for push events; empty means the first parent.
	BeforeRef string
}

// Run is one pipeline execution. It is immutable once created.
type Run struct {
	ID        string
	Event     Event
	Branch    string
	BaseRef   string
	HeadRef   string
	BeforeRef string
	// IsRelease is computed once in NewRun. Publishing and the statistics flag follow it.
	IsRelease bool
}

// NewRun validates params and computes IsRelease against defaultBranch.
func NewRun(p Params, defaultBranch string) (Run, error) {
	if p.Event == "" {
		return Run{}, fmt.Errorf("trigger event is required")
	}
	if _, err := ParseEvent(string(p.Event)); err != nil {
		return Run{}, err
	}
	if p.Branch == "" {
		return Run{}, fmt.Errorf("branch is required")
	}
	if p.Event == EventPullRequest && p.BaseRef == "" {
		slog.Warn("Pull request run without base ref; change detection will be degraded")
	}
	branch := strings.TrimPrefix(p.Branch, "refs/heads/")
	return Run{
		ID:        uuid.NewString(),
		Event:     p.Event,
		Branch:    branch,
		BaseRef:   p.BaseRef,
		HeadRef:   p.HeadRef,
		BeforeRef: p.BeforeRef,
		IsRelease: IsRelease(p.Event, branch, defaultBranch),
	}, nil
}

// IsRelease reports whether a run with this event and branch publishes.
func IsRelease(event Event, branch, defaultBranch string) bool {
	return event != EventPullRequest && branch != "" && branch == defaultBranch
}

// FullLinkCheck reports whether link checking covers every page.
func (r Run) FullLinkCheck() bool {
	return r.Event == EventSchedule
}

// LogValue groups the run identity for structured logs.
func (r Run) LogValue() slog.Value {
	return slog.GroupValue(
		logfields.RunID(r.ID),
		logfields.Event(string(r.Event)),
		logfields.Branch(r.Branch),
		logfields.Release(r.IsRelease),
	)
}
