package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/foundation/errors"
)

// Event type names.
const (
	TypeRunStarted   = "RunStarted"
	TypeStepFinished = "StepFinished"
	TypeRunCompleted = "RunCompleted"
)

// RunStartedMeta describes the trigger of a run.
type RunStartedMeta struct {
	Event   string `json:"event"`
	Branch  string `json:"branch"`
	Release bool   `json:"release"`
	BaseRef string `json:"base_ref,omitempty"`
	HeadRef string `json:"head_ref,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// RunStarted is emitted when a run begins.
type RunStarted struct {
	BaseEvent
	Meta RunStartedMeta
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, meta RunStartedMeta) (*RunStarted, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal RunStarted payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &RunStarted{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      TypeRunStarted,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Meta: meta,
	}, nil
}

// StepRecord is the outcome of one pipeline step.
type StepRecord struct {
	Step       string `json:"step"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StepFinished is emitted when a step ends, whatever its status.
type StepFinished struct {
	BaseEvent
	Record StepRecord
}

// NewStepFinished creates a StepFinished event.
func NewStepFinished(runID string, rec StepRecord) (*StepFinished, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal StepFinished payload").
			WithCause(err).
			WithContext("run_id", runID).
			WithContext("step", rec.Step).
			Build()
	}
	return &StepFinished{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      TypeStepFinished,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Record: rec,
	}, nil
}

// RunResult is the final state of a run.
type RunResult struct {
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	FailedStep string `json:"failed_step,omitempty"`
	Error      string `json:"error,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// RunCompleted is emitted when a run ends.
type RunCompleted struct {
	BaseEvent
	Result RunResult
}

// NewRunCompleted creates a RunCompleted event.
func NewRunCompleted(runID string, res RunResult) (*RunCompleted, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, errors.EventStoreError("failed to marshal RunCompleted payload").
			WithCause(err).
			WithContext("run_id", runID).
			Build()
	}
	return &RunCompleted{
		BaseEvent: BaseEvent{
			EventRunID:     runID,
			EventType:      TypeRunCompleted,
			EventTimestamp: time.Now(),
			EventPayload:   payload,
		},
		Result: res,
	}, nil
}
