package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSucceeded ResultLabel = "succeeded"
	ResultFailed    ResultLabel = "failed"
	ResultSkipped   ResultLabel = "skipped"
	ResultCanceled  ResultLabel = "canceled"
)

// Recorder defines observability hooks for pipeline runs and steps.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	IncStepResult(step string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome ResultLabel, release bool)
	ObserveLinkCheck(mode string, checked, broken, excluded int)
	ObserveLockWait(group string, d time.Duration)
	IncDependencyCache(set string, hit bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncRunOutcome(ResultLabel, bool)           {}
func (NoopRecorder) ObserveLinkCheck(string, int, int, int)    {}
func (NoopRecorder) ObserveLockWait(string, time.Duration)     {}
func (NoopRecorder) IncDependencyCache(string, bool)           {}
