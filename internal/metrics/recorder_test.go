package metrics

import (
	"testing"
	"time"
)

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestNoopRecorderAcceptsAllCalls(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStepDuration("build", time.Second)
	r.IncStepResult("build", ResultFailed)
	r.ObserveRunDuration(time.Minute)
	r.IncRunOutcome(ResultFailed, true)
	r.ObserveLinkCheck("incremental", 1, 0, 0)
	r.ObserveLockWait("pages", 0)
	r.IncDependencyCache("js", true)
}
