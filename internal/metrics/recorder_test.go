package metrics

import "testing"

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncStateTransition("a", "b")
	r.SetPerformanceState("optimal")
	r.IncDirectiveChange("clear_caches", false)
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)
