package metrics

import "time"

// Recorder defines observability hooks for the session controller, the
// performance monitor and the analytics pipeline.
type Recorder interface {
	IncStateTransition(from, to string)
	IncRetry()
	IncRetryExhausted()
	SetFallbackActive(active bool)
	ObserveTimeToConfirm(d time.Duration)
	SetTrackingQuality(score float64)
	SetCoachingVisible(visible bool)
	SetPerformanceState(state string)
	IncDirectiveChange(directive string, added bool)
	ObservePerformanceSample(frameRate, memoryMB, cpuPercent float64)
	IncAnalyticsDropped()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncStateTransition(string, string)                  {}
func (NoopRecorder) IncRetry()                                          {}
func (NoopRecorder) IncRetryExhausted()                                 {}
func (NoopRecorder) SetFallbackActive(bool)                             {}
func (NoopRecorder) ObserveTimeToConfirm(time.Duration)                 {}
func (NoopRecorder) SetTrackingQuality(float64)                         {}
func (NoopRecorder) SetCoachingVisible(bool)                            {}
func (NoopRecorder) SetPerformanceState(string)                         {}
func (NoopRecorder) IncDirectiveChange(string, bool)                    {}
func (NoopRecorder) ObservePerformanceSample(float64, float64, float64) {}
func (NoopRecorder) IncAnalyticsDropped()                               {}
