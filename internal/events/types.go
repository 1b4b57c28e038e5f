package events

import (
	"time"

	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// Event is implemented by every notification carried on the bus. Subscribing
// to Event receives all of them, in the order each producer emitted them.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// SessionStateChanged is emitted by the session controller on every state change.
// From and To hold session.State values.
type SessionStateChanged struct {
	SessionID string
	RunID     string
	From      string
	To        string
	Reason    string
	At        time.Time
}

// TrackingQualityChanged is emitted when the derived quality label changes.
type TrackingQualityChanged struct {
	SessionID     string
	Previous      tracking.Quality
	Current       tracking.Quality
	Score         float64
	TrackingState tracking.State
	At            time.Time
}

// OptimizationsChanged is emitted by the performance monitor whenever its
// active directive set changes. Directive and state names are
// performance.Directive and performance.State values.
type OptimizationsChanged struct {
	Active  []string
	Added   []string
	Removed []string
	State   string
	At      time.Time
}

// CoachingChanged is emitted when coaching visibility toggles.
type CoachingChanged struct {
	SessionID string
	Visible   bool
	Reason    string
	At        time.Time
}

// FallbackChanged is emitted when the session enters or leaves fallback mode.
type FallbackChanged struct {
	SessionID         string
	Active            bool
	Reason            string
	RecommendedAction string
	At                time.Time
}

// MetricsSample is the subset of a performance sample carried by issue reports.
type MetricsSample struct {
	MemoryMB     float64
	CPUPercent   float64
	FrameRate    float64
	Thermal      string
	BatteryLevel float64
}

// PerformanceIssue is emitted once per transition into the critical state.
type PerformanceIssue struct {
	ID      string
	State   string
	Reason  string
	Metrics MetricsSample
	At      time.Time
}

// PerformanceStateChanged is emitted when the overall performance state changes.
type PerformanceStateChanged struct {
	From string
	To   string
	At   time.Time
}

func (e SessionStateChanged) EventName() string     { return "session.state_changed" }
func (e TrackingQualityChanged) EventName() string  { return "tracking.quality_changed" }
func (e OptimizationsChanged) EventName() string    { return "performance.optimizations_changed" }
func (e CoachingChanged) EventName() string         { return "session.coaching_changed" }
func (e FallbackChanged) EventName() string         { return "session.fallback_changed" }
func (e PerformanceIssue) EventName() string        { return "performance.issue" }
func (e PerformanceStateChanged) EventName() string { return "performance.state_changed" }

func (e SessionStateChanged) OccurredAt() time.Time     { return e.At }
func (e TrackingQualityChanged) OccurredAt() time.Time  { return e.At }
func (e OptimizationsChanged) OccurredAt() time.Time    { return e.At }
func (e CoachingChanged) OccurredAt() time.Time         { return e.At }
func (e FallbackChanged) OccurredAt() time.Time         { return e.At }
func (e PerformanceIssue) OccurredAt() time.Time        { return e.At }
func (e PerformanceStateChanged) OccurredAt() time.Time { return e.At }
