// Package tracking turns raw tracking signals into quality levels and keeps
// the bounded quality history used for trends and issue detection.
package tracking

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"git.home.luguber.info/inful/arsession/internal/history"
)

const (
	defaultTrendWindow = 60 * time.Second
	defaultIssueWindow = 10
	noPlaneMaxAge      = 30 * time.Second
)

// Result is the outcome of analyzing one tracking update.
type Result struct {
	Quality  Quality
	Previous Quality
	Changed  bool
	Snapshot Snapshot
}

// Analyzer converts tracking updates into quality levels and maintains the
// rolling history. It is safe for concurrent use.
type Analyzer struct {
	mu          sync.RWMutex
	clock       clockwork.Clock
	history     *history.Ring[Snapshot]
	current     Quality
	trendWindow time.Duration
	issueWindow int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClock injects the clock used for snapshot timestamps and windows.
func WithClock(c clockwork.Clock) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithCapacity sets the history capacity.
func WithCapacity(n int) Option {
	return func(a *Analyzer) { a.history = history.NewRing[Snapshot](n) }
}

// WithTrendWindow sets the trailing window used by Trend.
func WithTrendWindow(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.trendWindow = d
		}
	}
}

// WithIssueWindow sets how many recent snapshots Issues inspects.
func WithIssueWindow(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.issueWindow = n
		}
	}
}

// NewAnalyzer creates an analyzer with an empty history.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		clock:       clockwork.NewRealClock(),
		history:     history.NewRing[Snapshot](history.DefaultCapacity),
		current:     QualityUnavailable,
		trendWindow: defaultTrendWindow,
		issueWindow: defaultIssueWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze computes the quality for a tracking update and appends a snapshot.
func (a *Analyzer) Analyze(state State, planeCount int, sessionDuration time.Duration) Result {
	q := ComputeQuality(state, planeCount, sessionDuration)
	snap := Snapshot{Quality: q, State: state, PlaneCount: planeCount, At: a.clock.Now()}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.history.Push(snap)
	prev := a.current
	a.current = q
	return Result{Quality: q, Previous: prev, Changed: prev != q, Snapshot: snap}
}

// Current returns the most recently computed quality (Unavailable before any update).
func (a *Analyzer) Current() Quality {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

// Len returns the number of retained snapshots.
func (a *Analyzer) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Len()
}

// Recent returns the last n snapshots, oldest first.
func (a *Analyzer) Recent(n int) []Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Last(n)
}

// Since returns the snapshots recorded within the last d, oldest first.
func (a *Analyzer) Since(d time.Duration) []Snapshot {
	cutoff := a.clock.Now().Add(-d)
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Filter(func(s Snapshot) bool { return !s.At.Before(cutoff) })
}

// Reset clears the history and the current quality.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history.Clear()
	a.current = QualityUnavailable
}

// Stability classifies how often the quality label changed.
type Stability string

const (
	StabilityUnknown  Stability = "unknown"
	StabilityStable   Stability = "stable"
	StabilityModerate Stability = "moderate"
	StabilityUnstable Stability = "unstable"
)

// Direction classifies the quality trend.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionStable    Direction = "stable"
	DirectionDeclining Direction = "declining"
)

// Trend summarizes the trailing window.
type Trend struct {
	Samples      int       `json:"samples"`
	MeanScore    float64   `json:"meanScore"`
	LabelChanges int       `json:"labelChanges"`
	Stability    Stability `json:"stability"`
	Direction    Direction `json:"direction"`
}

// Trend computes mean score, stability and direction over the trend window.
func (a *Analyzer) Trend() Trend {
	return ComputeTrend(a.Since(a.trendWindow))
}

// ComputeTrend summarizes samples, which must be oldest first.
func ComputeTrend(samples []Snapshot) Trend {
	t := Trend{Samples: len(samples), Stability: StabilityUnknown, Direction: DirectionStable}
	if len(samples) == 0 {
		return t
	}

	scores := scoresOf(samples)
	t.MeanScore = stat.Mean(scores, nil)
	t.LabelChanges = labelChanges(samples)

	if len(samples) >= 5 {
		switch {
		case t.LabelChanges <= 1:
			t.Stability = StabilityStable
		case t.LabelChanges <= 3:
			t.Stability = StabilityModerate
		default:
			t.Stability = StabilityUnstable
		}
	}

	if len(samples) >= 3 {
		half := len(scores) / 2
		delta := stat.Mean(scores[half:], nil) - stat.Mean(scores[:half], nil)
		switch {
		case delta > 0.1:
			t.Direction = DirectionImproving
		case delta < -0.1:
			t.Direction = DirectionDeclining
		}
	}
	return t
}

func scoresOf(samples []Snapshot) []float64 {
	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.Quality.Score()
	}
	return scores
}

func labelChanges(samples []Snapshot) int {
	changes := 0
	for i := 1; i < len(samples); i++ {
		if samples[i].Quality != samples[i-1].Quality {
			changes++
		}
	}
	return changes
}
