package performance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/history"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/metrics"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// Source produces device health samples.
type Source interface {
	Sample(ctx context.Context) (Metrics, error)
}

// Publisher receives monitor notifications. Offer must not block.
type Publisher interface {
	Offer(evt any) int
}

// IssueReporter is the external sink for critical performance issues.
type IssueReporter interface {
	ReportIssue(ctx context.Context, issue events.PerformanceIssue)
}

// LogIssueReporter reports issues through slog.
type LogIssueReporter struct{}

// ReportIssue implements IssueReporter.
func (LogIssueReporter) ReportIssue(ctx context.Context, issue events.PerformanceIssue) {
	slog.WarnContext(ctx, "Performance issue",
		slog.String("issue_id", issue.ID),
		logfields.PerfState(issue.State),
		logfields.Reason(issue.Reason))
}

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	Previous      State
	State         State
	Active        DirectiveSet
	Added         DirectiveSet
	Removed       DirectiveSet
	Reasons       []string
	Warnings      []string
	IssueReported bool
}

// Changed reports whether the active directive set changed.
func (e Evaluation) Changed() bool { return !e.Added.Empty() || !e.Removed.Empty() }

// Summary aggregates the metrics window for diagnostics.
type Summary struct {
	Samples            int     `json:"samples"`
	MeanFrameRate      float64 `json:"meanFrameRate"`
	StdDevFrameRate    float64 `json:"stdDevFrameRate"`
	PeakMemoryMB       float64 `json:"peakMemoryMB"`
	MeanCPUPercent     float64 `json:"meanCPUPercent"`
	MeanRenderTimeMS   float64 `json:"meanRenderTimeMS"`
	MeanNetworkLatency float64 `json:"meanNetworkLatencyMS,omitempty"`
}

// Monitor samples metrics on its own schedule and maintains the active
// directive set. It never calls into the session controller; changes leave
// through the Publisher.
type Monitor struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	source   Source
	interval time.Duration

	thresholds atomic.Pointer[config.Thresholds]

	history  *history.Ring[Metrics]
	state    State
	active   DirectiveSet
	warnings []string
	reasons  []string

	publisher Publisher
	reporter  IssueReporter
	recorder  metrics.Recorder
	quality   func() tracking.Quality

	scheduler gocron.Scheduler
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock injects the clock used for timestamps and the sampling schedule.
func WithClock(c clockwork.Clock) MonitorOption {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithInterval sets the sampling cadence. Values outside [0.5s, 2s] are clamped.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = config.ClampSampleInterval(d) }
}

// WithCapacity sets the metrics history capacity.
func WithCapacity(n int) MonitorOption {
	return func(m *Monitor) { m.history = history.NewRing[Metrics](n) }
}

// WithPublisher sets the notification target, normally the event bus.
func WithPublisher(p Publisher) MonitorOption {
	return func(m *Monitor) { m.publisher = p }
}

// WithIssueReporter sets the sink for critical issues.
func WithIssueReporter(r IssueReporter) MonitorOption {
	return func(m *Monitor) {
		if r != nil {
			m.reporter = r
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) MonitorOption {
	return func(m *Monitor) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithQualityProvider stamps sampled metrics with the current tracking quality.
func WithQualityProvider(f func() tracking.Quality) MonitorOption {
	return func(m *Monitor) { m.quality = f }
}

// NewMonitor creates a monitor reading from source and classifying against t.
func NewMonitor(source Source, t config.Thresholds, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		clock:    clockwork.NewRealClock(),
		source:   source,
		interval: config.DefaultSampleInterval,
		history:  history.NewRing[Metrics](history.DefaultCapacity),
		state:    StateOptimal,
		reporter: LogIssueReporter{},
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.thresholds.Store(&t)
	return m
}

// Thresholds returns the table currently in use.
func (m *Monitor) Thresholds() config.Thresholds { return *m.thresholds.Load() }

// SetThresholds validates t and swaps it in as a whole.
func (m *Monitor) SetThresholds(t config.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.thresholds.Store(&t)
	slog.Info("Performance thresholds updated",
		slog.Float64("memory_warning_mb", t.MemoryWarningMB),
		slog.Float64("memory_critical_mb", t.MemoryCriticalMB))
	return nil
}

// Interval returns the sampling cadence.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Evaluate classifies metrics, updates the directive set and publishes changes.
func (m *Monitor) Evaluate(ctx context.Context, sample Metrics) Evaluation {
	if sample.At.IsZero() {
		sample.At = m.clock.Now()
	}
	a := Classify(sample, *m.thresholds.Load())

	m.mu.Lock()
	prevState := m.state
	prevActive := m.active

	next := prevActive.Union(a.Required)
	if a.State == StateOptimal {
		next = prevActive.Intersect(NewDirectiveSet(ClearCaches))
	}

	m.history.Push(sample)
	m.state = a.State
	m.active = next
	m.warnings = a.Warnings
	m.reasons = a.Reasons
	m.mu.Unlock()

	ev := Evaluation{
		Previous: prevState,
		State:    a.State,
		Active:   next,
		Added:    next.Minus(prevActive),
		Removed:  prevActive.Minus(next),
		Reasons:  a.Reasons,
		Warnings: a.Warnings,
	}

	m.recorder.ObservePerformanceSample(sample.FrameRate, sample.MemoryMB, sample.CPUPercent)
	for _, w := range a.Warnings {
		slog.DebugContext(ctx, "Performance warning", slog.String("warning", w))
	}

	if prevState != a.State {
		m.recorder.SetPerformanceState(string(a.State))
		slog.InfoContext(ctx, "Performance state changed",
			logfields.Transition(string(prevState), string(a.State)),
			slog.Any("reasons", a.Reasons))
		m.offer(events.PerformanceStateChanged{From: string(prevState), To: string(a.State), At: sample.At})
	}

	if ev.Changed() {
		for _, d := range ev.Added.Items() {
			m.recorder.IncDirectiveChange(string(d), true)
		}
		for _, d := range ev.Removed.Items() {
			m.recorder.IncDirectiveChange(string(d), false)
		}
		slog.InfoContext(ctx, "Optimizations changed",
			slog.String("active", next.String()),
			slog.String("added", ev.Added.String()),
			slog.String("removed", ev.Removed.String()),
			logfields.PerfState(string(a.State)))
		m.offer(events.OptimizationsChanged{
			Active:  next.Strings(),
			Added:   ev.Added.Strings(),
			Removed: ev.Removed.Strings(),
			State:   string(a.State),
			At:      sample.At,
		})
	}

	if a.State == StateCritical && prevState != StateCritical {
		issue := events.PerformanceIssue{
			ID:     uuid.NewString(),
			State:  string(a.State),
			Reason: strings.Join(a.Reasons, "; "),
			Metrics: events.MetricsSample{
				MemoryMB:     sample.MemoryMB,
				CPUPercent:   sample.CPUPercent,
				FrameRate:    sample.FrameRate,
				Thermal:      string(sample.Thermal),
				BatteryLevel: sample.BatteryLevel,
			},
			At: sample.At,
		}
		m.reporter.ReportIssue(ctx, issue)
		m.offer(issue)
		ev.IssueReported = true
	}

	return ev
}

func (m *Monitor) offer(evt any) {
	if m.publisher == nil {
		return
	}
	if delivered := m.publisher.Offer(evt); delivered == 0 {
		slog.Debug("Performance notification not delivered", slog.String("event", fmt.Sprintf("%T", evt)))
	}
}

// Sample pulls one sample from the source and evaluates it.
func (m *Monitor) Sample(ctx context.Context) (Evaluation, error) {
	if m.source == nil {
		return Evaluation{}, errors.New("performance monitor has no source")
	}
	sample, err := m.source.Sample(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("sample metrics: %w", err)
	}
	if sample.At.IsZero() {
		sample.At = m.clock.Now()
	}
	if m.quality != nil && sample.TrackingQuality == "" {
		sample.TrackingQuality = m.quality()
	}
	return m.Evaluate(ctx, sample), nil
}

// Start schedules sampling at the configured interval. The job runs in
// singleton mode so a slow source never overlaps itself.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduler != nil {
		return errors.New("performance monitor already started")
	}

	s, err := gocron.NewScheduler(gocron.WithClock(m.clock))
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(func() {
			if _, err := m.Sample(ctx); err != nil {
				slog.WarnContext(ctx, "Performance sample failed", logfields.Error(err))
			}
		}),
		gocron.WithName("performance-sample"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule performance sampling: %w", err)
	}

	slog.InfoContext(ctx, "Starting performance monitor", slog.Duration("interval", m.interval))
	s.Start()
	m.scheduler = s
	return nil
}

// Stop shuts the sampling schedule down. It is safe to call more than once.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	s := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	slog.Info("Stopping performance monitor")
	return s.Shutdown()
}

// State returns the current performance state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active returns the active directive set.
func (m *Monitor) Active() DirectiveSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Warnings returns the warnings produced by the latest evaluation.
func (m *Monitor) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnings...)
}

// Reasons returns why the latest evaluation left the optimal state.
func (m *Monitor) Reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reasons...)
}

// Latest returns the newest sample.
func (m *Monitor) Latest() (Metrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Latest()
}

// History returns the last n samples, oldest first.
func (m *Monitor) History(n int) []Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Last(n)
}

// Len returns the number of retained samples.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Len()
}

// Summary computes statistics over the retained window.
func (m *Monitor) Summary() Summary {
	m.mu.Lock()
	samples := m.history.Items()
	m.mu.Unlock()
	return Summarize(samples)
}

// Summarize computes statistics over samples. Unmeasured frame rates and
// unknown latencies are excluded from their means.
func Summarize(samples []Metrics) Summary {
	s := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return s
	}
	var fps, cpu, render, latency []float64
	for _, m := range samples {
		if m.FrameRate > 0 {
			fps = append(fps, m.FrameRate)
		}
		if m.NetworkLatencyMS != nil {
			latency = append(latency, *m.NetworkLatencyMS)
		}
		cpu = append(cpu, m.CPUPercent)
		render = append(render, m.RenderTimeMS)
		s.PeakMemoryMB = math.Max(s.PeakMemoryMB, m.MemoryMB)
	}
	if len(fps) > 0 {
		s.MeanFrameRate, s.StdDevFrameRate = stat.MeanStdDev(fps, nil)
		if math.IsNaN(s.StdDevFrameRate) {
			s.StdDevFrameRate = 0
		}
	}
	if len(latency) > 0 {
		s.MeanNetworkLatency = stat.Mean(latency, nil)
	}
	s.MeanCPUPercent = stat.Mean(cpu, nil)
	s.MeanRenderTimeMS = stat.Mean(render, nil)
	return s
}
