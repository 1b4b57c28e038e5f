// Package diagnostics assembles a point-in-time report from the session
// controller, the tracking analyzer, the performance monitor and the device
// capabilities.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/performance"
	"git.home.luguber.info/inful/arsession/internal/session"
	"git.home.luguber.info/inful/arsession/internal/tracking"
	"git.home.luguber.info/inful/arsession/internal/version"
)

const (
	recentTrackingSamples = 10
	recentTransitions     = 20
)

// HealthStatus is the overall verdict of a snapshot.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// SessionSource is the read side of the session controller.
type SessionSource interface {
	Snapshot() session.Snapshot
	Transitions() []session.Transition
}

// TrackingSource is the read side of the tracking analyzer.
type TrackingSource interface {
	Current() tracking.Quality
	Trend() tracking.Trend
	Recent(n int) []tracking.Snapshot
	Issues() []tracking.Issue
}

// PerformanceSource is the read side of the performance monitor.
type PerformanceSource interface {
	State() performance.State
	Active() performance.DirectiveSet
	Warnings() []string
	Reasons() []string
	Summary() performance.Summary
	Latest() (performance.Metrics, bool)
	Thresholds() config.Thresholds
}

// CapabilitySource reports what the device supports.
type CapabilitySource interface {
	Capabilities() capability.Capabilities
}

// SystemInfo describes the running binary.
type SystemInfo struct {
	Version    string `json:"version"`
	GoVersion  string `json:"goVersion"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	NumCPU     int    `json:"numCPU"`
	Goroutines int    `json:"goroutines"`
}

// SessionInfo is the session part of a snapshot.
type SessionInfo struct {
	State           session.State        `json:"state"`
	Options         map[string]any       `json:"options"`
	CoachingVisible bool                 `json:"coachingVisible"`
	CoachingReason  string               `json:"coachingReason"`
	Fallback        session.Fallback     `json:"fallback"`
	Attempts        int                  `json:"attempts"`
	Planes          int                  `json:"planes"`
	Optimizations   []string             `json:"optimizations"`
	Metrics         session.Metrics      `json:"metrics"`
	Transitions     []session.Transition `json:"transitions"`
}

// TrackingInfo is the tracking part of a snapshot.
type TrackingInfo struct {
	Quality tracking.Quality    `json:"quality"`
	Score   float64             `json:"score"`
	Trend   tracking.Trend      `json:"trend"`
	Recent  []tracking.Snapshot `json:"recent"`
}

// PerformanceInfo is the performance part of a snapshot.
type PerformanceInfo struct {
	State      performance.State    `json:"state"`
	Active     []string             `json:"activeOptimizations"`
	Warnings   []string             `json:"warnings"`
	Reasons    []string             `json:"reasons"`
	Summary    performance.Summary  `json:"summary"`
	Latest     *performance.Metrics `json:"latest,omitempty"`
	Thresholds config.Thresholds    `json:"thresholds"`
}

// Issue is one entry of the combined issue list.
type Issue struct {
	Source      string   `json:"source"` // tracking, performance or session
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Remediation []string `json:"remediation,omitempty"`
}

// Snapshot is a complete diagnostics report.
type Snapshot struct {
	GeneratedAt  time.Time               `json:"generatedAt"`
	Status       HealthStatus            `json:"status"`
	System       SystemInfo              `json:"system"`
	Capabilities capability.Capabilities `json:"capabilities"`
	Session      SessionInfo             `json:"session"`
	Tracking     TrackingInfo            `json:"tracking"`
	Performance  PerformanceInfo         `json:"performance"`
	Issues       []Issue                 `json:"issues"`
}

// Collector gathers snapshots. Nil sources are skipped.
type Collector struct {
	Session      SessionSource
	Tracking     TrackingSource
	Performance  PerformanceSource
	Capabilities CapabilitySource
	Clock        clockwork.Clock
}

// Snapshot reads every source once and derives the combined issues.
func (c *Collector) Snapshot() Snapshot {
	clock := c.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	snap := Snapshot{
		GeneratedAt: clock.Now(),
		System:      systemInfo(),
	}
	if c.Capabilities != nil {
		snap.Capabilities = c.Capabilities.Capabilities()
	}
	if c.Session != nil {
		snap.Session = sessionInfo(c.Session)
	}
	if c.Tracking != nil {
		snap.Tracking = trackingInfo(c.Tracking)
	}
	if c.Performance != nil {
		snap.Performance = performanceInfo(c.Performance)
	}
	snap.Issues = c.issues(snap)
	snap.Status = status(snap)
	return snap
}

func systemInfo() SystemInfo {
	return SystemInfo{
		Version:    version.String(),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}
}

func sessionInfo(src SessionSource) SessionInfo {
	s := src.Snapshot()
	transitions := src.Transitions()
	if len(transitions) > recentTransitions {
		transitions = transitions[len(transitions)-recentTransitions:]
	}
	return SessionInfo{
		State:           s.State,
		Options:         s.Options.Summary(),
		CoachingVisible: s.CoachingVisible,
		CoachingReason:  s.CoachingReason,
		Fallback:        s.Fallback,
		Attempts:        s.Attempts,
		Planes:          len(s.Planes),
		Optimizations:   s.Optimizations,
		Metrics:         s.Metrics,
		Transitions:     transitions,
	}
}

func trackingInfo(src TrackingSource) TrackingInfo {
	q := src.Current()
	return TrackingInfo{
		Quality: q,
		Score:   q.Score(),
		Trend:   src.Trend(),
		Recent:  src.Recent(recentTrackingSamples),
	}
}

func performanceInfo(src PerformanceSource) PerformanceInfo {
	info := PerformanceInfo{
		State:      src.State(),
		Active:     src.Active().Strings(),
		Warnings:   src.Warnings(),
		Reasons:    src.Reasons(),
		Summary:    src.Summary(),
		Thresholds: src.Thresholds(),
	}
	if latest, ok := src.Latest(); ok {
		info.Latest = &latest
	}
	return info
}

// issues combines tracking issues, performance findings and the fallback state.
func (c *Collector) issues(snap Snapshot) []Issue {
	var out []Issue
	if snap.Session.Fallback.Active {
		out = append(out, Issue{
			Source:      "session",
			Severity:    string(tracking.SeverityHigh),
			Description: fmt.Sprintf("AR unavailable: %s", snap.Session.Fallback.Reason),
			Remediation: []string{snap.Session.Fallback.RecommendedAction},
		})
	}
	if c.Tracking != nil {
		for _, ti := range c.Tracking.Issues() {
			out = append(out, Issue{
				Source:      "tracking",
				Severity:    string(ti.Severity),
				Description: ti.Description,
				Remediation: ti.Remediation,
			})
		}
	}

	perfSeverity := string(tracking.SeverityMedium)
	if snap.Performance.State == performance.StateCritical {
		perfSeverity = string(tracking.SeverityHigh)
	}
	for _, r := range snap.Performance.Reasons {
		out = append(out, Issue{
			Source:      "performance",
			Severity:    perfSeverity,
			Description: r,
			Remediation: snap.Performance.Active,
		})
	}
	for _, w := range snap.Performance.Warnings {
		out = append(out, Issue{Source: "performance", Severity: string(tracking.SeverityLow), Description: w})
	}
	return out
}

func status(snap Snapshot) HealthStatus {
	switch {
	case snap.Session.Fallback.Active, snap.Performance.State == performance.StateCritical:
		return HealthStatusUnhealthy
	case len(snap.Issues) > 0:
		return HealthStatusDegraded
	default:
		return HealthStatusHealthy
	}
}

// JSON renders the snapshot as indented JSON.
func (s Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Export returns the snapshot as a generic key-value tree, the form handed to
// external diagnostics consumers.
func (s Snapshot) Export() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal diagnostics snapshot: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode diagnostics snapshot: %w", err)
	}
	return out, nil
}
