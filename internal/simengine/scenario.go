// Package simengine provides a deterministic in-process tracking engine that
// plays scripted scenarios. The CLI and integration tests drive the session
// controller with it.
package simengine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/session"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// Scenario names.
const (
	ScenarioHealthy      = "healthy"
	ScenarioFlaky        = "flaky"
	ScenarioFailing      = "failing"
	ScenarioUnsupported  = "unsupported"
	ScenarioRelocalize   = "relocalize"
	ScenarioInterruption = "interruption"
)

// ErrCameraFailure is the failure injected by the scripted scenarios.
var ErrCameraFailure = errors.New("simulated camera failure")

// Step is one scripted engine event, emitted After the previous step.
type Step struct {
	After time.Duration
	Event session.EngineEvent
}

// Scenario scripts the engine's behavior for each run.
type Scenario struct {
	Name        string
	Description string
	// Profile is the device profile the scenario is meant for.
	Profile string
	// Script returns the steps played after the run-th accepted run
	// (zero-based). A resumed run has flags without ResetTracking.
	Script func(run int, flags session.ResetFlags) []Step
	// RejectRun reports whether the run-th call to Run fails synchronously.
	RejectRun func(run int) bool
}

var scenarios = map[string]Scenario{
	ScenarioHealthy: {
		Name:        ScenarioHealthy,
		Description: "tracking initializes, planes appear and tracking stays normal",
		Profile:     capability.ProfileFull,
		Script: func(_ int, flags session.ResetFlags) []Step {
			if !flags.ResetTracking {
				return resumed()
			}
			return warmup(5)
		},
	},
	ScenarioFlaky: {
		Name:        ScenarioFlaky,
		Description: "the first run fails after a few seconds, the first retry fails early, the second retry holds",
		Profile:     capability.ProfileFull,
		Script: func(run int, flags session.ResetFlags) []Step {
			switch {
			case !flags.ResetTracking:
				return resumed()
			case run == 0:
				return append(warmup(3), Step{After: 3 * time.Second, Event: session.SessionFailed{Err: ErrCameraFailure}})
			case run == 1:
				return []Step{
					{After: 200 * time.Millisecond, Event: session.TrackingUpdated{State: tracking.Limited(tracking.ReasonInitializing)}},
					{After: 300 * time.Millisecond, Event: session.SessionFailed{Err: ErrCameraFailure}},
				}
			default:
				return warmup(2)
			}
		},
	},
	ScenarioFailing: {
		Name:        ScenarioFailing,
		Description: "every run fails before tracking is established until fallback is entered",
		Profile:     capability.ProfileFull,
		Script: func(int, session.ResetFlags) []Step {
			return []Step{
				{After: 200 * time.Millisecond, Event: session.TrackingUpdated{State: tracking.Limited(tracking.ReasonInitializing)}},
				{After: 300 * time.Millisecond, Event: session.SessionFailed{Err: ErrCameraFailure}},
			}
		},
	},
	ScenarioUnsupported: {
		Name:        ScenarioUnsupported,
		Description: "the device lacks world tracking; the session falls back without running",
		Profile:     capability.ProfileUnsupported,
		Script:      func(int, session.ResetFlags) []Step { return nil },
		RejectRun:   func(int) bool { return true },
	},
	ScenarioRelocalize: {
		Name:        ScenarioRelocalize,
		Description: "tracking is lost to relocalization and recovers",
		Profile:     capability.ProfileLidarless,
		Script: func(_ int, flags session.ResetFlags) []Step {
			if !flags.ResetTracking {
				return resumed()
			}
			return append(warmup(3),
				Step{After: 2 * time.Second, Event: session.TrackingUpdated{State: tracking.Limited(tracking.ReasonRelocalizing)}},
				Step{After: 2 * time.Second, Event: session.TrackingUpdated{State: tracking.Normal()}},
			)
		},
	},
	ScenarioInterruption: {
		Name:        ScenarioInterruption,
		Description: "the camera is interrupted and returns",
		Profile:     capability.ProfileBasic,
		Script: func(_ int, flags session.ResetFlags) []Step {
			if !flags.ResetTracking {
				return resumed()
			}
			return append(warmup(2),
				Step{After: 2 * time.Second, Event: session.InterruptionBegan{}},
				Step{After: 2 * time.Second, Event: session.InterruptionEnded{}},
			)
		},
	},
}

// warmup initializes tracking and detects planes one per second.
func warmup(planes int) []Step {
	steps := []Step{
		{After: 200 * time.Millisecond, Event: session.TrackingUpdated{State: tracking.Limited(tracking.ReasonInitializing)}},
		{After: 800 * time.Millisecond, Event: session.TrackingUpdated{State: tracking.Normal()}},
	}
	for i := range planes {
		alignment := "horizontal"
		if i%2 == 1 {
			alignment = "vertical"
		}
		steps = append(steps,
			Step{After: time.Second, Event: session.AnchorsAdded{Anchors: []session.Anchor{{
				ID:        fmt.Sprintf("plane-%d", i+1),
				Kind:      session.AnchorPlane,
				Alignment: alignment,
				Width:     1 + float64(i)*0.5,
				Depth:     1,
			}}}},
			Step{Event: session.TrackingUpdated{State: tracking.Normal()}},
		)
	}
	return steps
}

func resumed() []Step {
	return []Step{{After: 300 * time.Millisecond, Event: session.TrackingUpdated{State: tracking.Normal()}}}
}

// Names returns the known scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a named scenario.
func Lookup(name string) (Scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (available: %v)", name, Names())
	}
	return s, nil
}
