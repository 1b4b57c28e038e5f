package performance

import (
	"fmt"

	"git.home.luguber.info/inful/arsession/internal/config"
)

// Assessment is the classification of one sample against a threshold table.
type Assessment struct {
	State    State
	Required DirectiveSet
	Reasons  []string
	Warnings []string
}

func (a *Assessment) raise(s State, reason string, ds ...Directive) {
	a.State = a.State.Max(s)
	a.Required = a.Required.With(ds...)
	a.Reasons = append(a.Reasons, reason)
}

// Classify evaluates every signal of m and combines them by max ordering.
// Render time and network latency only produce warnings.
func Classify(m Metrics, t config.Thresholds) Assessment {
	a := Assessment{State: StateOptimal}

	switch {
	case m.MemoryMB >= t.MemoryCriticalMB:
		a.raise(StateCritical, fmt.Sprintf("memory %.0fMB >= %.0fMB", m.MemoryMB, t.MemoryCriticalMB), ClearCaches, PauseBackgroundTasks)
	case m.MemoryMB >= t.MemoryWarningMB:
		a.raise(StateDegraded, fmt.Sprintf("memory %.0fMB >= %.0fMB", m.MemoryMB, t.MemoryWarningMB), ClearCaches)
	}

	switch {
	case m.CPUPercent >= t.CPUCriticalPercent:
		a.raise(StateCritical, fmt.Sprintf("cpu %.0f%% >= %.0f%%", m.CPUPercent, t.CPUCriticalPercent), LimitConcurrentOperations, DisableAnimations)
	case m.CPUPercent >= t.CPUWarningPercent:
		a.raise(StateDegraded, fmt.Sprintf("cpu %.0f%% >= %.0f%%", m.CPUPercent, t.CPUWarningPercent), LimitConcurrentOperations)
	}

	if m.FrameRate > 0 {
		switch {
		case m.FrameRate <= t.FrameRateCritical:
			a.raise(StateCritical, fmt.Sprintf("frame rate %.0ffps <= %.0ffps", m.FrameRate, t.FrameRateCritical), ReduceFrameRate, DisableComplexRendering)
		case m.FrameRate <= t.FrameRateWarning:
			a.raise(StateDegraded, fmt.Sprintf("frame rate %.0ffps <= %.0ffps", m.FrameRate, t.FrameRateWarning), ReduceTextureQuality)
		}
	}

	switch m.Thermal {
	case ThermalSerious, ThermalCritical:
		a.raise(StateCritical, "thermal state "+string(m.Thermal), ReduceFrameRate, DisableComplexRendering, PauseBackgroundTasks)
	case ThermalFair:
		a.raise(StateDegraded, "thermal state fair", ReduceTextureQuality)
	}

	if m.BatteryKnown() {
		switch {
		case m.BatteryLevel <= t.BatteryCritical:
			a.raise(StateCritical, fmt.Sprintf("battery %.0f%%", m.BatteryLevel*100), PauseBackgroundTasks, DisableAnimations)
		case m.BatteryLevel <= t.BatteryLowLevel:
			a.raise(StateDegraded, fmt.Sprintf("battery %.0f%%", m.BatteryLevel*100))
		}
	}

	if t.RenderTimeoutMS > 0 && m.RenderTimeMS > t.RenderTimeoutMS {
		a.Warnings = append(a.Warnings, fmt.Sprintf("slow render: %.1fms > %.0fms", m.RenderTimeMS, t.RenderTimeoutMS))
	}
	if t.NetworkTimeoutMS > 0 && m.NetworkLatencyMS != nil && *m.NetworkLatencyMS > t.NetworkTimeoutMS {
		a.Warnings = append(a.Warnings, fmt.Sprintf("slow network: %.0fms > %.0fms", *m.NetworkLatencyMS, t.NetworkTimeoutMS))
	}

	return a
}
