package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeySessionID   = "session_id"
	KeyRunID       = "run_id"
	KeyState       = "state"
	KeyFromState   = "from_state"
	KeyToState     = "to_state"
	KeyReason      = "reason"
	KeyQuality     = "quality"
	KeyTracking    = "tracking_state"
	KeyPlanes      = "plane_count"
	KeyAttempt     = "attempt"
	KeyMaxAttempts = "max_attempts"
	KeyDelayMS     = "delay_ms"
	KeyPerfState   = "performance_state"
	KeyDirective   = "directive"
	KeyFeature     = "feature"
	KeyEnvironment = "environment"
	KeyComponent   = "component"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func SessionID(id string) slog.Attr    { return slog.String(KeySessionID, id) }
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func State(s string) slog.Attr         { return slog.String(KeyState, s) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Quality(q string) slog.Attr       { return slog.String(KeyQuality, q) }
func Tracking(s string) slog.Attr      { return slog.String(KeyTracking, s) }
func Planes(n int) slog.Attr           { return slog.Int(KeyPlanes, n) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func MaxAttempts(n int) slog.Attr      { return slog.Int(KeyMaxAttempts, n) }
func DelayMS(ms int64) slog.Attr       { return slog.Int64(KeyDelayMS, ms) }
func PerfState(s string) slog.Attr     { return slog.String(KeyPerfState, s) }
func Directive(d string) slog.Attr     { return slog.String(KeyDirective, d) }
func Feature(f string) slog.Attr       { return slog.String(KeyFeature, f) }
func Environment(env string) slog.Attr { return slog.String(KeyEnvironment, env) }
func Component(name string) slog.Attr  { return slog.String(KeyComponent, name) }

// Transition groups the two ends of a state change.
func Transition(from, to string) slog.Attr {
	return slog.Group("transition", slog.String(KeyFromState, from), slog.String(KeyToState, to))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
