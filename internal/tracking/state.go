package tracking

import (
	"fmt"
	"strings"
)

// Kind is the top-level tracking state reported by the engine.
type Kind int

const (
	KindNotAvailable Kind = iota
	KindNormal
	KindLimited
)

// LimitedReason qualifies a Limited tracking state.
type LimitedReason int

const (
	ReasonNone LimitedReason = iota
	ReasonExcessiveMotion
	ReasonInsufficientFeatures
	ReasonInitializing
	ReasonRelocalizing
)

// strict makes exhaustive switches panic on unknown enumerators. Tests enable it.
var strict = false

func unknownEnum(what string, v int) {
	if strict {
		panic(fmt.Sprintf("tracking: unknown %s %d", what, v))
	}
}

// State is the engine's live localization confidence. Construct it with
// NotAvailable, Normal or Limited.
type State struct {
	Kind   Kind
	Reason LimitedReason
}

// NotAvailable reports that tracking is not available at all.
func NotAvailable() State { return State{Kind: KindNotAvailable} }

// Normal reports healthy tracking.
func Normal() State { return State{Kind: KindNormal} }

// Limited reports degraded tracking with a reason.
func Limited(reason LimitedReason) State { return State{Kind: KindLimited, Reason: reason} }

// IsLimited reports whether s is Limited with the given reason.
func (s State) IsLimited(reason LimitedReason) bool {
	return s.Kind == KindLimited && s.Reason == reason
}

func (r LimitedReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonExcessiveMotion:
		return "excessive_motion"
	case ReasonInsufficientFeatures:
		return "insufficient_features"
	case ReasonInitializing:
		return "initializing"
	case ReasonRelocalizing:
		return "relocalizing"
	default:
		unknownEnum("limited reason", int(r))
		return "unknown"
	}
}

func (s State) String() string {
	switch s.Kind {
	case KindNotAvailable:
		return "not_available"
	case KindNormal:
		return "normal"
	case KindLimited:
		return "limited:" + s.Reason.String()
	default:
		unknownEnum("kind", int(s.Kind))
		return "unknown"
	}
}

// MarshalText renders the state as used in logs, analytics and diagnostics.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the form produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var reasonsByName = map[string]LimitedReason{
	"excessive_motion":      ReasonExcessiveMotion,
	"insufficient_features": ReasonInsufficientFeatures,
	"initializing":          ReasonInitializing,
	"relocalizing":          ReasonRelocalizing,
}

// ParseState parses "normal", "not_available" or "limited:<reason>".
func ParseState(raw string) (State, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "normal":
		return Normal(), nil
	case "not_available", "notavailable":
		return NotAvailable(), nil
	}
	if rest, ok := strings.CutPrefix(raw, "limited:"); ok {
		if reason, ok := reasonsByName[rest]; ok {
			return Limited(reason), nil
		}
	}
	return State{}, fmt.Errorf("unknown tracking state %q", raw)
}
