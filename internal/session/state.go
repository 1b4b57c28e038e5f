// Package session owns the AR session lifecycle: the state machine, restart
// policy, fallback and coaching decisions.
package session

// State is the user-facing session lifecycle state.
type State string

const (
	StateNotInitialized State = "not_initialized"
	StateInitializing   State = "initializing"
	StateReady          State = "ready"
	StateRunning        State = "running"
	StatePaused         State = "paused"
	StateInterrupted    State = "interrupted"
	StateFailed         State = "failed"
	StateUnavailable    State = "unavailable"
	StateRelocalizing   State = "relocalizing"
)

// States lists every lifecycle state.
var States = []State{
	StateNotInitialized,
	StateInitializing,
	StateReady,
	StateRunning,
	StatePaused,
	StateInterrupted,
	StateFailed,
	StateUnavailable,
	StateRelocalizing,
}

func (s State) String() string { return string(s) }

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	_, ok := edges[s]
	return ok
}

// edges is the complete set of legal transitions.
var edges = map[State][]State{
	StateNotInitialized: {StateInitializing, StateUnavailable},
	StateInitializing:   {StateReady, StateRunning, StatePaused, StateFailed},
	StateReady:          {StateRunning, StatePaused, StateInterrupted, StateFailed},
	StateRunning:        {StateReady, StatePaused, StateInterrupted, StateRelocalizing, StateInitializing, StateFailed},
	StatePaused:         {StateRunning, StateFailed},
	StateInterrupted:    {StateReady, StateRunning, StateInitializing, StateFailed},
	StateRelocalizing:   {StateRunning, StateInitializing, StateFailed},
	StateFailed:         {StateInitializing, StateUnavailable},
	StateUnavailable:    {StateNotInitialized},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Successors returns the states reachable from s in one step.
func Successors(s State) []State {
	return append([]State(nil), edges[s]...)
}
