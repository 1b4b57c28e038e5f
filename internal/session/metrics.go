package session

import (
	"time"

	"git.home.luguber.info/inful/arsession/internal/capability"
)

// Metrics summarizes the current session for diagnostics.
type Metrics struct {
	SessionID               string        `json:"sessionId"`
	RunID                   string        `json:"runId,omitempty"`
	StartedAt               time.Time     `json:"startedAt"`
	TimeToFirstConfirmation time.Duration `json:"timeToFirstConfirmation"`
	TotalRuns               int           `json:"totalRuns"`
	TotalFailures           int           `json:"totalFailures"`
	TotalRetries            int           `json:"totalRetries"`
	Interruptions           int           `json:"interruptions"`
	Relocalizations         int           `json:"relocalizations"`
	LastError               string        `json:"lastError,omitempty"`
}

// Fallback describes the degraded non-AR mode.
type Fallback struct {
	Active            bool      `json:"active"`
	Reason            string    `json:"reason,omitempty"`
	RecommendedAction string    `json:"recommendedAction,omitempty"`
	Since             time.Time `json:"since,omitempty"`
}

// Transition is one recorded state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State           State              `json:"state"`
	Quality         string             `json:"quality"`
	Tracking        string             `json:"trackingState"`
	CoachingVisible bool               `json:"coachingVisible"`
	CoachingReason  string             `json:"coachingReason"`
	Fallback        Fallback           `json:"fallback"`
	Attempts        int                `json:"attempts"`
	Planes          []Anchor           `json:"planes"`
	Options         capability.Options `json:"-"`
	Optimizations   []string           `json:"optimizations,omitempty"`
	Metrics         Metrics            `json:"metrics"`
}
