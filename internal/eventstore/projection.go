// Package eventstore persists session analytics events and rebuilds
// per-session summaries from them.
package eventstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Session state names as they appear in StateChanged payloads.
const (
	stateInitializing = "initializing"
	stateRunning      = "running"
	stateFailed       = "failed"
	stateInterrupted  = "interrupted"
	stateRelocalizing = "relocalizing"
	stateUnavailable  = "unavailable"
)

// DefaultHistorySize bounds the projection when no size is given.
const DefaultHistorySize = 100

// SessionSummary is a read model summarizing one session.
type SessionSummary struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	LastEventAt     time.Time `json:"last_event_at"`
	LastState       string    `json:"last_state"`
	Runs            int       `json:"runs"`
	Failures        int       `json:"failures"`
	Retries         int       `json:"retries"`
	Interruptions   int       `json:"interruptions"`
	Relocalizations int       `json:"relocalizations"`
	FallbackActive  bool      `json:"fallback_active"`
	FallbackReason  string    `json:"fallback_reason,omitempty"`
	LastQuality     string    `json:"last_quality,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// SessionHistoryProjection maintains an in-memory view of session history,
// reconstructed from events stored in the event store.
type SessionHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	sessions map[string]*SessionSummary
	maxSize  int
	lastSync time.Time
}

// NewSessionHistoryProjection creates a new projection backed by the given store.
func NewSessionHistoryProjection(store Store, maxHistorySize int) *SessionHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = DefaultHistorySize
	}
	return &SessionHistoryProjection{
		store:    store,
		sessions: make(map[string]*SessionSummary),
		maxSize:  maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *SessionHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.UnixMilli(0), time.Now().Add(time.Hour))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProjectionRebuildFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sessions = make(map[string]*SessionSummary)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.pruneLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *SessionHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
	p.pruneLocked()
}

func (p *SessionHistoryProjection) applyEventLocked(event Event) {
	sessionID := event.SessionID()
	if sessionID == "" {
		return
	}

	summary, exists := p.sessions[sessionID]
	if !exists {
		summary = &SessionSummary{
			SessionID: sessionID,
			StartedAt: event.Timestamp(),
		}
		p.sessions[sessionID] = summary
	}
	summary.LastEventAt = event.Timestamp()
	attrs := Attributes(event)

	switch event.Type() {
	case TypeStateChanged:
		from, to := attrs["from"], attrs["to"]
		summary.LastState = to
		switch to {
		case stateRunning:
			summary.Runs++
		case stateFailed:
			summary.Failures++
			if r := attrs["reason"]; r != "" {
				summary.LastError = r
			}
		case stateInterrupted:
			summary.Interruptions++
		case stateRelocalizing:
			summary.Relocalizations++
		case stateInitializing:
			if from == stateFailed {
				summary.Retries++
			}
		case stateUnavailable:
			if r := attrs["reason"]; r != "" && summary.FallbackReason == "" {
				summary.FallbackReason = r
			}
		}

	case TypeFallbackEntered:
		summary.FallbackActive = true
		summary.FallbackReason = attrs["reason"]

	case TypeFallbackExited:
		summary.FallbackActive = false

	case TypeQualityChanged:
		summary.LastQuality = attrs["current"]
	}
}

// pruneLocked drops the oldest sessions beyond maxSize.
// Caller must hold p.mu (write lock).
func (p *SessionHistoryProjection) pruneLocked() {
	if len(p.sessions) <= p.maxSize {
		return
	}
	ordered := p.orderedLocked()
	for _, s := range ordered[p.maxSize:] {
		delete(p.sessions, s.SessionID)
	}
}

// orderedLocked returns summaries newest first.
func (p *SessionHistoryProjection) orderedLocked() []*SessionSummary {
	out := make([]*SessionSummary, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *SessionSummary) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

// GetHistory returns copies of the session summaries, newest first.
func (p *SessionHistoryProjection) GetHistory() []SessionSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := p.orderedLocked()
	result := make([]SessionSummary, len(ordered))
	for i, s := range ordered {
		result[i] = *s
	}
	return result
}

// GetSession returns the summary for a specific session.
func (p *SessionHistoryProjection) GetSession(sessionID string) (SessionSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.sessions[sessionID]
	if !exists {
		return SessionSummary{}, false
	}
	return *summary, true
}

// LastSyncTime returns when the projection was last synchronized.
func (p *SessionHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
