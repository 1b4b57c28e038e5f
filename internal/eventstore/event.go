package eventstore

import (
	"encoding/json"
	"time"
)

// Persisted event types. The payload of each is a flat JSON object of
// string attributes.
const (
	TypeStateChanged         = "StateChanged"
	TypeQualityChanged       = "QualityChanged"
	TypeCoachingChanged      = "CoachingChanged"
	TypeFallbackEntered      = "FallbackEntered"
	TypeFallbackExited       = "FallbackExited"
	TypeOptimizationsChanged = "OptimizationsChanged"
	TypePerformanceIssue     = "PerformanceIssue"
)

// Event represents a stored session analytics event.
type Event interface {
	// ID returns the unique identifier for this event.
	ID() int64
	// SessionID returns the session this event belongs to.
	SessionID() string
	// Type returns the event type name.
	Type() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
	// Payload returns the event data as bytes.
	Payload() []byte
	// Metadata returns optional event metadata.
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64
	EventSessionID string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) SessionID() string           { return e.EventSessionID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }

// Attributes decodes the payload of e. A malformed payload yields an empty map.
func Attributes(e Event) map[string]string {
	attrs := map[string]string{}
	if len(e.Payload()) == 0 {
		return attrs
	}
	if err := json.Unmarshal(e.Payload(), &attrs); err != nil {
		return map[string]string{}
	}
	return attrs
}
