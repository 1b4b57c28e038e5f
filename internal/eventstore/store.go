package eventstore

import (
	"context"
	"time"
)

// Store defines the interface for persisting and retrieving session events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, sessionID, eventType string, at time.Time, payload []byte, metadata map[string]string) error

	// GetBySessionID retrieves all events for a specific session.
	GetBySessionID(ctx context.Context, sessionID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
