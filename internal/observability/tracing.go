package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Span represents a tracing span.
type Span interface {
	SetAttribute(key string, value any)
	AddEvent(name string)
	RecordError(err error)
	End()
}

// LocalSpan is a lightweight span that reports through slog.
type LocalSpan struct {
	mu         sync.Mutex
	name       string
	startTime  time.Time
	attributes map[string]any
	events     []string
	err        error
	ended      bool
}

// SetAttribute sets an attribute on the span.
func (s *LocalSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attributes == nil {
		s.attributes = make(map[string]any)
	}
	s.attributes[key] = value
}

// AddEvent adds an event to the span.
func (s *LocalSpan) AddEvent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

// RecordError records an error in the span.
func (s *LocalSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	slog.Warn("Span error", "span", s.name, "error", err)
}

// End ends the span and logs its duration. Subsequent calls are no-ops.
func (s *LocalSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	events := len(s.events)
	s.mu.Unlock()
	slog.Debug("Span ended", "span", s.name, "duration_ms", time.Since(s.startTime).Milliseconds(), "events", events)
}

// Events returns the events recorded on the span.
func (s *LocalSpan) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// Attribute returns a recorded attribute.
func (s *LocalSpan) Attribute(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attributes[key]
	return v, ok
}

// Err returns the last recorded error.
func (s *LocalSpan) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TracerProvider manages span creation.
type TracerProvider struct {
	enabled bool
}

// NewTracerProvider creates a new tracer provider.
func NewTracerProvider() *TracerProvider {
	return &TracerProvider{enabled: true}
}

// StartSpan creates a new span for a given operation.
func (tp *TracerProvider) StartSpan(ctx context.Context, spanName string) (context.Context, *LocalSpan) {
	span := &LocalSpan{
		name:       spanName,
		startTime:  time.Now(),
		attributes: make(map[string]any),
	}
	if tp == nil || !tp.enabled {
		return ctx, span
	}

	slog.Debug("Span started", "span", spanName)
	return context.WithValue(ctx, spanContextKey, Span(span)), span
}

// StartRunSpan creates a span covering one session run, from Run until
// confirmation or failure.
func (tp *TracerProvider) StartRunSpan(ctx context.Context, sessionID, runID, reason string) (context.Context, *LocalSpan) {
	ctx, span := tp.StartSpan(ctx, "session.run")
	span.SetAttribute("session_id", sessionID)
	span.SetAttribute("run_id", runID)
	span.SetAttribute("reason", reason)
	return WithRunID(ctx, runID), span
}

// EndSpan ends a span and records err if non-nil.
func EndSpan(span Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

type contextKey string

const spanContextKey contextKey = "span"

// SpanFromContext extracts span from context.
func SpanFromContext(ctx context.Context) (Span, bool) {
	span, ok := ctx.Value(spanContextKey).(Span)
	return span, ok
}
