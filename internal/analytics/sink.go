package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/eventstore"
	"git.home.luguber.info/inful/arsession/internal/logfields"
)

// Sink receives analytics events. Send may block; the dispatcher calls it
// from its own worker.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt Event) error
	Close() error
}

// LogSink writes events to a structured logger at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, evt Event) error {
	attrs := []slog.Attr{
		logfields.SessionID(evt.SessionID),
		slog.String("type", evt.Type),
	}
	if evt.RunID != "" {
		attrs = append(attrs, logfields.RunID(evt.RunID))
	}
	for k, v := range evt.Attributes {
		attrs = append(attrs, slog.String("attr_"+k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Analytics event", attrs...)
	return nil
}

func (s *LogSink) Close() error { return nil }

// StoreSink persists events into the event store and keeps an optional
// session history projection current.
type StoreSink struct {
	store      eventstore.Store
	projection *eventstore.SessionHistoryProjection
}

// NewStoreSink creates a sink writing to store.
func NewStoreSink(store eventstore.Store, projection *eventstore.SessionHistoryProjection) *StoreSink {
	return &StoreSink{store: store, projection: projection}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	var metadata map[string]string
	if evt.RunID != "" {
		metadata = map[string]string{"run_id": evt.RunID}
	}
	if err := s.store.Append(ctx, evt.SessionID, evt.Type, evt.At, payload, metadata); err != nil {
		return err
	}
	if s.projection != nil {
		s.projection.Apply(&eventstore.BaseEvent{
			EventSessionID: evt.SessionID,
			EventType:      evt.Type,
			EventTimestamp: evt.At,
			EventPayload:   payload,
			EventMetadata:  metadata,
		})
	}
	return nil
}

func (s *StoreSink) Close() error { return s.store.Close() }

// NATSSink publishes events to a JetStream stream. Each event goes to
// "<subject>.<type>" so consumers can filter by type.
type NATSSink struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	timeout time.Duration
}

// NewNATSSink connects to NATS and ensures the stream exists.
func NewNATSSink(ctx context.Context, cfg config.NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("arsession-analytics"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultNATSTimeout
	}

	setupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "AR session lifecycle analytics",
		Subjects:    []string{cfg.Subject + ".>"},
		MaxAge:      7 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Stream, err)
	}

	slog.Info("NATS analytics sink initialized",
		slog.String("url", conn.ConnectedUrlRedacted()),
		slog.String("subject", cfg.Subject),
		slog.String("stream", cfg.Stream))

	return &NATSSink{conn: conn, js: js, subject: cfg.Subject, timeout: timeout}, nil
}

func (s *NATSSink) Name() string { return "nats" }

// SubjectFor returns the subject an event type is published on.
func SubjectFor(base, eventType string) string {
	return base + "." + strings.ToLower(eventType)
}

func (s *NATSSink) Send(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.js.Publish(ctx, SubjectFor(s.subject, evt.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}
