package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/metrics"
)

// Dispatcher buffers events and delivers each one to every sink from a
// single worker. Emit never blocks: when the buffer is full the event is
// dropped and counted.
type Dispatcher struct {
	queue    chan Event
	sinks    []Sink
	recorder metrics.Recorder

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failures  atomic.Uint64

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRecorder counts dropped events on r.
func WithRecorder(r metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(bufferSize int, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = config.DefaultAnalyticsBufferSize
	}
	d := &Dispatcher{
		queue:    make(chan Event, bufferSize),
		sinks:    sinks,
		recorder: metrics.NoopRecorder{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Emit queues evt without blocking. It returns false when the event was dropped.
func (d *Dispatcher) Emit(evt Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		d.dropped.Add(1)
		d.recorder.IncAnalyticsDropped()
		return false
	}
}

// Start launches the delivery worker. It stops when Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for evt := range d.queue {
			d.deliver(ctx, evt)
		}
	}()
}

// deliver fans evt out to all sinks concurrently. A panicking sink is
// recovered and logged like any other failure.
func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	var wg conc.WaitGroup
	for _, sink := range d.sinks {
		wg.Go(func() {
			if err := sink.Send(ctx, evt); err != nil {
				d.failures.Add(1)
				slog.WarnContext(ctx, "Analytics sink failed",
					slog.String("sink", sink.Name()),
					slog.String("type", evt.Type),
					logfields.Error(err))
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		d.failures.Add(1)
		slog.ErrorContext(ctx, "Analytics sink panicked", slog.String("type", evt.Type), slog.Any("panic", r.Value))
	}
	d.delivered.Add(1)
}

// Consume converts bus notifications into analytics events until ch closes
// or ctx is done. sessionID supplies the session for notifications without one.
func (d *Dispatcher) Consume(ctx context.Context, ch <-chan events.Event, sessionID func() string) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			current := ""
			if sessionID != nil {
				current = sessionID()
			}
			if out, ok := FromBusEvent(evt, current); ok {
				d.Emit(out)
			}
		}
	}
}

// Close stops accepting events, drains the queue and closes every sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}

	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil {
			slog.Warn("Failed to close analytics sink", slog.String("sink", sink.Name()), logfields.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Delivered returns how many events were handed to the sinks.
func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }

// Failures returns how many sink deliveries failed.
func (d *Dispatcher) Failures() uint64 { return d.failures.Load() }
