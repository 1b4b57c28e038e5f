package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/arsession/internal/config"
	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/eventstore"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type panickingSink struct{}

func (panickingSink) Name() string                      { return "panic" }
func (panickingSink) Send(context.Context, Event) error { panic("boom") }
func (panickingSink) Close() error                      { return nil }

type countingRecorder struct {
	dropped int
}

func (r *countingRecorder) IncStateTransition(string, string)                  {}
func (r *countingRecorder) IncRetry()                                          {}
func (r *countingRecorder) IncRetryExhausted()                                 {}
func (r *countingRecorder) SetFallbackActive(bool)                             {}
func (r *countingRecorder) ObserveTimeToConfirm(time.Duration)                 {}
func (r *countingRecorder) SetTrackingQuality(float64)                         {}
func (r *countingRecorder) SetCoachingVisible(bool)                            {}
func (r *countingRecorder) SetPerformanceState(string)                         {}
func (r *countingRecorder) IncDirectiveChange(string, bool)                    {}
func (r *countingRecorder) ObservePerformanceSample(float64, float64, float64) {}
func (r *countingRecorder) IncAnalyticsDropped()                               { r.dropped++ }

func TestFromBusEvent(t *testing.T) {
	at := time.Now()

	tests := []struct {
		name    string
		in      events.Event
		session string
		typ     string
		attr    [2]string
	}{
		{"state", events.SessionStateChanged{SessionID: "s1", RunID: "r1", From: "ready", To: "running", At: at}, "s1", eventstore.TypeStateChanged, [2]string{"to", "running"}},
		{"quality", events.TrackingQualityChanged{SessionID: "s1", Previous: tracking.QualityFair, Current: tracking.QualityGood, Score: 0.8, TrackingState: tracking.Normal(), At: at}, "s1", eventstore.TypeQualityChanged, [2]string{"current", "good"}},
		{"coaching", events.CoachingChanged{SessionID: "s1", Visible: true, At: at}, "s1", eventstore.TypeCoachingChanged, [2]string{"visible", "true"}},
		{"fallback on", events.FallbackChanged{SessionID: "s1", Active: true, Reason: "no ar", At: at}, "s1", eventstore.TypeFallbackEntered, [2]string{"reason", "no ar"}},
		{"fallback off", events.FallbackChanged{SessionID: "s1", At: at}, "s1", eventstore.TypeFallbackExited, [2]string{"reason", ""}},
		{"optimizations", events.OptimizationsChanged{Active: []string{"clear_caches", "reduce_frame_rate"}, State: "degraded", At: at}, "current", eventstore.TypeOptimizationsChanged, [2]string{"active", "clear_caches,reduce_frame_rate"}},
		{"issue", events.PerformanceIssue{ID: "i1", State: "critical", At: at}, "current", eventstore.TypePerformanceIssue, [2]string{"issue_id", "i1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := FromBusEvent(tt.in, "current")
			require.True(t, ok)
			assert.Equal(t, tt.session, out.SessionID)
			assert.Equal(t, tt.typ, out.Type)
			assert.Equal(t, at, out.At)
			assert.Equal(t, tt.attr[1], out.Attributes[tt.attr[0]])
		})
	}

	_, ok := FromBusEvent(events.PerformanceStateChanged{At: at}, "current")
	assert.False(t, ok)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("unreachable")}
	d := NewDispatcher(8, []Sink{a, b, panickingSink{}})
	d.Start(context.Background())

	for _, typ := range []string{"one", "two", "three"} {
		require.True(t, d.Emit(Event{Type: typ}))
	}
	require.NoError(t, d.Close())

	for _, s := range []*recordingSink{a, b} {
		got := s.received()
		require.Len(t, got, 3)
		assert.Equal(t, "one", got[0].Type)
		assert.Equal(t, "three", got[2].Type)
		assert.True(t, s.closed)
	}
	assert.EqualValues(t, 3, d.Delivered())
	assert.GreaterOrEqual(t, d.Failures(), uint64(6))
	assert.False(t, d.Emit(Event{Type: "late"}))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	rec := &countingRecorder{}
	d := NewDispatcher(2, nil, WithRecorder(rec))

	assert.True(t, d.Emit(Event{Type: "a"}))
	assert.True(t, d.Emit(Event{Type: "b"}))
	assert.False(t, d.Emit(Event{Type: "c"}))

	assert.EqualValues(t, 1, d.Dropped())
	assert.Equal(t, 1, rec.dropped)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestDispatcherConsumesBus(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(16, []Sink{sink})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	bus := events.NewBus()
	defer bus.Close()
	ch, unsubscribe := events.Subscribe[events.Event](bus, 16)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Consume(ctx, ch, func() string { return "s-current" })
	}()

	require.NoError(t, bus.Publish(ctx, events.OptimizationsChanged{Active: []string{"clear_caches"}, At: time.Now()}))
	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "s-current", sink.received()[0].SessionID)

	cancel()
	<-done
	require.NoError(t, d.Close())
}

func TestStoreSinkPersistsAndProjects(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	projection := eventstore.NewSessionHistoryProjection(store, 10)
	sink := NewStoreSink(store, projection)

	ctx := context.Background()
	at := time.Now()
	require.NoError(t, sink.Send(ctx, Event{
		SessionID: "s1", RunID: "r1", Type: eventstore.TypeStateChanged, At: at,
		Attributes: map[string]string{"from": "ready", "to": "running"},
	}))

	stored, err := store.GetBySessionID(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "r1", stored[0].Metadata()["run_id"])

	summary, ok := projection.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, 1, summary.Runs)

	require.NoError(t, sink.Close())
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(nil)
	assert.Equal(t, "log", s.Name())
	require.NoError(t, s.Send(context.Background(), Event{SessionID: "s1", RunID: "r1", Type: "X", Attributes: map[string]string{"k": "v"}}))
	require.NoError(t, s.Close())
}

func TestNATSSinkRequiresURL(t *testing.T) {
	_, err := NewNATSSink(context.Background(), config.NATSConfig{})
	require.Error(t, err)
	assert.Equal(t, "arsession.events.statechanged", SubjectFor("arsession.events", eventstore.TypeStateChanged))
}
