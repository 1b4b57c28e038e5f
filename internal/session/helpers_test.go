package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/retry"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

type runCall struct {
	options capability.Options
	flags   ResetFlags
}

type fakeEngine struct {
	mu      sync.Mutex
	events  chan EngineEvent
	runs    []runCall
	runErrs []error
	pauses  int
	anchors []Anchor
	gate    chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan EngineEvent, 16)}
}

func (e *fakeEngine) Events() <-chan EngineEvent { return e.events }

func (e *fakeEngine) Run(_ context.Context, options capability.Options, flags ResetFlags) error {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs = append(e.runs, runCall{options: options, flags: flags})
	if len(e.runErrs) > 0 {
		err := e.runErrs[0]
		e.runErrs = e.runErrs[1:]
		return err
	}
	return nil
}

func (e *fakeEngine) Pause(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses++
	return nil
}

func (e *fakeEngine) AddAnchor(_ context.Context, a Anchor) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anchors = append(e.anchors, a)
	return nil
}

func (e *fakeEngine) RemoveAnchor(context.Context, string) error { return nil }

func (e *fakeEngine) holdRuns() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
	return e.gate
}

func (e *fakeEngine) failNextRun(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runErrs = append(e.runErrs, err)
}

func (e *fakeEngine) runCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

func (e *fakeEngine) run(i int) runCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[i]
}

func (e *fakeEngine) pauseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauses
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, evt any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func published[T any](p *recordingPublisher) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []T
	for _, e := range p.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Report(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) reported() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

type harness struct {
	c     *Controller
	eng   *fakeEngine
	clock *clockwork.FakeClock
	pub   *recordingPublisher
	sink  *recordingSink
}

func newHarness(t *testing.T, profile string, opts ...Option) *harness {
	t.Helper()
	caps, err := capability.Profile(profile)
	require.NoError(t, err)

	h := &harness{
		eng:   newFakeEngine(),
		clock: clockwork.NewFakeClock(),
		pub:   &recordingPublisher{},
		sink:  &recordingSink{},
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithPublisher(h.pub),
		WithErrorSink(h.sink),
		WithPolicy(retry.DefaultPolicy()),
	}, opts...)
	h.c = NewController(h.eng, capability.NewResolver(caps), opts...)
	t.Cleanup(h.c.Close)
	return h
}

// startAsync begins Start and returns a channel with its result.
func (h *harness) startAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.c.Start(ctx) }()
	return done
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.State() == want },
		2*time.Second, 5*time.Millisecond, "state never became %s (now %s)", want, h.c.State())
}

// startRunning drives the controller to a confirmed Running state.
func (h *harness) startRunning(t *testing.T) {
	t.Helper()
	done := h.startAsync(context.Background())
	h.waitState(t, StateReady)
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-done)
	require.Equal(t, StateRunning, h.c.State())
}

// closeAndCollect stops the controller so every queued notification is delivered.
func (h *harness) closeAndCollect() {
	h.c.Close()
}

func stateChanges(p *recordingPublisher) [][2]string {
	var out [][2]string
	for _, e := range published[events.SessionStateChanged](p) {
		out = append(out, [2]string{e.From, e.To})
	}
	return out
}

var errCamera = errors.New("camera unavailable")
