package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/events"
	foundationerrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/history"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/metrics"
	"git.home.luguber.info/inful/arsession/internal/observability"
	"git.home.luguber.info/inful/arsession/internal/performance"
	"git.home.luguber.info/inful/arsession/internal/retry"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

const (
	// publishTimeout bounds delivery of one notification to a slow observer.
	publishTimeout = time.Second

	// closeGrace bounds how long Close waits for queued notifications.
	closeGrace = 2 * time.Second
)

const (
	coachingPoorTracking = "poor_tracking"
	coachingNoPlanes     = "no_planes"
	coachingHidden       = "hidden"
)

// sessionDirectives are the optimization directives the session acts on.
var sessionDirectives = performance.NewDirectiveSet(
	performance.ReduceFrameRate,
	performance.DisableComplexRendering,
	performance.ReduceTextureQuality,
)

// Controller is the session state machine. Public operations and engine
// events are serialized by one mutex; engine calls are made outside it.
type Controller struct {
	mu sync.Mutex

	engine    Engine
	resolver  Resolver
	analyzer  *tracking.Analyzer
	clock     clockwork.Clock
	policy    retry.Policy
	errorSink ErrorSink
	recorder  metrics.Recorder
	publisher Publisher
	tracer    *observability.TracerProvider

	sessionID string
	requested capability.Options
	base      capability.Options
	current   capability.Options
	lastGood  *capability.Options

	state       State
	transitions *history.Ring[Transition]

	attempts   int
	retryTimer clockwork.Timer
	retryGen   uint64

	runSeq   uint64
	runID    string
	awaiting bool
	pending  *future
	runSpan  *observability.LocalSpan
	runStart time.Time

	fallback        Fallback
	coachingVisible bool
	coachingReason  string
	planes          map[string]Anchor
	quality         tracking.Quality
	lastTracking    tracking.State
	lastError       error
	optimizations   performance.DirectiveSet
	stats           Metrics

	outbox       []events.Event
	outboxSignal chan struct{}
	notifyCtx    context.Context
	cancelNotify context.CancelFunc

	baseCtx context.Context
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the clock used for retry timers and timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clock = c
		}
	}
}

// WithPolicy sets the restart policy.
func WithPolicy(p retry.Policy) Option {
	return func(ctl *Controller) { ctl.policy = p }
}

// WithAnalyzer sets the tracking quality analyzer.
func WithAnalyzer(a *tracking.Analyzer) Option {
	return func(ctl *Controller) {
		if a != nil {
			ctl.analyzer = a
		}
	}
}

// WithErrorSink sets the external error sink.
func WithErrorSink(s ErrorSink) Option {
	return func(ctl *Controller) {
		if s != nil {
			ctl.errorSink = s
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(ctl *Controller) {
		if r != nil {
			ctl.recorder = r
		}
	}
}

// WithPublisher sets the notification target, normally the event bus.
func WithPublisher(p Publisher) Option {
	return func(ctl *Controller) { ctl.publisher = p }
}

// WithTracer records one span per engine run.
func WithTracer(tp *observability.TracerProvider) Option {
	return func(ctl *Controller) { ctl.tracer = tp }
}

// WithRequestedOptions sets the configuration Start asks for.
func WithRequestedOptions(o capability.Options) Option {
	return func(ctl *Controller) { ctl.requested = o }
}

// NewController creates a controller and starts its event pump and notifier.
// Close stops both.
func NewController(engine Engine, resolver Resolver, opts ...Option) *Controller {
	c := &Controller{
		engine:       engine,
		resolver:     resolver,
		clock:        clockwork.NewRealClock(),
		policy:       retry.DefaultPolicy(),
		errorSink:    LogErrorSink{},
		recorder:     metrics.NoopRecorder{},
		requested:    capability.DefaultOptions(),
		state:        StateNotInitialized,
		transitions:  history.NewRing[Transition](history.DefaultCapacity),
		planes:       make(map[string]Anchor),
		quality:      tracking.QualityUnavailable,
		lastTracking: tracking.NotAvailable(),
		outboxSignal: make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.analyzer == nil {
		c.analyzer = tracking.NewAnalyzer(tracking.WithClock(c.clock))
	}
	c.baseCtx, c.cancel = context.WithCancel(observability.WithComponent(context.Background(), "session"))
	c.notifyCtx, c.cancelNotify = context.WithCancel(c.baseCtx)

	c.wg.Add(2)
	go c.pump()
	go c.notify()
	return c
}

// Close stops the event pump and the notifier after delivering queued
// notifications. Pending retries are cancelled. Notifications still blocked
// on an observer after closeGrace are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopRetryLocked()
	c.supersedeLocked()
	c.mu.Unlock()

	close(c.stop)
	// Observers block in real time, so the grace timer is not on c.clock.
	grace := time.AfterFunc(closeGrace, c.cancelNotify)
	c.wg.Wait()
	grace.Stop()
	c.cancelNotify()
	c.cancel()
}

func (c *Controller) pump() {
	defer c.wg.Done()
	var in <-chan EngineEvent
	if c.engine != nil {
		in = c.engine.Events()
	}
	for {
		select {
		case <-c.stop:
			return
		case evt, ok := <-in:
			if !ok {
				return
			}
			c.Dispatch(evt)
		}
	}
}

func (c *Controller) notify() {
	defer c.wg.Done()
	for {
		select {
		case <-c.outboxSignal:
			c.drainOutbox()
		case <-c.stop:
			c.drainOutbox()
			return
		}
	}
}

func (c *Controller) drainOutbox() {
	for {
		c.mu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		if c.publisher == nil {
			continue
		}
		for _, evt := range batch {
			c.publish(evt)
		}
	}
}

func (c *Controller) publish(evt events.Event) {
	ctx, cancel := context.WithTimeout(c.notifyCtx, publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, evt); err != nil {
		slog.Debug("Dropped session notification", slog.String("event", evt.EventName()), logfields.Error(err))
	}
}

// emitLocked queues a notification for the notifier goroutine.
func (c *Controller) emitLocked(evt events.Event) {
	c.outbox = append(c.outbox, evt)
	select {
	case c.outboxSignal <- struct{}{}:
	default:
	}
}

func (c *Controller) logCtxLocked() context.Context {
	ctx := observability.WithSessionID(c.baseCtx, c.sessionID)
	if c.runID != "" {
		ctx = observability.WithRunID(ctx, c.runID)
	}
	return ctx
}

func (c *Controller) reportLocked(err error) {
	c.lastError = err
	c.stats.LastError = err.Error()
	c.errorSink.Report(c.logCtxLocked(), err)
}

// transitionLocked moves to `to` if the edge is legal. Self-transitions are no-ops.
func (c *Controller) transitionLocked(to State, reason string) bool {
	from := c.state
	if from == to {
		return false
	}
	if !CanTransition(from, to) {
		c.errorSink.Report(c.logCtxLocked(), foundationerrors.InvalidTransition(string(from), string(to)).
			WithContext("reason", reason).Build())
		return false
	}
	now := c.clock.Now()
	c.state = to
	c.transitions.Push(Transition{From: from, To: to, Reason: reason, At: now})
	c.recorder.IncStateTransition(string(from), string(to))

	switch to {
	case StateInterrupted:
		c.stats.Interruptions++
	case StateRelocalizing:
		c.stats.Relocalizations++
	}

	observability.InfoContext(c.logCtxLocked(), "Session state changed",
		logfields.Transition(string(from), string(to)),
		logfields.Reason(reason))
	c.emitLocked(events.SessionStateChanged{
		SessionID: c.sessionID,
		RunID:     c.runID,
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		At:        now,
	})
	return true
}

// runRequest is an engine run prepared under the lock and executed outside it.
type runRequest struct {
	seq           uint64
	options       capability.Options
	flags         ResetFlags
	readyOnAccept bool
	ctx           context.Context
	span          *observability.LocalSpan
}

// beginRunLocked records a new run on base and makes fut its pending
// continuation. Active optimizations apply to the run only; base is kept
// so they can be lifted later.
func (c *Controller) beginRunLocked(ctx context.Context, base capability.Options, flags ResetFlags, fut *future, readyOnAccept bool, reason string) runRequest {
	c.supersedeLocked()
	c.runSeq++
	c.runID = uuid.NewString()
	c.awaiting = true
	c.pending = fut
	c.base = base
	c.current = c.effectiveOptionsLocked(base)
	c.runStart = c.clock.Now()
	c.stats.TotalRuns++
	c.stats.RunID = c.runID

	runCtx, span := c.tracer.StartRunSpan(ctx, c.sessionID, c.runID, reason)
	c.runSpan = span
	return runRequest{
		seq:           c.runSeq,
		options:       c.current,
		flags:         flags,
		readyOnAccept: readyOnAccept,
		ctx:           runCtx,
		span:          span,
	}
}

// supersedeLocked abandons the outstanding run, failing its continuation.
func (c *Controller) supersedeLocked() {
	if c.pending != nil {
		c.pending.resolve(ErrOperationSuperseded)
		c.pending = nil
	}
	if c.runSpan != nil {
		observability.EndSpan(c.runSpan, ErrOperationSuperseded)
		c.runSpan = nil
	}
	c.awaiting = false
}

// execRun calls the engine outside the lock and applies the outcome to the
// run if it is still the current one. Callers run it on its own goroutine so
// a superseded or abandoned run never holds them.
func (c *Controller) execRun(req runRequest) {
	err := c.engine.Run(req.ctx, req.options, req.flags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if req.seq != c.runSeq || !c.awaiting {
		return
	}
	if err != nil {
		c.failLocked(fmt.Errorf("engine run: %w", err))
		return
	}
	if req.readyOnAccept && c.state == StateInitializing {
		c.transitionLocked(StateReady, "run accepted")
	}
}

// effectiveOptionsLocked applies active session optimizations to o.
func (c *Controller) effectiveOptionsLocked(o capability.Options) capability.Options {
	if c.optimizations.Has(performance.DisableComplexRendering) && o.HasSceneReconstruction() {
		return o.WithSceneReconstruction(capability.SceneNone)
	}
	return o
}

// Start resolves the requested options and starts tracking. See StartWith.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	requested := c.requested
	c.mu.Unlock()
	return c.StartWith(ctx, requested)
}

// StartWith resolves requested against the device and runs the engine. It
// returns once tracking is confirmed, the run fails, the start is
// superseded or ctx ends. A device without the base capability puts the
// session into fallback and returns nil.
func (c *Controller) StartWith(ctx context.Context, requested capability.Options) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("session controller closed")
	}
	if c.state != StateNotInitialized {
		err := foundationerrors.InvalidTransition(string(c.state), string(StateInitializing)).
			WithContext("operation", "start").Build()
		c.mu.Unlock()
		return err
	}

	c.sessionID = uuid.NewString()
	c.requested = requested
	c.stats = Metrics{SessionID: c.sessionID, StartedAt: c.clock.Now()}
	c.analyzer.Reset()
	clear(c.planes)
	c.quality = tracking.QualityUnavailable

	effective, warnings, err := c.resolver.Resolve(requested)
	if err != nil {
		c.reportLocked(err)
		c.enterFallbackLocked(err.Error())
		c.mu.Unlock()
		return nil
	}
	for _, w := range warnings {
		observability.WarnContext(c.logCtxLocked(), "Configuration feature disabled",
			logfields.Feature(w.Feature), slog.String("detail", w.Detail))
		c.errorSink.Report(c.logCtxLocked(), w.Err())
	}

	c.transitionLocked(StateInitializing, "start")
	fut := newFuture()
	req := c.beginRunLocked(ctx, effective, ResetFlags{ResetTracking: true, RemoveExistingAnchors: true}, fut, true, "start")
	c.reevaluateCoachingLocked()
	c.mu.Unlock()

	go c.execRun(req)
	return fut.wait(ctx)
}

// Pause stops the engine from Running, Ready or Initializing. From any
// other state it is a no-op. An outstanding start is superseded.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateRunning, StateReady, StateInitializing:
	default:
		c.mu.Unlock()
		return nil
	}
	c.supersedeLocked()
	c.runSeq++
	c.transitionLocked(StatePaused, "pause")
	c.reevaluateCoachingLocked()
	c.mu.Unlock()

	if err := c.engine.Pause(ctx); err != nil {
		slog.WarnContext(ctx, "Engine pause failed", logfields.Error(err))
	}
	return nil
}

// Resume re-applies the last configuration from Paused and waits for
// tracking to be confirmed.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePaused {
		err := foundationerrors.InvalidTransition(string(c.state), string(StateRunning)).
			WithContext("operation", "resume").Build()
		c.mu.Unlock()
		return err
	}
	fut := newFuture()
	req := c.beginRunLocked(ctx, c.base, ResetFlags{}, fut, false, "resume")
	c.mu.Unlock()

	go c.execRun(req)
	return fut.wait(ctx)
}

// Reset re-runs the current configuration with tracking and anchors
// cleared. It clears the plane list and the quality history, then waits for
// confirmation, which moves the session to Running.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateRunning, StateReady, StatePaused, StateInterrupted, StateRelocalizing, StateInitializing:
	default:
		err := foundationerrors.InvalidTransition(string(c.state), string(StateRunning)).
			WithContext("operation", "reset").Build()
		c.mu.Unlock()
		return err
	}
	clear(c.planes)
	c.analyzer.Reset()
	c.quality = tracking.QualityUnavailable
	c.recorder.SetTrackingQuality(c.quality.Score())
	c.stats = Metrics{SessionID: c.sessionID, StartedAt: c.clock.Now()}

	fut := newFuture()
	req := c.beginRunLocked(ctx, c.base, ResetFlags{ResetTracking: true, RemoveExistingAnchors: true}, fut, false, "reset")
	c.reevaluateCoachingLocked()
	c.mu.Unlock()

	go c.execRun(req)
	return fut.wait(ctx)
}

// ExitFallback leaves Unavailable so that a new Start may run.
func (c *Controller) ExitFallback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUnavailable {
		return foundationerrors.InvalidTransition(string(c.state), string(StateNotInitialized)).
			WithContext("operation", "exit_fallback").Build()
	}
	c.transitionLocked(StateNotInitialized, "fallback exited")
	c.attempts = 0
	c.fallback = Fallback{}
	c.recorder.SetFallbackActive(false)
	c.emitLocked(events.FallbackChanged{SessionID: c.sessionID, Active: false, Reason: "fallback exited", At: c.clock.Now()})
	observability.InfoContext(c.logCtxLocked(), "Fallback mode exited")
	c.reevaluateCoachingLocked()
	return nil
}

// ApplyOptimizations records the active directive set published by the
// performance monitor. Only directives affecting the session are kept.
func (c *Controller) ApplyOptimizations(set performance.DirectiveSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := set.Intersect(sessionDirectives)
	if next.Equal(c.optimizations) {
		return
	}
	added := next.Minus(c.optimizations)
	c.optimizations = next
	observability.InfoContext(c.logCtxLocked(), "Session optimizations updated",
		slog.String("active", next.String()))
	if added.Has(performance.DisableComplexRendering) && c.base.HasSceneReconstruction() {
		observability.InfoContext(c.logCtxLocked(), "Scene reconstruction disabled for the next run",
			logfields.Directive(string(performance.DisableComplexRendering)))
	}
}

// AddAnchor forwards an anchor to the engine while tracking is active.
func (c *Controller) AddAnchor(ctx context.Context, anchor Anchor) error {
	if err := c.requireTracking("add_anchor"); err != nil {
		return err
	}
	return c.engine.AddAnchor(ctx, anchor)
}

// RemoveAnchor removes an anchor through the engine while tracking is active.
func (c *Controller) RemoveAnchor(ctx context.Context, id string) error {
	if err := c.requireTracking("remove_anchor"); err != nil {
		return err
	}
	return c.engine.RemoveAnchor(ctx, id)
}

func (c *Controller) requireTracking(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateRunning, StateRelocalizing:
		return nil
	default:
		return foundationerrors.InvalidTransition(string(c.state), string(c.state)).
			WithContext("operation", op).Build()
	}
}

// Dispatch applies one engine event. The pump calls it in delivery order;
// tests may call it directly.
func (c *Controller) Dispatch(evt EngineEvent) {
	c.mu.Lock()
	var follow *runRequest

	switch e := evt.(type) {
	case TrackingUpdated:
		c.handleTrackingLocked(e.State)
	case AnchorsAdded:
		c.upsertAnchorsLocked(e.Anchors)
	case AnchorsUpdated:
		c.upsertAnchorsLocked(e.Anchors)
	case AnchorsRemoved:
		for _, a := range e.Anchors {
			delete(c.planes, a.ID)
		}
		c.reevaluateCoachingLocked()
	case SessionFailed:
		c.failLocked(e.Err)
	case InterruptionBegan:
		switch c.state {
		case StateReady, StateRunning:
			c.transitionLocked(StateInterrupted, "interruption began")
			c.reevaluateCoachingLocked()
		default:
			observability.DebugContext(c.logCtxLocked(), "Ignoring interruption", logfields.State(string(c.state)))
		}
	case InterruptionEnded:
		if c.state == StateInterrupted {
			c.transitionLocked(StateReady, "interruption ended")
			req := c.beginRunLocked(c.baseCtx, c.base, ResetFlags{}, nil, false, "interruption ended")
			follow = &req
			c.reevaluateCoachingLocked()
		}
	default:
		observability.WarnContext(c.logCtxLocked(), "Unknown engine event", slog.String("type", fmt.Sprintf("%T", evt)))
	}
	c.mu.Unlock()

	if follow != nil {
		go c.execRun(*follow)
	}
}

func (c *Controller) upsertAnchorsLocked(anchors []Anchor) {
	for _, a := range anchors {
		if a.Kind == AnchorPlane {
			c.planes[a.ID] = a
		}
	}
	c.reevaluateCoachingLocked()
}

// confirms reports whether s acknowledges a run.
func confirms(s tracking.State) bool {
	switch s.Kind {
	case tracking.KindNormal:
		return true
	case tracking.KindLimited:
		return s.Reason != tracking.ReasonInitializing
	default:
		return false
	}
}

func (c *Controller) handleTrackingLocked(s tracking.State) {
	prev := c.lastTracking
	c.lastTracking = s
	now := c.clock.Now()
	res := c.analyzer.Analyze(s, len(c.planes), now.Sub(c.stats.StartedAt))
	c.quality = res.Quality
	c.recorder.SetTrackingQuality(res.Quality.Score())
	if res.Changed {
		c.emitLocked(events.TrackingQualityChanged{
			SessionID:     c.sessionID,
			Previous:      res.Previous,
			Current:       res.Quality,
			Score:         res.Quality.Score(),
			TrackingState: s,
			At:            now,
		})
	}

	if c.awaiting && confirms(s) {
		c.confirmLocked(now)
	}

	switch s.Kind {
	case tracking.KindNormal:
		switch c.state {
		case StateInterrupted, StateRelocalizing:
			c.transitionLocked(StateRunning, "tracking normal")
		case StateInitializing:
			if !c.awaiting {
				c.transitionLocked(StateRunning, "tracking initialized")
			}
		}
		if isTransientTracking(c.lastError) {
			c.lastError = nil
			c.stats.LastError = ""
		}
	case tracking.KindLimited:
		switch s.Reason {
		case tracking.ReasonInitializing:
			switch c.state {
			case StateRunning, StateRelocalizing, StateInterrupted:
				c.transitionLocked(StateInitializing, "tracking initializing")
			}
		case tracking.ReasonRelocalizing:
			if c.state == StateRunning {
				c.transitionLocked(StateRelocalizing, "tracking relocalizing")
			}
		case tracking.ReasonInsufficientFeatures:
			if prev != s {
				c.reportLocked(foundationerrors.InsufficientFeatures().Build())
			}
		case tracking.ReasonExcessiveMotion:
			// coaching only
		default:
			observability.WarnContext(c.logCtxLocked(), "Unknown limited tracking reason", logfields.Tracking(s.String()))
		}
	case tracking.KindNotAvailable:
		if c.state == StateRunning {
			c.transitionLocked(StateInterrupted, "tracking lost")
			c.reportLocked(foundationerrors.TrackingLost("tracking not available").Build())
		}
	default:
		observability.WarnContext(c.logCtxLocked(), "Unknown tracking state", logfields.Tracking(s.String()))
	}

	c.reevaluateCoachingLocked()
}

// confirmLocked completes the outstanding run.
func (c *Controller) confirmLocked(now time.Time) {
	c.awaiting = false
	c.transitionLocked(StateRunning, "tracking confirmed")
	c.attempts = 0
	good := c.base
	c.lastGood = &good

	elapsed := now.Sub(c.runStart)
	c.recorder.ObserveTimeToConfirm(elapsed)
	if c.stats.TimeToFirstConfirmation == 0 {
		c.stats.TimeToFirstConfirmation = now.Sub(c.stats.StartedAt)
	}
	if c.runSpan != nil {
		c.runSpan.AddEvent("confirmed")
		observability.EndSpan(c.runSpan, nil)
		c.runSpan = nil
	}
	if c.pending != nil {
		c.pending.resolve(nil)
		c.pending = nil
	}
	observability.InfoContext(c.logCtxLocked(), "Session run confirmed", slog.Duration("elapsed", elapsed))
}

// failLocked records a run failure and schedules a retry or enters fallback.
func (c *Controller) failLocked(cause error) {
	switch c.state {
	case StateNotInitialized, StateUnavailable, StateFailed:
		observability.DebugContext(c.logCtxLocked(), "Ignoring failure", logfields.State(string(c.state)), logfields.Error(cause))
		return
	}

	err := foundationerrors.SessionFailed("session run failed").
		WithCause(cause).
		WithContext("state", string(c.state)).
		WithContext("attempts", c.attempts).
		Build()
	c.stats.TotalFailures++
	c.reportLocked(err)

	if c.pending != nil {
		c.pending.resolve(err)
		c.pending = nil
	}
	if c.runSpan != nil {
		observability.EndSpan(c.runSpan, err)
		c.runSpan = nil
	}
	c.awaiting = false
	c.runSeq++

	c.transitionLocked(StateFailed, cause.Error())
	c.reevaluateCoachingLocked()
	c.scheduleRetryLocked()
}

// scheduleRetryLocked is the only place the attempt counter increments.
func (c *Controller) scheduleRetryLocked() {
	if !c.policy.Allows(c.attempts) {
		err := foundationerrors.RetryExhausted(c.attempts).Build()
		c.recorder.IncRetryExhausted()
		c.reportLocked(err)
		c.enterFallbackLocked(err.Error())
		return
	}

	c.attempts++
	c.stats.TotalRetries++
	c.recorder.IncRetry()
	delay := c.policy.Delay(c.attempts)

	c.stopRetryLocked()
	gen := c.retryGen
	c.retryTimer = c.clock.AfterFunc(delay, func() { c.retry(gen) })

	observability.InfoContext(c.logCtxLocked(), "Session retry scheduled",
		logfields.Attempt(c.attempts),
		logfields.MaxAttempts(c.policy.MaxRetries),
		logfields.DelayMS(delay.Milliseconds()))
}

func (c *Controller) stopRetryLocked() {
	c.retryGen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// retry runs when a retry timer fires. The first retry reuses the last
// known good configuration; later ones use the degraded configuration.
func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.retryGen || c.state != StateFailed {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil

	var options capability.Options
	if c.attempts == 1 && c.lastGood != nil {
		options = *c.lastGood
	} else {
		options = c.resolver.Degrade(c.base)
	}

	c.transitionLocked(StateInitializing, fmt.Sprintf("retry %d", c.attempts))
	req := c.beginRunLocked(c.baseCtx, options, ResetFlags{ResetTracking: true}, nil, true, "retry")
	c.mu.Unlock()

	go c.execRun(req)
}

// enterFallbackLocked moves to Unavailable and announces the degraded mode.
func (c *Controller) enterFallbackLocked(reason string) {
	if c.fallback.Active {
		return
	}
	c.stopRetryLocked()
	c.transitionLocked(StateUnavailable, reason)
	now := c.clock.Now()
	c.fallback = Fallback{
		Active:            true,
		Reason:            reason,
		RecommendedAction: capability.RecommendedFallbackAction,
		Since:             now,
	}
	c.recorder.SetFallbackActive(true)
	c.emitLocked(events.FallbackChanged{
		SessionID:         c.sessionID,
		Active:            true,
		Reason:            reason,
		RecommendedAction: capability.RecommendedFallbackAction,
		At:                now,
	})
	observability.WarnContext(c.logCtxLocked(), "Fallback mode entered", logfields.Reason(reason))
	c.reevaluateCoachingLocked()
}

// coachingDecision returns whether coaching should be visible and why.
func (c *Controller) coachingDecision() (bool, string) {
	if c.fallback.Active {
		return false, coachingHidden
	}
	switch c.state {
	case StateRunning, StateReady, StateInitializing, StateRelocalizing:
	default:
		return false, coachingHidden
	}
	if c.quality.NeedsCoaching() {
		return true, coachingPoorTracking
	}
	if len(c.planes) == 0 && c.state == StateRunning {
		return true, coachingNoPlanes
	}
	return false, coachingHidden
}

func (c *Controller) reevaluateCoachingLocked() {
	visible, reason := c.coachingDecision()
	if visible == c.coachingVisible {
		c.coachingReason = reason
		return
	}
	c.coachingVisible = visible
	c.coachingReason = reason
	c.recorder.SetCoachingVisible(visible)
	c.emitLocked(events.CoachingChanged{SessionID: c.sessionID, Visible: visible, Reason: reason, At: c.clock.Now()})
	observability.DebugContext(c.logCtxLocked(), "Coaching visibility changed",
		slog.Bool("visible", visible), logfields.Reason(reason))
}

// SessionID returns the current session identifier; empty before Start.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Quality returns the latest tracking quality.
func (c *Controller) Quality() tracking.Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// CoachingVisible reports whether coaching is shown.
func (c *Controller) CoachingVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coachingVisible
}

// Fallback returns the fallback status.
func (c *Controller) Fallback() Fallback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// Attempts returns the restart attempt counter.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Planes returns the tracked plane anchors ordered by ID.
func (c *Controller) Planes() []Anchor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.planesLocked()
}

func (c *Controller) planesLocked() []Anchor {
	out := make([]Anchor, 0, len(c.planes))
	for _, a := range c.planes {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Anchor) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// LastError returns the most recently recorded error.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Options returns the configuration of the current or last run.
func (c *Controller) Options() capability.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Optimizations returns the session-relevant active directives.
func (c *Controller) Optimizations() performance.DirectiveSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optimizations
}

// Metrics returns the session counters.
func (c *Controller) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Transitions returns the recorded state changes, oldest first.
func (c *Controller) Transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitions.Items()
}

// Snapshot returns a consistent copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:           c.state,
		Quality:         string(c.quality),
		Tracking:        c.lastTracking.String(),
		CoachingVisible: c.coachingVisible,
		CoachingReason:  c.coachingReason,
		Fallback:        c.fallback,
		Attempts:        c.attempts,
		Planes:          c.planesLocked(),
		Options:         c.current,
		Optimizations:   c.optimizations.Strings(),
		Metrics:         c.stats,
	}
}
