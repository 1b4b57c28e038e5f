package simengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/logfields"
	"git.home.luguber.info/inful/arsession/internal/session"
)

const eventBuffer = 64

// Run records one call to Engine.Run.
type Run struct {
	Options capability.Options
	Flags   session.ResetFlags
}

// Engine implements session.Engine by playing a Scenario on a clock. Each
// accepted run cancels the script of the previous one, as does Pause.
type Engine struct {
	mu       sync.Mutex
	scenario Scenario
	clock    clockwork.Clock
	events   chan session.EngineEvent

	runs    []Run
	pauses  int
	anchors map[string]session.Anchor

	stopScript context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to pace scripted steps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an engine for scenario.
func New(scenario Scenario, opts ...Option) *Engine {
	e := &Engine{
		scenario: scenario,
		clock:    clockwork.NewRealClock(),
		events:   make(chan session.EngineEvent, eventBuffer),
		anchors:  make(map[string]session.Anchor),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Events implements session.Engine.
func (e *Engine) Events() <-chan session.EngineEvent { return e.events }

// Run implements session.Engine. A rejected run returns ErrCameraFailure;
// an accepted one starts the scenario script for that run.
func (e *Engine) Run(ctx context.Context, options capability.Options, flags session.ResetFlags) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("simulated engine closed")
	}

	run := len(e.runs)
	e.runs = append(e.runs, Run{Options: options, Flags: flags})
	e.cancelScriptLocked()

	if e.scenario.RejectRun != nil && e.scenario.RejectRun(run) {
		return fmt.Errorf("run %d rejected: %w", run, ErrCameraFailure)
	}

	var removed []session.Anchor
	if flags.RemoveExistingAnchors {
		for _, a := range e.anchors {
			removed = append(removed, a)
		}
		clear(e.anchors)
	}

	steps := e.scenario.Script(run, flags)
	if len(removed) > 0 {
		steps = append([]Step{{Event: session.AnchorsRemoved{Anchors: removed}}}, steps...)
	}

	slog.Debug("Simulated engine run accepted",
		slog.String("scenario", e.scenario.Name),
		slog.Int("run", run),
		slog.Int("steps", len(steps)),
		slog.Bool("reset_tracking", flags.ResetTracking))

	scriptCtx, cancel := context.WithCancel(context.Background())
	e.stopScript = cancel
	e.wg.Add(1)
	go e.play(scriptCtx, steps)
	return nil
}

// play emits steps in order until the script ends or is cancelled.
func (e *Engine) play(ctx context.Context, steps []Step) {
	defer e.wg.Done()
	for _, step := range steps {
		if step.After > 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-e.clock.After(step.After):
			}
		}
		e.record(step.Event)
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case e.events <- step.Event:
		}
	}
}

// record keeps the engine's own anchor set in line with scripted anchors.
func (e *Engine) record(evt session.EngineEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev := evt.(type) {
	case session.AnchorsAdded:
		for _, a := range ev.Anchors {
			e.anchors[a.ID] = a
		}
	case session.AnchorsUpdated:
		for _, a := range ev.Anchors {
			e.anchors[a.ID] = a
		}
	case session.AnchorsRemoved:
		for _, a := range ev.Anchors {
			delete(e.anchors, a.ID)
		}
	}
}

func (e *Engine) cancelScriptLocked() {
	if e.stopScript != nil {
		e.stopScript()
		e.stopScript = nil
	}
}

// Pause implements session.Engine.
func (e *Engine) Pause(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses++
	e.cancelScriptLocked()
	return nil
}

// AddAnchor implements session.Engine. The anchor is reported back as added.
func (e *Engine) AddAnchor(ctx context.Context, anchor session.Anchor) error {
	if anchor.ID == "" {
		return fmt.Errorf("anchor id is required")
	}
	e.record(session.AnchorsAdded{Anchors: []session.Anchor{anchor}})
	return e.emit(ctx, session.AnchorsAdded{Anchors: []session.Anchor{anchor}})
}

// RemoveAnchor implements session.Engine.
func (e *Engine) RemoveAnchor(ctx context.Context, id string) error {
	e.mu.Lock()
	anchor, ok := e.anchors[id]
	delete(e.anchors, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("anchor %q not found", id)
	}
	return e.emit(ctx, session.AnchorsRemoved{Anchors: []session.Anchor{anchor}})
}

func (e *Engine) emit(ctx context.Context, evt session.EngineEvent) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("simulated engine closed")
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	select {
	case e.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return fmt.Errorf("simulated engine closed")
	}
}

// Runs returns the recorded Run calls.
func (e *Engine) Runs() []Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Run(nil), e.runs...)
}

// Pauses returns how often Pause was called.
func (e *Engine) Pauses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauses
}

// Anchors returns the number of anchors the engine tracks.
func (e *Engine) Anchors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.anchors)
}

// Close stops script playback and closes the event channel.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelScriptLocked()
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()
	close(e.events)
	slog.Debug("Simulated engine closed", logfields.Component("simengine"))
}
