package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/events"
	foundationerrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/performance"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

func plane(id string) Anchor {
	return Anchor{ID: id, Kind: AnchorPlane, Alignment: "horizontal", Width: 1, Depth: 1}
}

func TestStart_ConfirmsOnNormalTracking(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	assert.NotEmpty(t, h.c.SessionID())
	assert.Equal(t, 0, h.c.Attempts())
	require.Equal(t, 1, h.eng.runCount())
	assert.Equal(t, ResetFlags{ResetTracking: true, RemoveExistingAnchors: true}, h.eng.run(0).flags)
	assert.True(t, h.eng.run(0).options.HasSceneReconstruction())

	h.closeAndCollect()
	assert.Equal(t, [][2]string{
		{"not_initialized", "initializing"},
		{"initializing", "ready"},
		{"ready", "running"},
	}, stateChanges(h.pub))
}

func TestStart_OnlyFromNotInitialized(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	err := h.c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition))
	assert.Equal(t, StateRunning, h.c.State())
	assert.Equal(t, 1, h.eng.runCount())
}

func TestStart_UnsupportedDeviceEntersFallback(t *testing.T) {
	h := newHarness(t, capability.ProfileUnsupported)

	require.NoError(t, h.c.Start(context.Background()))
	assert.Equal(t, StateUnavailable, h.c.State())
	assert.Equal(t, 0, h.eng.runCount())

	fb := h.c.Fallback()
	assert.True(t, fb.Active)
	assert.Contains(t, fb.Reason, "world tracking")
	assert.Equal(t, capability.RecommendedFallbackAction, fb.RecommendedAction)

	tr := h.c.Transitions()
	require.Len(t, tr, 1)
	assert.Equal(t, StateNotInitialized, tr[0].From)
	assert.Equal(t, StateUnavailable, tr[0].To)

	reported := h.sink.reported()
	require.NotEmpty(t, reported)
	assert.True(t, foundationerrors.HasCategory(reported[0], foundationerrors.CategoryDevice))

	h.closeAndCollect()
	changes := published[events.FallbackChanged](h.pub)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Active)
	assert.False(t, h.c.CoachingVisible())
}

func TestStart_DegradesUnsupportedFeatures(t *testing.T) {
	h := newHarness(t, capability.ProfileLidarless)
	h.startRunning(t)

	opts := h.eng.run(0).options
	assert.False(t, opts.HasSceneReconstruction())
	assert.Equal(t, []capability.FrameSemantic{capability.SemanticPersonSegmentation}, opts.FrameSemantics())

	var capabilityWarnings int
	for _, err := range h.sink.reported() {
		if foundationerrors.HasCategory(err, foundationerrors.CategoryCapability) {
			capabilityWarnings++
		}
	}
	assert.Equal(t, 2, capabilityWarnings)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestStart_ConfirmationRules(t *testing.T) {
	tests := []struct {
		name     string
		update   tracking.State
		confirms bool
		want     State
	}{
		{"normal", tracking.Normal(), true, StateRunning},
		{"excessive motion", tracking.Limited(tracking.ReasonExcessiveMotion), true, StateRunning},
		{"insufficient features", tracking.Limited(tracking.ReasonInsufficientFeatures), true, StateRunning},
		{"relocalizing", tracking.Limited(tracking.ReasonRelocalizing), true, StateRelocalizing},
		{"initializing", tracking.Limited(tracking.ReasonInitializing), false, StateReady},
		{"not available", tracking.NotAvailable(), false, StateReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, capability.ProfileFull)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := h.startAsync(ctx)
			h.waitState(t, StateReady)

			h.c.Dispatch(TrackingUpdated{State: tt.update})
			if tt.confirms {
				require.NoError(t, <-done)
				assert.Equal(t, tt.want, h.c.State())
				return
			}
			assert.Equal(t, tt.want, h.c.State())
			cancel()
			require.ErrorIs(t, <-done, context.Canceled)
		})
	}
}

func TestStart_ReturnsRunError(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.eng.failNextRun(errCamera)

	err := h.c.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errCamera)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategorySession))
	assert.Equal(t, StateFailed, h.c.State())
	assert.Equal(t, 1, h.c.Attempts())
}

func TestPause_Idempotent(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	require.NoError(t, h.c.Pause(context.Background()))
	require.NoError(t, h.c.Pause(context.Background()))
	assert.Equal(t, StatePaused, h.c.State())
	assert.Equal(t, 1, h.eng.pauseCount())

	h.closeAndCollect()
	var paused int
	for _, ch := range stateChanges(h.pub) {
		if ch[1] == string(StatePaused) {
			paused++
		}
	}
	assert.Equal(t, 1, paused)

	var hidden int
	for _, c := range published[events.CoachingChanged](h.pub) {
		if !c.Visible {
			hidden++
		}
	}
	assert.Equal(t, 1, hidden)
}

func TestPause_NoopOutsideActiveStates(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)

	require.NoError(t, h.c.Pause(context.Background()))
	assert.Equal(t, StateNotInitialized, h.c.State())
	assert.Equal(t, 0, h.eng.pauseCount())
}

func TestPause_SupersedesStart(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	done := h.startAsync(context.Background())
	h.waitState(t, StateReady)

	require.NoError(t, h.c.Pause(context.Background()))
	require.ErrorIs(t, <-done, ErrOperationSuperseded)

	// A confirmation arriving after the pause changes nothing.
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StatePaused, h.c.State())
}

func TestPause_WhileEngineRunIsInFlight(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	gate := h.eng.holdRuns()
	done := h.startAsync(context.Background())
	h.waitState(t, StateInitializing)

	require.NoError(t, h.c.Pause(context.Background()))
	require.ErrorIs(t, <-done, ErrOperationSuperseded)
	close(gate)

	require.Eventually(t, func() bool { return h.eng.runCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePaused, h.c.State())
}

func TestStart_AbandonedWhileEngineRunIsInFlight(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	gate := h.eng.holdRuns()
	defer close(gate)

	ctx, cancel := context.WithCancel(context.Background())
	done := h.startAsync(ctx)
	h.waitState(t, StateInitializing)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after its context ended")
	}
}

func TestInterruptionEnded_DoesNotStallEvents(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	gate := h.eng.holdRuns()
	defer close(gate)

	h.eng.events <- InterruptionBegan{}
	h.eng.events <- InterruptionEnded{}
	h.eng.events <- AnchorsAdded{Anchors: []Anchor{plane("p")}}
	require.Eventually(t, func() bool { return len(h.c.Planes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateReady, h.c.State())
}

func TestResume(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	require.NoError(t, h.c.Pause(context.Background()))

	done := make(chan error, 1)
	go func() { done <- h.c.Resume(context.Background()) }()
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ResetFlags{}, h.eng.run(1).flags)
	assert.True(t, h.eng.run(1).options.Equal(h.eng.run(0).options))

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-done)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestResume_RequiresPaused(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	err := h.c.Resume(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition))
	assert.Equal(t, 1, h.eng.runCount())
}

func TestResume_RunErrorFails(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	require.NoError(t, h.c.Pause(context.Background()))
	h.eng.failNextRun(errCamera)

	err := h.c.Resume(context.Background())
	require.ErrorIs(t, err, errCamera)
	assert.Equal(t, StateFailed, h.c.State())
	assert.Equal(t, 1, h.c.Attempts())
}

func TestReset_ClearsPlanesAndRestarts(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	h.c.Dispatch(AnchorsAdded{Anchors: []Anchor{plane("p1"), plane("p2"), {ID: "img", Kind: AnchorImage}}})
	require.Len(t, h.c.Planes(), 2)
	h.c.Dispatch(InterruptionBegan{})
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.Eventually(t, func() bool { return h.c.Metrics().Interruptions == 1 }, time.Second, 5*time.Millisecond)
	h.clock.Advance(5 * time.Second)

	done := make(chan error, 1)
	go func() { done <- h.c.Reset(context.Background()) }()
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)

	assert.Empty(t, h.c.Planes())
	assert.Equal(t, tracking.QualityUnavailable, h.c.Quality())
	m := h.c.Metrics()
	assert.Equal(t, 1, m.TotalRuns)
	assert.Zero(t, m.Interruptions)
	assert.Equal(t, h.clock.Now(), m.StartedAt)
	assert.Equal(t, ResetFlags{ResetTracking: true, RemoveExistingAnchors: true}, h.eng.run(1).flags)

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-done)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestReset_FromPausedConfirmsToRunning(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	require.NoError(t, h.c.Pause(context.Background()))

	done := make(chan error, 1)
	go func() { done <- h.c.Reset(context.Background()) }()
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})

	require.NoError(t, <-done)
	assert.Equal(t, StateRunning, h.c.State())
}

func TestReset_InvalidStates(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	err := h.c.Reset(context.Background())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition))
	assert.Equal(t, 0, h.eng.runCount())
}

func TestReset_SupersedesPendingReset(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	first := make(chan error, 1)
	go func() { first <- h.c.Reset(context.Background()) }()
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- h.c.Reset(context.Background()) }()
	require.ErrorIs(t, <-first, ErrOperationSuperseded)
	require.Eventually(t, func() bool { return h.eng.runCount() == 3 }, time.Second, 5*time.Millisecond)

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-second)
}

// failAndRetry fails the current run and fires the retry timer.
func (h *harness) failAndRetry(t *testing.T, wantRuns int) {
	t.Helper()
	h.c.Dispatch(SessionFailed{Err: errCamera})
	require.Equal(t, StateFailed, h.c.State())
	h.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		return h.eng.runCount() == wantRuns && h.c.State() == StateReady
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRetry_ExhaustionEntersFallbackOnce(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.failAndRetry(t, 2)
	assert.Equal(t, 1, h.c.Attempts())
	h.failAndRetry(t, 3)
	assert.Equal(t, 2, h.c.Attempts())
	h.failAndRetry(t, 4)
	assert.Equal(t, 3, h.c.Attempts())

	h.c.Dispatch(SessionFailed{Err: errCamera})
	assert.Equal(t, StateUnavailable, h.c.State())
	assert.True(t, h.c.Fallback().Active)
	assert.Equal(t, 3, h.c.Attempts())

	h.clock.Advance(time.Minute)
	h.c.Dispatch(SessionFailed{Err: errCamera})
	assert.Equal(t, 4, h.eng.runCount())

	m := h.c.Metrics()
	assert.Equal(t, 4, m.TotalFailures)
	assert.Equal(t, 3, m.TotalRetries)
	assert.Equal(t, 4, m.TotalRuns)

	var exhausted bool
	for _, err := range h.sink.reported() {
		if foundationerrors.HasCategory(err, foundationerrors.CategoryRetry) {
			exhausted = true
		}
	}
	assert.True(t, exhausted)

	h.closeAndCollect()
	changes := published[events.FallbackChanged](h.pub)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Active)
}

func TestRetry_OptionsProgression(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	initial := h.eng.run(0).options

	h.failAndRetry(t, 2)
	first := h.eng.run(1)
	assert.True(t, first.options.Equal(initial), "first retry reuses the last good configuration")
	assert.Equal(t, ResetFlags{ResetTracking: true}, first.flags)

	h.failAndRetry(t, 3)
	second := h.eng.run(2).options
	assert.False(t, second.HasSceneReconstruction())
	assert.Equal(t, capability.PlaneHorizontal, second.PlaneDetection())
	assert.Empty(t, second.FrameSemantics())
	assert.True(t, second.LightEstimation())
}

func TestRetry_ConfirmationResetsAttempts(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.failAndRetry(t, 2)
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StateRunning, h.c.State())
	assert.Equal(t, 0, h.c.Attempts())
}

func TestRetry_CancelledByClose(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.c.Dispatch(SessionFailed{Err: errCamera})
	h.c.Close()
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, h.eng.runCount())
	assert.Equal(t, StateFailed, h.c.State())
}

func TestTrackingRules(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.c.Dispatch(TrackingUpdated{State: tracking.Limited(tracking.ReasonRelocalizing)})
	assert.Equal(t, StateRelocalizing, h.c.State())
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StateRunning, h.c.State())

	h.c.Dispatch(TrackingUpdated{State: tracking.Limited(tracking.ReasonInitializing)})
	assert.Equal(t, StateInitializing, h.c.State())
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StateRunning, h.c.State())

	h.c.Dispatch(TrackingUpdated{State: tracking.NotAvailable()})
	assert.Equal(t, StateInterrupted, h.c.State())
	require.Error(t, h.c.LastError())
	assert.True(t, foundationerrors.HasCategory(h.c.LastError(), foundationerrors.CategoryTracking))

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StateRunning, h.c.State())
	assert.NoError(t, h.c.LastError())

	m := h.c.Metrics()
	assert.Equal(t, 1, m.Relocalizations)
	assert.Equal(t, 1, m.Interruptions)
}

func TestTrackingRules_InsufficientFeaturesReported(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.c.Dispatch(TrackingUpdated{State: tracking.Limited(tracking.ReasonInsufficientFeatures)})
	assert.Equal(t, StateRunning, h.c.State())
	assert.Equal(t, tracking.QualityPoor, h.c.Quality())

	reported := h.sink.reported()
	require.NotEmpty(t, reported)
	ce, ok := foundationerrors.AsClassified(reported[len(reported)-1])
	require.True(t, ok)
	assert.Equal(t, foundationerrors.CategoryTracking, ce.Category())
}

func TestTrackingQualityChangedEmittedOnLabelChange(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	h.c.Dispatch(TrackingUpdated{State: tracking.Limited(tracking.ReasonExcessiveMotion)})

	h.closeAndCollect()
	changes := published[events.TrackingQualityChanged](h.pub)
	require.Len(t, changes, 2)
	assert.Equal(t, tracking.QualityFair, changes[0].Current)
	assert.Equal(t, tracking.QualityPoor, changes[1].Current)
	assert.Equal(t, tracking.QualityFair, changes[1].Previous)
}

func TestInterruption(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	require.True(t, h.c.CoachingVisible())

	h.c.Dispatch(InterruptionBegan{})
	assert.Equal(t, StateInterrupted, h.c.State())
	assert.False(t, h.c.CoachingVisible())

	h.c.Dispatch(InterruptionEnded{})
	assert.Equal(t, StateReady, h.c.State())
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ResetFlags{}, h.eng.run(1).flags)

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.Equal(t, StateRunning, h.c.State())
}

func TestInterruption_IgnoredWhilePaused(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)
	require.NoError(t, h.c.Pause(context.Background()))

	h.c.Dispatch(InterruptionBegan{})
	assert.Equal(t, StatePaused, h.c.State())
	h.c.Dispatch(InterruptionEnded{})
	assert.Equal(t, StatePaused, h.c.State())
	assert.Equal(t, 1, h.eng.runCount())
}

func TestCoachingPolicy(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	snap := h.c.Snapshot()
	assert.True(t, snap.CoachingVisible)
	assert.Equal(t, coachingNoPlanes, snap.CoachingReason)

	h.c.Dispatch(AnchorsAdded{Anchors: []Anchor{{ID: "img", Kind: AnchorImage}}})
	assert.True(t, h.c.CoachingVisible(), "image anchors are not planes")

	h.c.Dispatch(AnchorsAdded{Anchors: []Anchor{plane("floor")}})
	assert.False(t, h.c.CoachingVisible())
	assert.Equal(t, coachingHidden, h.c.Snapshot().CoachingReason)

	h.c.Dispatch(TrackingUpdated{State: tracking.Limited(tracking.ReasonExcessiveMotion)})
	assert.Equal(t, StateRunning, h.c.State())
	assert.True(t, h.c.CoachingVisible())
	assert.Equal(t, coachingPoorTracking, h.c.Snapshot().CoachingReason)

	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	assert.False(t, h.c.CoachingVisible())

	h.c.Dispatch(AnchorsRemoved{Anchors: []Anchor{plane("floor")}})
	assert.True(t, h.c.CoachingVisible())
}

func TestExitFallback(t *testing.T) {
	h := newHarness(t, capability.ProfileUnsupported)
	require.NoError(t, h.c.Start(context.Background()))

	require.NoError(t, h.c.ExitFallback(context.Background()))
	assert.Equal(t, StateNotInitialized, h.c.State())
	assert.False(t, h.c.Fallback().Active)
	assert.Equal(t, 0, h.c.Attempts())

	err := h.c.ExitFallback(context.Background())
	require.Error(t, err)

	h.closeAndCollect()
	changes := published[events.FallbackChanged](h.pub)
	require.Len(t, changes, 2)
	assert.True(t, changes[0].Active)
	assert.False(t, changes[1].Active)
}

func TestApplyOptimizations(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	h.c.ApplyOptimizations(performance.NewDirectiveSet(performance.DisableComplexRendering, performance.ClearCaches))
	assert.True(t, h.c.Optimizations().Equal(performance.NewDirectiveSet(performance.DisableComplexRendering)))

	done := make(chan error, 1)
	go func() { done <- h.c.Reset(context.Background()) }()
	require.Eventually(t, func() bool { return h.eng.runCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.eng.run(1).options.HasSceneReconstruction())
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-done)

	h.c.ApplyOptimizations(performance.NewDirectiveSet())
	assert.True(t, h.c.Optimizations().Empty())
}

func TestApplyOptimizations_LiftedDirectiveRestoresSceneReconstruction(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	pauseResume := func(wantRuns int) capability.Options {
		t.Helper()
		require.NoError(t, h.c.Pause(context.Background()))
		done := make(chan error, 1)
		go func() { done <- h.c.Resume(context.Background()) }()
		require.Eventually(t, func() bool { return h.eng.runCount() == wantRuns }, time.Second, 5*time.Millisecond)
		h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
		require.NoError(t, <-done)
		return h.eng.run(wantRuns - 1).options
	}

	h.c.ApplyOptimizations(performance.NewDirectiveSet(performance.DisableComplexRendering))
	assert.False(t, pauseResume(2).HasSceneReconstruction())
	assert.False(t, h.c.Options().HasSceneReconstruction())

	h.c.ApplyOptimizations(performance.NewDirectiveSet())
	assert.True(t, pauseResume(3).HasSceneReconstruction())
	assert.True(t, h.c.Options().HasSceneReconstruction())

	// The first retry reuses the unoptimized configuration too.
	h.failAndRetry(t, 4)
	assert.True(t, h.eng.run(3).options.HasSceneReconstruction())
}

func TestTracking_InsufficientFeaturesReportedOnEntry(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.startRunning(t)

	insufficient := TrackingUpdated{State: tracking.Limited(tracking.ReasonInsufficientFeatures)}
	for range 3 {
		h.c.Dispatch(insufficient)
	}
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	h.c.Dispatch(insufficient)

	var reports int
	for _, err := range h.sink.reported() {
		if foundationerrors.HasCategory(err, foundationerrors.CategoryTracking) {
			reports++
		}
	}
	assert.Equal(t, 2, reports)
}

func TestClose_ReturnsWithStalledObserver(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	// Unbuffered and never read.
	_, unsubscribe := events.Subscribe[events.SessionStateChanged](bus, 0)
	defer unsubscribe()

	h := newHarness(t, capability.ProfileUnsupported, WithPublisher(bus))
	require.NoError(t, h.c.Start(context.Background()))
	require.Equal(t, StateUnavailable, h.c.State())

	closed := make(chan struct{})
	go func() {
		h.c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(closeGrace + 3*time.Second):
		t.Fatal("close blocked on a stalled observer")
	}
}

func TestAnchors_RequireTracking(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	require.Error(t, h.c.AddAnchor(context.Background(), plane("a")))

	h.startRunning(t)
	require.NoError(t, h.c.AddAnchor(context.Background(), plane("a")))
	require.NoError(t, h.c.RemoveAnchor(context.Background(), "a"))
}

func TestEventsDeliveredThroughPump(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	done := h.startAsync(context.Background())
	h.waitState(t, StateReady)

	h.eng.events <- AnchorsAdded{Anchors: []Anchor{plane("p")}}
	h.eng.events <- TrackingUpdated{State: tracking.Normal()}
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return len(h.c.Planes()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestMetrics_TimeToFirstConfirmation(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	done := h.startAsync(context.Background())
	h.waitState(t, StateReady)
	h.clock.Advance(1500 * time.Millisecond)
	h.c.Dispatch(TrackingUpdated{State: tracking.Normal()})
	require.NoError(t, <-done)

	m := h.c.Metrics()
	assert.Equal(t, 1500*time.Millisecond, m.TimeToFirstConfirmation)
	assert.Equal(t, 1, m.TotalRuns)
	assert.Equal(t, h.c.SessionID(), m.SessionID)
}

// TestRandomSequencesStayOnLegalEdges drives the controller with random
// operations and engine events and checks every published state change is
// a legal edge continuing from the previous one.
func TestRandomSequencesStayOnLegalEdges(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	updates := []tracking.State{
		tracking.Normal(),
		tracking.NotAvailable(),
		tracking.Limited(tracking.ReasonInitializing),
		tracking.Limited(tracking.ReasonRelocalizing),
		tracking.Limited(tracking.ReasonExcessiveMotion),
		tracking.Limited(tracking.ReasonInsufficientFeatures),
	}

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		h := newHarness(t, capability.ProfileFull)

		for range 200 {
			switch rng.IntN(10) {
			case 0:
				_ = h.c.Start(cancelled)
			case 1:
				_ = h.c.Pause(cancelled)
			case 2:
				_ = h.c.Resume(cancelled)
			case 3:
				_ = h.c.Reset(cancelled)
			case 4:
				_ = h.c.ExitFallback(cancelled)
			case 5:
				h.clock.Advance(2 * time.Second)
			case 6:
				h.c.Dispatch(SessionFailed{Err: errCamera})
			case 7:
				if rng.IntN(2) == 0 {
					h.c.Dispatch(InterruptionBegan{})
				} else {
					h.c.Dispatch(InterruptionEnded{})
				}
			case 8:
				h.c.Dispatch(AnchorsAdded{Anchors: []Anchor{plane("p")}})
			default:
				h.c.Dispatch(TrackingUpdated{State: updates[rng.IntN(len(updates))]})
			}
		}

		h.closeAndCollect()
		prev := string(StateNotInitialized)
		for i, ch := range stateChanges(h.pub) {
			require.Equalf(t, prev, ch[0], "seed %d change %d does not continue from %s", seed, i, prev)
			require.Truef(t, CanTransition(State(ch[0]), State(ch[1])), "seed %d: illegal %s -> %s", seed, ch[0], ch[1])
			prev = ch[1]
		}
		for _, err := range h.sink.reported() {
			require.Falsef(t, foundationerrors.HasCategory(err, foundationerrors.CategoryTransition),
				"seed %d: controller attempted an illegal transition: %v", seed, err)
		}
		assert.LessOrEqual(t, h.c.Attempts(), 3)
	}
}

func TestClose_Idempotent(t *testing.T) {
	h := newHarness(t, capability.ProfileFull)
	h.c.Close()
	h.c.Close()
	err := h.c.Start(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrOperationSuperseded))
}
