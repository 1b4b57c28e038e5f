package session

import (
	"context"

	"git.home.luguber.info/inful/arsession/internal/capability"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// ResetFlags control what a run discards.
type ResetFlags struct {
	ResetTracking         bool
	RemoveExistingAnchors bool
}

// AnchorKind classifies engine anchors. Only planes count toward coaching.
type AnchorKind string

const (
	AnchorPlane AnchorKind = "plane"
	AnchorImage AnchorKind = "image"
	AnchorPoint AnchorKind = "point"
)

// Anchor is a tracked spatial anchor reported by the engine.
type Anchor struct {
	ID        string     `json:"id"`
	Kind      AnchorKind `json:"kind"`
	Alignment string     `json:"alignment,omitempty"` // horizontal or vertical for planes
	Width     float64    `json:"width,omitempty"`
	Depth     float64    `json:"depth,omitempty"`
}

// EngineEvent is delivered asynchronously by the tracking engine.
type EngineEvent interface {
	engineEvent()
}

type (
	// TrackingUpdated carries a new tracking state.
	TrackingUpdated struct{ State tracking.State }
	// AnchorsAdded reports new anchors.
	AnchorsAdded struct{ Anchors []Anchor }
	// AnchorsUpdated reports changed anchors.
	AnchorsUpdated struct{ Anchors []Anchor }
	// AnchorsRemoved reports anchors that are gone.
	AnchorsRemoved struct{ Anchors []Anchor }
	// SessionFailed reports a hardware or engine failure of the current run.
	SessionFailed struct{ Err error }
	// InterruptionBegan reports that the camera feed was taken away.
	InterruptionBegan struct{}
	// InterruptionEnded reports that the camera feed is back.
	InterruptionEnded struct{}
)

func (TrackingUpdated) engineEvent()   {}
func (AnchorsAdded) engineEvent()      {}
func (AnchorsUpdated) engineEvent()    {}
func (AnchorsRemoved) engineEvent()    {}
func (SessionFailed) engineEvent()     {}
func (InterruptionBegan) engineEvent() {}
func (InterruptionEnded) engineEvent() {}

// Engine is the spatial tracking engine driven by the controller.
type Engine interface {
	// Events delivers engine events in order. The channel is drained by a
	// single goroutine owned by the controller.
	Events() <-chan EngineEvent
	// Run starts or restarts tracking with options. Acceptance does not mean
	// tracking is established; that is confirmed by a later TrackingUpdated.
	Run(ctx context.Context, options capability.Options, flags ResetFlags) error
	Pause(ctx context.Context) error
	AddAnchor(ctx context.Context, anchor Anchor) error
	RemoveAnchor(ctx context.Context, id string) error
}

// Resolver turns requested options into effective ones for the device.
type Resolver interface {
	Resolve(requested capability.Options) (capability.Options, []capability.Warning, error)
	Degrade(options capability.Options) capability.Options
}

// Publisher receives controller notifications from the notifier goroutine.
type Publisher interface {
	Publish(ctx context.Context, evt any) error
}
