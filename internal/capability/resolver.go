package capability

import (
	"log/slog"

	foundationerrors "git.home.luguber.info/inful/arsession/internal/foundation/errors"
	"git.home.luguber.info/inful/arsession/internal/logfields"
)

// Warning records one sub-feature that was disabled or downgraded.
type Warning struct {
	Feature string `json:"feature"`
	Detail  string `json:"detail"`
}

// Err returns the warning as an UnsupportedFeature error.
func (w Warning) Err() error {
	return foundationerrors.UnsupportedFeature(w.Feature).WithContext("detail", w.Detail).Build()
}

// Resolver validates requested options against device capabilities.
// It is deterministic and safe for concurrent use.
type Resolver struct {
	caps Capabilities
}

// NewResolver creates a resolver for a device.
func NewResolver(caps Capabilities) *Resolver {
	return &Resolver{caps: caps}
}

// Capabilities returns the device capabilities.
func (r *Resolver) Capabilities() Capabilities { return r.caps }

// Supported reports whether the base AR capability is present.
func (r *Resolver) Supported() bool { return r.caps.WorldTracking }

// Resolve returns the effective options for requested. Unsupported
// sub-features are disabled or downgraded one by one, each producing a
// warning. The only error is DeviceNotSupported, when world tracking is absent.
func (r *Resolver) Resolve(requested Options) (Options, []Warning, error) {
	if !r.caps.WorldTracking {
		return Options{}, nil, foundationerrors.DeviceNotSupported("device does not support world tracking").
			WithContext("recommended_action", RecommendedFallbackAction).
			Build()
	}

	spec := requested.Spec()
	var warnings []Warning
	warn := func(feature, detail string) {
		warnings = append(warnings, Warning{Feature: feature, Detail: detail})
	}

	if spec.PlaneDetection.Has(PlaneHorizontal) && !r.caps.HorizontalPlanes {
		spec.PlaneDetection &^= PlaneHorizontal
		warn("plane_detection.horizontal", "disabled")
	}
	if spec.PlaneDetection.Has(PlaneVertical) && !r.caps.VerticalPlanes {
		spec.PlaneDetection &^= PlaneVertical
		warn("plane_detection.vertical", "disabled")
	}

	switch spec.SceneReconstruction {
	case SceneMeshClassification:
		switch {
		case r.caps.SceneReconstruction && r.caps.MeshClassification:
			// supported as requested
		case r.caps.SceneReconstruction:
			spec.SceneReconstruction = SceneMesh
			warn("scene_reconstruction", "downgraded to mesh without classification")
		default:
			spec.SceneReconstruction = SceneNone
			warn("scene_reconstruction", "disabled")
		}
	case SceneMesh:
		if !r.caps.SceneReconstruction {
			spec.SceneReconstruction = SceneNone
			warn("scene_reconstruction", "disabled")
		}
	}

	if spec.EnvironmentTexturing != TexturingNone && !r.caps.EnvironmentTexturing {
		spec.EnvironmentTexturing = TexturingNone
		warn("environment_texturing", "disabled")
	}

	semantics := make([]FrameSemantic, 0, len(spec.FrameSemantics))
	for _, s := range spec.FrameSemantics {
		switch {
		case r.caps.SupportsSemantic(s):
			semantics = append(semantics, s)
		case s == SemanticPersonSegmentationWithDepth && r.caps.PersonSegmentation:
			semantics = append(semantics, SemanticPersonSegmentation)
			warn("frame_semantics."+string(s), "downgraded to person_segmentation")
		default:
			warn("frame_semantics."+string(s), "disabled")
		}
	}
	spec.FrameSemantics = semantics

	if spec.Audio && !r.caps.Audio {
		spec.Audio = false
		warn("audio", "disabled")
	}
	if spec.LightEstimation && !r.caps.LightEstimation {
		spec.LightEstimation = false
		warn("light_estimation", "disabled")
	}
	if spec.Collaboration && !r.caps.Collaboration {
		spec.Collaboration = false
		warn("collaboration", "disabled")
	}
	if spec.MaxTrackedImages > r.caps.MaxTrackedImages {
		warn("max_tracked_images", "clamped to device maximum")
		spec.MaxTrackedImages = r.caps.MaxTrackedImages
	}
	if r.caps.MaxTrackedImages == 0 && len(spec.ReferenceImages) > 0 {
		spec.ReferenceImages = nil
		warn("reference_images", "image tracking unsupported")
	}

	for _, w := range warnings {
		slog.Warn("Configuration feature unsupported", logfields.Feature(w.Feature), slog.String("detail", w.Detail))
	}

	return NewOptions(spec), warnings, nil
}

// Degrade returns the minimal safe configuration derived from options:
// horizontal plane detection only, no reconstruction, texturing, semantics,
// audio, collaboration or image tracking. Light estimation is kept when supported.
func (r *Resolver) Degrade(options Options) Options {
	spec := Spec{
		SceneReconstruction:  SceneNone,
		EnvironmentTexturing: TexturingNone,
		LightEstimation:      options.LightEstimation() && r.caps.LightEstimation,
	}
	if r.caps.HorizontalPlanes {
		spec.PlaneDetection = PlaneHorizontal
	}
	return NewOptions(spec)
}

// RecommendedFallbackAction is shown to the user when AR is unavailable.
const RecommendedFallbackAction = "Use manual measurement mode or continue without AR"
