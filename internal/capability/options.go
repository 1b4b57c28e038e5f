// Package capability validates requested AR configuration against what the
// device supports, degrading unsupported sub-features one by one.
package capability

import (
	"fmt"
	"slices"
	"strings"

	"git.home.luguber.info/inful/arsession/internal/config"
)

// PlaneDetection is a set of plane orientations to detect.
type PlaneDetection uint8

const (
	PlaneHorizontal PlaneDetection = 1 << iota
	PlaneVertical
)

// Has reports whether p includes o.
func (p PlaneDetection) Has(o PlaneDetection) bool { return p&o != 0 }

func (p PlaneDetection) String() string {
	var parts []string
	if p.Has(PlaneHorizontal) {
		parts = append(parts, "horizontal")
	}
	if p.Has(PlaneVertical) {
		parts = append(parts, "vertical")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// SceneReconstruction is the requested mesh reconstruction level.
type SceneReconstruction string

const (
	SceneNone               SceneReconstruction = "none"
	SceneMesh               SceneReconstruction = "mesh"
	SceneMeshClassification SceneReconstruction = "mesh_with_classification"
)

// EnvironmentTexturing is the environment probe mode.
type EnvironmentTexturing string

const (
	TexturingNone      EnvironmentTexturing = "none"
	TexturingManual    EnvironmentTexturing = "manual"
	TexturingAutomatic EnvironmentTexturing = "automatic"
)

// FrameSemantic is one per-frame analysis the engine can run.
type FrameSemantic string

const (
	SemanticPersonSegmentation          FrameSemantic = "person_segmentation"
	SemanticPersonSegmentationWithDepth FrameSemantic = "person_segmentation_with_depth"
	SemanticBodyDetection               FrameSemantic = "body_detection"
	SemanticSceneDepth                  FrameSemantic = "scene_depth"
)

// Spec is the plain description of an Options value.
type Spec struct {
	PlaneDetection       PlaneDetection
	SceneReconstruction  SceneReconstruction
	EnvironmentTexturing EnvironmentTexturing
	FrameSemantics       []FrameSemantic
	Audio                bool
	LightEstimation      bool
	Collaboration        bool
	MaxTrackedImages     int
	ReferenceImages      []string
}

// Options is an immutable AR configuration. Its slices are copied on
// construction and on every accessor; change it by building a new value.
type Options struct {
	spec Spec
}

// NewOptions builds an immutable Options from spec.
func NewOptions(spec Spec) Options {
	if spec.SceneReconstruction == "" {
		spec.SceneReconstruction = SceneNone
	}
	if spec.EnvironmentTexturing == "" {
		spec.EnvironmentTexturing = TexturingNone
	}
	if spec.MaxTrackedImages < 0 {
		spec.MaxTrackedImages = 0
	}
	spec.FrameSemantics = normalizeSemantics(spec.FrameSemantics)
	spec.ReferenceImages = slices.Clone(spec.ReferenceImages)
	return Options{spec: spec}
}

// DefaultOptions returns the configuration requested when the caller passes none.
func DefaultOptions() Options {
	o, _ := FromConfig(config.DefaultOptions())
	return o
}

// Spec returns a copy of the underlying description.
func (o Options) Spec() Spec {
	s := o.spec
	s.FrameSemantics = slices.Clone(o.spec.FrameSemantics)
	s.ReferenceImages = slices.Clone(o.spec.ReferenceImages)
	return s
}

func (o Options) PlaneDetection() PlaneDetection             { return o.spec.PlaneDetection }
func (o Options) SceneReconstruction() SceneReconstruction   { return o.sceneOrNone() }
func (o Options) EnvironmentTexturing() EnvironmentTexturing { return o.spec.EnvironmentTexturing }
func (o Options) FrameSemantics() []FrameSemantic            { return slices.Clone(o.spec.FrameSemantics) }
func (o Options) Audio() bool                                { return o.spec.Audio }
func (o Options) LightEstimation() bool                      { return o.spec.LightEstimation }
func (o Options) Collaboration() bool                        { return o.spec.Collaboration }
func (o Options) MaxTrackedImages() int                      { return o.spec.MaxTrackedImages }
func (o Options) ReferenceImages() []string                  { return slices.Clone(o.spec.ReferenceImages) }

func (o Options) sceneOrNone() SceneReconstruction {
	if o.spec.SceneReconstruction == "" {
		return SceneNone
	}
	return o.spec.SceneReconstruction
}

// HasSceneReconstruction reports whether any mesh reconstruction is requested.
func (o Options) HasSceneReconstruction() bool {
	return o.sceneOrNone() != SceneNone
}

// WithSceneReconstruction returns a copy of o using level.
func (o Options) WithSceneReconstruction(level SceneReconstruction) Options {
	s := o.Spec()
	s.SceneReconstruction = level
	return NewOptions(s)
}

// Equal reports whether two option values describe the same configuration.
func (o Options) Equal(other Options) bool {
	a, b := o.spec, other.spec
	return a.PlaneDetection == b.PlaneDetection &&
		o.sceneOrNone() == other.sceneOrNone() &&
		a.EnvironmentTexturing == b.EnvironmentTexturing &&
		slices.Equal(a.FrameSemantics, b.FrameSemantics) &&
		a.Audio == b.Audio &&
		a.LightEstimation == b.LightEstimation &&
		a.Collaboration == b.Collaboration &&
		a.MaxTrackedImages == b.MaxTrackedImages &&
		slices.Equal(a.ReferenceImages, b.ReferenceImages)
}

// Summary renders the options as a flat map for diagnostics export.
func (o Options) Summary() map[string]any {
	semantics := make([]string, 0, len(o.spec.FrameSemantics))
	for _, s := range o.spec.FrameSemantics {
		semantics = append(semantics, string(s))
	}
	return map[string]any{
		"planeDetection":       o.spec.PlaneDetection.String(),
		"sceneReconstruction":  string(o.sceneOrNone()),
		"environmentTexturing": string(o.spec.EnvironmentTexturing),
		"frameSemantics":       semantics,
		"audio":                o.spec.Audio,
		"lightEstimation":      o.spec.LightEstimation,
		"collaboration":        o.spec.Collaboration,
		"maxTrackedImages":     o.spec.MaxTrackedImages,
		"referenceImages":      len(o.spec.ReferenceImages),
	}
}

func (o Options) String() string {
	return fmt.Sprintf("planes=%s scene=%s texturing=%s semantics=%v light=%t audio=%t collab=%t images=%d",
		o.spec.PlaneDetection, o.sceneOrNone(), o.spec.EnvironmentTexturing, o.spec.FrameSemantics,
		o.spec.LightEstimation, o.spec.Audio, o.spec.Collaboration, o.spec.MaxTrackedImages)
}

// normalizeSemantics returns a sorted, de-duplicated copy.
func normalizeSemantics(in []FrameSemantic) []FrameSemantic {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// FromConfig converts the YAML form into Options. Unknown names are errors.
func FromConfig(c config.OptionsConfig) (Options, error) {
	spec := Spec{
		Audio:            c.Audio,
		LightEstimation:  c.LightEstimation,
		Collaboration:    c.Collaboration,
		MaxTrackedImages: c.MaxTrackedImages,
		ReferenceImages:  c.ReferenceImages,
	}

	for _, p := range c.PlaneDetection {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "horizontal":
			spec.PlaneDetection |= PlaneHorizontal
		case "vertical":
			spec.PlaneDetection |= PlaneVertical
		default:
			return Options{}, fmt.Errorf("unknown plane detection %q", p)
		}
	}

	switch SceneReconstruction(strings.ToLower(c.SceneReconstruction)) {
	case "", SceneNone:
		spec.SceneReconstruction = SceneNone
	case SceneMesh:
		spec.SceneReconstruction = SceneMesh
	case SceneMeshClassification:
		spec.SceneReconstruction = SceneMeshClassification
	default:
		return Options{}, fmt.Errorf("unknown scene reconstruction %q", c.SceneReconstruction)
	}

	switch EnvironmentTexturing(strings.ToLower(c.EnvironmentTexturing)) {
	case "", TexturingNone:
		spec.EnvironmentTexturing = TexturingNone
	case TexturingManual:
		spec.EnvironmentTexturing = TexturingManual
	case TexturingAutomatic:
		spec.EnvironmentTexturing = TexturingAutomatic
	default:
		return Options{}, fmt.Errorf("unknown environment texturing %q", c.EnvironmentTexturing)
	}

	for _, raw := range c.FrameSemantics {
		s := FrameSemantic(strings.ToLower(strings.TrimSpace(raw)))
		switch s {
		case SemanticPersonSegmentation, SemanticPersonSegmentationWithDepth, SemanticBodyDetection, SemanticSceneDepth:
			spec.FrameSemantics = append(spec.FrameSemantics, s)
		default:
			return Options{}, fmt.Errorf("unknown frame semantic %q", raw)
		}
	}

	return NewOptions(spec), nil
}
