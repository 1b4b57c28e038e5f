package capability

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/arsession/internal/config"
)

// Capabilities describes what the device can do.
type Capabilities struct {
	WorldTracking               bool `json:"worldTracking"`
	HorizontalPlanes            bool `json:"horizontalPlanes"`
	VerticalPlanes              bool `json:"verticalPlanes"`
	SceneReconstruction         bool `json:"sceneReconstruction"`
	MeshClassification          bool `json:"meshClassification"`
	EnvironmentTexturing        bool `json:"environmentTexturing"`
	PersonSegmentation          bool `json:"personSegmentation"`
	PersonSegmentationWithDepth bool `json:"personSegmentationWithDepth"`
	BodyDetection               bool `json:"bodyDetection"`
	SceneDepth                  bool `json:"sceneDepth"`
	LightEstimation             bool `json:"lightEstimation"`
	Audio                       bool `json:"audio"`
	Collaboration               bool `json:"collaboration"`
	MaxTrackedImages            int  `json:"maxTrackedImages"`
}

// Device profiles known to the simulator and the CLI.
const (
	ProfileFull        = "full"
	ProfileLidarless   = "lidar-less"
	ProfileBasic       = "basic"
	ProfileUnsupported = "unsupported"
)

var profiles = map[string]Capabilities{
	ProfileFull: {
		WorldTracking: true, HorizontalPlanes: true, VerticalPlanes: true,
		SceneReconstruction: true, MeshClassification: true, EnvironmentTexturing: true,
		PersonSegmentation: true, PersonSegmentationWithDepth: true, BodyDetection: true, SceneDepth: true,
		LightEstimation: true, Audio: true, Collaboration: true, MaxTrackedImages: 4,
	},
	ProfileLidarless: {
		WorldTracking: true, HorizontalPlanes: true, VerticalPlanes: true,
		EnvironmentTexturing: true, PersonSegmentation: true, BodyDetection: true,
		LightEstimation: true, Audio: true, Collaboration: true, MaxTrackedImages: 2,
	},
	ProfileBasic: {
		WorldTracking: true, HorizontalPlanes: true,
		LightEstimation: true, MaxTrackedImages: 1,
	},
	ProfileUnsupported: {},
}

// Profiles returns the known profile names, sorted.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Profile returns the capabilities of a named profile.
func Profile(name string) (Capabilities, error) {
	c, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Capabilities{}, fmt.Errorf("unknown device profile %q (known: %s)", name, strings.Join(Profiles(), ", "))
	}
	return c, nil
}

// FromDeviceConfig resolves the configured profile and removes disabled capabilities.
func FromDeviceConfig(d config.DeviceConfig) (Capabilities, error) {
	c, err := Profile(d.Profile)
	if err != nil {
		return Capabilities{}, err
	}
	return c.Without(d.Disable...)
}

// Without returns a copy of c with the named capabilities switched off.
func (c Capabilities) Without(names ...string) (Capabilities, error) {
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "world_tracking":
			c.WorldTracking = false
		case "horizontal_planes":
			c.HorizontalPlanes = false
		case "vertical_planes":
			c.VerticalPlanes = false
		case "scene_reconstruction":
			c.SceneReconstruction = false
			c.MeshClassification = false
		case "mesh_classification":
			c.MeshClassification = false
		case "environment_texturing":
			c.EnvironmentTexturing = false
		case "person_segmentation":
			c.PersonSegmentation = false
			c.PersonSegmentationWithDepth = false
		case "person_segmentation_with_depth":
			c.PersonSegmentationWithDepth = false
		case "body_detection":
			c.BodyDetection = false
		case "scene_depth":
			c.SceneDepth = false
		case "light_estimation":
			c.LightEstimation = false
		case "audio":
			c.Audio = false
		case "collaboration":
			c.Collaboration = false
		case "image_tracking":
			c.MaxTrackedImages = 0
		default:
			return Capabilities{}, fmt.Errorf("unknown capability %q", n)
		}
	}
	return c, nil
}

// SupportsSemantic reports whether the device can run frame semantic s.
func (c Capabilities) SupportsSemantic(s FrameSemantic) bool {
	switch s {
	case SemanticPersonSegmentation:
		return c.PersonSegmentation
	case SemanticPersonSegmentationWithDepth:
		return c.PersonSegmentationWithDepth
	case SemanticBodyDetection:
		return c.BodyDetection
	case SemanticSceneDepth:
		return c.SceneDepth
	default:
		return false
	}
}
