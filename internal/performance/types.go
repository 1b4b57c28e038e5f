// Package performance samples device health, classifies it against the
// environment thresholds and maintains the active set of optimization
// directives.
package performance

import (
	"strings"
	"time"

	"git.home.luguber.info/inful/arsession/internal/foundation/normalization"
	"git.home.luguber.info/inful/arsession/internal/tracking"
)

// State is the overall performance classification.
type State string

const (
	StateOptimal  State = "optimal"
	StateDegraded State = "degraded"
	StateCritical State = "critical"
)

func (s State) rank() int {
	switch s {
	case StateCritical:
		return 2
	case StateDegraded:
		return 1
	default:
		return 0
	}
}

// Max returns the more severe of s and o.
func (s State) Max(o State) State {
	if o.rank() > s.rank() {
		return o
	}
	return s
}

// Thermal is the device heat classification.
type Thermal string

const (
	ThermalNominal  Thermal = "nominal"
	ThermalFair     Thermal = "fair"
	ThermalSerious  Thermal = "serious"
	ThermalCritical Thermal = "critical"
)

var thermalNormalizer = normalization.NewNormalizer(map[string]Thermal{
	"nominal":  ThermalNominal,
	"fair":     ThermalFair,
	"serious":  ThermalSerious,
	"critical": ThermalCritical,
}, ThermalNominal)

// ParseThermal maps user input to a thermal state, defaulting to nominal.
func ParseThermal(raw string) Thermal {
	return thermalNormalizer.Normalize(raw)
}

// BatteryUnknown marks a sample without a battery reading.
const BatteryUnknown = -1.0

// Metrics is one device health sample. FrameRate <= 0 means the frame rate
// is not measured by the source; NetworkLatencyMS is nil when unknown.
type Metrics struct {
	At               time.Time        `json:"timestamp"`
	MemoryMB         float64          `json:"memoryMB"`
	CPUPercent       float64          `json:"cpuPercent"`
	FrameRate        float64          `json:"frameRate"`
	Thermal          Thermal          `json:"thermalState"`
	BatteryLevel     float64          `json:"batteryLevel"`
	NetworkLatencyMS *float64         `json:"networkLatencyMS,omitempty"`
	RenderTimeMS     float64          `json:"renderTimeMS"`
	TrackingQuality  tracking.Quality `json:"trackingQuality,omitempty"`
}

// BatteryKnown reports whether the sample carries a battery reading.
func (m Metrics) BatteryKnown() bool { return m.BatteryLevel >= 0 }

// Latency returns a pointer suitable for Metrics.NetworkLatencyMS.
func Latency(ms float64) *float64 { return &ms }

// Directive is a discrete corrective action.
type Directive string

const (
	ReduceFrameRate           Directive = "reduce_frame_rate"
	DisableComplexRendering   Directive = "disable_complex_rendering"
	ClearCaches               Directive = "clear_caches"
	PauseBackgroundTasks      Directive = "pause_background_tasks"
	DisableAnimations         Directive = "disable_animations"
	ReduceTextureQuality      Directive = "reduce_texture_quality"
	LimitConcurrentOperations Directive = "limit_concurrent_operations"
)

// AllDirectives lists every directive in canonical order.
var AllDirectives = []Directive{
	ReduceFrameRate,
	DisableComplexRendering,
	ClearCaches,
	PauseBackgroundTasks,
	DisableAnimations,
	ReduceTextureQuality,
	LimitConcurrentOperations,
}

func (d Directive) bit() uint16 {
	for i, known := range AllDirectives {
		if known == d {
			return 1 << i
		}
	}
	return 0
}

// DirectiveSet is a value-typed set of directives. Items are always returned
// in canonical order.
type DirectiveSet struct {
	bits uint16
}

// NewDirectiveSet builds a set from ds, ignoring unknown directives.
func NewDirectiveSet(ds ...Directive) DirectiveSet {
	var s DirectiveSet
	for _, d := range ds {
		s.bits |= d.bit()
	}
	return s
}

// ParseDirectiveSet builds a set from directive names, ignoring unknown names.
func ParseDirectiveSet(names []string) DirectiveSet {
	var s DirectiveSet
	for _, n := range names {
		s.bits |= Directive(strings.TrimSpace(n)).bit()
	}
	return s
}

func (s DirectiveSet) Has(d Directive) bool              { return d.bit() != 0 && s.bits&d.bit() != 0 }
func (s DirectiveSet) With(ds ...Directive) DirectiveSet { return s.Union(NewDirectiveSet(ds...)) }
func (s DirectiveSet) Union(o DirectiveSet) DirectiveSet { return DirectiveSet{bits: s.bits | o.bits} }
func (s DirectiveSet) Intersect(o DirectiveSet) DirectiveSet {
	return DirectiveSet{bits: s.bits & o.bits}
}
func (s DirectiveSet) Minus(o DirectiveSet) DirectiveSet { return DirectiveSet{bits: s.bits &^ o.bits} }
func (s DirectiveSet) Empty() bool                       { return s.bits == 0 }
func (s DirectiveSet) Equal(o DirectiveSet) bool         { return s.bits == o.bits }

// Len returns the number of directives in the set.
func (s DirectiveSet) Len() int {
	n := 0
	for b := s.bits; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// Items returns the directives in canonical order.
func (s DirectiveSet) Items() []Directive {
	out := make([]Directive, 0, s.Len())
	for _, d := range AllDirectives {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Strings returns directive names in canonical order.
func (s DirectiveSet) Strings() []string {
	items := s.Items()
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = string(d)
	}
	return out
}

func (s DirectiveSet) String() string {
	if s.Empty() {
		return "none"
	}
	return strings.Join(s.Strings(), ",")
}

// MarshalJSON renders the set as a JSON array of names.
func (s DirectiveSet) MarshalJSON() ([]byte, error) {
	names := s.Strings()
	var b strings.Builder
	b.WriteByte('[')
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(n)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}
