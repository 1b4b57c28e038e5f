package tracking

import "time"

// Quality is the derived, ordered tracking quality label.
type Quality string

const (
	QualityExcellent   Quality = "excellent"
	QualityGood        Quality = "good"
	QualityFair        Quality = "fair"
	QualityPoor        Quality = "poor"
	QualityUnavailable Quality = "unavailable"
)

// Score returns the numeric score of q in [0, 1].
func (q Quality) Score() float64 {
	switch q {
	case QualityExcellent:
		return 1.0
	case QualityGood:
		return 0.8
	case QualityFair:
		return 0.6
	case QualityPoor:
		return 0.4
	default:
		return 0.0
	}
}

// Better reports whether q ranks strictly above other.
func (q Quality) Better(other Quality) bool {
	return q.Score() > other.Score()
}

// NeedsCoaching reports whether the quality alone warrants coaching.
func (q Quality) NeedsCoaching() bool {
	return q == QualityPoor || q == QualityUnavailable
}

// ComputeQuality derives the quality label from the tracking state, the
// number of tracked planes and how long the session has been running.
// It is a pure function of its inputs.
func ComputeQuality(state State, planeCount int, sessionDuration time.Duration) Quality {
	switch state.Kind {
	case KindNotAvailable:
		return QualityUnavailable
	case KindNormal:
		switch {
		case planeCount >= 5 && sessionDuration > 10*time.Second:
			return QualityExcellent
		case planeCount >= 3 && sessionDuration > 5*time.Second:
			return QualityGood
		default:
			return QualityFair
		}
	case KindLimited:
		switch state.Reason {
		case ReasonInitializing:
			return QualityFair
		case ReasonExcessiveMotion, ReasonInsufficientFeatures, ReasonRelocalizing:
			return QualityPoor
		default:
			unknownEnum("limited reason", int(state.Reason))
			return QualityPoor
		}
	default:
		unknownEnum("kind", int(state.Kind))
		return QualityUnavailable
	}
}

// Snapshot is one entry of the quality history.
type Snapshot struct {
	Quality    Quality   `json:"quality"`
	State      State     `json:"trackingState"`
	PlaneCount int       `json:"planeCount"`
	At         time.Time `json:"timestamp"`
}
