package tracking

// IssueKind identifies a detected tracking problem.
type IssueKind string

const (
	IssueConsistentlyPoor IssueKind = "consistently_poor"
	IssueUnstable         IssueKind = "unstable"
	IssueNoPlaneDetection IssueKind = "no_plane_detection"
)

// IssueSeverity ranks a detected problem.
type IssueSeverity string

const (
	SeverityHigh   IssueSeverity = "high"
	SeverityMedium IssueSeverity = "medium"
	SeverityLow    IssueSeverity = "low"
)

// Issue is a detected tracking problem with ordered remediation steps.
type Issue struct {
	Kind        IssueKind     `json:"kind"`
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
	Remediation []string      `json:"remediation"`
}

// Issues inspects the most recent snapshots and reports detected problems,
// highest severity first.
func (a *Analyzer) Issues() []Issue {
	a.mu.RLock()
	recent := a.history.Last(a.issueWindow)
	a.mu.RUnlock()

	if len(recent) == 0 {
		return nil
	}

	var issues []Issue

	poor := 0
	for _, s := range recent {
		if s.Quality.NeedsCoaching() {
			poor++
		}
	}
	if poor >= 7 {
		issues = append(issues, Issue{
			Kind:        IssueConsistentlyPoor,
			Severity:    SeverityHigh,
			Description: "Tracking quality has been consistently poor",
			Remediation: []string{
				"Move to a well-lit area",
				"Point the camera at surfaces with visible texture",
				"Move the device more slowly",
				"Restart the session if the problem persists",
			},
		})
	}

	if labelChanges(recent) > 5 {
		issues = append(issues, Issue{
			Kind:        IssueUnstable,
			Severity:    SeverityMedium,
			Description: "Tracking quality is fluctuating",
			Remediation: []string{
				"Hold the device steady",
				"Avoid reflective or moving surfaces",
				"Reduce rapid camera motion",
			},
		})
	}

	latest := recent[len(recent)-1]
	if latest.PlaneCount == 0 && a.clock.Since(latest.At) < noPlaneMaxAge {
		issues = append(issues, Issue{
			Kind:        IssueNoPlaneDetection,
			Severity:    SeverityMedium,
			Description: "No surfaces have been detected",
			Remediation: []string{
				"Point the camera at the floor or a table",
				"Move the device slowly from side to side",
				"Make sure the surface is not blank or glossy",
			},
		})
	}

	return issues
}
