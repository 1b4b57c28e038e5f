// Package analytics delivers session lifecycle events to fire-and-forget
// sinks. Delivery failures are logged and never reach the producer.
package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/arsession/internal/events"
	"git.home.luguber.info/inful/arsession/internal/eventstore"
)

// Event is one analytics record.
type Event struct {
	SessionID  string            `json:"session_id,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Type       string            `json:"type"`
	At         time.Time         `json:"at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FromBusEvent converts a bus notification into an analytics event.
// Notifications that carry no session (performance events) are attributed
// to sessionID. Unknown notifications return false.
func FromBusEvent(evt events.Event, sessionID string) (Event, bool) {
	out := Event{SessionID: sessionID, At: evt.OccurredAt()}

	switch e := evt.(type) {
	case events.SessionStateChanged:
		out.SessionID = firstNonEmpty(e.SessionID, sessionID)
		out.RunID = e.RunID
		out.Type = eventstore.TypeStateChanged
		out.Attributes = map[string]string{"from": e.From, "to": e.To, "reason": e.Reason}
	case events.TrackingQualityChanged:
		out.SessionID = firstNonEmpty(e.SessionID, sessionID)
		out.Type = eventstore.TypeQualityChanged
		out.Attributes = map[string]string{
			"previous": string(e.Previous),
			"current":  string(e.Current),
			"score":    strconv.FormatFloat(e.Score, 'f', 2, 64),
			"tracking": e.TrackingState.String(),
		}
	case events.CoachingChanged:
		out.SessionID = firstNonEmpty(e.SessionID, sessionID)
		out.Type = eventstore.TypeCoachingChanged
		out.Attributes = map[string]string{"visible": strconv.FormatBool(e.Visible), "reason": e.Reason}
	case events.FallbackChanged:
		out.SessionID = firstNonEmpty(e.SessionID, sessionID)
		out.Type = eventstore.TypeFallbackExited
		if e.Active {
			out.Type = eventstore.TypeFallbackEntered
		}
		out.Attributes = map[string]string{"reason": e.Reason, "recommended_action": e.RecommendedAction}
	case events.OptimizationsChanged:
		out.Type = eventstore.TypeOptimizationsChanged
		out.Attributes = map[string]string{
			"active":  strings.Join(e.Active, ","),
			"added":   strings.Join(e.Added, ","),
			"removed": strings.Join(e.Removed, ","),
			"state":   e.State,
		}
	case events.PerformanceIssue:
		out.Type = eventstore.TypePerformanceIssue
		out.Attributes = map[string]string{
			"issue_id":  e.ID,
			"state":     e.State,
			"reason":    e.Reason,
			"memory_mb": fmt.Sprintf("%.0f", e.Metrics.MemoryMB),
			"fps":       fmt.Sprintf("%.0f", e.Metrics.FrameRate),
			"thermal":   e.Metrics.Thermal,
		}
	default:
		return Event{}, false
	}
	return out, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
