package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"SessionID", KeySessionID, "s-1", SessionID("s-1")},
		{"RunID", KeyRunID, "r-1", RunID("r-1")},
		{"State", KeyState, "running", State("running")},
		{"Reason", KeyReason, "exhausted", Reason("exhausted")},
		{"Quality", KeyQuality, "good", Quality("good")},
		{"Tracking", KeyTracking, "normal", Tracking("normal")},
		{"PerfState", KeyPerfState, "critical", PerfState("critical")},
		{"Directive", KeyDirective, "clear_caches", Directive("clear_caches")},
		{"Feature", KeyFeature, "scene_reconstruction", Feature("scene_reconstruction")},
		{"Environment", KeyEnvironment, "prod", Environment("prod")},
		{"Component", KeyComponent, "monitor", Component("monitor")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Planes(3); v.Key != KeyPlanes {
		t.Fatalf("Planes key mismatch: %s", v.Key)
	}
	if v := Attempt(2); v.Key != KeyAttempt {
		t.Fatalf("Attempt key mismatch: %s", v.Key)
	}
	if v := MaxAttempts(3); v.Key != KeyMaxAttempts {
		t.Fatalf("MaxAttempts key mismatch: %s", v.Key)
	}
	if v := DelayMS(2000); v.Key != KeyDelayMS {
		t.Fatalf("DelayMS key mismatch: %s", v.Key)
	}
}

func TestTransitionGroup(t *testing.T) {
	attr := Transition("running", "paused")
	if attr.Key != "transition" {
		t.Fatalf("unexpected group key %s", attr.Key)
	}
	group := attr.Value.Group()
	if len(group) != 2 || group[0].Key != KeyFromState || group[1].Value.String() != "paused" {
		t.Fatalf("unexpected group contents %v", group)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
