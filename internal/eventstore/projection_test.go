package eventstore

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func stateEvent(t *testing.T, sessionID, from, to, reason string, at time.Time) *BaseEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"from": from, "to": to, "reason": reason})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &BaseEvent{EventSessionID: sessionID, EventType: TypeStateChanged, EventTimestamp: at, EventPayload: payload}
}

func TestSessionHistoryProjection_ApplyEvents(t *testing.T) {
	projection := NewSessionHistoryProjection(nil, 10)
	base := time.Now()

	steps := [][2]string{
		{"not_initialized", "initializing"},
		{"initializing", "ready"},
		{"ready", "running"},
		{"running", "failed"},
		{"failed", "initializing"},
		{"initializing", "ready"},
		{"ready", "running"},
		{"running", "interrupted"},
		{"interrupted", "running"},
		{"running", "relocalizing"},
		{"relocalizing", "running"},
	}
	for i, s := range steps {
		reason := ""
		if s[1] == "failed" {
			reason = "camera unavailable"
		}
		projection.Apply(stateEvent(t, testSessionID, s[0], s[1], reason, base.Add(time.Duration(i)*time.Second)))
	}

	summary, ok := projection.GetSession(testSessionID)
	if !ok {
		t.Fatal("expected session to exist")
	}
	if summary.Runs != 4 {
		t.Errorf("expected 4 runs, got %d", summary.Runs)
	}
	if summary.Failures != 1 || summary.Retries != 1 {
		t.Errorf("expected 1 failure and 1 retry, got %d and %d", summary.Failures, summary.Retries)
	}
	if summary.Interruptions != 1 || summary.Relocalizations != 1 {
		t.Errorf("expected 1 interruption and 1 relocalization, got %d and %d", summary.Interruptions, summary.Relocalizations)
	}
	if summary.LastError != "camera unavailable" {
		t.Errorf("expected last error, got %q", summary.LastError)
	}
	if summary.LastState != "running" {
		t.Errorf("expected last state running, got %q", summary.LastState)
	}
	if !summary.StartedAt.Equal(base) {
		t.Errorf("expected start %v, got %v", base, summary.StartedAt)
	}
}

func TestSessionHistoryProjection_Fallback(t *testing.T) {
	projection := NewSessionHistoryProjection(nil, 10)
	now := time.Now()

	projection.Apply(stateEvent(t, testSessionID, "not_initialized", "unavailable", "device does not support world tracking", now))
	projection.Apply(&BaseEvent{
		EventSessionID: testSessionID, EventType: TypeFallbackEntered, EventTimestamp: now,
		EventPayload: []byte(`{"reason":"device does not support world tracking"}`),
	})

	summary, _ := projection.GetSession(testSessionID)
	if !summary.FallbackActive || summary.FallbackReason == "" {
		t.Errorf("expected active fallback with reason, got %+v", summary)
	}

	projection.Apply(&BaseEvent{EventSessionID: testSessionID, EventType: TypeFallbackExited, EventTimestamp: now})
	summary, _ = projection.GetSession(testSessionID)
	if summary.FallbackActive {
		t.Error("expected fallback to be cleared")
	}
}

func TestSessionHistoryProjection_IgnoresEventsWithoutSession(t *testing.T) {
	projection := NewSessionHistoryProjection(nil, 10)
	projection.Apply(&BaseEvent{EventType: TypeOptimizationsChanged, EventTimestamp: time.Now()})
	if n := len(projection.GetHistory()); n != 0 {
		t.Errorf("expected empty history, got %d", n)
	}
}

func TestSessionHistoryProjection_BoundedNewestFirst(t *testing.T) {
	projection := NewSessionHistoryProjection(nil, 3)
	base := time.Now()

	for i := range 5 {
		id := fmt.Sprintf("session-%d", i)
		projection.Apply(stateEvent(t, id, "not_initialized", "initializing", "", base.Add(time.Duration(i)*time.Minute)))
	}

	history := projection.GetHistory()
	if len(history) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(history))
	}
	for i, want := range []string{"session-4", "session-3", "session-2"} {
		if history[i].SessionID != want {
			t.Errorf("history[%d]: expected %s, got %s", i, want, history[i].SessionID)
		}
	}
	if _, ok := projection.GetSession("session-0"); ok {
		t.Error("expected oldest session to be evicted")
	}
}

func TestSessionHistoryProjection_Rebuild(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	now := time.Now().Add(-time.Minute)
	for _, s := range [][2]string{{"not_initialized", "initializing"}, {"initializing", "ready"}, {"ready", "running"}} {
		payload, _ := json.Marshal(map[string]string{"from": s[0], "to": s[1]})
		if err := store.Append(ctx, testSessionID, TypeStateChanged, now, payload, nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Append(ctx, testSessionID, TypeQualityChanged, now, []byte(`{"current":"good"}`), nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	projection := NewSessionHistoryProjection(store, 0)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	summary, ok := projection.GetSession(testSessionID)
	if !ok {
		t.Fatal("expected rebuilt session")
	}
	if summary.Runs != 1 || summary.LastQuality != "good" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if projection.LastSyncTime().IsZero() {
		t.Error("expected last sync time to be set")
	}
}
