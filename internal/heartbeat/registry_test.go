package heartbeat

import (
	"errors"
	"testing"
	"time"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func TestSnapshotMarksSilentPollerStale(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithClock(clock.Now))
	registry.Beat("connector:telegram", "polling")
	clock.now = clock.now.Add(3 * time.Minute)

	snapshot := registry.Snapshot(time.Minute)
	if !snapshot.Degraded() {
		t.Fatalf("expected degraded overall state, got %s", snapshot.Overall)
	}
	if len(snapshot.Components) != 1 {
		t.Fatalf("expected one component, got %d", len(snapshot.Components))
	}
	component := snapshot.Components[0]
	if component.State != StateStale || component.Reported != StateHealthy {
		t.Fatalf("unexpected component status %+v", component)
	}
}

func TestSnapshotOverall(t *testing.T) {
	registry := NewRegistry()
	if got := registry.Snapshot(0).Overall; got != OverallUnknown {
		t.Fatalf("expected unknown for empty registry, got %s", got)
	}

	registry.Disabled("retention", "retention days not set")
	registry.Stopped("dispatch", "shutdown")
	if got := registry.Snapshot(time.Minute).Overall; got != OverallIdle {
		t.Fatalf("expected idle overall state, got %s", got)
	}

	registry.Starting("connector:telegram", "syncing commands")
	if got := registry.Snapshot(time.Minute).Overall; got != string(StateStarting) {
		t.Fatalf("expected starting overall state, got %s", got)
	}

	registry.Beat("connector:telegram", "polling")
	if got := registry.Snapshot(time.Minute).Overall; got != string(StateHealthy) {
		t.Fatalf("expected healthy overall state, got %s", got)
	}

	registry.Degrade("dispatch", "lane full", errors.New("dispatch lane is full"))
	snapshot := registry.Snapshot(time.Minute)
	if !snapshot.Degraded() {
		t.Fatalf("expected degraded overall state, got %s", snapshot.Overall)
	}
	if snapshot.Components[0].Name != "connector:telegram" || snapshot.Components[1].Error != "dispatch lane is full" {
		t.Fatalf("unexpected components %+v", snapshot.Components)
	}
}

func TestDisabledComponentNeverStale(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)}
	registry := NewRegistry(WithClock(clock.Now))
	registry.Disabled("retention", "off")
	clock.now = clock.now.Add(time.Hour)
	if state := registry.Snapshot(time.Minute).Components[0].State; state != StateDisabled {
		t.Fatalf("expected disabled state, got %s", state)
	}
}
