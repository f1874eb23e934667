package heartbeat

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotAggregatesStates(t *testing.T) {
	registry := NewRegistry()
	registry.Beat("api", "serving")
	registry.Degrade("scheduler", "poll failed", errors.New("timeout"))

	snapshot := registry.Snapshot(time.Minute)
	if snapshot.Overall != StateDegraded {
		t.Fatalf("expected degraded overall, got %s", snapshot.Overall)
	}
	if len(snapshot.Components) != 2 {
		t.Fatalf("expected two components, got %d", len(snapshot.Components))
	}
	if snapshot.Components[0].Name != "api" || snapshot.Components[0].State != StateHealthy {
		t.Fatalf("unexpected first component %+v", snapshot.Components[0])
	}
	if snapshot.Components[1].Error != "timeout" {
		t.Fatalf("degraded component should carry the error, got %+v", snapshot.Components[1])
	}
}

func TestSnapshotMarksStale(t *testing.T) {
	registry := NewRegistry()
	registry.Beat("watcher", "ok")

	registry.mu.Lock()
	record := registry.components["watcher"]
	record.lastBeatAt = time.Now().UTC().Add(-5 * time.Minute)
	registry.components["watcher"] = record
	registry.mu.Unlock()

	snapshot := registry.Snapshot(time.Minute)
	if snapshot.Components[0].State != StateStale {
		t.Fatalf("expected stale state, got %s", snapshot.Components[0].State)
	}
	if snapshot.Overall != StateDegraded {
		t.Fatalf("stale component should degrade the overall state, got %s", snapshot.Overall)
	}
}

func TestEmptyRegistryIsUnknown(t *testing.T) {
	if snapshot := NewRegistry().Snapshot(time.Minute); snapshot.Overall != "unknown" {
		t.Fatalf("expected unknown overall, got %s", snapshot.Overall)
	}
}
