package budget

import (
	"sync"
	"testing"
	"time"
)

func TestSpendNeverExceedsCap(t *testing.T) {
	tracker := NewTracker()
	tracker.Register("curiosity_minutes", 10, 24*time.Hour)

	if !tracker.Spend("curiosity_minutes", 6) {
		t.Fatal("first spend should succeed")
	}
	if tracker.Spend("curiosity_minutes", 6) {
		t.Fatal("second spend should exceed the cap")
	}
	if !tracker.Spend("curiosity_minutes", 4) {
		t.Fatal("spend up to the cap should succeed")
	}

	entries := tracker.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].SpentThisWindow != 10 {
		t.Fatalf("expected spent 10, got %v", entries[0].SpentThisWindow)
	}
}

func TestWindowRollover(t *testing.T) {
	tracker := NewTracker()
	current := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }
	tracker.Register("curiosity_findings", 3, time.Hour)

	if !tracker.Spend("curiosity_findings", 3) {
		t.Fatal("spend at full cap should succeed")
	}
	if tracker.CanSpend("curiosity_findings", 1) {
		t.Fatal("window is exhausted")
	}

	current = current.Add(time.Hour)
	if !tracker.CanSpend("curiosity_findings", 3) {
		t.Fatal("fresh window should admit a full-cap spend")
	}
	if !tracker.Spend("curiosity_findings", 3) {
		t.Fatal("spend after rollover should succeed")
	}
}

func TestReserveIsAllOrNothing(t *testing.T) {
	tracker := NewTracker()
	tracker.Register("curiosity_minutes", 30, 24*time.Hour)
	tracker.Register("curiosity_findings", 2, 24*time.Hour)

	if tracker.Reserve(map[string]float64{
		"curiosity_minutes":  10,
		"curiosity_findings": 5,
	}) {
		t.Fatal("reserve should fail when any resource is short")
	}
	entries := tracker.Snapshot()
	for _, entry := range entries {
		if entry.SpentThisWindow != 0 {
			t.Fatalf("failed reserve must not spend, got %v on %s", entry.SpentThisWindow, entry.Resource)
		}
	}

	if !tracker.Reserve(map[string]float64{
		"curiosity_minutes":  10,
		"curiosity_findings": 2,
	}) {
		t.Fatal("reserve within caps should succeed")
	}
}

func TestConcurrentSpendStaysWithinCap(t *testing.T) {
	tracker := NewTracker()
	tracker.Register("curiosity_findings", 50, 24*time.Hour)

	var group sync.WaitGroup
	for index := 0; index < 100; index++ {
		group.Add(1)
		go func() {
			defer group.Done()
			tracker.Spend("curiosity_findings", 1)
		}()
	}
	group.Wait()

	entries := tracker.Snapshot()
	if entries[0].SpentThisWindow != 50 {
		t.Fatalf("expected exactly 50 spent, got %v", entries[0].SpentThisWindow)
	}
}

func TestUnknownResourceIsRefused(t *testing.T) {
	tracker := NewTracker()
	if tracker.CanSpend("unregistered", 1) {
		t.Fatal("unknown resource must not be spendable")
	}
	if tracker.Spend("unregistered", 1) {
		t.Fatal("unknown resource must not accept spend")
	}
}
