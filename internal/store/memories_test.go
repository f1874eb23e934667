package store

import (
	"context"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "governor.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestCreateAndRecentMemories(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, err := s.CreateMemory(ctx, CreateMemoryInput{
		Text:           "Oslo averages 763mm of rain per year.",
		Source:         "curiosity",
		Tags:           []string{"weather", " oslo "},
		Citation:       "https://example.com/oslo-climate",
		RelevanceScore: 0.91,
	})
	if err != nil {
		t.Fatalf("create memory: %v", err)
	}
	if first == "" {
		t.Fatal("expected a memory id")
	}
	if _, err := s.CreateMemory(ctx, CreateMemoryInput{Text: "Second item."}); err != nil {
		t.Fatalf("create second memory: %v", err)
	}

	items, err := s.RecentMemories(ctx, 10)
	if err != nil {
		t.Fatalf("recent memories: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(items))
	}
	if items[0].Text != "Second item." {
		t.Fatalf("expected newest first, got %q", items[0].Text)
	}
	if len(items[1].Tags) != 2 || items[1].Tags[1] != "oslo" {
		t.Fatalf("tags should round-trip trimmed, got %v", items[1].Tags)
	}
}

func TestCreateMemoryRequiresText(t *testing.T) {
	s := testStore(t)
	if _, err := s.CreateMemory(context.Background(), CreateMemoryInput{Text: "   "}); err == nil {
		t.Fatal("empty text must be rejected")
	}
}

func TestSearchMemories(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if _, err := s.CreateMemory(ctx, CreateMemoryInput{Text: "Rust 2.0 release notes summary."}); err != nil {
		t.Fatalf("create memory: %v", err)
	}
	if _, err := s.CreateMemory(ctx, CreateMemoryInput{Text: "Oslo rainfall statistics."}); err != nil {
		t.Fatalf("create memory: %v", err)
	}

	items, err := s.SearchMemories(ctx, "rainfall", 10)
	if err != nil {
		t.Fatalf("search memories: %v", err)
	}
	if len(items) != 1 || items[0].Text != "Oslo rainfall statistics." {
		t.Fatalf("unexpected search results: %+v", items)
	}
}

func TestToolAuditRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.CreateToolAudit(ctx, CreateToolAuditInput{
		Tool:      "web_search",
		Verdict:   AuditVerdictExecuted,
		Source:    "curiosity",
		RiskLevel: "low",
	}); err != nil {
		t.Fatalf("create audit: %v", err)
	}
	if _, err := s.CreateToolAudit(ctx, CreateToolAuditInput{
		Tool:    "shell_exec",
		Verdict: AuditVerdictRejected,
		Reason:  "dangerous_command",
		DryRun:  false,
	}); err != nil {
		t.Fatalf("create audit: %v", err)
	}

	items, err := s.RecentToolAudits(ctx, 10)
	if err != nil {
		t.Fatalf("recent audits: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(items))
	}
	if items[0].Tool != "shell_exec" || items[0].Verdict != AuditVerdictRejected {
		t.Fatalf("expected newest rejected row first, got %+v", items[0])
	}
}
