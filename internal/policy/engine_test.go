package policy

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dwizi/governor/internal/budget"
	"github.com/dwizi/governor/internal/gaterr"
	"github.com/dwizi/governor/internal/risk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(t *testing.T, tracker *budget.Tracker) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(validPolicyJSON), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	engine := NewEngine(path, tracker, discardLogger())
	if err := engine.Load(); err != nil {
		t.Fatalf("load policy: %v", err)
	}
	return engine
}

func floatPtr(value float64) *float64 { return &value }

func TestLoadFailsOnMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	engine := NewEngine(path, nil, discardLogger())
	if err := engine.Load(); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
	if engine.Current() != nil {
		t.Fatal("failed load must not install a document")
	}
}

func TestDecideWithoutPolicyIsLogOnly(t *testing.T) {
	engine := NewEngine("/nonexistent/policy.json", nil, discardLogger())
	decision := engine.Decide(DecisionRequest{Domain: DomainConversation, Trigger: TriggerUserRequest})
	if decision.Outcome != OutcomeLogOnly || decision.Reason != ReasonNoPolicy {
		t.Fatalf("expected conservative log_only, got %+v", decision)
	}
}

func TestHighRiskAlwaysAsksPermission(t *testing.T) {
	engine := testEngine(t, nil)
	decision := engine.Decide(DecisionRequest{
		Domain:          DomainConversation,
		Trigger:         TriggerUserRequest,
		Signal:          Signal{Impact: 5, TimeSensitivity: 5, Confidence: 5},
		Risk:            Risk{ToolRisk: risk.LevelHigh},
		IsUserInitiated: true,
	})
	if decision.Outcome != OutcomeAskPermission {
		t.Fatalf("high risk must ask permission, got %s", decision.Outcome)
	}
	if decision.Reason != ReasonHighRisk {
		t.Fatalf("expected high_risk reason, got %s", decision.Reason)
	}
}

func TestLowRelevanceAlwaysLogsOnly(t *testing.T) {
	engine := testEngine(t, nil)
	decision := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerUserRequest,
		Signal:  Signal{RelevanceScore: floatPtr(0.2), Impact: 5, TimeSensitivity: 5, Confidence: 5},
	})
	if decision.Outcome != OutcomeLogOnly {
		t.Fatalf("low relevance must log only, got %s", decision.Outcome)
	}
	if decision.Reason != ReasonLowRelevance {
		t.Fatalf("expected low_relevance reason, got %s", decision.Reason)
	}
}

func TestNeverInterruptDomainNeverAsksPermission(t *testing.T) {
	engine := testEngine(t, nil)
	decision := engine.Decide(DecisionRequest{
		Domain:  DomainWebResearch,
		Trigger: TriggerEvent,
		Signal:  Signal{RelevanceScore: floatPtr(0.9), Impact: 4, TimeSensitivity: 3, Confidence: 2},
	})
	if decision.Outcome == OutcomeAskPermission {
		t.Fatal("never_interrupt domain must not ask permission")
	}
	if decision.UI.CanInterrupt {
		t.Fatal("never_interrupt domain must not allow interruption")
	}
	if decision.Outcome != OutcomeNotify {
		t.Fatalf("expected notify at high urgency, got %s", decision.Outcome)
	}
}

func TestUrgencyBanding(t *testing.T) {
	engine := testEngine(t, nil)

	// schedule(2) + 1 + 0.5 + 0.5 - 0 = 4.0 → notify band.
	background := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerSchedule,
		Signal:  Signal{Impact: 1, TimeSensitivity: 0.5, Confidence: 0.5},
	})
	if background.Outcome != OutcomeNotify {
		t.Fatalf("expected notify, got %s (urgency %v)", background.Outcome, background.Urgency)
	}

	// knowledge_gap(1) + 0.5 = 1.5 → low band, log_only for background.
	quiet := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerKnowledgeGap,
		Signal:  Signal{Confidence: 0.5},
	})
	if quiet.Outcome != OutcomeLogOnly {
		t.Fatalf("expected log_only, got %s", quiet.Outcome)
	}

	// Same low-band request, user-initiated: act_then_report.
	requested := engine.Decide(DecisionRequest{
		Domain:          DomainConversation,
		Trigger:         TriggerKnowledgeGap,
		Signal:          Signal{Confidence: 0.5},
		IsUserInitiated: true,
	})
	if requested.Outcome != OutcomeActThenReport {
		t.Fatalf("expected act_then_report for user-initiated request, got %s", requested.Outcome)
	}
}

func TestUrgencyIsClamped(t *testing.T) {
	engine := testEngine(t, nil)
	decision := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerUserRequest,
		Signal:  Signal{Impact: 10, TimeSensitivity: 10, Confidence: 10},
	})
	if decision.Urgency != 10 {
		t.Fatalf("urgency must clamp at 10, got %v", decision.Urgency)
	}

	negative := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerKnowledgeGap,
		Signal:  Signal{DisruptionCost: 20},
	})
	if negative.Urgency != 0 {
		t.Fatalf("urgency must clamp at 0, got %v", negative.Urgency)
	}
}

func TestDisabledDomainDoesNothing(t *testing.T) {
	engine := testEngine(t, nil)
	decision := engine.Decide(DecisionRequest{
		Domain:          DomainSystem,
		Trigger:         TriggerUserRequest,
		IsUserInitiated: true,
	})
	if decision.Outcome != OutcomeDoNothing || decision.Reason != ReasonDomainDisabled {
		t.Fatalf("disabled domain must do nothing, got %+v", decision)
	}
}

func TestUnknownDomainFallsBackConservatively(t *testing.T) {
	engine := testEngine(t, nil)

	// Strong signals can max out urgency; an unrecognized domain or trigger
	// must still never band into an acting or asking outcome.
	decision := engine.Decide(DecisionRequest{
		Domain:  ParseDomain("astrology"),
		Trigger: ParseTrigger("cosmic_ray"),
		Signal:  Signal{Impact: 5, TimeSensitivity: 5, Confidence: 5},
	})
	if decision.Outcome != OutcomeLogOnly {
		t.Fatalf("unknown domain/trigger should resolve to log_only, got %s", decision.Outcome)
	}
	if decision.Reason != ReasonUnknownRequest {
		t.Fatalf("expected unknown_request reason, got %s", decision.Reason)
	}

	userInitiated := engine.Decide(DecisionRequest{
		Domain:          DomainUnknown,
		Trigger:         TriggerUserRequest,
		Signal:          Signal{Impact: 5, TimeSensitivity: 5, Confidence: 5},
		IsUserInitiated: true,
	})
	if userInitiated.Outcome != OutcomeLogOnly {
		t.Fatalf("unknown domain must log only even when user-initiated, got %s", userInitiated.Outcome)
	}

	unknownTrigger := engine.Decide(DecisionRequest{
		Domain:  DomainConversation,
		Trigger: TriggerUnknown,
		Signal:  Signal{Impact: 5, TimeSensitivity: 5, Confidence: 5},
	})
	if unknownTrigger.Outcome != OutcomeLogOnly {
		t.Fatalf("unknown trigger must log only, got %s", unknownTrigger.Outcome)
	}
}

func TestDescribeDecision(t *testing.T) {
	described := DescribeDecision(Decision{
		Outcome: OutcomeNotify,
		Urgency: 4.5,
		UI:      UIHints{CanInterrupt: true},
		Reason:  ReasonUrgencyBand,
	})
	expected := "outcome=notify urgency=4.5 reason=urgency_band can_interrupt=true"
	if described != expected {
		t.Fatalf("expected %q, got %q", expected, described)
	}
}

func TestBudgetAwareDowngrade(t *testing.T) {
	tracker := budget.NewTracker()
	engine := testEngine(t, tracker)

	tracker.Spend(ResourceCuriosityMinutes, 30)

	decision := engine.Decide(DecisionRequest{
		Domain:          DomainWebResearch,
		Trigger:         TriggerUserRequest,
		Signal:          Signal{RelevanceScore: floatPtr(0.9), Impact: 2},
		IsUserInitiated: true,
		ScopeMinutes:    10,
	})
	if decision.Outcome != OutcomeLogOnly || decision.Reason != ReasonBudget {
		t.Fatalf("exhausted budget must downgrade to log_only, got %+v", decision)
	}
}

func TestReloadKeepsPreviousDocumentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(validPolicyJSON), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	engine := NewEngine(path, nil, discardLogger())
	if err := engine.Load(); err != nil {
		t.Fatalf("load policy: %v", err)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write broken policy: %v", err)
	}
	if err := engine.Reload(); err == nil {
		t.Fatal("reload of a broken document must report the error")
	}
	if engine.Version() != 3 {
		t.Fatalf("previous document must stay live, got version %d", engine.Version())
	}
}
