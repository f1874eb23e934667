package policy

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dwizi/governor/internal/budget"
	"github.com/dwizi/governor/internal/risk"
)

const (
	ResourceCuriosityMinutes  = "curiosity_minutes"
	ResourceCuriosityFindings = "curiosity_findings"

	budgetWindow = 24 * time.Hour
)

// Engine owns the live policy document and turns decision requests into
// outcomes. The document is swapped atomically on reload so in-flight
// Decide calls never observe a half-updated policy.
type Engine struct {
	path    string
	tracker *budget.Tracker
	logger  *slog.Logger
	current atomic.Pointer[Document]
}

func NewEngine(path string, tracker *budget.Tracker, logger *slog.Logger) *Engine {
	return &Engine{
		path:    path,
		tracker: tracker,
		logger:  logger,
	}
}

// Load reads, validates, and installs the policy document. The first load
// is fatal to the caller on failure: no decisions may be made without a
// valid policy. Later loads keep the previous document live on failure.
func (e *Engine) Load() error {
	document, err := LoadFile(e.path)
	if err != nil {
		return err
	}
	e.install(document)
	e.logger.Info("policy loaded", "path", e.path, "version", document.Version)
	return nil
}

// Reload is Load for a running engine: a document that fails validation is
// logged and discarded, the previous one stays in effect.
func (e *Engine) Reload() error {
	if err := e.Load(); err != nil {
		e.logger.Error("policy reload rejected, previous document stays live", "path", e.path, "error", err)
		return err
	}
	return nil
}

// Install swaps in an already-validated document. Used by tests and by the
// check-policy command.
func (e *Engine) Install(document *Document) {
	if document == nil {
		return
	}
	e.install(document)
}

func (e *Engine) install(document *Document) {
	e.current.Store(document)
	if e.tracker != nil {
		e.tracker.Register(ResourceCuriosityMinutes, document.Thresholds.CuriosityMaxMinutesPerDay, budgetWindow)
		e.tracker.Register(ResourceCuriosityFindings, document.Thresholds.CuriosityMaxFindingsPerDay, budgetWindow)
	}
}

// Current returns the live document, or nil before the first load.
func (e *Engine) Current() *Document {
	return e.current.Load()
}

// Version returns the live document version, 0 before the first load.
func (e *Engine) Version() int {
	document := e.current.Load()
	if document == nil {
		return 0
	}
	return document.Version
}

// Urgency computes the bounded 0..10 score for a request against the live
// policy. Deterministic and side-effect free.
func (e *Engine) Urgency(request DecisionRequest) float64 {
	document := e.current.Load()
	if document == nil {
		return 0
	}
	return urgencyScore(document, request)
}

// Decide maps a request onto an outcome. It never fails: unknown domains
// and triggers resolve to the most conservative outcome.
func (e *Engine) Decide(request DecisionRequest) Decision {
	document := e.current.Load()
	if document == nil {
		return Decision{Outcome: OutcomeLogOnly, Reason: ReasonNoPolicy}
	}

	urgency := urgencyScore(document, request)
	quiet := document.neverInterrupt(request.Domain)
	hints := UIHints{CanInterrupt: !quiet}

	// A request the policy has no vocabulary for never acts, no matter how
	// strong its signals look.
	if request.Domain == DomainUnknown || request.Trigger == TriggerUnknown {
		return Decision{Outcome: OutcomeLogOnly, Urgency: urgency, UI: hints, Reason: ReasonUnknownRequest}
	}

	if !document.domainEnabled(request.Domain) {
		return Decision{Outcome: OutcomeDoNothing, Urgency: urgency, UI: hints, Reason: ReasonDomainDisabled}
	}

	// High tool risk forces a permission gate before anything else, even
	// for user-initiated requests at maximal urgency.
	if request.Risk.ToolRisk == risk.LevelHigh {
		return Decision{Outcome: OutcomeAskPermission, Urgency: urgency, UI: hints, Reason: ReasonHighRisk}
	}

	if request.Signal.RelevanceScore != nil && *request.Signal.RelevanceScore < document.MinRelevanceFor(request.Domain) {
		return Decision{Outcome: OutcomeLogOnly, Urgency: urgency, UI: hints, Reason: ReasonLowRelevance}
	}

	outcome := bandedOutcome(document.UrgencyBands, urgency, request.IsUserInitiated)
	if quiet && outcome == OutcomeAskPermission {
		// Interruption is structurally unreachable for this domain class.
		outcome = OutcomeNotify
	}

	decision := Decision{Outcome: outcome, Urgency: urgency, UI: hints, Reason: ReasonUrgencyBand}
	if decision.Outcome.Proceeds() && !e.withinBudget(request) {
		decision.Outcome = OutcomeLogOnly
		decision.Reason = ReasonBudget
	}
	return decision
}

// withinBudget is a read-only check; the actual reservation belongs to the
// caller that executes.
func (e *Engine) withinBudget(request DecisionRequest) bool {
	if e.tracker == nil {
		return true
	}
	if request.ScopeMinutes > 0 && !e.tracker.CanSpend(ResourceCuriosityMinutes, request.ScopeMinutes) {
		return false
	}
	if request.PlannedFindings > 0 && !e.tracker.CanSpend(ResourceCuriosityFindings, request.PlannedFindings) {
		return false
	}
	return true
}

func urgencyScore(document *Document, request DecisionRequest) float64 {
	score := document.triggerWeight(request.Trigger) +
		request.Signal.Impact +
		request.Signal.TimeSensitivity +
		request.Signal.Confidence -
		request.Signal.DisruptionCost
	return clamp(score, 0, 10)
}

// bandedOutcome maps urgency onto an outcome. A user who explicitly asked
// for the work gets an acting outcome where a background request would
// notify, ask, or only log.
func bandedOutcome(bands UrgencyBands, urgency float64, userInitiated bool) Outcome {
	switch {
	case urgency >= bands.AskPermissionAt:
		if userInitiated {
			return OutcomeActThenReport
		}
		return OutcomeAskPermission
	case urgency >= bands.NotifyAt:
		if userInitiated {
			return OutcomeAct
		}
		return OutcomeNotify
	default:
		if userInitiated {
			return OutcomeActThenReport
		}
		return OutcomeLogOnly
	}
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// DescribeDecision renders a decision for audit logs.
func DescribeDecision(decision Decision) string {
	return fmt.Sprintf("outcome=%s urgency=%.1f reason=%s can_interrupt=%t",
		decision.Outcome, decision.Urgency, decision.Reason, decision.UI.CanInterrupt)
}
