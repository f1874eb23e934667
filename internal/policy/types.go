package policy

import (
	"strings"

	"github.com/dwizi/governor/internal/risk"
)

// Domain is the closed set of activity areas the engine can gate. Unknown
// inputs parse to DomainUnknown, which always resolves conservatively.
type Domain string

const (
	DomainWebResearch  Domain = "web_research"
	DomainConversation Domain = "conversation"
	DomainSocial       Domain = "social"
	DomainMemory       Domain = "memory"
	DomainSystem       Domain = "system"
	DomainUnknown      Domain = "unknown"
)

func ParseDomain(raw string) Domain {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(DomainWebResearch):
		return DomainWebResearch
	case string(DomainConversation):
		return DomainConversation
	case string(DomainSocial):
		return DomainSocial
	case string(DomainMemory):
		return DomainMemory
	case string(DomainSystem):
		return DomainSystem
	default:
		return DomainUnknown
	}
}

// Trigger is what prompted the proposed action.
type Trigger string

const (
	TriggerUserRequest  Trigger = "user_request"
	TriggerSchedule     Trigger = "schedule"
	TriggerKnowledgeGap Trigger = "knowledge_gap"
	TriggerEvent        Trigger = "event"
	TriggerUnknown      Trigger = "unknown"
)

func ParseTrigger(raw string) Trigger {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(TriggerUserRequest):
		return TriggerUserRequest
	case string(TriggerSchedule):
		return TriggerSchedule
	case string(TriggerKnowledgeGap):
		return TriggerKnowledgeGap
	case string(TriggerEvent):
		return TriggerEvent
	default:
		return TriggerUnknown
	}
}

// Outcome is the gating decision for a proposed autonomous action.
type Outcome string

const (
	OutcomeAct           Outcome = "act"
	OutcomeActThenReport Outcome = "act_then_report"
	OutcomeNotify        Outcome = "notify"
	OutcomeAskPermission Outcome = "ask_permission"
	OutcomeLogOnly       Outcome = "log_only"
	OutcomeDoNothing     Outcome = "do_nothing"
)

// Proceeds reports whether the outcome authorizes autonomous execution.
func (o Outcome) Proceeds() bool {
	return o == OutcomeAct || o == OutcomeActThenReport
}

// Signal carries the strengths backing a proposed action. RelevanceScore is
// a pointer because absence and zero mean different things to the relevance
// gate.
type Signal struct {
	RelevanceScore  *float64 `json:"relevance_score,omitempty"`
	Impact          float64  `json:"impact"`
	TimeSensitivity float64  `json:"time_sensitivity"`
	Confidence      float64  `json:"confidence"`
	DisruptionCost  float64  `json:"disruption_cost"`
}

type Risk struct {
	ToolRisk risk.Level `json:"tool_risk"`
	Category string     `json:"category,omitempty"`
}

// DecisionRequest is transient and never persisted, but stays serializable
// for audit logging. ScopeMinutes and PlannedFindings, when set, make the
// decision budget-aware.
type DecisionRequest struct {
	Domain          Domain  `json:"domain"`
	Trigger         Trigger `json:"trigger"`
	Signal          Signal  `json:"signal"`
	Risk            Risk    `json:"risk"`
	RequiresWrite   bool    `json:"requires_write"`
	IsUserInitiated bool    `json:"is_user_initiated"`
	ScopeMinutes    float64 `json:"scope_minutes,omitempty"`
	PlannedFindings float64 `json:"planned_findings,omitempty"`
}

type UIHints struct {
	CanInterrupt bool `json:"can_interrupt"`
}

const (
	ReasonNoPolicy       = "no_policy"
	ReasonUnknownRequest = "unknown_request"
	ReasonDomainDisabled = "domain_disabled"
	ReasonHighRisk       = "high_risk"
	ReasonLowRelevance   = "low_relevance"
	ReasonUrgencyBand    = "urgency_band"
	ReasonBudget         = "budget"
)

// Decision is derived purely from the loaded policy and the request.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Urgency float64 `json:"urgency"`
	UI      UIHints `json:"ui"`
	Reason  string  `json:"reason"`
}
