package curiosity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dwizi/governor/internal/budget"
	"github.com/dwizi/governor/internal/gaterr"
	"github.com/dwizi/governor/internal/policy"
)

const defaultDedupWindow = 50

// Finding is what a task brings back. RelevanceScore is a pointer so the
// hygiene pipeline can tell "not scored" from "scored zero".
type Finding struct {
	Text           string   `json:"text"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
	Citation       string   `json:"citation,omitempty"`
	URL            string   `json:"url,omitempty"`
}

type TaskInput struct {
	ScopeMinutes    float64       `json:"scope_minutes"`
	PlannedFindings int           `json:"planned_findings"`
	Query           string        `json:"query"`
	Signal          policy.Signal `json:"signal"`
}

type TaskResult struct {
	Findings []Finding `json:"findings"`
}

// Task is the caller-supplied investigation. The supervisor gates, budgets,
// and filters around it; it never implements the investigation itself.
type Task interface {
	Execute(ctx context.Context, input TaskInput) (TaskResult, error)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context, input TaskInput) (TaskResult, error)

func (f TaskFunc) Execute(ctx context.Context, input TaskInput) (TaskResult, error) {
	return f(ctx, input)
}

// MemoryItem is the write contract toward the memory collaborator.
type MemoryItem struct {
	Text           string
	Source         string
	Tags           []string
	Citation       string
	URL            string
	RelevanceScore float64
}

// MemoryWriter is the opaque append-mostly store findings are promoted to.
// Recent feeds the dedup window.
type MemoryWriter interface {
	Store(ctx context.Context, item MemoryItem) (string, error)
	Recent(ctx context.Context, limit int) ([]string, error)
}

const (
	RejectInvalid      = "invalid"
	RejectLowRelevance = "low_relevance"
	RejectNoCitation   = "no_citation"
	RejectTooLong      = "too_long"
	RejectDedupe       = "dedupe"

	ReasonPolicyOutcome  = "policy_outcome"
	ReasonBudgetExceeded = "budget_exceeded"
	ReasonNoTask         = "no_task"
)

type StoredFinding struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type FilteredFinding struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

type RunInput struct {
	Trigger         policy.Trigger `json:"trigger"`
	Domain          policy.Domain  `json:"domain"`
	ScopeMinutes    float64        `json:"scope_minutes"`
	PlannedFindings int            `json:"planned_findings"`
	Signal          policy.Signal  `json:"signal"`
	IsUserInitiated bool           `json:"is_user_initiated"`
	Query           string         `json:"query"`
	Task            Task           `json:"-"`
}

type RunResult struct {
	Ran           bool              `json:"ran"`
	Outcome       policy.Outcome    `json:"outcome"`
	Reason        string            `json:"reason,omitempty"`
	StoredCount   int               `json:"stored_count"`
	FilteredCount int               `json:"filtered_count"`
	Stored        []StoredFinding   `json:"stored"`
	Filtered      []FilteredFinding `json:"filtered"`
}

// Supervisor orchestrates one investigate-and-possibly-remember cycle. It
// never interrupts a user: interrupting outcomes are unreachable for
// never-interrupt domains at the policy layer, not re-checked here.
type Supervisor struct {
	engine      *policy.Engine
	tracker     *budget.Tracker
	memory      MemoryWriter
	logger      *slog.Logger
	dedupWindow int
}

func NewSupervisor(engine *policy.Engine, tracker *budget.Tracker, memory MemoryWriter, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		engine:      engine,
		tracker:     tracker,
		memory:      memory,
		logger:      logger,
		dedupWindow: defaultDedupWindow,
	}
}

// SetDedupWindow overrides how many recent memory items the dedup filter
// compares against. Values below 1 are ignored.
func (s *Supervisor) SetDedupWindow(n int) {
	if n < 1 {
		return
	}
	s.dedupWindow = n
}

func (s *Supervisor) Run(ctx context.Context, input RunInput) RunResult {
	if input.Task == nil {
		return RunResult{Outcome: policy.OutcomeLogOnly, Reason: ReasonNoTask, Stored: []StoredFinding{}, Filtered: []FilteredFinding{}}
	}

	decision := s.engine.Decide(policy.DecisionRequest{
		Domain:          input.Domain,
		Trigger:         input.Trigger,
		Signal:          input.Signal,
		IsUserInitiated: input.IsUserInitiated,
		ScopeMinutes:    input.ScopeMinutes,
		PlannedFindings: float64(input.PlannedFindings),
	})
	if !decision.Outcome.Proceeds() {
		// Budget is probed here purely for an accurate diagnostic; policy
		// may have declined on its own grounds as well.
		reason := ReasonPolicyOutcome
		if decision.Reason == policy.ReasonBudget || !s.budgetFits(input) {
			reason = ReasonBudgetExceeded
		}
		s.logger.Info("curiosity cycle declined",
			"domain", input.Domain,
			"trigger", input.Trigger,
			"decision", policy.DescribeDecision(decision),
		)
		return RunResult{Outcome: decision.Outcome, Reason: reason, Stored: []StoredFinding{}, Filtered: []FilteredFinding{}}
	}

	// Reserve before executing: a slow or failing task must not let a
	// concurrent duplicate be admitted against the same window.
	if !s.tracker.Reserve(map[string]float64{
		policy.ResourceCuriosityMinutes:  input.ScopeMinutes,
		policy.ResourceCuriosityFindings: float64(input.PlannedFindings),
	}) {
		return RunResult{Outcome: decision.Outcome, Reason: ReasonBudgetExceeded, Stored: []StoredFinding{}, Filtered: []FilteredFinding{}}
	}

	taskResult, err := s.runTask(ctx, input)
	if err != nil {
		s.logger.Error("curiosity task failed", "domain", input.Domain, "trigger", input.Trigger, "error", err)
		return RunResult{
			Outcome:  decision.Outcome,
			Reason:   "task_error:" + err.Error(),
			Stored:   []StoredFinding{},
			Filtered: []FilteredFinding{},
		}
	}

	result := s.filterAndStore(ctx, input, decision.Outcome, taskResult.Findings)
	s.logger.Info("curiosity cycle finished",
		"domain", input.Domain,
		"trigger", input.Trigger,
		"outcome", decision.Outcome,
		"stored", result.StoredCount,
		"filtered", result.FilteredCount,
	)
	return result
}

func (s *Supervisor) budgetFits(input RunInput) bool {
	if s.tracker == nil {
		return true
	}
	return s.tracker.CanSpend(policy.ResourceCuriosityMinutes, input.ScopeMinutes) &&
		s.tracker.CanSpend(policy.ResourceCuriosityFindings, float64(input.PlannedFindings))
}

// runTask executes the caller-supplied task under a hard wall-clock bound
// derived from the scope and captures panics into the error result. Budget
// stays spent whether or not the task finishes.
func (s *Supervisor) runTask(ctx context.Context, input RunInput) (result TaskResult, err error) {
	taskCtx := ctx
	if input.ScopeMinutes > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, time.Duration(input.ScopeMinutes*float64(time.Minute)))
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: panic: %v", gaterr.ErrTaskExecution, recovered)
		}
	}()
	result, err = input.Task.Execute(taskCtx, TaskInput{
		ScopeMinutes:    input.ScopeMinutes,
		PlannedFindings: input.PlannedFindings,
		Query:           input.Query,
		Signal:          input.Signal,
	})
	if err != nil {
		return TaskResult{}, fmt.Errorf("%w: %v", gaterr.ErrTaskExecution, err)
	}
	return result, nil
}

// filterAndStore applies the hygiene pipeline per finding, short-circuiting
// on the first failing filter so each rejection carries exactly one reason.
func (s *Supervisor) filterAndStore(ctx context.Context, input RunInput, outcome policy.Outcome, findings []Finding) RunResult {
	document := s.engine.Current()
	result := RunResult{
		Ran:      true,
		Outcome:  outcome,
		Stored:   []StoredFinding{},
		Filtered: []FilteredFinding{},
	}

	recentTexts := s.recentWindow(ctx)
	queryWords := wordSet(input.Query)
	minRelevance := document.MinRelevanceFor(input.Domain)

	for _, finding := range findings {
		text := strings.TrimSpace(finding.Text)
		citation := strings.TrimSpace(finding.Citation)
		if citation == "" {
			citation = strings.TrimSpace(finding.URL)
		}
		if text == "" {
			result.Filtered = append(result.Filtered, FilteredFinding{Reason: RejectInvalid})
			continue
		}

		relevance := lexicalOverlap(queryWords, wordSet(text))
		if finding.RelevanceScore != nil {
			relevance = *finding.RelevanceScore
		}
		if relevance < minRelevance {
			result.Filtered = append(result.Filtered, FilteredFinding{Text: text, Reason: RejectLowRelevance})
			continue
		}

		if document.Thresholds.CuriosityRequiresCitation && citation == "" {
			result.Filtered = append(result.Filtered, FilteredFinding{Text: text, Reason: RejectNoCitation})
			continue
		}

		if utf8.RuneCountInString(text) > document.Thresholds.MemoryMaxCharsPerItem {
			result.Filtered = append(result.Filtered, FilteredFinding{Text: text, Reason: RejectTooLong})
			continue
		}

		if isDuplicate(text, recentTexts, document.Thresholds.MemoryDedupeSimilarity) {
			result.Filtered = append(result.Filtered, FilteredFinding{Text: text, Reason: RejectDedupe})
			continue
		}

		id, err := s.memory.Store(ctx, MemoryItem{
			Text:           text,
			Source:         "curiosity:" + string(input.Trigger),
			Tags:           []string{string(input.Domain)},
			Citation:       citation,
			URL:            strings.TrimSpace(finding.URL),
			RelevanceScore: relevance,
		})
		if err != nil {
			// One failed write must not abort the rest of the batch.
			result.Filtered = append(result.Filtered, FilteredFinding{Text: text, Reason: "store_error:" + err.Error()})
			continue
		}
		result.Stored = append(result.Stored, StoredFinding{ID: id, Text: text})
		recentTexts = append(recentTexts, text)
	}

	result.StoredCount = len(result.Stored)
	result.FilteredCount = len(result.Filtered)
	return result
}

func (s *Supervisor) recentWindow(ctx context.Context) []string {
	if s.memory == nil {
		return nil
	}
	texts, err := s.memory.Recent(ctx, s.dedupWindow)
	if err != nil {
		s.logger.Error("recent memory window unavailable, dedup degraded", "error", err)
		return nil
	}
	return texts
}

func isDuplicate(text string, recent []string, threshold float64) bool {
	words := wordSet(text)
	for _, existing := range recent {
		if overlapRatio(words, wordSet(existing)) >= threshold {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(field, ".,;:!?\"'()[]")
		if word != "" {
			words[word] = struct{}{}
		}
	}
	return words
}

// overlapRatio is the shared-word fraction measured against the smaller
// set, so a short finding fully contained in a longer stored item counts
// as a full overlap.
func overlapRatio(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	smaller, larger := left, right
	if len(right) < len(left) {
		smaller, larger = right, left
	}
	shared := 0
	for word := range smaller {
		if _, ok := larger[word]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(smaller))
}

// lexicalOverlap scores a finding against the query when the task did not
// provide a relevance score: the fraction of query words the finding covers.
func lexicalOverlap(queryWords, findingWords map[string]struct{}) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	shared := 0
	for word := range queryWords {
		if _, ok := findingWords[word]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(queryWords))
}
