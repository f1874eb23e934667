package boundary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/governor/internal/gaterr"
	"github.com/dwizi/governor/internal/idempotency"
	"github.com/dwizi/governor/internal/risk"
	"github.com/dwizi/governor/internal/store"
)

// Runner is the actual tool implementation, supplied by an external
// collaborator. The boundary never implements side effects itself.
type Runner interface {
	Name() string
	RiskLevel() risk.Level
	Execute(ctx context.Context, args map[string]any) (string, error)
}

const (
	ReasonUnknownTool        = "unknown_tool"
	ReasonValidationFailed   = "validation_failed"
	ReasonIdempotencyBlocked = "idempotency_blocked"
	ReasonExecutionError     = "execution_error"
	ReasonDryRun             = "dry_run"
)

type ExecuteInput struct {
	Tool              string         `json:"tool"`
	Args              map[string]any `json:"args"`
	RiskLevel         risk.Level     `json:"risk_level,omitempty"`
	DryRun            bool           `json:"dry_run,omitempty"`
	BypassIdempotency bool           `json:"bypass_idempotency,omitempty"`
	Source            string         `json:"source,omitempty"`
}

// ExecuteResult is always returned, never thrown: a blocked or rejected
// action stays distinguishable from a successful no-op.
type ExecuteResult struct {
	OK             bool          `json:"ok"`
	Output         string        `json:"output,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Error          string        `json:"error,omitempty"`
	Issues         []risk.Issue  `json:"issues,omitempty"`
	IdempotencyAge time.Duration `json:"idempotency_age,omitempty"`
	DryRun         bool          `json:"dry_run,omitempty"`
	WouldBlock     bool          `json:"would_block,omitempty"`
}

// Service is the single point every side-effecting action passes through:
// risk validation first, idempotency second, and only then the runner.
type Service struct {
	runners   map[string]Runner
	validator *risk.Validator
	cache     *idempotency.Cache
	audits    *store.Store
	logger    *slog.Logger
}

func NewService(validator *risk.Validator, cache *idempotency.Cache, audits *store.Store, logger *slog.Logger, runners ...Runner) *Service {
	indexed := map[string]Runner{}
	for _, runner := range runners {
		if runner == nil {
			continue
		}
		name := normalizeTool(runner.Name())
		if name == "" {
			continue
		}
		indexed[name] = runner
	}
	return &Service{
		runners:   indexed,
		validator: validator,
		cache:     cache,
		audits:    audits,
		logger:    logger,
	}
}

// Register adds a runner after construction. Later registrations replace
// earlier ones with the same name.
func (s *Service) Register(runner Runner) {
	if runner == nil {
		return
	}
	name := normalizeTool(runner.Name())
	if name == "" {
		return
	}
	s.runners[name] = runner
}

func (s *Service) Cache() *idempotency.Cache {
	return s.cache
}

func (s *Service) Execute(ctx context.Context, input ExecuteInput) ExecuteResult {
	toolName := normalizeTool(input.Tool)
	runner, ok := s.runners[toolName]
	if !ok {
		s.audit(ctx, input, store.AuditVerdictRejected, ReasonUnknownTool, "")
		return ExecuteResult{OK: false, Reason: ReasonUnknownTool, Error: gaterr.ErrToolNotFound.Error()}
	}

	level := input.RiskLevel
	if runner.RiskLevel() == risk.LevelHigh || (runner.RiskLevel() == risk.LevelMedium && level == risk.LevelLow) {
		level = runner.RiskLevel()
	}

	validation := s.validator.ValidateToolExecution(toolName, input.Args, level)
	if !validation.Allowed {
		s.audit(ctx, input, store.AuditVerdictRejected, firstIssueType(validation.Issues), "")
		return ExecuteResult{OK: false, Reason: ReasonValidationFailed, Issues: validation.Issues}
	}

	if input.DryRun {
		// A dry run neither blocks on nor records idempotency state; the
		// non-blocking probe is informational only.
		probe := s.cache.Check(toolName, input.Args)
		s.audit(ctx, input, store.AuditVerdictDryRun, "", "")
		return ExecuteResult{OK: true, Reason: ReasonDryRun, DryRun: true, WouldBlock: probe.Blocked}
	}

	acquired := false
	if !input.BypassIdempotency {
		admission := s.cache.Acquire(toolName, input.Args)
		if admission.Blocked {
			s.audit(ctx, input, store.AuditVerdictBlocked, ReasonIdempotencyBlocked, "")
			return ExecuteResult{
				OK:             false,
				Reason:         ReasonIdempotencyBlocked,
				Error:          fmt.Sprintf("equivalent %s request executed %s ago", toolName, admission.Age.Round(time.Second)),
				IdempotencyAge: admission.Age,
			}
		}
		acquired = true
	}

	output, err := s.invoke(ctx, runner, input.Args)
	if err != nil {
		if acquired {
			// The execution never took effect; a retry must not be blocked.
			s.cache.Release(toolName, input.Args)
		}
		s.audit(ctx, input, store.AuditVerdictFailed, ReasonExecutionError, err.Error())
		return ExecuteResult{OK: false, Reason: ReasonExecutionError, Error: err.Error()}
	}

	if input.BypassIdempotency {
		// Bypass skips the blocking check, not the recording.
		s.cache.Record(toolName, input.Args)
	}
	s.audit(ctx, input, store.AuditVerdictExecuted, "", "")
	return ExecuteResult{OK: true, Output: output}
}

func (s *Service) invoke(ctx context.Context, runner Runner, args map[string]any) (output string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("tool panicked: %v", recovered)
		}
	}()
	return runner.Execute(ctx, args)
}

func (s *Service) audit(ctx context.Context, input ExecuteInput, verdict, reason, detail string) {
	if s.audits == nil {
		return
	}
	if _, err := s.audits.CreateToolAudit(ctx, store.CreateToolAuditInput{
		Tool:      normalizeTool(input.Tool),
		Verdict:   verdict,
		Reason:    reason,
		Source:    input.Source,
		RiskLevel: string(input.RiskLevel),
		DryRun:    input.DryRun,
		Detail:    detail,
	}); err != nil {
		s.logger.Error("tool audit write failed", "tool", input.Tool, "verdict", verdict, "error", err)
	}
}

func firstIssueType(issues []risk.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	return issues[0].Type
}

func normalizeTool(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
