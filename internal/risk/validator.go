package risk

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel maps free-form risk labels onto the closed set. Unknown labels
// are treated as high so a typo can never relax the gate.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "":
		return LevelLow
	case "medium", "moderate":
		return LevelMedium
	default:
		return LevelHigh
	}
}

type Operation string

const (
	OperationRead   Operation = "read"
	OperationWrite  Operation = "write"
	OperationDelete Operation = "delete"
)

const (
	IssuePathSecurity         = "path_security"
	IssueConfirmationRequired = "confirmation_required"
	IssueDangerousCommand     = "dangerous_command"
)

type Issue struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PathResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path,omitempty"`
}

type ExecutionResult struct {
	Allowed bool    `json:"allowed"`
	Issues  []Issue `json:"issues"`
}

var blockedPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\.`),
	regexp.MustCompile(`^/etc(/|$)`),
	regexp.MustCompile(`^/sys(/|$)`),
	regexp.MustCompile(`^/proc(/|$)`),
	regexp.MustCompile(`^/dev(/|$)`),
	regexp.MustCompile(`^/boot(/|$)`),
	regexp.MustCompile(`^/root(/|$)`),
	regexp.MustCompile(`/\.ssh(/|$)`),
	regexp.MustCompile(`/\.gnupg(/|$)`),
}

var destructiveCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*-[a-z]*[rf][a-z]*\b`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\s+[^|]*of=/dev/`),
	regexp.MustCompile(`(?i)\bformat\s+[a-z]:`),
	regexp.MustCompile(`(?i)(curl|wget)[^|]*\|\s*(ba|z|da)?sh\b`),
	regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`),
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*777\s+/`),
	regexp.MustCompile(`(?i)\bdrop\s+(table|database)\b`),
}

// Argument keys scanned for destructive shell content.
var commandArgumentKeys = map[string]struct{}{
	"command": {},
	"cmd":     {},
	"script":  {},
	"shell":   {},
	"args":    {},
}

var defaultHighRiskTools = map[string]struct{}{
	"shell_exec":     {},
	"execute_script": {},
	"delete_path":    {},
	"send_email":     {},
	"post_message":   {},
	"system_config":  {},
}

// Validator holds the write whitelist and the fixed high-risk tool set. Its
// methods are pure: results are computed fresh per request and never cached.
type Validator struct {
	writeWhitelist []string
	highRiskTools  map[string]struct{}
}

func NewValidator(writeWhitelist []string) *Validator {
	cleaned := make([]string, 0, len(writeWhitelist))
	for _, dir := range writeWhitelist {
		trimmed := strings.TrimSpace(dir)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(trimmed))
	}
	return &Validator{
		writeWhitelist: cleaned,
		highRiskTools:  defaultHighRiskTools,
	}
}

// ValidatePath rejects traversal and system-directory targets for any
// operation, and additionally requires write and delete targets to resolve
// under a whitelisted directory.
func (v *Validator) ValidatePath(path string, operation Operation) PathResult {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return PathResult{Valid: false, Reason: "empty path"}
	}
	for _, pattern := range blockedPathPatterns {
		if pattern.MatchString(trimmed) {
			return PathResult{Valid: false, Reason: fmt.Sprintf("path matches blocked pattern %s", pattern.String())}
		}
	}
	resolved := filepath.Clean(trimmed)
	if !filepath.IsAbs(resolved) {
		absolute, err := filepath.Abs(resolved)
		if err != nil {
			return PathResult{Valid: false, Reason: "path cannot be resolved"}
		}
		resolved = absolute
	}
	// Cleaning can surface traversal that the raw string hid.
	for _, pattern := range blockedPathPatterns {
		if pattern.MatchString(resolved) {
			return PathResult{Valid: false, Reason: fmt.Sprintf("resolved path matches blocked pattern %s", pattern.String())}
		}
	}
	if operation == OperationWrite || operation == OperationDelete {
		if !v.withinWhitelist(resolved) {
			return PathResult{Valid: false, Reason: "path is outside the writable whitelist"}
		}
	}
	return PathResult{Valid: true, Path: resolved}
}

// ValidateToolExecution gates one proposed tool call. Allowed is true only
// when no issue was found; issues are returned for the caller to either
// auto-reject or re-submit with explicit confirmation.
func (v *Validator) ValidateToolExecution(toolName string, args map[string]any, riskLevel Level) ExecutionResult {
	issues := []Issue{}

	if v.isHighRisk(toolName, riskLevel) && !hasConfirmation(args) {
		issues = append(issues, Issue{
			Type:    IssueConfirmationRequired,
			Message: fmt.Sprintf("tool %s is high risk and requires an explicit confirmed flag", strings.TrimSpace(toolName)),
		})
	}

	for _, command := range commandStrings(args) {
		for _, pattern := range destructiveCommandPatterns {
			if pattern.MatchString(command) {
				issues = append(issues, Issue{
					Type:    IssueDangerousCommand,
					Message: fmt.Sprintf("command matches destructive pattern %s", pattern.String()),
				})
				break
			}
		}
	}

	if target := pathArgument(args); target != "" {
		operation := OperationRead
		if requiresWrite(toolName) {
			operation = OperationWrite
		}
		if result := v.ValidatePath(target, operation); !result.Valid {
			issues = append(issues, Issue{Type: IssuePathSecurity, Message: result.Reason})
		}
	}

	return ExecutionResult{Allowed: len(issues) == 0, Issues: issues}
}

func (v *Validator) isHighRisk(toolName string, riskLevel Level) bool {
	if riskLevel == LevelHigh {
		return true
	}
	_, ok := v.highRiskTools[strings.ToLower(strings.TrimSpace(toolName))]
	return ok
}

func (v *Validator) withinWhitelist(resolved string) bool {
	for _, dir := range v.writeWhitelist {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func hasConfirmation(args map[string]any) bool {
	for _, key := range []string{"confirmed", "confirm"} {
		if value, ok := args[key]; ok {
			if flag, ok := value.(bool); ok && flag {
				return true
			}
			if text, ok := value.(string); ok {
				switch strings.ToLower(strings.TrimSpace(text)) {
				case "true", "yes":
					return true
				}
			}
		}
	}
	return false
}

func commandStrings(args map[string]any) []string {
	commands := []string{}
	for key, value := range args {
		if _, ok := commandArgumentKeys[strings.ToLower(key)]; !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			commands = append(commands, typed)
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				if text, ok := item.(string); ok {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				commands = append(commands, strings.Join(parts, " "))
			}
		}
	}
	return commands
}

func pathArgument(args map[string]any) string {
	for _, key := range []string{"path", "file", "target_path", "dest", "destination"} {
		if value, ok := args[key]; ok {
			if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return ""
}

func requiresWrite(toolName string) bool {
	name := strings.ToLower(strings.TrimSpace(toolName))
	for _, verb := range []string{"write", "delete", "remove", "move", "save", "append"} {
		if strings.Contains(name, verb) {
			return true
		}
	}
	return false
}
