package gaterr

import "errors"

// Sentinels for failures that cross package boundaries as errors. Gate
// verdicts (blocked, rejected, over budget) travel as structured results
// instead, so a refusal stays distinguishable from a failure.
var (
	ErrPolicyInvalid = errors.New("policy invalid")
	ErrTaskExecution = errors.New("task execution failed")
	ErrToolNotFound  = errors.New("tool not found")
)
