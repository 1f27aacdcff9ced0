package kerrors

import (
	"errors"
	"fmt"
)

// Kind labels a task-level failure so callers and operators can tell a broken
// decomposition apart from a broken provider without string matching.
type Kind string

const (
	// KindDecomposition - the model could not produce a parseable subtask breakdown.
	KindDecomposition Kind = "decomposition_error"
	// KindProvider - transient or permanent failure of the language model call.
	KindProvider Kind = "provider_error"
	// KindValidation - no verdict could be obtained even after the fallback heuristic.
	KindValidation Kind = "validation_error"
	// KindFakeDetected - the result carries a critical fake indicator.
	KindFakeDetected Kind = "fake_detected"
	// KindUpstreamDependency - a subtask was skipped because a dependency failed.
	KindUpstreamDependency Kind = "upstream_dependency_failed"
	// KindLLMUnavailable - no language model is configured; pre-flight failure.
	KindLLMUnavailable Kind = "llm_unavailable"
)

// TaskError attaches a Kind to an underlying error.
type TaskError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *TaskError) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError wraps err with a failure kind and message.
func NewTaskError(kind Kind, message string, err error) *TaskError {
	return &TaskError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind from err, or "" when untagged.
func KindOf(err error) Kind {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
