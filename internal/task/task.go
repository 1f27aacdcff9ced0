package task

import (
	"fmt"
	"time"

	"kittycore/internal/id"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusDecomposed Status = "decomposed"
	StatusExecuting  Status = "executing"
	StatusValidating Status = "validating"
	StatusImproving  Status = "improving"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// statusRank orders the forward-only lifecycle. Terminal states sort last.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusAnalyzing:  1,
	StatusDecomposed: 2,
	StatusExecuting:  3,
	StatusValidating: 4,
	StatusImproving:  5,
	StatusCompleted:  6,
	StatusFailed:     6,
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Transitions are strictly forward except improving → executing
// (the retry loop); any non-terminal state may transition to failed.
func (s Status) CanTransition(next Status) bool {
	if next == StatusFailed {
		return !s.Terminal()
	}
	if s == StatusImproving && next == StatusExecuting {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Complexity estimates how much decomposition a task needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very_high"
)

// ExpectedOutcome describes what a finished task should look like. Produced
// once when the task is analyzed and never mutated afterwards.
type ExpectedOutcome struct {
	ResultType        string   `json:"result_type"`
	SuccessCriteria   []string `json:"success_criteria"`
	ValidationMethods []string `json:"validation_methods"`
}

// Task is a unit of user-requested work tracked end to end.
type Task struct {
	ID              string          `json:"id"`
	Description     string          `json:"description"`
	Status          Status          `json:"status"`
	Complexity      Complexity      `json:"complexity,omitempty"`
	ExpectedOutcome ExpectedOutcome `json:"expected_outcome"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// New creates a pending task for the given description.
func New(description string) *Task {
	now := time.Now()
	return &Task{
		ID:          id.NewTaskID(),
		Description: description,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Transition moves the task to the next status, refreshing UpdatedAt.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("illegal task transition %s → %s", t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// Subtask is a decomposed unit of a task, assigned to exactly one agent.
// Immutable except Status once created by the decomposer.
type Subtask struct {
	ID             string   `json:"id"`
	ParentTaskID   string   `json:"parent_task_id"`
	Description    string   `json:"description"`
	Dependencies   []string `json:"dependencies,omitempty"`
	RequiredSkills []string `json:"required_skills,omitempty"`
	Status         Status   `json:"status"`
}

// AgentStatus tracks a worker agent's lifetime within one execution phase.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// AgentRecord describes one worker agent. One agent is spun up per subtask.
type AgentRecord struct {
	ID                string      `json:"id"`
	Role              string      `json:"role"`
	AssignedSubtaskID string      `json:"assigned_subtask_id"`
	Tools             []string    `json:"tools,omitempty"`
	Status            AgentStatus `json:"status"`
}
