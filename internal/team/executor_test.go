package team

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/task"
)

func newTestExecutor(t *testing.T, client llm.Client) *Executor {
	t.Helper()
	e, err := NewExecutor(ExecutorConfig{
		LLM:            client,
		Workspace:      t.TempDir(),
		MaxConcurrency: 2,
	})
	require.NoError(t, err)
	return e
}

func TestExecuteRunsDependenciesFirst(t *testing.T) {
	mock := &llm.MockClient{Script: func(prompt string) (string, error) {
		return "finished the assigned piece of work with a full writeup", nil
	}}
	e := newTestExecutor(t, mock)

	subtasks := []task.Subtask{
		{ID: "t-sub-01", Description: "research the subject first"},
		{ID: "t-sub-02", Description: "draft the second stage", Dependencies: []string{"t-sub-01"}},
		{ID: "t-sub-03", Description: "polish the third stage", Dependencies: []string{"t-sub-02"}},
	}

	steps, agents, err := e.Execute(context.Background(), subtasks)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Len(t, agents, 3)

	for _, step := range steps {
		assert.Equal(t, task.StatusCompleted, step.Status)
	}

	// A chain of dependencies forces strictly sequential waves.
	require.Len(t, mock.Prompts, 3)
	assert.Contains(t, mock.Prompts[0], "research the subject first")
	assert.Contains(t, mock.Prompts[1], "draft the second stage")
	assert.Contains(t, mock.Prompts[2], "polish the third stage")

	// Downstream prompts carry the upstream output.
	assert.Contains(t, mock.Prompts[1], "finished the assigned piece of work")
}

func TestExecutePartialFailureSkipsDependentsOnly(t *testing.T) {
	mock := &llm.MockClient{Script: func(prompt string) (string, error) {
		if strings.Contains(prompt, "broken step") {
			return "", assert.AnError
		}
		return "finished the assigned piece of work with a full writeup", nil
	}}
	e := newTestExecutor(t, mock)

	subtasks := []task.Subtask{
		{ID: "t-sub-01", Description: "stable first step"},
		{ID: "t-sub-02", Description: "broken step that always fails"},
		{ID: "t-sub-03", Description: "depends on the broken step", Dependencies: []string{"t-sub-02"}},
		{ID: "t-sub-04", Description: "independent side quest"},
	}

	steps, agents, err := e.Execute(context.Background(), subtasks)
	require.NoError(t, err)
	require.Len(t, steps, 4)

	assert.Equal(t, task.StatusCompleted, steps[0].Status)
	assert.Equal(t, task.StatusFailed, steps[1].Status)
	assert.Equal(t, task.StatusCompleted, steps[3].Status,
		"a failure must not take down independent subtasks")

	// The dependent was never executed, just marked failed with the cause.
	assert.Equal(t, task.StatusFailed, steps[2].Status)
	assert.Equal(t, kerrors.KindProvider, steps[1].FailureKind)
	assert.Equal(t, kerrors.KindUpstreamDependency, steps[2].FailureKind)
	assert.Contains(t, steps[2].FailureReason, "upstream_dependency_failed")
	assert.Contains(t, steps[2].FailureReason, "t-sub-02")
	assert.Len(t, agents, 3, "no agent is spun up for a skipped subtask")
}

func TestExecuteUnresolvableGraphFailsAllPending(t *testing.T) {
	mock := &llm.MockClient{Script: func(prompt string) (string, error) {
		return "finished the assigned piece of work with a full writeup", nil
	}}
	e := newTestExecutor(t, mock)

	subtasks := []task.Subtask{
		{ID: "t-sub-01", Description: "a", Dependencies: []string{"t-sub-02"}},
		{ID: "t-sub-02", Description: "b", Dependencies: []string{"t-sub-01"}},
	}

	steps, _, err := e.Execute(context.Background(), subtasks)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	for _, step := range steps {
		assert.Equal(t, task.StatusFailed, step.Status)
		assert.Equal(t, kerrors.KindUpstreamDependency, step.FailureKind)
		assert.Contains(t, step.FailureReason, "unresolvable")
	}
}

func TestExecuteEmptyInput(t *testing.T) {
	e := newTestExecutor(t, &llm.MockClient{})
	steps, agents, err := e.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.Empty(t, agents)
}
