package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kittycore/internal/decompose"
	"kittycore/internal/detector"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/memory"
	"kittycore/internal/task"
	"kittycore/internal/team"
	"kittycore/internal/validator"
	"kittycore/internal/vault"
)

// scriptedClient answers the distinct prompt shapes of the pipeline: the
// expected-outcome analysis, worker execution, and the judge.
func scriptedClient(workOutput, judgeVerdict string) *llm.MockClient {
	return &llm.MockClient{Script: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "state what a finished result looks like"):
			return `{"result_type": "analysis", "success_criteria": ["covers the numbers"], "validation_methods": ["llm_judge"]}`, nil
		case strings.Contains(prompt, "Producer reported success"):
			return judgeVerdict, nil
		case strings.Contains(prompt, "Subtask:"):
			return workOutput, nil
		default:
			return "", assert.AnError
		}
	}}
}

func newTestOrchestrator(t *testing.T, client llm.Client, v *vault.Vault) *Orchestrator {
	t.Helper()

	var componentClient llm.Client = client
	if componentClient == nil {
		componentClient = &llm.MockClient{}
	}

	decomposer, err := decompose.New(decompose.Config{LLM: componentClient})
	require.NoError(t, err)
	executor, err := team.NewExecutor(team.ExecutorConfig{LLM: componentClient, Workspace: t.TempDir()})
	require.NoError(t, err)
	detCfg := detector.DefaultConfig()
	detCfg.LookupEnv = func(string) (string, bool) { return "", false }
	det, err := detector.New(detCfg)
	require.NoError(t, err)
	val, err := validator.New(validator.Config{LLM: componentClient})
	require.NoError(t, err)
	improver, err := team.NewImprover(team.ImproverConfig{Validator: val})
	require.NoError(t, err)
	mem, err := memory.NewIndex(memory.Config{}, memory.LocalEmbedding())
	require.NoError(t, err)

	orch, err := New(Dependencies{
		LLM:        client,
		Decomposer: decomposer,
		Executor:   executor,
		Improver:   improver,
		Detector:   det,
		Validator:  val,
		Vault:      v,
		Memory:     mem,
		Metrics:    MustNewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return orch
}

func TestSolveTaskHappyPath(t *testing.T) {
	client := scriptedClient(
		"The quarterly revenue grew twelve percent, driven mainly by subscription renewals and two enterprise deals.",
		`{"expected_result": "a revenue summary", "score": 0.9, "is_valid": true, "verdict": "solid summary", "issues": [], "recommendations": []}`,
	)
	v, err := vault.New(vault.Config{Root: t.TempDir()})
	require.NoError(t, err)
	orch := newTestOrchestrator(t, client, v)

	outcome, err := orch.SolveTask(context.Background(), "Summarize the quarterly revenue numbers")
	require.NoError(t, err)

	assert.Equal(t, "completed", outcome.Status)
	assert.InDelta(t, 0.9, outcome.QualityScore, 1e-9)
	assert.Empty(t, outcome.Issues)
	require.Len(t, outcome.Trace, 1)
	step := outcome.Trace[0]
	assert.Equal(t, task.StatusCompleted, step.Status)
	assert.InDelta(t, 1.0, step.HonestyScore, 1e-9)
	require.NotNil(t, step.Validation)
	assert.True(t, step.Validation.IsValid)

	// The run left a task note, a result note, and a summary note behind.
	taskNote, err := v.Get(context.Background(), outcome.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "completed", taskNote.Field("status"))
	summaryNote, err := v.Get(context.Background(), outcome.TaskID+"-summary")
	require.NoError(t, err)
	assert.Equal(t, vault.FolderSystem, summaryNote.Folder)
	assert.GreaterOrEqual(t, v.Count(), 4)
}

func TestSolveTaskWithoutModelFailsFast(t *testing.T) {
	v, err := vault.New(vault.Config{Root: t.TempDir()})
	require.NoError(t, err)
	orch := newTestOrchestrator(t, nil, v)

	outcome, err := orch.SolveTask(context.Background(), "Summarize the quarterly revenue numbers")
	require.NoError(t, err)

	assert.Equal(t, StatusLLMUnavailable, outcome.Status)
	assert.Equal(t, kerrors.KindLLMUnavailable, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.Issues)
	assert.Empty(t, outcome.Trace, "nothing may execute without a model")

	// The failure is diagnosed in the vault, not silently swallowed.
	note, err := v.Get(context.Background(), outcome.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "failed", note.Field("status"))
	assert.Contains(t, note.Field("failure"), "not configured")
}

func TestSolveTaskFakeResultFailsValidation(t *testing.T) {
	client := scriptedClient(
		"This is a demo placeholder output standing in for the real summary content.",
		`{"expected_result": "a revenue summary", "score": 0.9, "is_valid": true, "verdict": "looks fine", "issues": [], "recommendations": []}`,
	)
	v, err := vault.New(vault.Config{Root: t.TempDir()})
	require.NoError(t, err)
	orch := newTestOrchestrator(t, client, v)

	outcome, err := orch.SolveTask(context.Background(), "Summarize the quarterly revenue numbers")
	require.NoError(t, err)

	require.Len(t, outcome.Trace, 1)
	step := outcome.Trace[0]
	assert.NotEmpty(t, step.FakeIndicators)
	assert.Less(t, step.HonestyScore, 1.0)
	require.NotNil(t, step.Validation)
	assert.False(t, step.Validation.IsValid, "a detected fake overrides the approving judge")
	assert.LessOrEqual(t, step.Validation.Score, 0.2)
}

func TestSolveTaskCriticalFakeFailsTask(t *testing.T) {
	// The worker claims a sent email campaign, but the credential that a real
	// send would need is absent, and the judge approves anyway. The retry
	// produces the same claim, so the step must end failed, not completed.
	client := &llm.MockClient{Script: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "state what a finished result looks like"):
			return `{"result_type": "analysis", "success_criteria": ["customers are notified"], "validation_methods": ["llm_judge"]}`, nil
		case strings.Contains(prompt, "Producer reported success"):
			return `{"expected_result": "a sent campaign", "score": 0.9, "is_valid": true, "verdict": "looks fine", "issues": [], "recommendations": []}`, nil
		case strings.Contains(prompt, "Subtask:"):
			return "Notified every customer by email about the launch and archived the confirmation receipts.", nil
		default:
			return "", assert.AnError
		}
	}}
	v, err := vault.New(vault.Config{Root: t.TempDir()})
	require.NoError(t, err)
	orch := newTestOrchestrator(t, client, v)

	outcome, err := orch.SolveTask(context.Background(), "Send the launch email to customers")
	require.NoError(t, err)

	assert.Equal(t, string(task.StatusFailed), outcome.Status)
	assert.Equal(t, kerrors.KindFakeDetected, outcome.ErrorKind)
	require.Len(t, outcome.Trace, 1)
	step := outcome.Trace[0]
	assert.Equal(t, task.StatusFailed, step.Status)
	assert.Equal(t, kerrors.KindFakeDetected, step.FailureKind)
	assert.Contains(t, step.FailureReason, "SMTP_PASSWORD")
	assert.True(t, step.IterativelyImproved, "the step was routed through improvement before failing")
}

func TestImprovementRetriesUseConfiguredWorkspace(t *testing.T) {
	// The first attempt delivers nothing, so the retry is the one creating
	// files; its artifacts must land under the executor's workspace.
	var judgeCalls int
	client := &llm.MockClient{Script: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "state what a finished result looks like"):
			return `{"result_type": "application", "success_criteria": ["a script exists"], "validation_methods": ["llm_judge"]}`, nil
		case strings.Contains(prompt, "Producer reported success"):
			judgeCalls++
			if judgeCalls == 1 {
				return `{"expected_result": "a greeting script", "score": 0.4, "is_valid": false, "verdict": "nothing was delivered", "issues": ["no file was produced"], "recommendations": ["emit the script as a file"]}`, nil
			}
			return `{"expected_result": "a greeting script", "score": 0.85, "is_valid": true, "verdict": "script delivered", "issues": [], "recommendations": []}`, nil
		case strings.Contains(prompt, "previous attempt was rejected"):
			return "FILE: greet.py\n```python\ndef greet():\n    return \"hello\"\n```\nWrote the greeting script.", nil
		case strings.Contains(prompt, "Subtask:"):
			return "The greeting script will be delivered in the next pass once the approach is settled.", nil
		default:
			return "", assert.AnError
		}
	}}
	v, err := vault.New(vault.Config{Root: t.TempDir()})
	require.NoError(t, err)
	orch := newTestOrchestrator(t, client, v)

	outcome, err := orch.SolveTask(context.Background(), "Write a small python greeting script")
	require.NoError(t, err)

	assert.Equal(t, "completed", outcome.Status)
	require.Len(t, outcome.Trace, 1)
	step := outcome.Trace[0]
	assert.True(t, step.IterativelyImproved)
	require.NotEmpty(t, step.FilesCreated)

	workspace := orch.deps.Executor.Workspace()
	for _, f := range step.FilesCreated {
		assert.True(t, strings.HasPrefix(f, workspace+string(filepath.Separator)),
			"artifact %s must live under the workspace %s", f, workspace)
		assert.FileExists(t, f)
	}
	assert.NoDirExists(t, step.StepID,
		"retries must not write relative to the working directory")
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}
