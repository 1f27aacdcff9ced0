package validator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/task"
)

const approvingVerdict = `{
	"expected_result": "a working deliverable",
	"score": 0.9,
	"is_valid": true,
	"verdict": "looks complete",
	"issues": [],
	"recommendations": []
}`

func newValidator(t *testing.T, client llm.Client) *Validator {
	t.Helper()
	v, err := New(Config{LLM: client})
	require.NoError(t, err)
	return v
}

func TestAuthenticityOverridesApprovingJudge(t *testing.T) {
	// The judge approves, but the "Python file" is HTML. The deterministic
	// checks must reject it no matter what the judge said.
	path := filepath.Join(t.TempDir(), "app.py")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>hello</body></html>"), 0o644))

	v := newValidator(t, &llm.MockClient{Responses: []string{approvingVerdict}})
	verdict, err := v.ValidateWithProfile(context.Background(), ApplicationProfile(),
		"write a python app", task.Result{Success: true, Data: "The app is written and saved."}, []string{path})
	require.NoError(t, err)

	assert.False(t, verdict.IsValid)
	assert.Less(t, verdict.Score, 0.5)
	require.NotEmpty(t, verdict.Issues)
	joined := ""
	for _, issue := range verdict.Issues {
		joined += issue + "\n"
	}
	assert.Contains(t, joined, "Python")
}

func TestPlanWithoutArtifactsIsRejected(t *testing.T) {
	v := newValidator(t, &llm.MockClient{Responses: []string{approvingVerdict}})

	verdict, err := v.ValidateWithProfile(context.Background(), GenericProfile(),
		"build a todo application",
		task.Result{Success: true, Data: "Plan for creating the application: it will be implemented in three phases."},
		nil)
	require.NoError(t, err)

	assert.False(t, verdict.IsValid)
	assert.LessOrEqual(t, verdict.Score, 0.3)
	assert.GreaterOrEqual(t, len(verdict.Issues), 2,
		"missing deliverable and report phrasing should both be reported")
}

func TestUnparsableJudgeFallsBackToKeywords(t *testing.T) {
	v := newValidator(t, &llm.MockClient{Responses: []string{
		"Everything checks out, the summary works and is complete.",
	}})

	verdict, err := v.ValidateWithProfile(context.Background(), AnalysisProfile(),
		"summarize the meeting notes",
		task.Result{Success: true, Data: "The meeting covered hiring, the roadmap and the release date."},
		nil)
	require.NoError(t, err)

	assert.True(t, verdict.IsValid)
	assert.InDelta(t, 0.8, verdict.Score, 1e-9)
	assert.Contains(t, verdict.Verdict, "(auto-analysis)")
}

func TestJudgeFailureIsFatal(t *testing.T) {
	v := newValidator(t, &llm.MockClient{Err: assert.AnError})

	_, err := v.ValidateWithProfile(context.Background(), GenericProfile(),
		"any task", task.Result{Success: true, Data: "done"}, nil)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindValidation))
}

func TestUnreadableFileGetsPlaceholder(t *testing.T) {
	v := newValidator(t, &llm.MockClient{})
	snippets := v.readFiles([]string{filepath.Join(t.TempDir(), "gone.txt")})
	require.Len(t, snippets, 1)
	assert.False(t, snippets[0].Readable)
	assert.Contains(t, snippets[0].Content, "could not read file")
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, "application", ProfileFor("code").Name)
	assert.Equal(t, "content", ProfileFor("Site").Name)
	assert.False(t, ProfileFor("analysis").RequireDeliverable)
	assert.Equal(t, "generic", ProfileFor("").Name)
}

func TestExtractJSONObjectHandlesNoise(t *testing.T) {
	got := extractJSONObject("Sure, here is the verdict:\n```json\n{\"score\": 0.4, \"note\": \"has } in string\"}\n```")
	assert.Equal(t, `{"score": 0.4, "note": "has } in string"}`, got)
}
