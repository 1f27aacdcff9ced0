package decompose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/task"
)

func newDecomposer(t *testing.T, client llm.Client) *Decomposer {
	t.Helper()
	d, err := New(Config{LLM: client})
	require.NoError(t, err)
	return d
}

func TestEstimateComplexity(t *testing.T) {
	assert.Equal(t, task.ComplexitySimple, EstimateComplexity("Write a haiku about autumn"))
	assert.Equal(t, task.ComplexityMedium, EstimateComplexity("Create a landing page and write copy for it"))
	assert.NotEqual(t, task.ComplexitySimple, EstimateComplexity(
		"Build a complete e-commerce platform with a product database, payment integration and a deploy pipeline"))
}

func TestStricterNeverLowersTheGrade(t *testing.T) {
	assert.Equal(t, task.ComplexityHigh, Stricter(task.ComplexitySimple, task.ComplexityHigh))
	assert.Equal(t, task.ComplexityHigh, Stricter(task.ComplexityHigh, task.ComplexityMedium))
	assert.Equal(t, task.ComplexityMedium, Stricter(task.ComplexityMedium, task.ComplexityMedium))
}

func TestParseComplexity(t *testing.T) {
	got, ok := ParseComplexity(" Very_High ")
	assert.True(t, ok)
	assert.Equal(t, task.ComplexityVeryHigh, got)

	_, ok = ParseComplexity("galactic")
	assert.False(t, ok)
}

func TestSimpleTaskSkipsTheModel(t *testing.T) {
	mock := &llm.MockClient{}
	d := newDecomposer(t, mock)

	parent := task.New("Write a haiku about autumn")
	subtasks, err := d.Decompose(context.Background(), parent, task.ComplexitySimple)
	require.NoError(t, err)

	require.Len(t, subtasks, 1)
	assert.Equal(t, parent.ID+"-sub-01", subtasks[0].ID)
	assert.Equal(t, parent.Description, subtasks[0].Description)
	assert.Empty(t, subtasks[0].Dependencies)
	assert.Zero(t, mock.Calls(), "simple tasks must not cost a model call")
}

func TestDecomposeParsesExplicitDependencies(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{`Here is the breakdown:
[
  {"description": "set up the project scaffolding", "depends_on": [], "required_skills": ["web"]},
  {"description": "build the landing page", "depends_on": [1]},
  {"description": "write the page copy", "depends_on": [1]}
]`}}
	d := newDecomposer(t, mock)

	parent := task.New("Create a landing page and write copy for it")
	subtasks, err := d.Decompose(context.Background(), parent, task.ComplexityMedium)
	require.NoError(t, err)

	require.Len(t, subtasks, 3)
	assert.Empty(t, subtasks[0].Dependencies)
	assert.Equal(t, []string{parent.ID + "-sub-01"}, subtasks[1].Dependencies)
	assert.Equal(t, []string{parent.ID + "-sub-01"}, subtasks[2].Dependencies)
	assert.Equal(t, []string{"web"}, subtasks[0].RequiredSkills)
	for _, st := range subtasks {
		assert.Equal(t, parent.ID, st.ParentTaskID)
		assert.Equal(t, task.StatusPending, st.Status)
	}
}

func TestDecomposeMarkdownFallbackChainsLinearly(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{`I would split it like this:
1. Research the topic
2. Draft the article
3. Edit and publish
`}}
	d := newDecomposer(t, mock)

	parent := task.New("Write and publish an article about container networking internals")
	subtasks, err := d.Decompose(context.Background(), parent, task.ComplexityMedium)
	require.NoError(t, err)

	require.Len(t, subtasks, 3)
	assert.Empty(t, subtasks[0].Dependencies)
	assert.Equal(t, []string{subtasks[0].ID}, subtasks[1].Dependencies)
	assert.Equal(t, []string{subtasks[1].ID}, subtasks[2].Dependencies)
	assert.Equal(t, "Research the topic", subtasks[0].Description)
}

func TestDecomposeUnparsableResponseFails(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{"I cannot split this task for you."}}
	d := newDecomposer(t, mock)

	parent := task.New("Create a landing page and write copy for it")
	_, err := d.Decompose(context.Background(), parent, task.ComplexityMedium)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDecomposition))
}

func TestDecomposeModelFailureFails(t *testing.T) {
	mock := &llm.MockClient{Err: assert.AnError}
	d := newDecomposer(t, mock)

	parent := task.New("Create a landing page and write copy for it")
	_, err := d.Decompose(context.Background(), parent, task.ComplexityMedium)
	require.Error(t, err)
	assert.True(t, kerrors.IsKind(err, kerrors.KindDecomposition))
}
