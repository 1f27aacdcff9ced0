package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(Config{}, LocalEmbedding())
	require.NoError(t, err)
	return idx
}

func TestRememberAndRecall(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Remember(ctx, "task about building a landing page finished completed",
		map[string]string{"task_id": "t-1"}, []string{"run-summary"})
	require.NoError(t, err)
	_, err = idx.Remember(ctx, "task about sending the weekly newsletter failed",
		map[string]string{"task_id": "t-2"}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Count())

	matches, err := idx.Recall(ctx, "building a landing page", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	assert.Contains(t, matches[0].Content, "landing page")
	assert.Equal(t, "t-1", matches[0].Context["task_id"])
	assert.Equal(t, []string{"run-summary"}, matches[0].Tags)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score,
			"matches must be ranked by relevance descending")
	}
}

func TestRecallLimitClampedToStoredCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Remember(ctx, "only one memory exists in this index", nil, nil)
	require.NoError(t, err)

	matches, err := idx.Recall(ctx, "memory", 10)
	require.NoError(t, err, "asking for more results than stored must not error")
	assert.Len(t, matches, 1)
}

func TestRecallEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	matches, err := idx.Recall(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRememberRejectsEmptyText(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Remember(context.Background(), "   ", nil, nil)
	assert.Error(t, err)
}
