package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(t *testing.T, root string) *Vault {
	t.Helper()
	v, err := New(Config{Root: root})
	require.NoError(t, err)
	return v
}

func TestSaveGetRoundTrip(t *testing.T) {
	v := newTestVault(t, t.TempDir())

	note := &Note{
		ID:     "tsk-abc",
		Folder: FolderTasks,
		Title:  "build a landing page",
		Fields: map[string]string{"status": "pending"},
		Tags:   []string{"web"},
		Body:   "# Landing page\n\nBuild the thing.",
	}
	id, err := v.Save(context.Background(), note)
	require.NoError(t, err)
	assert.Equal(t, "tsk-abc", id)

	got, err := v.Get(context.Background(), "tsk-abc")
	require.NoError(t, err)
	assert.Equal(t, note.Title, got.Title)
	assert.Equal(t, "pending", got.Field("status"))
	assert.Equal(t, []string{"web"}, got.Tags)
	assert.Contains(t, got.Body, "Build the thing.")
}

func TestSaveIsIdempotentPerID(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)

	note := &Note{ID: "tsk-abc", Folder: FolderTasks, Title: "v1", Body: "first"}
	_, err := v.Save(context.Background(), note)
	require.NoError(t, err)

	note.Title = "v2"
	note.Body = "second"
	_, err = v.Save(context.Background(), note)
	require.NoError(t, err)

	assert.Equal(t, 1, v.Count(), "saving the same id twice must leave one record")
	got, err := v.Get(context.Background(), "tsk-abc")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)

	entries, err := os.ReadDir(filepath.Join(root, FolderTasks))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveMovingFoldersLeavesNoStaleFile(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)

	note := &Note{ID: "n-1", Folder: FolderTasks, Body: "x"}
	_, err := v.Save(context.Background(), note)
	require.NoError(t, err)

	note.Folder = FolderResults
	_, err = v.Save(context.Background(), note)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(root, FolderTasks, "n-1.md"))
	assert.True(t, os.IsNotExist(statErr), "old file must be removed on folder move")
	_, statErr = os.Stat(filepath.Join(root, FolderResults, "n-1.md"))
	assert.NoError(t, statErr)
	assert.Equal(t, 1, v.Count())
}

func TestReopenReindexesExistingNotes(t *testing.T) {
	root := t.TempDir()
	v := newTestVault(t, root)
	_, err := v.Save(context.Background(), &Note{ID: "tsk-abc", Folder: FolderTasks, Title: "persisted", Body: "b"})
	require.NoError(t, err)

	reopened := newTestVault(t, root)
	got, err := reopened.Get(context.Background(), "tsk-abc")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)
	assert.Equal(t, 1, reopened.Count())
}

func TestSearchByFolderAndField(t *testing.T) {
	v := newTestVault(t, t.TempDir())
	ctx := context.Background()

	_, err := v.Save(ctx, &Note{ID: "t-1", Folder: FolderTasks, Fields: map[string]string{"status": "completed"}, Body: "a"})
	require.NoError(t, err)
	_, err = v.Save(ctx, &Note{ID: "t-2", Folder: FolderTasks, Fields: map[string]string{"status": "failed"}, Body: "b"})
	require.NoError(t, err)
	_, err = v.Save(ctx, &Note{ID: "r-1", Folder: FolderResults, Fields: map[string]string{"status": "completed"}, Body: "c"})
	require.NoError(t, err)

	tasks, err := v.Search(ctx, map[string]string{"folder": FolderTasks})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	completed, err := v.Search(ctx, map[string]string{"folder": FolderTasks, "status": "completed"})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "t-1", completed[0].ID)
}

func TestGetUnknownIDReturnsNotFound(t *testing.T) {
	v := newTestVault(t, t.TempDir())
	_, err := v.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
