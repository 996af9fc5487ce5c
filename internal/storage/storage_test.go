package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/IssueSync/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "data", "issuesync.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type boardOptions struct {
	FilterStatus []string `json:"filterStatus"`
	ShowTask     bool     `json:"showTask"`
}

func TestPreferences(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var opts boardOptions
	require.ErrorIs(t, s.LoadPreference(ctx, "board.options", &opts), ErrNotFound)

	require.NoError(t, s.SavePreference(ctx, "board.options", boardOptions{FilterStatus: []string{"draft"}, ShowTask: true}))
	require.NoError(t, s.LoadPreference(ctx, "board.options", &opts))
	assert.Equal(t, []string{"draft"}, opts.FilterStatus)
	assert.True(t, opts.ShowTask)

	require.NoError(t, s.SavePreference(ctx, "board.options", boardOptions{}))
	opts = boardOptions{}
	require.NoError(t, s.LoadPreference(ctx, "board.options", &opts))
	assert.Empty(t, opts.FilterStatus)
	assert.False(t, opts.ShowTask)

	var sort string
	require.NoError(t, s.SavePreference(ctx, "board.sort", "priority"))
	require.NoError(t, s.LoadPreference(ctx, "board.sort", &sort))
	assert.Equal(t, "priority", sort)

	require.NoError(t, s.DeletePreference(ctx, "board.sort"))
	require.ErrorIs(t, s.LoadPreference(ctx, "board.sort", &sort), ErrNotFound)
}

func TestIssueSnapshots(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, _, err := s.LoadIssues(ctx, "backlog")
	require.ErrorIs(t, err, ErrNotFound)

	issues := []models.Issue{
		{ID: "1", Title: "first", Status: models.IssueStatusTodo},
		{Title: "draft", Status: models.IssueStatusDraft},
		{ID: "2", Title: "second", Status: models.IssueStatusDone, Parents: "1"},
	}
	require.NoError(t, s.SaveIssues(ctx, "backlog", issues))

	got, savedAt, err := s.LoadIssues(ctx, "backlog")
	require.NoError(t, err)
	assert.False(t, savedAt.IsZero())
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "1", got[1].Parents)

	require.NoError(t, s.SaveIssues(ctx, "backlog", issues[:1]))
	require.NoError(t, s.SaveIssues(ctx, "board", issues))

	got, _, err = s.LoadIssues(ctx, "backlog")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	snaps, err := s.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "backlog", snaps[0].View)
	assert.Equal(t, 1, snaps[0].Count)
	assert.Equal(t, "board", snaps[1].View)
	assert.Equal(t, 2, snaps[1].Count)
}
