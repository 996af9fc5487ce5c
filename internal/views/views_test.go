package views

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

type echoRemote struct{}

func (echoRemote) UpsertIssue(_ context.Context, issue models.Issue) (models.Issue, error) {
	return issue, nil
}

func (echoRemote) GetIssue(_ context.Context, id string) (models.Issue, error) {
	return models.Issue{ID: id}, nil
}

func issue(id string, status models.IssueStatus, typ models.IssueType, priority models.IssuePriority) models.Issue {
	return models.Issue{ID: id, Title: "issue " + id, Status: status, Type: typ, Priority: priority}
}

func statuses(columns []Column) []models.IssueStatus {
	out := make([]models.IssueStatus, 0, len(columns))
	for _, c := range columns {
		out = append(out, c.Status)
	}
	return out
}

func ids(issues []models.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.ID)
	}
	return out
}

func TestGroupBoardDefaults(t *testing.T) {
	now := time.Now()
	a := issue("a", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityLow)
	a.UpdatedAt = now.Add(-time.Hour)
	b := issue("b", models.IssueStatusTodo, models.IssueTypeBug, models.IssuePriorityHigh)
	b.UpdatedAt = now
	draft := issue("d", models.IssueStatusDraft, models.IssueTypeTask, models.IssuePriorityMedium)
	done := issue("x", models.IssueStatusDone, models.IssueTypeStory, models.IssuePriorityMedium)

	columns := GroupBoard([]models.Issue{a, b, draft, done}, DefaultBoardOptions(), SortDate, "")

	assert.Equal(t, []models.IssueStatus{models.IssueStatusTodo, models.IssueStatusOnProgress, models.IssueStatusDone}, statuses(columns))
	assert.Equal(t, []string{"b", "a"}, ids(columns[0].Issues))
	assert.Empty(t, columns[1].Issues)
	assert.Equal(t, []string{"x"}, ids(columns[2].Issues))
}

func TestGroupBoardSortByPriority(t *testing.T) {
	issues := []models.Issue{
		issue("low", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityLow),
		issue("unknown", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriority("urgent")),
		issue("highest", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityHighest),
	}

	columns := GroupBoard(issues, DefaultBoardOptions(), SortPriority, "")
	assert.Equal(t, []string{"highest", "unknown", "low"}, ids(columns[0].Issues))
}

func TestGroupBoardTypeFilters(t *testing.T) {
	task := issue("task", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityMedium)
	sub := issue("sub", models.IssueStatusTodo, models.IssueTypeSubtask, models.IssuePriorityMedium)
	sub.Parents = "task"
	bug := issue("bug", models.IssueStatusTodo, models.IssueTypeBug, models.IssuePriorityMedium)
	epic := issue("epic", models.IssueStatusTodo, models.IssueTypeEpic, models.IssuePriorityMedium)
	all := []models.Issue{task, sub, bug, epic}

	tests := []struct {
		name string
		opts func(o *BoardOptions)
		want []string
	}{
		{name: "defaults", opts: func(*BoardOptions) {}, want: []string{"task", "sub", "bug", "epic"}},
		{name: "no subtasks", opts: func(o *BoardOptions) { o.ShowSubtask = false }, want: []string{"task", "bug", "epic"}},
		{name: "no top level", opts: func(o *BoardOptions) { o.ShowTask = false }, want: []string{"sub"}},
		{name: "hide bug and epic", opts: func(o *BoardOptions) { o.HideBug, o.HideEpic = true, true }, want: []string{"task", "sub"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultBoardOptions()
			tt.opts(&opts)
			columns := GroupBoard(all, opts, SortDate, "")
			assert.Equal(t, tt.want, ids(columns[0].Issues))
		})
	}
}

func TestGroupBoardSearch(t *testing.T) {
	a := issue("a", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityMedium)
	a.Title = "Fix Login"
	b := issue("b", models.IssueStatusTodo, models.IssueTypeBug, models.IssuePriorityMedium)
	b.Assignee = &models.User{ID: "u1", Name: "Dana"}

	columns := GroupBoard([]models.Issue{a, b}, DefaultBoardOptions(), SortDate, "login")
	assert.Equal(t, []string{"a"}, ids(columns[0].Issues))

	columns = GroupBoard([]models.Issue{a, b}, DefaultBoardOptions(), SortDate, "dana")
	assert.Equal(t, []string{"b"}, ids(columns[0].Issues))

	columns = GroupBoard([]models.Issue{a, b}, DefaultBoardOptions(), SortDate, "BUG")
	assert.Equal(t, []string{"b"}, ids(columns[0].Issues))
}

func TestToggleStatus(t *testing.T) {
	opts := DefaultBoardOptions()
	opts = opts.ToggleStatus(models.IssueStatusDraft)
	assert.False(t, opts.Hidden(models.IssueStatusDraft))

	opts = opts.ToggleStatus(models.IssueStatusDone)
	assert.True(t, opts.Hidden(models.IssueStatusDone))
	assert.Equal(t, []models.IssueStatus{models.IssueStatusDone}, opts.FilterStatus)
}

func TestDrop(t *testing.T) {
	c := syncer.NewCollection(context.Background(), "board", echoRemote{}, nil, syncer.Opts{Debounce: 10 * time.Millisecond}, nil)
	t.Cleanup(c.Close)
	todo := issue("1", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityMedium)
	c.Hydrate([]models.Issue{todo})

	_, ok := Drop(c, todo, models.IssueStatusTodo)
	assert.False(t, ok)

	ch, ok := Drop(c, todo, models.IssueStatusDone)
	require.True(t, ok)
	got, _ := c.Get("1")
	assert.Equal(t, models.IssueStatusDone, got.Status)

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.Equal(t, models.IssueStatusDone, res.Issue.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("drop was not synced")
	}
}

func TestTimeline(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	due := start.AddDate(0, 0, 7)

	scheduled := issue("scheduled", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityLow)
	scheduled.StartDate, scheduled.DueDate = &start, &due
	scheduled.CreatedAt = start

	done := issue("done", models.IssueStatusDone, models.IssueTypeTask, models.IssuePriorityHigh)
	done.StartDate, done.DoneDate = &start, &due
	done.CreatedAt = start.Add(-time.Hour)

	empty := issue("empty", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityMedium)

	all := []models.Issue{scheduled, done, empty}

	bars := Timeline(all, DefaultTimelineOptions(), SortDate, "")
	require.Len(t, bars, 2)
	assert.Equal(t, "done", bars[0].Issue.ID)
	assert.Equal(t, due, *bars[0].End)
	assert.Equal(t, "scheduled", bars[1].Issue.ID)

	opts := DefaultTimelineOptions()
	opts.ShowEmptyDate = true
	bars = Timeline(all, opts, SortPriority, "")
	require.Len(t, bars, 3)
	assert.Equal(t, []string{"done", "empty", "scheduled"}, []string{bars[0].Issue.ID, bars[1].Issue.ID, bars[2].Issue.ID})
	assert.False(t, bars[1].Scheduled())
}

func TestTimeUnitTruncate(t *testing.T) {
	ts := time.Date(2026, 5, 14, 15, 30, 0, 0, time.UTC) // четверг

	assert.Equal(t, time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC), UnitDay.Truncate(ts))
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), UnitWeek.Truncate(ts))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), UnitMonth.Truncate(ts))
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), UnitQuarter.Truncate(ts))
	assert.Equal(t, UnitWeek, TimelineOptions{}.Unit())
}

func TestReschedule(t *testing.T) {
	c := syncer.NewCollection(context.Background(), "timeline", echoRemote{}, nil, syncer.Opts{Debounce: 10 * time.Millisecond}, nil)
	t.Cleanup(c.Close)
	i := issue("1", models.IssueStatusTodo, models.IssueTypeTask, models.IssuePriorityMedium)
	c.Hydrate([]models.Issue{i})

	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	ch := Reschedule(c, i, start, start.AddDate(0, 0, 3))

	got, _ := c.Get("1")
	require.NotNil(t, got.StartDate)
	assert.Equal(t, start, *got.StartDate)

	select {
	case res := <-ch:
		require.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("reschedule was not synced")
	}
}
