package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/services"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

// apiRemote хранит задачи в памяти и ведёт себя как API задач.
type apiRemote struct {
	mu     sync.Mutex
	issues map[string]models.Issue
	items  map[string][]models.IssueItem
	nextID int
}

func newAPIRemote(issues ...models.Issue) *apiRemote {
	r := &apiRemote{issues: make(map[string]models.Issue), items: make(map[string][]models.IssueItem)}
	for _, issue := range issues {
		r.issues[issue.ID] = issue
	}
	return r
}

func (r *apiRemote) UpsertIssue(_ context.Context, issue models.Issue) (models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.ID == "" {
		r.nextID++
		issue.ID = fmt.Sprintf("srv-%d", r.nextID)
	}
	r.issues[issue.ID] = issue
	return issue, nil
}

func (r *apiRemote) GetIssue(_ context.Context, id string) (models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return models.Issue{}, &services.APIError{Code: http.StatusNotFound, Message: "Issue not found"}
	}
	return issue, nil
}

func (r *apiRemote) ListIssues(_ context.Context, parentID string) ([]models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Issue
	for _, issue := range r.issues {
		if issue.Parents == parentID {
			out = append(out, issue)
		}
	}
	return out, nil
}

func (r *apiRemote) setParent(id, parentID string) (models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return models.Issue{}, &services.APIError{Code: http.StatusNotFound, Message: "Issue not found"}
	}
	issue.Parents = parentID
	r.issues[id] = issue
	return issue, nil
}

func (r *apiRemote) MoveParent(_ context.Context, id, parentID string) (models.Issue, error) {
	return r.setParent(id, parentID)
}

func (r *apiRemote) RemoveParent(_ context.Context, id string) (models.Issue, error) {
	return r.setParent(id, "")
}

func (r *apiRemote) DeleteIssue(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.issues, id)
	return nil
}

func (r *apiRemote) UpdateOrder(_ context.Context, id string, direction models.MoveDirection) ([]models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, &services.APIError{Code: http.StatusNotFound, Message: "Issue not found"}
	}
	switch direction {
	case models.DirectionTop, models.DirectionUp:
		issue.Order = 0
	default:
		issue.Order += 10
	}
	r.issues[id] = issue
	return []models.Issue{issue}, nil
}

func (r *apiRemote) ListItems(_ context.Context, issueID string) ([]models.IssueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.IssueItem(nil), r.items[issueID]...), nil
}

func (r *apiRemote) CreateItem(_ context.Context, issueID string, item models.IssueItem) (models.IssueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = fmt.Sprintf("item-%d", r.nextID)
	r.items[issueID] = append(r.items[issueID], item)
	return item, nil
}

func (r *apiRemote) DeleteItem(context.Context, string, string) error {
	return nil
}

func (r *apiRemote) ListActivities(_ context.Context, issueID string) ([]models.Activity, error) {
	return []models.Activity{{ID: "a1", IssueID: issueID, Type: models.ActivityIssueCreate}}, nil
}

type issuesEnv struct {
	*testEnv
	api *apiRemote
}

func newIssuesEnv(t *testing.T, issues ...models.Issue) *issuesEnv {
	t.Helper()

	api := newAPIRemote(issues...)
	rec := &notify.Recorder{}
	opts := syncer.Opts{Debounce: 10 * time.Millisecond}
	backlog := syncer.NewCollection(context.Background(), "backlog", api, rec, opts, nil)
	board := syncer.NewCollection(context.Background(), "board", api, rec, opts, nil)
	t.Cleanup(backlog.Close)
	t.Cleanup(board.Close)

	cascade := syncer.NewCascade(api, rec, nil)
	cascade.Watch(backlog)
	cascade.Watch(board)
	cascade.Hold(backlog)
	cascade.Hold(board)

	admin := NewAdminServer(nil, Deps{
		Backlog: backlog,
		Board:   board,
		Cascade: cascade,
		Orderer: api,
		NewDetail: func() *syncer.Detail {
			return syncer.NewDetail(context.Background(), "p1", api, rec, opts, nil)
		},
		Notifications: rec,
	}, &AdminServerOpts{Address: "127.0.0.1:0"})

	env := &testEnv{backlog: backlog, board: board, rec: rec}
	env.srv = httptest.NewServer(admin.Handler())
	t.Cleanup(env.srv.Close)
	return &issuesEnv{testEnv: env, api: api}
}

func TestGetIssueDetail(t *testing.T) {
	parent := issue("p", "Parent", models.IssueStatusTodo)
	parent.ProjectID = "p1"
	child := issue("c", "Child", models.IssueStatusTodo)
	child.Parents = "p"
	foreign := issue("f", "Foreign", models.IssueStatusTodo)
	foreign.ProjectID = "p2"
	env := newIssuesEnv(t, parent, child, foreign)

	code, data, _ := env.do(t, http.MethodGet, "/api/v1/issues/p", nil)
	require.Equal(t, http.StatusOK, code)

	var got issueDetail
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Parent", got.Issue.Title)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "c", got.Children[0].ID)

	code, _, _ = env.do(t, http.MethodGet, "/api/v1/issues/f", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _, msg := env.do(t, http.MethodGet, "/api/v1/issues/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Issue not found", msg)
}

func TestIssueActivity(t *testing.T) {
	env := newIssuesEnv(t, issue("1", "Fix login", models.IssueStatusTodo))

	code, data, _ := env.do(t, http.MethodGet, "/api/v1/issues/1/activity", nil)
	require.Equal(t, http.StatusOK, code)

	var activities []models.Activity
	require.NoError(t, json.Unmarshal(data, &activities))
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityIssueCreate, activities[0].Type)
}

func TestAddLink(t *testing.T) {
	env := newIssuesEnv(t, issue("1", "Fix login", models.IssueStatusTodo))

	code, _, msg := env.do(t, http.MethodPost, "/api/v1/issues/1/links", map[string]string{"text": "docs"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Missing required fields: Url", msg)

	code, data, _ := env.do(t, http.MethodPost, "/api/v1/issues/1/links", map[string]string{"url": "https://example.com", "text": "docs"})
	require.Equal(t, http.StatusCreated, code)

	var item models.IssueItem
	require.NoError(t, json.Unmarshal(data, &item))
	assert.Equal(t, models.IssueItemWebLink, item.Type)
	assert.Equal(t, "https://example.com", item.Url)
	assert.Contains(t, env.rec.Messages(), notify.Message{Level: notify.LevelSuccess, Text: "Web link has been added"})
}

func TestDeleteIssue(t *testing.T) {
	todo := issue("1", "Todo", models.IssueStatusTodo)
	done := issue("2", "Done", models.IssueStatusDone)
	env := newIssuesEnv(t, todo, done)
	env.backlog.Hydrate([]models.Issue{todo, done})
	env.board.Hydrate([]models.Issue{todo, done})

	code, _, _ := env.do(t, http.MethodDelete, "/api/v1/issues/1", nil)
	require.Equal(t, http.StatusOK, code)
	_, inBacklog := env.backlog.Get("1")
	_, onBoard := env.board.Get("1")
	assert.False(t, inBacklog)
	assert.False(t, onBoard)

	code, _, _ = env.do(t, http.MethodDelete, "/api/v1/issues/2", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.rec.Errors(), "Cannot delete issue - it's already completed")

	code, _, _ = env.do(t, http.MethodDelete, "/api/v1/issues/404", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMoveOrderRoute(t *testing.T) {
	a := issue("a", "A", models.IssueStatusTodo)
	a.Order = 1
	b := issue("b", "B", models.IssueStatusTodo)
	b.Order = 2
	env := newIssuesEnv(t, a, b)
	env.backlog.Hydrate([]models.Issue{a, b})

	code, data, _ := env.do(t, http.MethodPost, "/api/v1/issues/b/order", map[string]string{"direction": string(models.DirectionUp)})
	require.Equal(t, http.StatusOK, code)

	var issues []models.Issue
	require.NoError(t, json.Unmarshal(data, &issues))
	require.Len(t, issues, 2)
	assert.Equal(t, "b", issues[0].ID)

	code, _, _ = env.do(t, http.MethodPost, "/api/v1/issues/b/order", map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReparentAndDetach(t *testing.T) {
	parent := issue("p", "Parent", models.IssueStatusTodo)
	child := issue("c", "Child", models.IssueStatusTodo)
	env := newIssuesEnv(t, parent, child)
	env.backlog.Hydrate([]models.Issue{parent, child})
	env.board.Hydrate([]models.Issue{parent, child})

	code, _, _ := env.do(t, http.MethodPost, "/api/v1/issues/c/parent", map[string]string{"parentId": "p"})
	require.Equal(t, http.StatusOK, code)

	_, inBacklog := env.backlog.Get("c")
	assert.False(t, inBacklog, "child leaves top level list")
	onBoard, _ := env.board.Get("c")
	assert.Equal(t, "p", onBoard.Parents)

	code, _, _ = env.do(t, http.MethodPost, "/api/v1/issues/c/parent", map[string]string{"parentId": "c"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = env.do(t, http.MethodDelete, "/api/v1/issues/c/parent", nil)
	require.Equal(t, http.StatusOK, code)

	back, ok := env.backlog.Get("c")
	require.True(t, ok)
	assert.False(t, back.HasParent())
	assert.Contains(t, env.rec.Messages(), notify.Message{Level: notify.LevelSuccess, Text: "Issue has been removed from parent"})
}

func TestIssueRoutesNotConfigured(t *testing.T) {
	env := newTestEnv(t)

	code, _, _ := env.do(t, http.MethodGet, "/api/v1/issues/1", nil)
	assert.Equal(t, http.StatusNotImplemented, code)

	code, _, _ = env.do(t, http.MethodDelete, "/api/v1/issues/1", nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}
