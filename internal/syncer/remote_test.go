package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DevN0mad/IssueSync/internal/models"
)

// fakeRemote хранит задачи в памяти и считает прогресс родителя как сервер.
type fakeRemote struct {
	mu       sync.Mutex
	nextID   int
	issues   map[string]models.Issue
	items    map[string][]models.IssueItem
	failIDs  map[string]error
	failAll  error
	upserts  []models.Issue
	gets     []string
	created  []models.IssueItem
	deleted  []string
	orderErr error
}

func newFakeRemote(issues ...models.Issue) *fakeRemote {
	f := &fakeRemote{
		issues:  make(map[string]models.Issue),
		items:   make(map[string][]models.IssueItem),
		failIDs: make(map[string]error),
	}
	for _, issue := range issues {
		f.issues[issue.ID] = issue
	}
	return f
}

// serverError ошибка с сообщением сервера.
type serverError string

func (e serverError) Error() string       { return string(e) }
func (e serverError) UserMessage() string { return string(e) }

func (f *fakeRemote) failWith(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failIDs[id] = err
}

func (f *fakeRemote) Upserts() []models.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Issue(nil), f.upserts...)
}

func (f *fakeRemote) Gets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.gets...)
}

func (f *fakeRemote) UpsertIssue(_ context.Context, issue models.Issue) (models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts = append(f.upserts, issue)
	if f.failAll != nil {
		return models.Issue{}, f.failAll
	}
	if err, ok := f.failIDs[issue.ID]; ok {
		return models.Issue{}, err
	}

	if issue.ID == "" {
		f.nextID++
		issue.ID = fmt.Sprintf("srv-%d", f.nextID)
	}
	f.issues[issue.ID] = issue
	if issue.HasParent() {
		f.recountProgress(issue.Parents)
	}
	return issue, nil
}

func (f *fakeRemote) recountProgress(parentID string) {
	parent, ok := f.issues[parentID]
	if !ok {
		return
	}
	total, done := 0, 0
	for _, issue := range f.issues {
		if issue.Parents != parentID {
			continue
		}
		total++
		if issue.Status == models.IssueStatusDone {
			done++
		}
	}
	if total > 0 {
		parent.Progress = done * 100 / total
	}
	f.issues[parentID] = parent
}

func (f *fakeRemote) GetIssue(_ context.Context, id string) (models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets = append(f.gets, id)
	issue, ok := f.issues[id]
	if !ok {
		return models.Issue{}, serverError("Issue not found")
	}
	return issue, nil
}

func (f *fakeRemote) ListIssues(_ context.Context, parentID string) ([]models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Issue
	for _, issue := range f.issues {
		if issue.Parents == parentID {
			out = append(out, issue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) MoveParent(_ context.Context, id, parentID string) (models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	issue, ok := f.issues[id]
	if !ok {
		return models.Issue{}, serverError("Issue not found")
	}
	old := issue.Parents
	issue.Parents = parentID
	f.issues[id] = issue
	f.recountProgress(parentID)
	if old != "" {
		f.recountProgress(old)
	}
	return issue, nil
}

func (f *fakeRemote) RemoveParent(_ context.Context, id string) (models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	issue, ok := f.issues[id]
	if !ok {
		return models.Issue{}, serverError("Issue not found")
	}
	old := issue.Parents
	issue.Parents = ""
	f.issues[id] = issue
	f.recountProgress(old)
	return issue, nil
}

func (f *fakeRemote) DeleteIssue(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, id)
	if err, ok := f.failIDs[id]; ok {
		return err
	}
	delete(f.issues, id)
	return nil
}

func (f *fakeRemote) ListItems(_ context.Context, issueID string) ([]models.IssueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.IssueItem(nil), f.items[issueID]...), nil
}

func (f *fakeRemote) CreateItem(_ context.Context, issueID string, item models.IssueItem) (models.IssueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, item)
	f.nextID++
	item.ID = fmt.Sprintf("item-%d", f.nextID)
	f.items[issueID] = append(f.items[issueID], item)
	return item, nil
}

func (f *fakeRemote) DeleteItem(_ context.Context, issueID, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.items[issueID][:0]
	for _, item := range f.items[issueID] {
		if item.ID != itemID {
			items = append(items, item)
		}
	}
	f.items[issueID] = items
	return nil
}

func (f *fakeRemote) ListActivities(_ context.Context, issueID string) ([]models.Activity, error) {
	return []models.Activity{{ID: "act-1", IssueID: issueID, Type: models.ActivityIssueCreate}}, nil
}

func (f *fakeRemote) UpdateOrder(_ context.Context, id string, direction models.MoveDirection) ([]models.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.orderErr != nil {
		return nil, f.orderErr
	}

	var all []models.Issue
	for _, issue := range f.issues {
		if !issue.HasParent() {
			all = append(all, issue)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Order < all[j].Order })

	pos := -1
	for i, issue := range all {
		if issue.ID == id {
			pos = i
		}
	}
	if pos < 0 {
		return nil, serverError("Issue not found")
	}

	moved := all[pos]
	all = append(all[:pos], all[pos+1:]...)
	switch direction {
	case models.DirectionTop:
		pos = 0
	case models.DirectionUp:
		pos = max(pos-1, 0)
	case models.DirectionDown:
		pos = min(pos+1, len(all))
	case models.DirectionBottom:
		pos = len(all)
	}
	all = append(all[:pos], append([]models.Issue{moved}, all[pos:]...)...)

	for i := range all {
		all[i].Order = i + 1
		f.issues[all[i].ID] = all[i]
	}
	return all, nil
}
