package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
)

// Holder хранилище, в котором может лежать родительская задача.
type Holder interface {
	// ReplaceIssue заменяет задачу с тем же ID. Возвращает false, если её нет.
	ReplaceIssue(issue models.Issue) bool
}

// CascadeRemote операции API для связей родитель - потомок.
type CascadeRemote interface {
	GetIssue(ctx context.Context, id string) (models.Issue, error)
	MoveParent(ctx context.Context, id, parentID string) (models.Issue, error)
	RemoveParent(ctx context.Context, id string) (models.Issue, error)
	DeleteIssue(ctx context.Context, id string) error
}

// Cascade обновляет родительские задачи после изменений потомков
// и переносит задачи между коллекциями.
type Cascade struct {
	remote   CascadeRemote
	notifier notify.Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	holders []Holder
}

func NewCascade(remote CascadeRemote, notifier notify.Notifier, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Cascade{
		remote:   remote,
		notifier: notifier,
		logger:   logger,
	}
}

// Watch подключает коллекцию: после каждой подтверждённой правки дочерней
// задачи её родитель перечитывается с сервера.
func (cs *Cascade) Watch(c *Collection) {
	c.cascade.Store(cs)
}

// Hold регистрирует хранилище, которое получает свежие версии родителей.
func (cs *Cascade) Hold(h Holder) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.holders = append(cs.holders, h)
}

// RefreshParent перечитывает родителя и заменяет его во всех хранилищах.
// Ошибка только логируется: локальные данные родителя остаются прежними.
func (cs *Cascade) RefreshParent(ctx context.Context, parentID string) (models.Issue, error) {
	if parentID == "" {
		return models.Issue{}, nil
	}

	parent, err := cs.remote.GetIssue(ctx, parentID)
	if err != nil {
		cs.logger.Warn("Failed to refresh parent issue", "parent_id", parentID, "error", err)
		return models.Issue{}, fmt.Errorf("refresh parent %s: %w", parentID, err)
	}

	cs.mu.Lock()
	holders := append([]Holder(nil), cs.holders...)
	cs.mu.Unlock()

	replaced := 0
	for _, h := range holders {
		if h.ReplaceIssue(parent) {
			replaced++
		}
	}
	cs.logger.Debug("Parent issue refreshed", "parent_id", parentID, "progress", parent.Progress, "holders", replaced)
	return parent, nil
}

// Move переносит задачу из одной коллекции в другую: сначала удаление, затем вставка.
// Между двумя шагами подписчики могут увидеть задачу ни в одной из коллекций.
func (cs *Cascade) Move(issue models.Issue, from, to *Collection) {
	if from != nil {
		from.Remove(issue.ID)
	}
	if to != nil {
		to.Insert(issue)
	}
}

// Reparent делает задачу id потомком parentID. Задача уходит из from и
// появляется в to (если to задан), оба родителя перечитываются.
func (cs *Cascade) Reparent(ctx context.Context, id, parentID string, from, to *Collection) (models.Issue, error) {
	var oldParent string
	if from != nil {
		if issue, ok := from.Get(id); ok {
			oldParent = issue.Parents
		}
	}

	moved, err := cs.remote.MoveParent(ctx, id, parentID)
	if err != nil {
		cs.notifier.Error(ctx, notify.ErrorText(err, "Failed to move issue"))
		return models.Issue{}, fmt.Errorf("reparent %s: %w", id, err)
	}

	cs.Move(moved, from, to)
	cs.notifier.Success(ctx, "Issue has been moved")

	if oldParent != "" && oldParent != parentID {
		_, _ = cs.RefreshParent(ctx, oldParent)
	}
	_, _ = cs.RefreshParent(ctx, parentID)
	return moved, nil
}

// Detach отвязывает задачу от родителя и переносит её из from в to.
func (cs *Cascade) Detach(ctx context.Context, id string, from, to *Collection) (models.Issue, error) {
	var oldParent string
	if from != nil {
		if issue, ok := from.Get(id); ok {
			oldParent = issue.Parents
		}
	}

	detached, err := cs.remote.RemoveParent(ctx, id)
	if err != nil {
		cs.notifier.Error(ctx, notify.ErrorText(err, "Failed to remove parent"))
		return models.Issue{}, fmt.Errorf("detach %s: %w", id, err)
	}

	cs.Move(detached, from, to)
	cs.notifier.Success(ctx, "Issue has been removed from parent")

	_, _ = cs.RefreshParent(ctx, oldParent)
	return detached, nil
}

// Delete удаляет задачу на сервере и из всех переданных коллекций.
// Задачи в работе и завершённые не удаляются. Черновик удаляется только локально.
func (cs *Cascade) Delete(ctx context.Context, issue models.Issue, from ...*Collection) error {
	if reason := deleteBlocked(issue); reason != "" {
		cs.notifier.Error(ctx, reason)
		return fmt.Errorf("delete %q: %w: %s", issue.DisplayName(), ErrDeleteNotAllowed, issue.Status)
	}

	if !issue.IsDraft() {
		if err := cs.remote.DeleteIssue(ctx, issue.ID); err != nil {
			cs.notifier.Error(ctx, notify.ErrorText(err, "Failed to delete: "+issue.DisplayName()))
			return fmt.Errorf("delete %q: %w", issue.DisplayName(), err)
		}
	}

	for _, c := range from {
		c.Discard(issue)
	}
	cs.notifier.Success(ctx, "Issue has been deleted")

	if issue.HasParent() {
		_, _ = cs.RefreshParent(ctx, issue.Parents)
	}
	return nil
}

func deleteBlocked(issue models.Issue) string {
	switch issue.Status {
	case models.IssueStatusDone:
		return "Cannot delete issue - it's already completed"
	case models.IssueStatusOnProgress:
		return "Cannot delete issue - it's in progress"
	}
	return ""
}
