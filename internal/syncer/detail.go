package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/store"
)

// tempPrefix префикс временных ID несохранённых ссылок.
const tempPrefix = "temp_"

// DetailRemote операции API для карточки задачи.
type DetailRemote interface {
	CascadeRemote
	UpsertIssue(ctx context.Context, issue models.Issue) (models.Issue, error)
	ListIssues(ctx context.Context, parentID string) ([]models.Issue, error)
	ListItems(ctx context.Context, issueID string) ([]models.IssueItem, error)
	CreateItem(ctx context.Context, issueID string, item models.IssueItem) (models.IssueItem, error)
	DeleteItem(ctx context.Context, issueID, itemID string) error
	ListActivities(ctx context.Context, issueID string) ([]models.Activity, error)
}

// Detail карточка одной задачи: сама задача, её потомки и вложения.
type Detail struct {
	projectID string
	remote    DetailRemote
	notifier  notify.Notifier
	validate  *validator.Validate
	logger    *slog.Logger

	issue    *store.Cell[models.Issue]
	children *Collection
	items    *store.Store[models.IssueItem]
	drafts   *store.Store[models.IssueItem]
	cascade  *Cascade
}

// NewDetail создаёт карточку. Дочерние задачи синхронизируются с паузой opts.Debounce,
// а их изменения обновляют саму задачу через каскад.
func NewDetail(ctx context.Context, projectID string, remote DetailRemote, notifier notify.Notifier, opts Opts, logger *slog.Logger) *Detail {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	d := &Detail{
		projectID: projectID,
		remote:    remote,
		notifier:  notifier,
		validate:  validator.New(),
		logger:    logger.With("view", "detail"),
		issue:     store.NewCell[models.Issue](),
		children:  NewCollection(ctx, "detail-children", remote, notifier, opts, logger),
		items:     store.New[models.IssueItem](),
		drafts:    store.New[models.IssueItem](),
	}

	d.cascade = NewCascade(remote, notifier, logger)
	d.cascade.Watch(d.children)
	d.cascade.Hold(d)
	return d
}

// Issue текущая задача.
func (d *Detail) Issue() (models.Issue, bool) {
	return d.issue.Get()
}

// Children дочерние задачи.
func (d *Detail) Children() *Collection {
	return d.children
}

// Cascade каскад карточки. Через него можно подключить другие коллекции,
// в которых лежит та же задача.
func (d *Detail) Cascade() *Cascade {
	return d.cascade
}

// Items сохранённые вложения задачи.
func (d *Detail) Items() []models.IssueItem {
	return d.items.Read()
}

// SubscribeIssue подписывает fn на изменения задачи.
func (d *Detail) SubscribeIssue(fn func(models.Issue, bool)) (cancel func()) {
	return d.issue.Subscribe(fn)
}

// ReplaceIssue заменяет загруженную задачу свежей версией с сервера.
func (d *Detail) ReplaceIssue(issue models.Issue) bool {
	return d.issue.Swap(func(cur models.Issue) (models.Issue, bool) {
		if cur.ID != issue.ID {
			return cur, false
		}
		return issue, true
	})
}

// Load загружает задачу, её потомков и вложения.
// Задача чужого проекта не загружается: возвращается ErrForeignProject.
func (d *Detail) Load(ctx context.Context, id string) (models.Issue, error) {
	issue, err := d.remote.GetIssue(ctx, id)
	if err != nil {
		return models.Issue{}, fmt.Errorf("load issue %s: %w", id, err)
	}

	if d.projectID != "" && issue.ProjectID != "" && issue.ProjectID != d.projectID {
		d.logger.Warn("Issue belongs to another project", "issue_id", id, "project_id", issue.ProjectID)
		return models.Issue{}, fmt.Errorf("load issue %s: %w", id, ErrForeignProject)
	}

	children, err := d.remote.ListIssues(ctx, id)
	if err != nil {
		return models.Issue{}, fmt.Errorf("load children of %s: %w", id, err)
	}

	items, err := d.remote.ListItems(ctx, id)
	if err != nil {
		return models.Issue{}, fmt.Errorf("load items of %s: %w", id, err)
	}

	d.issue.Set(issue)
	d.children.Hydrate(children)
	d.items.Write(items)
	d.drafts.Write(nil)
	return issue, nil
}

// UpdateFields сразу применяет fn к задаче и сохраняет её без паузы.
// При ошибке задача возвращается к версии до правки.
func (d *Detail) UpdateFields(ctx context.Context, fn func(*models.Issue)) (models.Issue, error) {
	current, ok := d.issue.Get()
	if !ok {
		return models.Issue{}, ErrNotLoaded
	}

	optimistic := current
	fn(&optimistic)
	d.issue.Set(optimistic)

	saved, err := d.remote.UpsertIssue(ctx, optimistic)
	if err != nil {
		syncErr := &SyncError{Issue: optimistic, Err: err}
		d.logger.Warn("Rolling back issue update", "issue_id", current.ID, "error", err)
		d.issue.Set(current)
		d.notifier.Error(ctx, syncErr.UserMessage())
		return current, syncErr
	}

	d.issue.Set(saved)
	if saved.HasParent() {
		_, _ = d.cascade.RefreshParent(ctx, saved.Parents)
	}
	return saved, nil
}

// DraftLinks несохранённые веб-ссылки.
func (d *Detail) DraftLinks() []models.IssueItem {
	return d.drafts.Read()
}

// AddDraftLink добавляет пустую веб-ссылку для редактирования и возвращает её временный ID.
func (d *Detail) AddDraftLink() string {
	id := tempPrefix + uuid.NewString()
	d.drafts.Update(func(prev []models.IssueItem) []models.IssueItem {
		return append(prev, models.IssueItem{ID: id, Type: models.IssueItemWebLink})
	})
	return id
}

// EditDraftLink меняет поля несохранённой ссылки.
func (d *Detail) EditDraftLink(id string, in models.WebLinkInput) bool {
	found := false
	d.drafts.Update(func(prev []models.IssueItem) []models.IssueItem {
		for i := range prev {
			if prev[i].ID == id {
				prev[i].Url = in.Url
				prev[i].Text = in.Text
				found = true
			}
		}
		return prev
	})
	return found
}

// CancelDraftLink убирает несохранённую ссылку.
func (d *Detail) CancelDraftLink(id string) bool {
	found := false
	d.drafts.Update(func(prev []models.IssueItem) []models.IssueItem {
		next := make([]models.IssueItem, 0, len(prev))
		for _, item := range prev {
			if item.ID == id {
				found = true
				continue
			}
			next = append(next, item)
		}
		return next
	})
	return found
}

// SaveLink проверяет ссылку и сохраняет её на сервере.
// Если не заполнены обязательные поля, запрос не отправляется,
// а ссылка остаётся в черновиках для исправления.
func (d *Detail) SaveLink(ctx context.Context, draftID string) (models.IssueItem, error) {
	issue, ok := d.issue.Get()
	if !ok {
		return models.IssueItem{}, ErrNotLoaded
	}

	var draft *models.IssueItem
	for _, item := range d.drafts.Read() {
		if item.ID == draftID {
			draft = &item
			break
		}
	}
	if draft == nil {
		return models.IssueItem{}, fmt.Errorf("draft link %s not found", draftID)
	}

	in := models.WebLinkInput{Url: draft.Url, Text: draft.Text}
	if err := d.validateLink(in); err != nil {
		d.notifier.Error(ctx, notify.ErrorText(err, "Invalid web link"))
		return models.IssueItem{}, err
	}

	created, err := d.remote.CreateItem(ctx, issue.ID, in.Item(issue.ID))
	if err != nil {
		d.notifier.Error(ctx, notify.ErrorText(err, "Failed to add web link"))
		return models.IssueItem{}, fmt.Errorf("save link: %w", err)
	}

	d.CancelDraftLink(draftID)
	d.items.Update(func(prev []models.IssueItem) []models.IssueItem {
		return append(prev, created)
	})
	d.notifier.Success(ctx, "Web link has been added")
	return created, nil
}

// DeleteItem удаляет сохранённое вложение.
func (d *Detail) DeleteItem(ctx context.Context, itemID string) error {
	issue, ok := d.issue.Get()
	if !ok {
		return ErrNotLoaded
	}

	if err := d.remote.DeleteItem(ctx, issue.ID, itemID); err != nil {
		d.notifier.Error(ctx, notify.ErrorText(err, "Failed to delete item"))
		return fmt.Errorf("delete item: %w", err)
	}

	d.items.Update(func(prev []models.IssueItem) []models.IssueItem {
		next := make([]models.IssueItem, 0, len(prev))
		for _, item := range prev {
			if item.ID != itemID {
				next = append(next, item)
			}
		}
		return next
	})
	d.notifier.Success(ctx, "Item has been deleted")
	return nil
}

// Activities журнал изменений задачи.
func (d *Detail) Activities(ctx context.Context) ([]models.Activity, error) {
	issue, ok := d.issue.Get()
	if !ok {
		return nil, ErrNotLoaded
	}

	activities, err := d.remote.ListActivities(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("activities: %w", err)
	}
	return activities, nil
}

// Close отменяет отложенные правки дочерних задач.
func (d *Detail) Close() {
	d.children.Close()
}

func (d *Detail) validateLink(in models.WebLinkInput) error {
	err := d.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate link: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &ValidationError{Fields: fields}
}
