// Package syncer держит коллекции задач в памяти согласованными с API.
//
// Любая правка сначала применяется локально, затем с паузой отправляется на сервер.
// Ответ сервера заменяет локальную версию, ошибка откатывает коллекцию к снимку,
// сделанному перед правкой.
package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/scheduler"
	"github.com/DevN0mad/IssueSync/internal/store"
)

// Remote операции API, которые нужны коллекции.
type Remote interface {
	UpsertIssue(ctx context.Context, issue models.Issue) (models.Issue, error)
	GetIssue(ctx context.Context, id string) (models.Issue, error)
}

// RollbackPolicy что восстанавливается при ошибке сервера.
type RollbackPolicy string

const (
	// RollbackSnapshot восстанавливает весь снимок коллекции до правки.
	// Параллельные правки других задач при этом тоже теряются.
	RollbackSnapshot RollbackPolicy = "snapshot"
	// RollbackEntity восстанавливает только задачу, которую отклонил сервер.
	RollbackEntity RollbackPolicy = "entity"
)

// Opts параметры синхронизации.
type Opts struct {
	Debounce       time.Duration  `mapstructure:"debounce" validate:"min=0"`
	RequestTimeout time.Duration  `mapstructure:"request_timeout" validate:"min=0"`
	Rollback       RollbackPolicy `mapstructure:"rollback" validate:"omitempty,oneof=snapshot entity"`
}

// Update правка коллекции: либо задача целиком, либо функция над коллекцией.
type Update struct {
	issue *models.Issue
	fn    func([]models.Issue) []models.Issue
}

// Entity правка, заменяющая задачу целиком. Отправляется на сервер.
func Entity(issue models.Issue) Update {
	return Update{issue: &issue}
}

// Func локальная правка коллекции. На сервер ничего не отправляется.
func Func(fn func([]models.Issue) []models.Issue) Update {
	return Update{fn: fn}
}

// Collection коллекция задач с оптимистичными правками.
type Collection struct {
	name      string
	ctx       context.Context
	store     *store.Store[models.Issue]
	remote    Remote
	notifier  notify.Notifier
	debouncer *scheduler.Debouncer
	opts      Opts
	logger    *slog.Logger
	cascade   atomic.Pointer[Cascade]
	closed    atomic.Bool
}

// NewCollection создаёт коллекцию. ctx ограничивает время жизни запросов к серверу.
func NewCollection(ctx context.Context, name string, remote Remote, notifier notify.Notifier, opts Opts, logger *slog.Logger) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if opts.Rollback == "" {
		opts.Rollback = RollbackSnapshot
	}

	logger = logger.With("collection", name)
	return &Collection{
		name:      name,
		ctx:       ctx,
		store:     store.New[models.Issue](),
		remote:    remote,
		notifier:  notifier,
		debouncer: scheduler.NewDebouncer(opts.Debounce, logger),
		opts:      opts,
		logger:    logger,
	}
}

// Name имя коллекции.
func (c *Collection) Name() string {
	return c.name
}

// Issues снимок коллекции.
func (c *Collection) Issues() []models.Issue {
	return c.store.Read()
}

// Get возвращает задачу по ID.
func (c *Collection) Get(id string) (models.Issue, bool) {
	for _, issue := range c.store.Read() {
		if issue.ID == id {
			return issue, true
		}
	}
	return models.Issue{}, false
}

// Subscribe подписывает fn на изменения коллекции.
func (c *Collection) Subscribe(fn func([]models.Issue)) (cancel func()) {
	return c.store.Subscribe(fn)
}

// Hydrate заменяет содержимое коллекции данными с сервера.
func (c *Collection) Hydrate(issues []models.Issue) {
	c.store.Write(issues)
}

// Apply применяет правку. Для Entity возвращает канал с итогом синхронизации,
// для Func - канал с пустым Result, так как на сервер ничего не отправлялось.
func (c *Collection) Apply(u Update) <-chan Result {
	if u.issue != nil {
		return c.Put(*u.issue)
	}

	if u.fn != nil {
		c.Mutate(u.fn)
	}
	done := make(chan Result, 1)
	done <- Result{}
	return done
}

// Mutate применяет локальную правку без обращения к серверу.
// Вызывающий сам отвечает за запрос к API, если он нужен.
func (c *Collection) Mutate(fn func([]models.Issue) []models.Issue) {
	c.store.Update(fn)
}

// Put сразу записывает задачу в коллекцию и откладывает её отправку на сервер.
// Канал получает ровно один Result: ответ сервера, ошибку или ErrSuperseded,
// если за время паузы пришла более поздняя правка той же задачи.
func (c *Collection) Put(issue models.Issue) <-chan Result {
	done := make(chan Result, 1)
	if c.closed.Load() {
		done <- Result{Issue: issue, Err: ErrClosed}
		return done
	}

	var current []models.Issue
	c.store.Update(func(prev []models.Issue) []models.Issue {
		current = prev
		return upsert(prev, issue)
	})

	key := c.channel(issue)
	c.debouncer.Schedule(key, scheduler.Task{
		Run: func() {
			done <- c.commit(issue, current)
		},
		OnCancel: func() {
			done <- Result{Issue: issue, Err: ErrSuperseded}
		},
	})
	return done
}

// Pending сообщает, ожидает ли задача id отправки на сервер.
func (c *Collection) Pending(id string) bool {
	return c.debouncer.Pending(c.name + "/" + id)
}

// Insert добавляет задачу или заменяет существующую с тем же ID без синхронизации.
func (c *Collection) Insert(issue models.Issue) {
	c.store.Update(func(prev []models.Issue) []models.Issue {
		return upsert(prev, issue)
	})
}

// ReplaceIssue заменяет задачу с тем же ID, если она есть в коллекции.
func (c *Collection) ReplaceIssue(issue models.Issue) bool {
	if _, ok := c.Get(issue.ID); !ok {
		return false
	}

	replaced := false
	c.store.Update(func(prev []models.Issue) []models.Issue {
		for i := range prev {
			if prev[i].ID == issue.ID {
				prev[i] = issue
				replaced = true
			}
		}
		return prev
	})
	return replaced
}

// Discard удаляет задачу из коллекции. Для черновика удаляется несохранённый черновик.
func (c *Collection) Discard(issue models.Issue) bool {
	removed := false
	c.store.Update(func(prev []models.Issue) []models.Issue {
		next := make([]models.Issue, 0, len(prev))
		for _, v := range prev {
			if sameEntity(v, issue) {
				removed = true
				continue
			}
			next = append(next, v)
		}
		return next
	})
	return removed
}

// Remove удаляет задачу из коллекции.
func (c *Collection) Remove(id string) bool {
	removed := false
	c.store.Update(func(prev []models.Issue) []models.Issue {
		next := make([]models.Issue, 0, len(prev))
		for _, issue := range prev {
			if issue.ID == id {
				removed = true
				continue
			}
			next = append(next, issue)
		}
		return next
	})
	return removed
}

// Flush немедленно отправляет все отложенные правки и дожидается ответов.
func (c *Collection) Flush() {
	if n := c.debouncer.FlushAll(); n > 0 {
		c.logger.Info("Pending edits flushed", "count", n)
	}
	c.debouncer.Wait()
}

// Close отменяет отложенные правки. Уже отправленные запросы не прерываются.
func (c *Collection) Close() {
	c.closed.Store(true)
	c.debouncer.Stop()
}

func (c *Collection) commit(issue models.Issue, current []models.Issue) Result {
	ctx, cancel := c.requestContext()
	defer cancel()

	saved, err := c.remote.UpsertIssue(ctx, issue)
	if err != nil {
		syncErr := &SyncError{Issue: issue, Err: err}
		c.logger.Debug("Remote upsert failed", "issue_id", issue.ID, "title", issue.Title, "error", err)
		c.rollback(issue, current)
		c.notifier.Error(ctx, syncErr.UserMessage())
		return Result{Issue: issue, Err: syncErr}
	}

	c.reconcile(saved)

	if cs := c.cascade.Load(); cs != nil && saved.HasParent() {
		// Прогресс родителя считает сервер, поэтому родитель перечитывается целиком.
		_, _ = cs.RefreshParent(ctx, saved.Parents)
	}

	return Result{Issue: saved}
}

// reconcile заменяет локальную версию ответом сервера.
func (c *Collection) reconcile(saved models.Issue) {
	c.store.Update(func(prev []models.Issue) []models.Issue {
		next := make([]models.Issue, 0, len(prev))
		matched := false
		for _, issue := range prev {
			if saved.Matches(issue) {
				if matched {
					continue
				}
				matched = true
				next = append(next, saved)
				continue
			}
			next = append(next, issue)
		}
		return next
	})
}

func (c *Collection) rollback(failed models.Issue, current []models.Issue) {
	c.logger.Warn("Rolling back failed edit", "issue_id", failed.ID, "title", failed.Title, "policy", c.opts.Rollback)

	if c.opts.Rollback != RollbackEntity {
		c.store.Write(current)
		return
	}

	var before *models.Issue
	for i := range current {
		if sameEntity(current[i], failed) {
			before = &current[i]
			break
		}
	}

	c.store.Update(func(prev []models.Issue) []models.Issue {
		next := make([]models.Issue, 0, len(prev))
		for _, issue := range prev {
			if sameEntity(issue, failed) {
				if before != nil {
					next = append(next, *before)
				}
				continue
			}
			next = append(next, issue)
		}
		return next
	})
}

func (c *Collection) requestContext() (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout > 0 {
		return context.WithTimeout(c.ctx, c.opts.RequestTimeout)
	}
	return context.WithCancel(c.ctx)
}

// channel ключ планировщика: у каждой задачи свой канал, у черновика коллекции - один общий.
// Переименование черновика в пределах паузы остаётся правкой того же черновика.
func (c *Collection) channel(issue models.Issue) string {
	if issue.IsDraft() {
		return c.name + "/draft"
	}
	return c.name + "/" + issue.ID
}

// upsert заменяет задачу с тем же ID (черновик - черновиком) или добавляет в конец.
func upsert(prev []models.Issue, issue models.Issue) []models.Issue {
	next := make([]models.Issue, 0, len(prev)+1)
	found := false
	for _, v := range prev {
		if sameEntity(v, issue) {
			next = append(next, issue)
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, issue)
	}
	return next
}

// sameEntity в коллекции один несохранённый черновик, поэтому черновики равны друг другу.
// Ответ сервера сопоставляется с черновиком по названию в reconcile.
func sameEntity(a, b models.Issue) bool {
	if a.IsDraft() || b.IsDraft() {
		return a.IsDraft() && b.IsDraft()
	}
	return a.ID == b.ID
}
