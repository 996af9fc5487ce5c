package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DevN0mad/IssueSync/internal/config"
	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/scheduler"
	"github.com/DevN0mad/IssueSync/internal/server"
	"github.com/DevN0mad/IssueSync/internal/services"
	"github.com/DevN0mad/IssueSync/internal/storage"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

// Имена коллекций, они же ключи снимков в хранилище.
const (
	ViewBacklog = "backlog"
	ViewBoard   = "board"
)

const (
	snapshotDelay   = time.Second
	snapshotTimeout = 5 * time.Second
)

// App представляет основное приложение, управляющее сервисами.
type App struct {
	logger  *slog.Logger
	rootCtx context.Context

	mu        sync.Mutex
	api       *services.IssueService
	storage   *storage.Storage
	backlog   *syncer.Collection
	board     *syncer.Collection
	cascade   *syncer.Cascade
	recorder  *notify.Recorder
	tg        *services.TelegramBotService
	reports   *services.ReportService
	dailyJob  *services.DailyJobService
	adminSrv  *server.AdminServer
	snapshots *scheduler.Debouncer
	unsubs    []func()

	servicesCancel context.CancelFunc
	syncCancel     context.CancelFunc
}

// NewApp создает новый экземпляр приложения с заданным логгером и корневым контекстом.
func NewApp(ctx context.Context, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &App{
		logger:  logger,
		rootCtx: ctx,
	}
}

// ApplyConfig применяет конфигурацию к приложению, инициализируя/переинициализируя сервисы.
// Отложенные правки прежних коллекций перед заменой отправляются на сервер.
func (a *App) ApplyConfig(cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping previous services")
		a.stopLocked()
	}

	st, err := storage.NewStorage(cfg.Storage.Path, a.logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	ctx, cancel := context.WithCancel(a.rootCtx)
	// Коллекции живут дольше ctx: при остановке правки ещё нужно дослать.
	syncCtx, syncCancel := context.WithCancel(context.WithoutCancel(a.rootCtx))

	api := services.NewIssueService(cfg.IssueAPI, a.logger)
	recorder := &notify.Recorder{Limit: cfg.Notify.History}
	notifiers := notify.Multi{notify.NewLogNotifier(a.logger), recorder}

	var tg *services.TelegramBotService
	if cfg.HasTelegram() {
		tg, err = services.NewTelegramBot(*cfg.TelegramBot, a.logger)
		if err != nil {
			cancel()
			syncCancel()
			_ = st.Close()
			return fmt.Errorf("init telegram bot: %w", err)
		}
		if cfg.Notify.Telegram {
			notifiers = append(notifiers, notify.NewSenderNotifier(tg, cfg.Notify.OnlyErrors, a.logger))
		}
	}

	backlog := syncer.NewCollection(syncCtx, ViewBacklog, api, notifiers, cfg.Sync, a.logger)
	board := syncer.NewCollection(syncCtx, ViewBoard, api, notifiers, cfg.Sync, a.logger)

	cascade := syncer.NewCascade(api, notifiers, a.logger)
	cascade.Watch(backlog)
	cascade.Watch(board)
	cascade.Hold(backlog)
	cascade.Hold(board)

	reports := services.NewReportService(api, cfg.Report, a.logger)

	var dailyJob *services.DailyJobService
	if cfg.DailyJob.Enabled && tg != nil {
		dailyJob, err = services.NewDailyJobService(reports, tg, cfg.DailyJob, a.logger)
		if err != nil {
			cancel()
			syncCancel()
			_ = st.Close()
			return fmt.Errorf("init daily job: %w", err)
		}
	}

	adminSrv := server.NewAdminServer(a.logger, server.Deps{
		Backlog: backlog,
		Board:   board,
		Cascade: cascade,
		Orderer: api,
		NewDetail: func() *syncer.Detail {
			d := syncer.NewDetail(syncCtx, api.ProjectID(), api, notifiers, cfg.Sync, a.logger)
			d.Cascade().Hold(backlog)
			d.Cascade().Hold(board)
			return d
		},
		Reporter:      reports,
		Prefs:         st,
		Notifications: recorder,
	}, &cfg.HttpServer)

	a.api = api
	a.storage = st
	a.backlog = backlog
	a.board = board
	a.cascade = cascade
	a.recorder = recorder
	a.tg = tg
	a.reports = reports
	a.dailyJob = dailyJob
	a.adminSrv = adminSrv
	a.snapshots = scheduler.NewDebouncer(snapshotDelay, a.logger)
	a.servicesCancel = cancel
	a.syncCancel = syncCancel

	a.restoreSnapshots(ctx)
	for _, c := range []*syncer.Collection{backlog, board} {
		a.unsubs = append(a.unsubs, a.persist(st, c))
	}

	go func() {
		if err := a.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("Initial load failed, working from local snapshot", "error", err)
		}
	}()
	if dailyJob != nil {
		go dailyJob.Start(ctx)
	}
	go func() {
		if err := adminSrv.Start(ctx); err != nil {
			a.logger.Error("Admin server exited with error", "error", err)
		}
	}()

	a.logger.Info("Services reinitialized successfully with configuration",
		"project_id", api.ProjectID(),
		"debounce", cfg.Sync.Debounce,
		"rollback", cfg.Sync.Rollback,
		"telegram", tg != nil,
	)
	return nil
}

// Refresh перечитывает обе коллекции с сервера.
func (a *App) Refresh(ctx context.Context) error {
	a.mu.Lock()
	api, backlog, board := a.api, a.backlog, a.board
	a.mu.Unlock()
	if api == nil {
		return errors.New("app is not configured")
	}

	top, err := api.ListIssues(ctx, "")
	if err != nil {
		return fmt.Errorf("refresh %s: %w", ViewBacklog, err)
	}
	backlog.Hydrate(top)

	boardIssues, err := api.ListBoardIssues(ctx, models.IssueFilter{})
	if err != nil {
		return fmt.Errorf("refresh %s: %w", ViewBoard, err)
	}
	board.Hydrate(boardIssues)

	a.logger.Info("Collections loaded", ViewBacklog, len(top), ViewBoard, len(boardIssues))
	return nil
}

// Backlog коллекция задач верхнего уровня.
func (a *App) Backlog() *syncer.Collection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backlog
}

// Board коллекция задач доски.
func (a *App) Board() *syncer.Collection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.board
}

// Notifications последние уведомления.
func (a *App) Notifications() []notify.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Messages()
}

// Shutdown останавливает все запущенные сервисы приложения.
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.servicesCancel != nil {
		a.logger.Info("Stopping services on shutdown")
		a.stopLocked()
	}
}

// stopLocked досылает правки, сохраняет снимки и освобождает ресурсы.
func (a *App) stopLocked() {
	a.servicesCancel()
	a.servicesCancel = nil

	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.snapshots.Stop()
	a.snapshots.Wait()

	for _, c := range []*syncer.Collection{a.backlog, a.board} {
		c.Flush()
		c.Close()
		a.saveSnapshot(a.storage, c)
	}

	a.syncCancel()
	a.syncCancel = nil

	if err := a.storage.Close(); err != nil {
		a.logger.Error("Failed to close storage", "error", err)
	}
}

func (a *App) restoreSnapshots(ctx context.Context) {
	for _, c := range []*syncer.Collection{a.backlog, a.board} {
		issues, savedAt, err := a.storage.LoadIssues(ctx, c.Name())
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				a.logger.Warn("Failed to restore snapshot", "view", c.Name(), "error", err)
			}
			continue
		}
		c.Hydrate(issues)
		a.logger.Info("Snapshot restored", "view", c.Name(), "count", len(issues), "saved_at", savedAt)
	}
}

// persist сохраняет снимок коллекции после каждой серии изменений.
func (a *App) persist(st *storage.Storage, c *syncer.Collection) func() {
	snapshots := a.snapshots
	return c.Subscribe(func([]models.Issue) {
		snapshots.Schedule(c.Name(), scheduler.Task{Run: func() { a.saveSnapshot(st, c) }})
	})
}

func (a *App) saveSnapshot(st *storage.Storage, c *syncer.Collection) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := st.SaveIssues(ctx, c.Name(), c.Issues()); err != nil {
		a.logger.Error("Failed to save snapshot", "view", c.Name(), "error", err)
	}
}
