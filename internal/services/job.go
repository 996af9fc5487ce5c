package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DailyJobOpts параметры ежедневной отправки отчёта.
type DailyJobOpts struct {
	Enabled bool `mapstructure:"enabled"`
	Hour    int  `mapstructure:"hour" validate:"min=0,max=23"`
	Minute  int  `mapstructure:"minute" validate:"min=0,max=59"`
}

// ReportGenerator строит отчёт и возвращает путь к файлу.
type ReportGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// FileSender доставляет файл получателю.
type FileSender interface {
	SendFile(ctx context.Context, path string) error
}

// DailyJobService формирует отчёт и отправляет его каждый день в заданное время.
type DailyJobService struct {
	reporter ReportGenerator
	sender   FileSender
	hour     int
	minute   int
	timezone *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewDailyJobService создаёт сервис ежедневной отправки отчёта.
func NewDailyJobService(
	reporter ReportGenerator,
	sender FileSender,
	opts DailyJobOpts,
	logger *slog.Logger,
) (*DailyJobService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if reporter == nil {
		return nil, fmt.Errorf("report service is required")
	}

	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}

	logger.Info("Daily job configured",
		"hour", opts.Hour,
		"minute", opts.Minute,
		"timezone", time.Local.String())

	return &DailyJobService{
		reporter: reporter,
		sender:   sender,
		hour:     opts.Hour,
		minute:   opts.Minute,
		timezone: time.Local,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start запускает цикл отправки. Возвращается после отмены ctx.
func (d *DailyJobService) Start(ctx context.Context) {
	nextRun := d.nextRunTime()
	timer := time.NewTimer(time.Until(nextRun))
	d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutdown requested")
			timer.Stop()
			return
		case <-timer.C:
			if err := d.RunOnce(ctx); err != nil {
				d.logger.Error("Daily report sending failed", "error", err)
			} else {
				d.logger.Info("Daily report sent successfully")
			}

			nextRun = d.nextRunTime()
			timer.Reset(time.Until(nextRun))
			d.logger.Info("Next run scheduled", "at", nextRun.Format(time.RFC3339))
		}
	}
}

// RunOnce формирует отчёт и отправляет его.
func (d *DailyJobService) RunOnce(ctx context.Context) error {
	path, err := d.reporter.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := d.sender.SendFile(ctx, path); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// nextRunTime вычисляет ближайшее время запуска.
func (d *DailyJobService) nextRunTime() time.Time {
	now := d.now().In(d.timezone)
	today := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, d.timezone)

	if now.After(today) {
		return today.Add(24 * time.Hour)
	}
	return today
}
