// Команда op выполняет разовые операции с API задач без запуска сервиса.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DevN0mad/IssueSync/internal/config"
	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/services"
	"github.com/DevN0mad/IssueSync/internal/storage"
)

var (
	configPath = flag.String("config", "/etc/issuesync/config.yaml", "Путь к файлу с конфигурацией")
	action     = flag.String("action", "report", "Операция: report, dump, snapshots, send-report")
	view       = flag.String("view", "backlog", "Коллекция для dump: backlog или board")
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgMgr, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Current()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Operation failed", "action", *action, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	api := services.NewIssueService(cfg.IssueAPI, logger)

	switch *action {
	case "report":
		path, err := services.NewReportService(api, cfg.Report, logger).Generate(ctx)
		if err != nil {
			return err
		}
		logger.Info("Excel report successfully created", "path", path)
		return nil

	case "send-report":
		if !cfg.HasTelegram() {
			return fmt.Errorf("telegram_bot is not configured")
		}
		tg, err := services.NewTelegramBot(*cfg.TelegramBot, logger)
		if err != nil {
			return err
		}
		reports := services.NewReportService(api, cfg.Report, logger)
		job, err := services.NewDailyJobService(reports, tg, cfg.DailyJob, logger)
		if err != nil {
			return err
		}
		return job.RunOnce(ctx)

	case "dump":
		var (
			issues []models.Issue
			err    error
		)
		switch *view {
		case "backlog":
			issues, err = api.ListIssues(ctx, "")
		case "board":
			issues, err = api.ListBoardIssues(ctx, models.IssueFilter{})
		default:
			return fmt.Errorf("unknown view %q", *view)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)

	case "snapshots":
		st, err := storage.NewStorage(cfg.Storage.Path, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		snaps, err := st.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("%-10s %5d  %s\n", s.View, s.Count, s.SavedAt.Format("02.01.2006 15:04:05"))
		}
		return nil
	}

	return fmt.Errorf("unknown action %q", *action)
}
