// Команда main запускает агент синхронизации задач: коллекции с оптимистичными
// правками, локальный API и ежедневный отчёт.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DevN0mad/IssueSync/internal/config"
	"github.com/DevN0mad/IssueSync/internal/core"
)

var (
	configPath = flag.String("config", "/etc/issuesync/config.yaml",
		"YAML конфигурация агента синхронизации (переменные ISSUESYNC_* перекрывают значения)")
	verbose = flag.Bool("verbose", false,
		"Писать в лог отправку правок, откаты и обновление родительских задач")
)

func main() {
	flag.Parse()

	logLevel := new(slog.LevelVar)
	if *verbose {
		logLevel.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgMgr, err := config.NewManager(*configPath, logger)
	if err != nil {
		logger.Error("Cannot load sync agent config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	app := core.NewApp(ctx, logger)
	if err := app.ApplyConfig(cfgMgr.Current()); err != nil {
		logger.Error("Cannot start sync agent", "error", err)
		os.Exit(1)
	}

	// Перезагрузка досылает отложенные правки старых коллекций и поднимает новые.
	cfgMgr.OnChange(func(next config.Config) {
		if err := app.ApplyConfig(next); err != nil {
			logger.Error("Failed to apply reloaded config", "error", err)
		}
	})

	<-ctx.Done()
	logger.Info("Sync agent stopping, flushing pending edits", "reason", context.Cause(ctx))

	app.Shutdown()
	logger.Info("Sync agent stopped")
}
