package config

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/server"
	"github.com/DevN0mad/IssueSync/internal/services"
	"github.com/DevN0mad/IssueSync/internal/storage"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

// EnvPrefix префикс переменных окружения, например ISSUESYNC_ISSUE_API_API_TOKEN.
const EnvPrefix = "ISSUESYNC"

// Config представляет конфигурацию приложения.
type Config struct {
	IssueAPI    services.IssueAPIOpts  `mapstructure:"issue_api"`
	Sync        syncer.Opts            `mapstructure:"sync"`
	Storage     storage.StorageOpts    `mapstructure:"storage"`
	Report      services.ReportOpts    `mapstructure:"report"`
	Notify      notify.Opts            `mapstructure:"notify"`
	TelegramBot *services.TelegramOpts `mapstructure:"telegram_bot"`
	DailyJob    services.DailyJobOpts  `mapstructure:"daily_job"`
	HttpServer  server.AdminServerOpts `mapstructure:"http_server"`
}

// HasTelegram сообщает, что telegram бот настроен.
func (c Config) HasTelegram() bool {
	return c.TelegramBot != nil && c.TelegramBot.Token != ""
}

// Manager управляет конфигурацией приложения, обеспечивая загрузку,
// проверку и перезагрузку при изменении файла.
type Manager struct {
	mu          sync.RWMutex
	cfg         *Config
	logger      *slog.Logger
	v           *viper.Viper
	subscribers []func(Config)
	validate    *validator.Validate
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("issue_api.timeout", "30s")
	v.SetDefault("sync.debounce", "300ms")
	v.SetDefault("sync.request_timeout", "30s")
	v.SetDefault("sync.rollback", string(syncer.RollbackSnapshot))
	v.SetDefault("storage.path", "data/issuesync.db")
	v.SetDefault("report.save_dir", "reports")
	v.SetDefault("notify.history", 100)
	v.SetDefault("daily_job.hour", 9)
	v.SetDefault("http_server.address", "127.0.0.1:8080")
	v.SetDefault("http_server.read_timeout_seconds", 10)
	v.SetDefault("http_server.write_timeout_seconds", 30)
	v.SetDefault("http_server.idle_timeout_seconds", 60)
}

// NewManager создает новый менеджер конфигурации, загружая конфигурацию из указанного пути.
// Значения из файла перекрываются переменными окружения с префиксом EnvPrefix.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	m := &Manager{
		logger:   logger,
		v:        v,
		validate: validator.New(),
	}

	cfg, err := m.load()
	if err != nil {
		logger.Error("Validate config", "error", err)
		return nil, err
	}
	m.cfg = &cfg

	logger.Info("Config loaded", "path", path)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", "name", e.Name, "op", e.Op.String())

		newCfg, err := m.load()
		if err != nil {
			logger.Error("Failed to reload config", "error", err)
			return
		}

		m.mu.Lock()
		m.cfg = &newCfg
		subs := append([]func(Config){}, m.subscribers...)
		m.mu.Unlock()

		logger.Info("Config reloaded successfully")

		for _, fn := range subs {
			fn(newCfg)
		}
	})

	return m, nil
}

func (m *Manager) load() (Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := m.validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	if cfg.DailyJob.Enabled && !cfg.HasTelegram() {
		return Config{}, fmt.Errorf("validate config: daily_job requires telegram_bot")
	}
	if cfg.Notify.Telegram && !cfg.HasTelegram() {
		return Config{}, fmt.Errorf("validate config: notify.telegram requires telegram_bot")
	}
	return cfg, nil
}

// Current возвращает текущую конфигурацию.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// OnChange регистрирует функцию обратного вызова, которая будет вызвана при изменении конфигурации.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
