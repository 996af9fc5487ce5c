package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DevN0mad/IssueSync/internal/models"
)

// ErrNotFound запись отсутствует.
var ErrNotFound = errors.New("not found")

// StorageOpts параметры локального хранилища.
type StorageOpts struct {
	Path string `mapstructure:"path" validate:"required"`
}

// Storage локальное хранилище настроек представлений и снимков коллекций.
type Storage struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("failed to create db dir", "dir", dir, "error", err)
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("failed to open sqlite db", "path", dbPath, "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&models.Preference{}, &models.IssueSnapshot{}); err != nil {
		logger.Error("failed to auto-migrate storage models", "error", err)
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	logger.Info("sqlite storage initialized", "path", dbPath)

	return &Storage{db: db, logger: logger}, nil
}

// Close закрывает соединение с базой.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

// SavePreference сохраняет значение настройки key в JSON.
func (s *Storage) SavePreference(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}

	pref := models.Preference{Key: key, Value: string(raw), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		s.logger.Error("failed to save preference", "key", key, "error", err)
		return fmt.Errorf("save preference %s: %w", key, err)
	}

	s.logger.Debug("preference saved", "key", key)
	return nil
}

// LoadPreference читает настройку key в out. Если настройки нет, возвращает ErrNotFound,
// а out не меняется.
func (s *Storage) LoadPreference(ctx context.Context, key string, out any) error {
	var pref models.Preference
	err := s.db.WithContext(ctx).Where(&models.Preference{Key: key}).First(&pref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		s.logger.Error("failed to load preference", "key", key, "error", err)
		return fmt.Errorf("load preference %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(pref.Value), out); err != nil {
		return fmt.Errorf("decode preference %s: %w", key, err)
	}
	return nil
}

// DeletePreference удаляет настройку key.
func (s *Storage) DeletePreference(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(&models.Preference{Key: key}).Delete(&models.Preference{}).Error; err != nil {
		s.logger.Error("failed to delete preference", "key", key, "error", err)
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

// SaveIssues запоминает коллекцию view. Черновики без ID не сохраняются.
func (s *Storage) SaveIssues(ctx context.Context, view string, issues []models.Issue) error {
	saved := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if !issue.IsDraft() {
			saved = append(saved, issue)
		}
	}

	payload, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", view, err)
	}

	db := s.db.WithContext(ctx)

	var snap models.IssueSnapshot
	if err := db.Where(&models.IssueSnapshot{View: view}).First(&snap).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("failed to load snapshot", "view", view, "error", err)
			return fmt.Errorf("load snapshot %s: %w", view, err)
		}

		snap = models.IssueSnapshot{View: view, Payload: payload, Count: len(saved), SavedAt: time.Now()}
		if err := db.Create(&snap).Error; err != nil {
			s.logger.Error("failed to create snapshot", "view", view, "error", err)
			return fmt.Errorf("create snapshot %s: %w", view, err)
		}
		s.logger.Debug("snapshot created", "view", view, "count", len(saved))
		return nil
	}

	snap.Payload = payload
	snap.Count = len(saved)
	snap.SavedAt = time.Now()
	if err := db.Save(&snap).Error; err != nil {
		s.logger.Error("failed to update snapshot", "view", view, "error", err)
		return fmt.Errorf("update snapshot %s: %w", view, err)
	}

	s.logger.Debug("snapshot updated", "view", view, "count", len(saved))
	return nil
}

// LoadIssues возвращает последнюю сохранённую коллекцию view и время сохранения.
func (s *Storage) LoadIssues(ctx context.Context, view string) ([]models.Issue, time.Time, error) {
	var snap models.IssueSnapshot
	if err := s.db.WithContext(ctx).Where(&models.IssueSnapshot{View: view}).First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, time.Time{}, ErrNotFound
		}
		s.logger.Error("failed to load snapshot", "view", view, "error", err)
		return nil, time.Time{}, fmt.Errorf("load snapshot %s: %w", view, err)
	}

	var issues []models.Issue
	if err := json.Unmarshal(snap.Payload, &issues); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode snapshot %s: %w", view, err)
	}
	return issues, snap.SavedAt, nil
}

// ListSnapshots возвращает сохранённые снимки без содержимого.
func (s *Storage) ListSnapshots(ctx context.Context) ([]models.IssueSnapshot, error) {
	var snaps []models.IssueSnapshot
	if err := s.db.WithContext(ctx).Omit("payload").Order(clause.OrderByColumn{Column: clause.Column{Name: "view"}}).Find(&snaps).Error; err != nil {
		s.logger.Error("failed to list snapshots", "error", err)
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}
