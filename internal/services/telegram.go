package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageRunes предел длины текстового сообщения telegram.
const maxMessageRunes = 4096

// TelegramOpts параметры необходимые для инициализации сервиса TelegramBotService.
type TelegramOpts struct {
	Token   string `mapstructure:"token" validate:"required"`
	ChatID  int64  `mapstructure:"chat_id" validate:"required"`
	Caption string `mapstructure:"caption"`
	// Silent отправлять уведомления без звука.
	Silent bool `mapstructure:"silent"`
}

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBotService отправляет уведомления и отчёты в telegram чат.
type TelegramBotService struct {
	opts   TelegramOpts
	logger *slog.Logger
	bot    botAPI
}

// NewTelegramBot создает экземпляр сервиса для работы с telegram ботом.
func NewTelegramBot(opts TelegramOpts, logger *slog.Logger) (*TelegramBotService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	if opts.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	bot, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		logger.Error("Failed to create Telegram bot", "error", err)
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	logger.Info("Telegram bot created successfully",
		"bot_user", bot.Self.UserName,
		"chat_id", opts.ChatID,
	)
	return newTelegramBot(opts, bot, logger), nil
}

func newTelegramBot(opts TelegramOpts, bot botAPI, logger *slog.Logger) *TelegramBotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramBotService{
		opts:   opts,
		logger: logger.With("chat_id", opts.ChatID),
		bot:    bot,
	}
}

// SendMessage отправляет текст в чат. Слишком длинный текст обрезается.
func (s *TelegramBotService) SendMessage(ctx context.Context, text string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := tgbotapi.NewMessage(s.opts.ChatID, truncateRunes(text, maxMessageRunes))
	msg.DisableNotification = s.opts.Silent
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Failed to send message", "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendFile отправляет отчёт по переданному пути в чат.
// Без подписи в настройках подписью служит имя файла.
func (s *TelegramBotService) SendFile(ctx context.Context, path string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			s.logger.Error("Report file not found", "path", path, "error", err)
			return fmt.Errorf("file not found at %q: %w", path, err)
		}
		s.logger.Error("Failed to access report file", "path", path, "error", err)
		return fmt.Errorf("access file at %q: %w", path, err)
	}

	msg := tgbotapi.NewDocument(s.opts.ChatID, tgbotapi.FilePath(path))
	msg.Caption = s.opts.Caption
	if msg.Caption == "" {
		msg.Caption = filepath.Base(path)
	}

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Failed to send report", "path", path, "error", err)
		return fmt.Errorf("send file: %w", err)
	}

	s.logger.Info("Report sent", "path", path)
	return nil
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
