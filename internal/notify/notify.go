// Package notify доставляет пользователю короткие уведомления об успехе и ошибках синхронизации.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Notifier получатель уведомлений.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// Level уровень уведомления.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Opts параметры доставки уведомлений.
type Opts struct {
	// Telegram дублировать уведомления в telegram чат.
	Telegram   bool `mapstructure:"telegram"`
	OnlyErrors bool `mapstructure:"only_errors"`
	// History сколько последних уведомлений отдаёт локальный API.
	History int `mapstructure:"history" validate:"min=0"`
}

// Message уведомление.
type Message struct {
	Level Level
	Text  string
}

// LogNotifier пишет уведомления в лог.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(ctx context.Context, msg string) {
	n.logger.InfoContext(ctx, "Notification", "level", LevelSuccess, "message", msg)
}

func (n *LogNotifier) Error(ctx context.Context, msg string) {
	n.logger.WarnContext(ctx, "Notification", "level", LevelError, "message", msg)
}

// MessageSender отправляет текст во внешний канал (telegram).
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// SenderNotifier пересылает уведомления через MessageSender.
// Успешные уведомления отправляются только при OnlyErrors == false.
type SenderNotifier struct {
	sender     MessageSender
	logger     *slog.Logger
	OnlyErrors bool
}

func NewSenderNotifier(sender MessageSender, onlyErrors bool, logger *slog.Logger) *SenderNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SenderNotifier{sender: sender, logger: logger, OnlyErrors: onlyErrors}
}

func (n *SenderNotifier) Success(ctx context.Context, msg string) {
	if n.OnlyErrors {
		return
	}
	n.send(ctx, "✅ "+msg)
}

func (n *SenderNotifier) Error(ctx context.Context, msg string) {
	n.send(ctx, "❌ "+msg)
}

func (n *SenderNotifier) send(ctx context.Context, text string) {
	if err := n.sender.SendMessage(ctx, text); err != nil {
		n.logger.Error("Failed to deliver notification", "error", err)
	}
}

// Multi рассылает уведомления всем получателям по порядку.
type Multi []Notifier

func (m Multi) Success(ctx context.Context, msg string) {
	for _, n := range m {
		n.Success(ctx, msg)
	}
}

func (m Multi) Error(ctx context.Context, msg string) {
	for _, n := range m {
		n.Error(ctx, msg)
	}
}

// Discard игнорирует уведомления.
type Discard struct{}

func (Discard) Success(context.Context, string) {}
func (Discard) Error(context.Context, string)   {}

// Recorder запоминает последние Limit уведомлений (все при Limit == 0).
// Используется в тестах и в локальном API.
type Recorder struct {
	Limit int

	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Success(_ context.Context, msg string) {
	r.add(LevelSuccess, msg)
}

func (r *Recorder) Error(_ context.Context, msg string) {
	r.add(LevelError, msg)
}

// Messages возвращает копию накопленных уведомлений.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Errors возвращает тексты уведомлений об ошибках.
func (r *Recorder) Errors() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Level == LevelError {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *Recorder) add(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Text: msg})
	if r.Limit > 0 && len(r.messages) > r.Limit {
		r.messages = r.messages[len(r.messages)-r.Limit:]
	}
}

// ErrorText текст уведомления об ошибке: сообщение сервера, если оно есть, иначе fallback.
func ErrorText(err error, fallback string) string {
	var msgErr interface{ UserMessage() string }
	if errors.As(err, &msgErr) {
		if msg := msgErr.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
