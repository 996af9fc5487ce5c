package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, b.err
}

func TestSendMessage(t *testing.T) {
	bot := &fakeBot{}
	s := newTelegramBot(TelegramOpts{ChatID: 7, Silent: true}, bot, nil)

	require.NoError(t, s.SendMessage(context.Background(), "❌ Failed to changes: Fix login"))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Equal(t, "❌ Failed to changes: Fix login", msg.Text)
	assert.True(t, msg.DisableNotification)
}

func TestSendMessageTruncates(t *testing.T) {
	bot := &fakeBot{}
	s := newTelegramBot(TelegramOpts{ChatID: 7}, bot, nil)

	require.NoError(t, s.SendMessage(context.Background(), strings.Repeat("я", maxMessageRunes+10)))

	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(msg.Text))
	assert.True(t, strings.HasSuffix(msg.Text, "…"))
}

func TestSendMessageErrors(t *testing.T) {
	bot := &fakeBot{err: errors.New("forbidden")}
	s := newTelegramBot(TelegramOpts{ChatID: 7}, bot, nil)

	assert.Error(t, s.SendMessage(context.Background(), "hi"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SendMessage(ctx, "hi"), context.Canceled)
	assert.Len(t, bot.sent, 1)
}

func TestSendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issues_report_2026-10-18.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("xlsx"), 0o644))

	bot := &fakeBot{}
	s := newTelegramBot(TelegramOpts{ChatID: 7}, bot, nil)
	require.NoError(t, s.SendFile(context.Background(), path))

	doc, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "issues_report_2026-10-18.xlsx", doc.Caption)

	err := s.SendFile(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
