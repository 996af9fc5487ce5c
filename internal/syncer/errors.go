package syncer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
)

var (
	// ErrSuperseded правка заменена более поздней правкой того же канала и не отправлялась.
	ErrSuperseded = errors.New("edit superseded by a later edit")
	// ErrClosed коллекция закрыта, правка не будет отправлена.
	ErrClosed = errors.New("collection closed")
	// ErrForeignProject задача принадлежит другому проекту.
	ErrForeignProject = errors.New("issue belongs to another project")
	// ErrDeleteNotAllowed задачу в работе или завершённую удалить нельзя.
	ErrDeleteNotAllowed = errors.New("issue cannot be deleted")
	// ErrNotLoaded задача не загружена.
	ErrNotLoaded = errors.New("issue is not loaded")
)

// Result итог подтверждения правки сервером.
type Result struct {
	Issue models.Issue
	Err   error
}

// SyncError сервер отклонил правку задачи.
type SyncError struct {
	Issue models.Issue
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync issue %q: %v", e.Issue.DisplayName(), e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// UserMessage текст уведомления. Всегда называет задачу, сообщение сервера
// добавляется в скобках.
func (e *SyncError) UserMessage() string {
	msg := "Failed to changes: " + e.Issue.DisplayName()
	if reason := notify.ErrorText(e.Err, ""); reason != "" {
		msg += " (" + reason + ")"
	}
	return msg
}

// ValidationError не заполнены обязательные поля. Запрос на сервер не отправлялся.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// UserMessage текст уведомления для пользователя.
func (e *ValidationError) UserMessage() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}
