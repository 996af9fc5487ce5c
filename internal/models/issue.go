package models

import (
	"strings"
	"time"
)

// IssueStatus статус задачи, он же колонка на доске.
type IssueStatus string

const (
	IssueStatusDraft      IssueStatus = "draft"
	IssueStatusTodo       IssueStatus = "todo"
	IssueStatusOnProgress IssueStatus = "on_progress"
	IssueStatusDone       IssueStatus = "done"
)

// IssueStatuses порядок колонок на доске.
var IssueStatuses = []IssueStatus{
	IssueStatusDraft,
	IssueStatusTodo,
	IssueStatusOnProgress,
	IssueStatusDone,
}

func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueStatusDraft, IssueStatusTodo, IssueStatusOnProgress, IssueStatusDone:
		return true
	}
	return false
}

// Label возвращает статус в читаемом виде ("on progress").
func (s IssueStatus) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// IssuePriority приоритет задачи.
type IssuePriority string

const (
	IssuePriorityHighest IssuePriority = "highest"
	IssuePriorityHigh    IssuePriority = "high"
	IssuePriorityMedium  IssuePriority = "medium"
	IssuePriorityLow     IssuePriority = "low"
	IssuePriorityLowest  IssuePriority = "lowest"
)

// IssuePriorities от самого высокого к самому низкому.
var IssuePriorities = []IssuePriority{
	IssuePriorityHighest,
	IssuePriorityHigh,
	IssuePriorityMedium,
	IssuePriorityLow,
	IssuePriorityLowest,
}

func (p IssuePriority) IsValid() bool {
	return p.Rank() >= 0
}

// Rank возвращает позицию приоритета (0 - highest) или -1 для неизвестного значения.
func (p IssuePriority) Rank() int {
	for i, v := range IssuePriorities {
		if v == p {
			return i
		}
	}
	return -1
}

// IssueType тип задачи.
type IssueType string

const (
	IssueTypeTask    IssueType = "task"
	IssueTypeSubtask IssueType = "subtask"
	IssueTypeBug     IssueType = "bug"
	IssueTypeStory   IssueType = "story"
	IssueTypeEpic    IssueType = "epic"
)

var IssueTypes = []IssueType{
	IssueTypeTask,
	IssueTypeSubtask,
	IssueTypeBug,
	IssueTypeStory,
	IssueTypeEpic,
}

func (t IssueType) IsValid() bool {
	switch t {
	case IssueTypeTask, IssueTypeSubtask, IssueTypeBug, IssueTypeStory, IssueTypeEpic:
		return true
	}
	return false
}

// MoveDirection направление перемещения задачи в бэклоге.
type MoveDirection string

const (
	DirectionTop    MoveDirection = "top"
	DirectionUp     MoveDirection = "up"
	DirectionDown   MoveDirection = "down"
	DirectionBottom MoveDirection = "bottom"
)

func (d MoveDirection) IsValid() bool {
	switch d {
	case DirectionTop, DirectionUp, DirectionDown, DirectionBottom:
		return true
	}
	return false
}

// Issue представляет задачу так, как её отдаёт API.
// Пустой ID означает черновик, ещё не сохранённый на сервере.
type Issue struct {
	ID          string        `json:"id,omitempty"`
	ProjectID   string        `json:"projectId,omitempty"`
	Title       string        `json:"title" validate:"required,max=60"`
	Description string        `json:"description,omitempty"`
	Type        IssueType     `json:"type" validate:"required,oneof=task subtask bug story epic"`
	Status      IssueStatus   `json:"status" validate:"required,oneof=draft todo on_progress done"`
	Priority    IssuePriority `json:"priority" validate:"required,oneof=highest high medium low lowest"`
	AssigneeID  string        `json:"assigneeId,omitempty"`
	ReporterID  string        `json:"reporterId,omitempty"`
	Label       string        `json:"label,omitempty"`
	Goal        string        `json:"goal,omitempty"`
	StartDate   *time.Time    `json:"startDate,omitempty"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	DoneDate    *time.Time    `json:"doneDate,omitempty"`
	Order       int           `json:"order"`
	Parents     string        `json:"parents,omitempty"`
	Progress    int           `json:"progress,omitempty"`
	CreatedAt   time.Time     `json:"createdAt,omitzero"`
	UpdatedAt   time.Time     `json:"updatedAt,omitzero"`

	Assignee *User `json:"assignee,omitempty"`
}

// User минимальные сведения о пользователе, которые приходят вместе с задачей.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// IsDraft сообщает, что задача ещё не получила ID от сервера.
func (i Issue) IsDraft() bool {
	return i.ID == ""
}

// HasParent сообщает, что задача является дочерней.
func (i Issue) HasParent() bool {
	return i.Parents != ""
}

// DisplayName имя задачи для уведомлений.
func (i Issue) DisplayName() string {
	if i.Title != "" {
		return i.Title
	}
	if i.ID != "" {
		return i.ID
	}
	return "untitled issue"
}

// Matches сообщает, что local - это та же задача, что и i, пришедшая с сервера.
// Черновик без ID сопоставляется по названию.
func (i Issue) Matches(local Issue) bool {
	if local.ID != "" {
		return local.ID == i.ID
	}
	return local.Title == i.Title
}
