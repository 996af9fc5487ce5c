package models

import (
	"encoding/json"
	"time"
)

// ActivityType вид записи в журнале изменений.
type ActivityType string

const (
	ActivityIssueCreate         ActivityType = "issue_create"
	ActivityIssueUpdate         ActivityType = "issue_update"
	ActivityIssueDelete         ActivityType = "issue_delete"
	ActivityIssueMove           ActivityType = "issue_move"
	ActivityStatusChange        ActivityType = "status_change"
	ActivityIssueChildrenCreate ActivityType = "issue_children_create"
	ActivityIssueChildrenUpdate ActivityType = "issue_children_update"
	ActivityIssueChildrenDelete ActivityType = "issue_children_delete"
	ActivityIssueItemCreate     ActivityType = "issue_item_create"
	ActivityIssueItemUpdate     ActivityType = "issue_item_update"
	ActivityIssueItemDelete     ActivityType = "issue_item_delete"
)

// Activity неизменяемая запись об изменении задачи. Создаётся только сервером.
type Activity struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	ProjectID string          `json:"projectId,omitempty"`
	IssueID   string          `json:"issueId,omitempty"`
	ItemID    string          `json:"itemId,omitempty"`
	Type      ActivityType    `json:"type"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	User      *User           `json:"user,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
