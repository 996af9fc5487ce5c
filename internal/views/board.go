// Package views строит представления коллекции задач: доску по статусам и таймлайн.
package views

import (
	"slices"
	"sort"
	"strings"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

// SortMode порядок задач внутри колонки.
type SortMode string

const (
	SortDate     SortMode = "date"
	SortPriority SortMode = "priority"
)

func (m SortMode) IsValid() bool {
	return m == SortDate || m == SortPriority
}

// BoardOptions настройки доски. Сохраняются между запусками.
type BoardOptions struct {
	// FilterStatus скрытые колонки.
	FilterStatus []models.IssueStatus `json:"filterStatus"`
	ShowAssignee bool                 `json:"showAssignee,omitempty"`
	ShowTask     bool                 `json:"showTask"`
	ShowSubtask  bool                 `json:"showSubtask"`
	HideBug      bool                 `json:"hideBug,omitempty"`
	HideStory    bool                 `json:"hideStory,omitempty"`
	HideEpic     bool                 `json:"hideEpic,omitempty"`
}

// DefaultBoardOptions показывает задачи и подзадачи, колонка черновиков скрыта.
func DefaultBoardOptions() BoardOptions {
	return BoardOptions{
		FilterStatus: []models.IssueStatus{models.IssueStatusDraft},
		ShowTask:     true,
		ShowSubtask:  true,
	}
}

// Hidden сообщает, что колонка status скрыта.
func (o BoardOptions) Hidden(status models.IssueStatus) bool {
	return slices.Contains(o.FilterStatus, status)
}

// ToggleStatus скрывает колонку status или снова показывает её.
func (o BoardOptions) ToggleStatus(status models.IssueStatus) BoardOptions {
	if o.Hidden(status) {
		o.FilterStatus = slices.DeleteFunc(slices.Clone(o.FilterStatus), func(s models.IssueStatus) bool {
			return s == status
		})
		return o
	}
	o.FilterStatus = append(slices.Clone(o.FilterStatus), status)
	return o
}

// visible проверяет фильтры по типу задачи.
func (o BoardOptions) visible(issue models.Issue) bool {
	if !o.ShowTask && (!issue.HasParent() || issue.Type == models.IssueTypeTask) {
		return false
	}
	if !o.ShowSubtask && (issue.HasParent() || issue.Type == models.IssueTypeSubtask) {
		return false
	}
	switch {
	case o.HideBug && issue.Type == models.IssueTypeBug,
		o.HideStory && issue.Type == models.IssueTypeStory,
		o.HideEpic && issue.Type == models.IssueTypeEpic:
		return false
	}
	return true
}

// Column колонка доски.
type Column struct {
	Status models.IssueStatus `json:"status"`
	Issues []models.Issue     `json:"issues"`
}

// GroupBoard раскладывает задачи по видимым колонкам в порядке статусов.
func GroupBoard(issues []models.Issue, opts BoardOptions, mode SortMode, search string) []Column {
	columns := make([]Column, 0, len(models.IssueStatuses))
	index := make(map[models.IssueStatus]int, len(models.IssueStatuses))
	for _, status := range models.IssueStatuses {
		if opts.Hidden(status) {
			continue
		}
		index[status] = len(columns)
		columns = append(columns, Column{Status: status, Issues: []models.Issue{}})
	}

	for _, issue := range issues {
		i, ok := index[issue.Status]
		if !ok || !opts.visible(issue) || !Match(issue, search) {
			continue
		}
		columns[i].Issues = append(columns[i].Issues, issue)
	}

	for i := range columns {
		sortIssues(columns[i].Issues, mode, byUpdatedDesc)
	}
	return columns
}

// Drop переносит задачу в колонку status. Если статус не меняется, ничего не делает
// и возвращает false. Иначе задача сразу меняет колонку, а сохранение идёт через c.
func Drop(c *syncer.Collection, issue models.Issue, status models.IssueStatus) (<-chan syncer.Result, bool) {
	if issue.Status == status || !status.IsValid() {
		return nil, false
	}
	issue.Status = status
	return c.Put(issue), true
}

// Match ищет query без учёта регистра в названии, типе, статусе и имени исполнителя.
func Match(issue models.Issue, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}

	fields := []string{issue.Title, string(issue.Type), string(issue.Status)}
	if issue.Assignee != nil {
		fields = append(fields, issue.Assignee.Name)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func priorityRank(p models.IssuePriority) int {
	if rank := p.Rank(); rank >= 0 {
		return rank
	}
	return models.IssuePriorityMedium.Rank()
}

func byUpdatedDesc(a, b models.Issue) bool {
	return a.UpdatedAt.After(b.UpdatedAt)
}

func sortIssues(issues []models.Issue, mode SortMode, byDate func(a, b models.Issue) bool) {
	if mode == SortPriority {
		sort.SliceStable(issues, func(i, j int) bool {
			return priorityRank(issues[i].Priority) < priorityRank(issues[j].Priority)
		})
		return
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return byDate(issues[i], issues[j])
	})
}
