package views

import (
	"time"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

// TimeUnit шаг шкалы таймлайна.
type TimeUnit string

const (
	UnitDay     TimeUnit = "day"
	UnitWeek    TimeUnit = "week"
	UnitMonth   TimeUnit = "month"
	UnitQuarter TimeUnit = "quarter"
)

func (u TimeUnit) IsValid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitQuarter:
		return true
	}
	return false
}

// Truncate возвращает начало шага, в который попадает t. Неделя начинается с понедельника.
func (u TimeUnit) Truncate(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch u {
	case UnitWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case UnitMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case UnitQuarter:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
	}
	return day
}

// TimelineOptions настройки таймлайна. Сохраняются между запусками.
type TimelineOptions struct {
	ShowPanel         bool     `json:"showPanel"`
	TimeUnit          TimeUnit `json:"timeUnit,omitempty"`
	ShowEmptyDate     bool     `json:"showEmptyDate,omitempty"`
	ShowDayOnTimeline bool     `json:"showDayOnTimeline,omitempty"`
}

// DefaultTimelineOptions панель видна, шаг - неделя.
func DefaultTimelineOptions() TimelineOptions {
	return TimelineOptions{ShowPanel: true, TimeUnit: UnitWeek}
}

// Unit шаг шкалы, неделя если не задан.
func (o TimelineOptions) Unit() TimeUnit {
	if o.TimeUnit.IsValid() {
		return o.TimeUnit
	}
	return UnitWeek
}

// Window диапазон таймлайна по умолчанию: три месяца до и после now.
func Window(now time.Time) (from, to time.Time) {
	return now.AddDate(0, -3, 0), now.AddDate(0, 3, 0)
}

// Bar полоса задачи на таймлайне. Конец - срок, а без срока - дата завершения.
type Bar struct {
	Issue models.Issue `json:"issue"`
	Start *time.Time   `json:"start,omitempty"`
	End   *time.Time   `json:"end,omitempty"`
}

// Scheduled сообщает, что у полосы есть обе даты.
func (b Bar) Scheduled() bool {
	return b.Start != nil && b.End != nil
}

// Timeline строит полосы. Задачи без дат показываются только при ShowEmptyDate.
// Порядок: по приоритету или по дате создания, старые первыми.
func Timeline(issues []models.Issue, opts TimelineOptions, mode SortMode, search string) []Bar {
	sorted := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if Match(issue, search) {
			sorted = append(sorted, issue)
		}
	}
	sortIssues(sorted, mode, func(a, b models.Issue) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	})

	bars := make([]Bar, 0, len(sorted))
	for _, issue := range sorted {
		bar := Bar{Issue: issue, Start: issue.StartDate, End: issue.DueDate}
		if bar.End == nil {
			bar.End = issue.DoneDate
		}
		if !bar.Scheduled() && !opts.ShowEmptyDate {
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

// Reschedule переносит полосу задачи на новые даты. Изменение видно сразу,
// сохранение идёт через c.
func Reschedule(c *syncer.Collection, issue models.Issue, start, due time.Time) <-chan syncer.Result {
	issue.StartDate = &start
	issue.DueDate = &due
	return c.Put(issue)
}
