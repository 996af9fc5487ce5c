package models

// AssigneeStats статистика по исполнителю для отчёта.
type AssigneeStats struct {
	Name       string
	InProgress int
	DoneToday  int
	Backlog    int
}
