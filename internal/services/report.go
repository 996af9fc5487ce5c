package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DevN0mad/IssueSync/internal/models"
)

const (
	sheetIssues    = "Issues"
	sheetAssignees = "Assignees"
	sheetSummary   = "Summary"
)

// ReportOpts параметры отчёта.
type ReportOpts struct {
	SaveDir  string `mapstructure:"save_dir" validate:"required"`
	FileName string `mapstructure:"file_name"`
}

// IssueLister источник задач для отчёта.
type IssueLister interface {
	ListRecentIssues(ctx context.Context) ([]models.Issue, error)
}

// ReportService строит xlsx отчёт по задачам проекта.
type ReportService struct {
	opts   ReportOpts
	source IssueLister
	logger *slog.Logger
	now    func() time.Time
}

// NewReportService создаёт сервис отчётов. source может быть nil,
// тогда доступны только Save и Write по готовому списку задач.
func NewReportService(source IssueLister, opts ReportOpts, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		opts:   opts,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Generate получает задачи из API и сохраняет отчёт. Возвращает путь к файлу.
func (s *ReportService) Generate(ctx context.Context) (string, error) {
	if s.source == nil {
		return "", fmt.Errorf("generate report: issue source is not configured")
	}

	issues, err := s.source.ListRecentIssues(ctx)
	if err != nil {
		return "", fmt.Errorf("generate report: %w", err)
	}
	return s.Save(issues)
}

// Save сохраняет отчёт по issues в каталог отчётов.
func (s *ReportService) Save(issues []models.Issue) (string, error) {
	f, err := s.build(issues)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := os.MkdirAll(s.opts.SaveDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(s.opts.SaveDir, s.fileName())
	s.logger.Info("Saving Excel file", "path", path, "issues", len(issues))
	if err := f.SaveAs(path); err != nil {
		s.logger.Error("Failed to save report", "path", path, "error", err)
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

// Write пишет отчёт по issues в w.
func (s *ReportService) Write(w io.Writer, issues []models.Issue) error {
	f, err := s.build(issues)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// fileName имя файла отчёта за текущий день.
func (s *ReportService) fileName() string {
	if s.opts.FileName != "" {
		return s.opts.FileName
	}
	return fmt.Sprintf("issues_report_%s.xlsx", s.now().Format("2006-01-02"))
}

func (s *ReportService) build(issues []models.Issue) (*excelize.File, error) {
	f := excelize.NewFile()

	if _, err := f.NewSheet(sheetIssues); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	if err := writeIssuesSheet(f, issues); err != nil {
		return nil, err
	}

	stats := CalculateAssigneeStats(issues, s.now())
	assigneeIndex, err := writeAssigneesSheet(f, stats)
	if err != nil {
		return nil, err
	}

	if err := writeSummarySheet(f, issues); err != nil {
		return nil, err
	}

	f.SetActiveSheet(assigneeIndex)
	s.logger.Debug("Report built", "issues", len(issues), "assignees", len(stats))
	return f, nil
}

func writeIssuesSheet(f *excelize.File, issues []models.Issue) error {
	headers := []any{
		"ID", "Title", "Type", "Status", "Priority",
		"Assignee", "Parent", "Start date", "Due date", "Progress",
	}
	if err := f.SetSheetRow(sheetIssues, "A1", &headers); err != nil {
		return fmt.Errorf("write issues header: %w", err)
	}

	for i, issue := range issues {
		row := []any{
			issue.ID,
			issue.Title,
			string(issue.Type),
			issue.Status.Label(),
			string(issue.Priority),
			assigneeName(issue),
			issue.Parents,
			formatDate(issue.StartDate),
			formatDate(issue.DueDate),
			issue.Progress,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetIssues, cell, &row); err != nil {
			return fmt.Errorf("write issue %s: %w", issue.ID, err)
		}
	}

	for i := range headers {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetIssues, colName, colName, 20)
	}
	return nil
}

func writeAssigneesSheet(f *excelize.File, stats []models.AssigneeStats) (int, error) {
	index, err := f.NewSheet(sheetAssignees)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}

	headers := []any{"Assignee", "In progress", "Done today", "Backlog"}
	if err := f.SetSheetRow(sheetAssignees, "A1", &headers); err != nil {
		return 0, fmt.Errorf("write assignees header: %w", err)
	}

	for i, stat := range stats {
		row := []any{stat.Name, stat.InProgress, stat.DoneToday, stat.Backlog}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetAssignees, cell, &row); err != nil {
			return 0, fmt.Errorf("write assignee %s: %w", stat.Name, err)
		}
	}

	for i := range headers {
		colName, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetAssignees, colName, colName, 25)
	}
	return index, nil
}

func writeSummarySheet(f *excelize.File, issues []models.Issue) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headers := []any{"Group", "Value", "Count"}
	if err := f.SetSheetRow(sheetSummary, "A1", &headers); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	byStatus := make(map[models.IssueStatus]int)
	byPriority := make(map[models.IssuePriority]int)
	byType := make(map[models.IssueType]int)
	for _, issue := range issues {
		byStatus[issue.Status]++
		byPriority[issue.Priority]++
		byType[issue.Type]++
	}

	var rows [][]any
	for _, status := range models.IssueStatuses {
		rows = append(rows, []any{"Status", status.Label(), byStatus[status]})
	}
	for _, priority := range models.IssuePriorities {
		rows = append(rows, []any{"Priority", string(priority), byPriority[priority]})
	}
	for _, typ := range models.IssueTypes {
		rows = append(rows, []any{"Type", string(typ), byType[typ]})
	}
	rows = append(rows, []any{"Total", "", len(issues)})

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// CalculateAssigneeStats считает задачи в работе, завершённые сегодня и бэклог по исполнителям.
// Задачи без исполнителя не учитываются.
func CalculateAssigneeStats(issues []models.Issue, now time.Time) []models.AssigneeStats {
	statsMap := make(map[string]*models.AssigneeStats)
	today := now.Format("2006-01-02")

	for _, issue := range issues {
		name := assigneeName(issue)
		if name == "" {
			continue
		}

		stats, ok := statsMap[name]
		if !ok {
			stats = &models.AssigneeStats{Name: name}
			statsMap[name] = stats
		}

		switch issue.Status {
		case models.IssueStatusOnProgress:
			stats.InProgress++
		case models.IssueStatusDone:
			doneAt := issue.UpdatedAt
			if issue.DoneDate != nil {
				doneAt = *issue.DoneDate
			}
			if doneAt.In(now.Location()).Format("2006-01-02") == today {
				stats.DoneToday++
			}
		case models.IssueStatusTodo:
			stats.Backlog++
		}
	}

	stats := make([]models.AssigneeStats, 0, len(statsMap))
	for _, stat := range statsMap {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

func assigneeName(issue models.Issue) string {
	if issue.Assignee != nil && issue.Assignee.Name != "" {
		return issue.Assignee.Name
	}
	return issue.AssigneeID
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006")
}
