package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/DevN0mad/IssueSync/internal/models"
)

// ErrNoData сервер ответил без данных. Считается ошибкой независимо от HTTP-статуса.
var ErrNoData = errors.New("response has no data")

// APIError ошибка, которую вернул API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.Code)
	}
	return e.Message
}

// UserMessage текст ошибки от сервера для показа пользователю.
func (e *APIError) UserMessage() string {
	return e.Message
}

// IssueAPIOpts параметры подключения к API задач.
type IssueAPIOpts struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	ApiToken       string        `mapstructure:"api_token" validate:"required"`
	ProjectID      string        `mapstructure:"project_id"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"min=0"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" validate:"min=0"`
	Burst          int           `mapstructure:"burst" validate:"min=0"`
}

// IssueService клиент REST API задач.
type IssueService struct {
	opts    IssueAPIOpts
	logger  *slog.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewIssueService создаёт клиент API задач.
func NewIssueService(opts IssueAPIOpts, logger *slog.Logger) *IssueService {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSec * 2)
		}
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &IssueService{
		opts:    opts,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// ProjectID возвращает активный проект клиента.
func (s *IssueService) ProjectID() string {
	return s.opts.ProjectID
}

// ListIssues получает задачи верхнего уровня проекта или дочерние задачи parentID.
func (s *IssueService) ListIssues(ctx context.Context, parentID string) ([]models.Issue, error) {
	path := "/issue"
	if parentID != "" {
		path += "?id=" + url.QueryEscape(parentID)
	}

	var issues []models.Issue
	if err := s.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}

// ListBoardIssues получает задачи для доски с фильтром.
func (s *IssueService) ListBoardIssues(ctx context.Context, filter models.IssueFilter) ([]models.Issue, error) {
	var issues []models.Issue
	if err := s.do(ctx, http.MethodPost, "/issue/board", filter, &issues); err != nil {
		return nil, fmt.Errorf("list board issues: %w", err)
	}
	return issues, nil
}

// ListRecentIssues получает задачи для аналитики.
func (s *IssueService) ListRecentIssues(ctx context.Context) ([]models.Issue, error) {
	var issues []models.Issue
	if err := s.do(ctx, http.MethodGet, "/issue/analytic", nil, &issues); err != nil {
		return nil, fmt.Errorf("list recent issues: %w", err)
	}
	return issues, nil
}

// GetIssue получает задачу по ID.
func (s *IssueService) GetIssue(ctx context.Context, id string) (models.Issue, error) {
	var issue models.Issue
	if err := s.do(ctx, http.MethodGet, "/issue/"+url.PathEscape(id), nil, &issue); err != nil {
		return models.Issue{}, fmt.Errorf("get issue %s: %w", id, err)
	}
	return issue, nil
}

// UpsertIssue создаёт задачу (пустой ID) или обновляет существующую.
func (s *IssueService) UpsertIssue(ctx context.Context, issue models.Issue) (models.Issue, error) {
	var saved models.Issue
	if err := s.do(ctx, http.MethodPost, "/issue", issue, &saved); err != nil {
		return models.Issue{}, fmt.Errorf("upsert issue %q: %w", issue.DisplayName(), err)
	}
	return saved, nil
}

// DeleteIssue удаляет задачу.
func (s *IssueService) DeleteIssue(ctx context.Context, id string) error {
	if err := s.do(ctx, http.MethodDelete, "/issue/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete issue %s: %w", id, err)
	}
	return nil
}

// MoveParent переносит задачу id под родителя parentID.
func (s *IssueService) MoveParent(ctx context.Context, id, parentID string) (models.Issue, error) {
	body := map[string]string{"id": id, "parents": parentID}

	var moved models.Issue
	if err := s.do(ctx, http.MethodPost, "/issue/move", body, &moved); err != nil {
		return models.Issue{}, fmt.Errorf("move issue %s to %s: %w", id, parentID, err)
	}
	return moved, nil
}

// RemoveParent отвязывает задачу от родителя.
func (s *IssueService) RemoveParent(ctx context.Context, id string) (models.Issue, error) {
	var detached models.Issue
	if err := s.do(ctx, http.MethodDelete, "/issue/parent/"+url.PathEscape(id), nil, &detached); err != nil {
		return models.Issue{}, fmt.Errorf("remove parent of %s: %w", id, err)
	}
	return detached, nil
}

// UpdateOrder сдвигает задачу в бэклоге и возвращает задачи с изменённым порядком.
func (s *IssueService) UpdateOrder(ctx context.Context, id string, direction models.MoveDirection) ([]models.Issue, error) {
	if !direction.IsValid() {
		return nil, fmt.Errorf("invalid move direction: %q", direction)
	}
	body := map[string]string{"id": id, "direction": string(direction)}

	var issues []models.Issue
	if err := s.do(ctx, http.MethodPost, "/issue/order", body, &issues); err != nil {
		return nil, fmt.Errorf("update order of %s: %w", id, err)
	}
	return issues, nil
}

// ListItems получает вложения задачи.
func (s *IssueService) ListItems(ctx context.Context, issueID string) ([]models.IssueItem, error) {
	var items []models.IssueItem
	if err := s.do(ctx, http.MethodGet, itemsPath(issueID), nil, &items); err != nil {
		return nil, fmt.Errorf("list items of %s: %w", issueID, err)
	}
	return items, nil
}

// CreateItem добавляет вложение к задаче.
func (s *IssueService) CreateItem(ctx context.Context, issueID string, item models.IssueItem) (models.IssueItem, error) {
	item.ID = ""

	var created models.IssueItem
	if err := s.do(ctx, http.MethodPost, itemsPath(issueID)+"/create", item, &created); err != nil {
		return models.IssueItem{}, fmt.Errorf("create item of %s: %w", issueID, err)
	}
	return created, nil
}

// DeleteItem удаляет вложение задачи.
func (s *IssueService) DeleteItem(ctx context.Context, issueID, itemID string) error {
	path := itemsPath(issueID) + "/" + url.PathEscape(itemID)
	if err := s.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete item %s: %w", itemID, err)
	}
	return nil
}

// ListActivities получает журнал изменений задачи.
func (s *IssueService) ListActivities(ctx context.Context, issueID string) ([]models.Activity, error) {
	var activities []models.Activity
	path := "/issue/" + url.PathEscape(issueID) + "/activity"
	if err := s.do(ctx, http.MethodGet, path, nil, &activities); err != nil {
		return nil, fmt.Errorf("list activities of %s: %w", issueID, err)
	}
	return activities, nil
}

// do выполняет запрос и раскладывает поле data ответа в out.
// При out == nil данные в ответе не требуются.
func (s *IssueService) do(ctx context.Context, method, path string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.opts.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.ApiToken)
	req.Header.Set("Content-Type", "application/json")
	if s.opts.ProjectID != "" {
		req.Header.Set("X-Project-Id", s.opts.ProjectID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope models.Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		s.logger.Debug("API error", "method", method, "path", path, "code", resp.StatusCode, "error", msg)
		return &APIError{Code: resp.StatusCode, Message: msg}
	}

	if envelope.Error != "" {
		s.logger.Debug("API error", "method", method, "path", path, "code", resp.StatusCode, "error", envelope.Error)
		return &APIError{Code: resp.StatusCode, Message: envelope.Error}
	}

	// Удаления не возвращают данных: для них успех - это 2xx без поля error.
	if out == nil {
		return nil
	}

	if !envelope.HasData() {
		return ErrNoData
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func itemsPath(issueID string) string {
	return "/issue/" + url.PathEscape(issueID) + "/item"
}
