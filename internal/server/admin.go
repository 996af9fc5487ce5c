package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/storage"
	"github.com/DevN0mad/IssueSync/internal/syncer"
	"github.com/DevN0mad/IssueSync/internal/views"
)

const APIv1Prefix = "/api/v1/"

// Ключи сохранённых настроек представлений.
const (
	PrefBoardOptions    = "board.options"
	PrefBoardSort       = "board.sort"
	PrefTimelineOptions = "timeline.options"
	PrefTimelineSort    = "timeline.sort"
)

const maxBodyBytes = 1 << 20

// AdminServerOpts параметры для настройки административного сервера.
type AdminServerOpts struct {
	Address             string `mapstructure:"address" validate:"required"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds" validate:"min=0"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" validate:"min=0"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds" validate:"min=0"`
}

// Reporter пишет xlsx отчёт по задачам.
type Reporter interface {
	Write(w io.Writer, issues []models.Issue) error
}

// PreferenceStore хранилище настроек представлений.
type PreferenceStore interface {
	LoadPreference(ctx context.Context, key string, out any) error
	SavePreference(ctx context.Context, key string, value any) error
}

// Deps зависимости сервера. Prefs и Notifications необязательны.
type Deps struct {
	Backlog       *syncer.Collection
	Board         *syncer.Collection
	Cascade       *syncer.Cascade
	Orderer       syncer.Orderer
	NewDetail     func() *syncer.Detail
	Reporter      Reporter
	Prefs         PreferenceStore
	Notifications *notify.Recorder
}

// AdminServer локальный HTTP API поверх синхронизированных коллекций.
type AdminServer struct {
	logger   *slog.Logger
	opts     *AdminServerOpts
	deps     Deps
	validate *validator.Validate
	srv      *http.Server
}

// NewAdminServer создаёт административный сервер.
func NewAdminServer(logger *slog.Logger, deps Deps, opts *AdminServerOpts) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminServer{
		logger:   logger,
		opts:     opts,
		deps:     deps,
		validate: validator.New(),
	}
}

// Register регистрирует маршруты административного сервера.
func (h *AdminServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+withPrefix("health"), h.handleHealth)
	mux.HandleFunc("GET "+withPrefix("issues"), h.handleListIssues)
	mux.HandleFunc("PUT "+withPrefix("issues"), h.handlePutIssue)
	mux.HandleFunc("GET "+withPrefix("issues/{id}"), h.handleGetIssue)
	mux.HandleFunc("DELETE "+withPrefix("issues/{id}"), h.handleDeleteIssue)
	mux.HandleFunc("POST "+withPrefix("issues/{id}/status"), h.handleStatus)
	mux.HandleFunc("POST "+withPrefix("issues/{id}/order"), h.handleOrder)
	mux.HandleFunc("POST "+withPrefix("issues/{id}/parent"), h.handleReparent)
	mux.HandleFunc("DELETE "+withPrefix("issues/{id}/parent"), h.handleDetach)
	mux.HandleFunc("POST "+withPrefix("issues/{id}/links"), h.handleAddLink)
	mux.HandleFunc("GET "+withPrefix("issues/{id}/activity"), h.handleActivity)
	mux.HandleFunc("GET "+withPrefix("board"), h.handleBoard)
	mux.HandleFunc("PUT "+withPrefix("board/options"), h.handleBoardOptions)
	mux.HandleFunc("GET "+withPrefix("timeline"), h.handleTimeline)
	mux.HandleFunc("PUT "+withPrefix("timeline/options"), h.handleTimelineOptions)
	mux.HandleFunc("GET "+withPrefix("report"), h.handleReport)
	mux.HandleFunc("GET "+withPrefix("notifications"), h.handleNotifications)
	mux.HandleFunc("POST "+withPrefix("flush"), h.handleFlush)
}

// Handler возвращает обработчик со всеми маршрутами.
func (h *AdminServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

type response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminServer) handleListIssues(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	issues := make([]models.Issue, 0)
	for _, issue := range h.deps.Backlog.Issues() {
		if views.Match(issue, search) {
			issues = append(issues, issue)
		}
	}
	h.writeJSON(w, http.StatusOK, issues)
}

// handlePutIssue применяет правку сразу и отвечает 202, не дожидаясь сервера.
func (h *AdminServer) handlePutIssue(w http.ResponseWriter, r *http.Request) {
	var issue models.Issue
	if err := decodeBody(r, &issue); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.validate.Struct(issue); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	_ = h.deps.Backlog.Put(issue)
	h.logger.Debug("Issue edit accepted", "issue_id", issue.ID, "title", issue.Title)
	h.writeJSON(w, http.StatusAccepted, issue)
}

func (h *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Status models.IssueStatus `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.Status.IsValid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", body.Status))
		return
	}

	issue, ok := h.deps.Board.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "Issue not found")
		return
	}

	if _, moved := views.Drop(h.deps.Board, issue, body.Status); !moved {
		h.writeJSON(w, http.StatusOK, issue)
		return
	}

	issue, _ = h.deps.Board.Get(id)
	h.writeJSON(w, http.StatusAccepted, issue)
}

func (h *AdminServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := views.DefaultBoardOptions()
	h.loadPref(ctx, PrefBoardOptions, &opts)
	mode := h.sortMode(r, PrefBoardSort)

	columns := views.GroupBoard(h.deps.Board.Issues(), opts, mode, r.URL.Query().Get("search"))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sort":    mode,
		"options": opts,
		"columns": columns,
	})
}

func (h *AdminServer) handleBoardOptions(w http.ResponseWriter, r *http.Request) {
	var opts views.BoardOptions
	if err := decodeBody(r, &opts); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, status := range opts.FilterStatus {
		if !status.IsValid() {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
			return
		}
	}
	h.savePref(w, r, PrefBoardOptions, opts)
}

func (h *AdminServer) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts := views.DefaultTimelineOptions()
	h.loadPref(ctx, PrefTimelineOptions, &opts)
	mode := h.sortMode(r, PrefTimelineSort)

	from, to := views.Window(time.Now())
	bars := views.Timeline(h.deps.Board.Issues(), opts, mode, r.URL.Query().Get("search"))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sort":    mode,
		"unit":    opts.Unit(),
		"from":    opts.Unit().Truncate(from),
		"to":      to,
		"options": opts,
		"bars":    bars,
	})
}

func (h *AdminServer) handleTimelineOptions(w http.ResponseWriter, r *http.Request) {
	var opts views.TimelineOptions
	if err := decodeBody(r, &opts); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if opts.TimeUnit != "" && !opts.TimeUnit.IsValid() {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid time unit %q", opts.TimeUnit))
		return
	}
	h.savePref(w, r, PrefTimelineOptions, opts)
}

// handleReport отдаёт xlsx отчёт по текущему содержимому доски.
func (h *AdminServer) handleReport(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Reporter == nil {
		h.writeError(w, http.StatusNotImplemented, "Report is not configured")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="issues_report.xlsx"`)
	if err := h.deps.Reporter.Write(w, h.deps.Board.Issues()); err != nil {
		h.logger.Error("Generate report", "error", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
	}
}

func (h *AdminServer) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Notifications == nil {
		h.writeJSON(w, http.StatusOK, []notify.Message{})
		return
	}
	h.writeJSON(w, http.StatusOK, h.deps.Notifications.Messages())
}

func (h *AdminServer) handleFlush(w http.ResponseWriter, _ *http.Request) {
	h.deps.Backlog.Flush()
	h.deps.Board.Flush()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// Start запускает административный сервер.
func (h *AdminServer) Start(ctx context.Context) error {
	h.logger.Info("Starting admin server", "address", h.opts.Address)
	h.srv = &http.Server{
		Addr:         h.opts.Address,
		ReadTimeout:  time.Duration(h.opts.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(h.opts.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(h.opts.IdleTimeoutSeconds) * time.Second,
		Handler:      h.Handler(),
	}

	go func() {
		<-ctx.Done()

		h.logger.Info("Shutting down admin server (ctx canceled)")

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Admin server shutdown error", "error", err)
		}
	}()

	if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.logger.Error("Admin server error", "error", err)
		return err
	}

	h.logger.Info("Admin server stopped")
	return nil
}

func (h *AdminServer) sortMode(r *http.Request, key string) views.SortMode {
	if mode := views.SortMode(r.URL.Query().Get("sort")); mode.IsValid() {
		if err := h.savePrefValue(r.Context(), key, mode); err != nil {
			h.logger.Warn("Failed to save sort mode", "key", key, "error", err)
		}
		return mode
	}

	mode := views.SortDate
	h.loadPref(r.Context(), key, &mode)
	if !mode.IsValid() {
		return views.SortDate
	}
	return mode
}

func (h *AdminServer) loadPref(ctx context.Context, key string, out any) {
	if h.deps.Prefs == nil {
		return
	}
	if err := h.deps.Prefs.LoadPreference(ctx, key, out); err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Warn("Failed to load preference", "key", key, "error", err)
	}
}

func (h *AdminServer) savePrefValue(ctx context.Context, key string, value any) error {
	if h.deps.Prefs == nil {
		return nil
	}
	return h.deps.Prefs.SavePreference(ctx, key, value)
}

func (h *AdminServer) savePref(w http.ResponseWriter, r *http.Request, key string, value any) {
	if err := h.savePrefValue(r.Context(), key, value); err != nil {
		h.logger.Error("Failed to save preference", "key", key, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save options")
		return
	}
	h.writeJSON(w, http.StatusOK, value)
}

func (h *AdminServer) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response{Data: data}); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

func (h *AdminServer) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response{Error: msg}); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "Invalid fields: " + strings.Join(fields, ", ")
}

// withPrefix добавляет префикс к пути API.
func withPrefix(postfix string) string {
	return APIv1Prefix + strings.TrimSpace(postfix)
}
