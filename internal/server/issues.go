package server

import (
	"errors"
	"net/http"

	"github.com/DevN0mad/IssueSync/internal/models"
	"github.com/DevN0mad/IssueSync/internal/notify"
	"github.com/DevN0mad/IssueSync/internal/services"
	"github.com/DevN0mad/IssueSync/internal/syncer"
)

type issueDetail struct {
	Issue    models.Issue       `json:"issue"`
	Children []models.Issue     `json:"children"`
	Items    []models.IssueItem `json:"items"`
}

// openDetail загружает карточку задачи. При ошибке ответ уже записан.
func (h *AdminServer) openDetail(w http.ResponseWriter, r *http.Request) (*syncer.Detail, bool) {
	if h.deps.NewDetail == nil {
		h.writeError(w, http.StatusNotImplemented, "Issue detail is not configured")
		return nil, false
	}

	d := h.deps.NewDetail()
	if _, err := d.Load(r.Context(), r.PathValue("id")); err != nil {
		d.Close()
		h.writeError(w, detailStatus(err), notify.ErrorText(err, "Failed to load issue"))
		return nil, false
	}
	return d, true
}

func (h *AdminServer) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	d, ok := h.openDetail(w, r)
	if !ok {
		return
	}
	defer d.Close()

	issue, _ := d.Issue()
	h.writeJSON(w, http.StatusOK, issueDetail{
		Issue:    issue,
		Children: d.Children().Issues(),
		Items:    d.Items(),
	})
}

func (h *AdminServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	d, ok := h.openDetail(w, r)
	if !ok {
		return
	}
	defer d.Close()

	activities, err := d.Activities(r.Context())
	if err != nil {
		h.logger.Error("Failed to load activities", "issue_id", r.PathValue("id"), "error", err)
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to load activities"))
		return
	}
	h.writeJSON(w, http.StatusOK, activities)
}

// handleAddLink сохраняет веб-ссылку. Незаполненные поля дают 400 без запроса к API.
func (h *AdminServer) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var in models.WebLinkInput
	if err := decodeBody(r, &in); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, ok := h.openDetail(w, r)
	if !ok {
		return
	}
	defer d.Close()

	draftID := d.AddDraftLink()
	d.EditDraftLink(draftID, in)

	item, err := d.SaveLink(r.Context(), draftID)
	if err != nil {
		var verr *syncer.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, verr.UserMessage())
			return
		}
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to add web link"))
		return
	}
	h.writeJSON(w, http.StatusCreated, item)
}

func (h *AdminServer) handleDeleteIssue(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cascade == nil {
		h.writeError(w, http.StatusNotImplemented, "Delete is not configured")
		return
	}

	issue, ok := h.findIssue(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "Issue not found")
		return
	}

	if err := h.deps.Cascade.Delete(r.Context(), issue, h.deps.Backlog, h.deps.Board); err != nil {
		if errors.Is(err, syncer.ErrDeleteNotAllowed) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to delete issue"))
		return
	}
	h.writeJSON(w, http.StatusOK, issue)
}

func (h *AdminServer) handleOrder(w http.ResponseWriter, r *http.Request) {
	if h.deps.Orderer == nil {
		h.writeError(w, http.StatusNotImplemented, "Ordering is not configured")
		return
	}

	var body struct {
		Direction models.MoveDirection `json:"direction"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.Direction.IsValid() {
		h.writeError(w, http.StatusBadRequest, "Invalid direction")
		return
	}

	if err := syncer.MoveOrder(r.Context(), h.deps.Orderer, h.deps.Backlog, r.PathValue("id"), body.Direction); err != nil {
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to change order"))
		return
	}
	h.writeJSON(w, http.StatusOK, h.deps.Backlog.Issues())
}

// handleReparent делает задачу дочерней. Из списка верхнего уровня она пропадает.
func (h *AdminServer) handleReparent(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cascade == nil {
		h.writeError(w, http.StatusNotImplemented, "Parent changes are not configured")
		return
	}

	var body struct {
		ParentID string `json:"parentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.ParentID == "" || body.ParentID == r.PathValue("id") {
		h.writeError(w, http.StatusBadRequest, "Invalid parent")
		return
	}

	moved, err := h.deps.Cascade.Reparent(r.Context(), r.PathValue("id"), body.ParentID, h.deps.Backlog, nil)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to move issue"))
		return
	}
	h.deps.Board.ReplaceIssue(moved)
	h.writeJSON(w, http.StatusOK, moved)
}

// handleDetach отвязывает задачу от родителя и возвращает её в список верхнего уровня.
func (h *AdminServer) handleDetach(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cascade == nil {
		h.writeError(w, http.StatusNotImplemented, "Parent changes are not configured")
		return
	}

	prior, _ := h.deps.Board.Get(r.PathValue("id"))

	detached, err := h.deps.Cascade.Detach(r.Context(), r.PathValue("id"), nil, h.deps.Backlog)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, notify.ErrorText(err, "Failed to remove parent"))
		return
	}
	h.deps.Board.ReplaceIssue(detached)
	_, _ = h.deps.Cascade.RefreshParent(r.Context(), prior.Parents)
	h.writeJSON(w, http.StatusOK, detached)
}

func (h *AdminServer) findIssue(id string) (models.Issue, bool) {
	if issue, ok := h.deps.Backlog.Get(id); ok {
		return issue, true
	}
	return h.deps.Board.Get(id)
}

func detailStatus(err error) int {
	if errors.Is(err, syncer.ErrForeignProject) {
		return http.StatusForbidden
	}
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
