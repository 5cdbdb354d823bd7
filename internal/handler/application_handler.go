package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// ApplicationEngineInterface は参加申請ハンドラーが必要とするライフサイクル操作。
type ApplicationEngineInterface interface {
	Submit(ctx context.Context, postID, accountID string) (*model.Application, error)
	SetStatusAs(ctx context.Context, actor *model.Account, applicationID string, status model.ApplicationStatus) (*model.Application, error)
	CancelAs(ctx context.Context, actor *model.Account, applicationID string) error
}

// ApplicationHandler は参加申請のHTTPハンドラー。
type ApplicationHandler struct {
	accounts AccountEnsurer
	engine   ApplicationEngineInterface
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(accounts AccountEnsurer, engine ApplicationEngineInterface) *ApplicationHandler {
	return &ApplicationHandler{accounts: accounts, engine: engine}
}

type statusRequest struct {
	Status string `json:"status"`
}

type applicationResponse struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AccountID string    `json:"account_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submit は投稿に参加申請する。
// POST /api/posts/{id}/applications
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	app, err := h.engine.Submit(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// SetStatus は申請を承認または却下する。
// PUT /api/applications/{id}/status
func (h *ApplicationHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	app, err := h.engine.SetStatusAs(r.Context(), actor, chi.URLParam(r, "id"), model.ApplicationStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Cancel は申請を取り消す。
// DELETE /api/applications/{id}
func (h *ApplicationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	if err := h.engine.CancelAs(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toApplicationResponse(app *model.Application) applicationResponse {
	return applicationResponse{
		ID:        app.ID,
		PostID:    app.PostID,
		AccountID: app.AccountID,
		Status:    string(app.Status.Normalize()),
		CreatedAt: app.CreatedAt,
		UpdatedAt: app.UpdatedAt,
	}
}
