package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/review"
)

// ReviewServiceInterface は後記ハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	CheckEligibility(ctx context.Context, postID, accountID string) (review.Decision, error)
	Submit(ctx context.Context, postID, accountID, content string) (*model.Review, error)
	ListByPost(ctx context.Context, postID string) ([]*model.Review, error)
}

// ReviewHandler は後記のHTTPハンドラー。
type ReviewHandler struct {
	accounts AccountEnsurer
	reviews  ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(accounts AccountEnsurer, reviews ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{accounts: accounts, reviews: reviews}
}

type reviewRequest struct {
	Content string `json:"content"`
}

type reviewResponse struct {
	ID         string    `json:"id"`
	PostID     string    `json:"post_id"`
	AccountID  string    `json:"account_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Eligibility は後記を作成できるかを返す。
// GET /api/posts/{id}/review-eligibility
func (h *ReviewHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := ensureActor(w, r, h.accounts)
	if !ok {
		return
	}

	decision, err := h.reviews.CheckEligibility(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// List は投稿の後記一覧を返す。
// GET /api/posts/{id}/reviews
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListByPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		resp = append(resp, toReviewResponse(rv))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は後記を作成する。
// POST /api/posts/{id}/reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rv, err := h.reviews.Submit(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(rv))
}

func toReviewResponse(rv *model.Review) reviewResponse {
	return reviewResponse{
		ID:         rv.ID,
		PostID:     rv.PostID,
		AccountID:  rv.AccountID,
		AuthorName: rv.AuthorName,
		Content:    rv.Content,
		CreatedAt:  rv.CreatedAt,
	}
}
