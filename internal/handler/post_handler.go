package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, authorID string, in post.Input) (*model.Post, error)
	Update(ctx context.Context, actor *model.Account, postID string, in post.Input) (*model.Post, error)
	Get(ctx context.Context, postID string) (*model.Post, error)
}

// ScrapServiceInterface はスクラップ操作のサービスインターフェース。
type ScrapServiceInterface interface {
	Toggle(ctx context.Context, postID, accountID string) (bool, error)
}

// PostHandler は募集投稿とスクラップのHTTPハンドラー。
type PostHandler struct {
	accounts AccountEnsurer
	posts    PostServiceInterface
	scraps   ScrapServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(accounts AccountEnsurer, posts PostServiceInterface, scraps ScrapServiceInterface) *PostHandler {
	return &PostHandler{accounts: accounts, posts: posts, scraps: scraps}
}

type postResponse struct {
	ID                  string     `json:"id"`
	AuthorID            string     `json:"author_id"`
	Title               string     `json:"title"`
	Content             string     `json:"content"`
	Category            string     `json:"category"`
	ImageURL            string     `json:"image_url,omitempty"`
	MaxParticipants     int        `json:"max_participants"`
	CurrentParticipants int        `json:"current_participants"`
	IsRecruiting        bool       `json:"is_recruiting"`
	IsUrgent            bool       `json:"is_urgent"`
	DueDate             *time.Time `json:"due_date,omitempty"`
	Views               int        `json:"views"`
	ScrapCount          int        `json:"scrap_count"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type scrapResponse struct {
	Scrapped bool `json:"scrapped"`
}

// Create は募集投稿を作成する。
// POST /api/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	var in post.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.posts.Create(r.Context(), actor.ID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(p))
}

// Get は投稿を取得する。閲覧数が1増える。
// GET /api/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.posts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// Update は作成者が投稿を編集する。
// PATCH /api/posts/{id}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	var in post.Input
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.posts.Update(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// ToggleScrap はスクラップを付け外しする。
// POST /api/posts/{id}/scrap
func (h *PostHandler) ToggleScrap(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.accounts)
	if !ok {
		return
	}

	scrapped, err := h.scraps.Toggle(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scrapResponse{Scrapped: scrapped})
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:                  p.ID,
		AuthorID:            p.AuthorID,
		Title:               p.Title,
		Content:             p.Content,
		Category:            p.Category,
		ImageURL:            p.ImageURL,
		MaxParticipants:     p.MaxParticipants,
		CurrentParticipants: p.CurrentParticipants,
		IsRecruiting:        p.IsRecruiting,
		IsUrgent:            p.IsUrgent,
		DueDate:             p.DueDate,
		Views:               p.Views,
		ScrapCount:          p.ScrapCount,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}
