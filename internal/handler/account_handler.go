package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmswl6310/volunteer-work/internal/account"
	"github.com/dmswl6310/volunteer-work/internal/middleware"
	"github.com/dmswl6310/volunteer-work/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	Ensure(ctx context.Context, accountID, email, nameHint string) (*model.Account, error)
	Register(ctx context.Context, in account.RegisterInput) (*model.Account, error)
	Approve(ctx context.Context, actor *model.Account, accountID string) error
	UpdateProfile(ctx context.Context, accountID string, in account.ProfileInput) (*model.Account, error)
	Get(ctx context.Context, accountID string) (*model.Account, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

type registerRequest struct {
	Handle  string `json:"handle"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
	Job     string `json:"job"`
}

type profileRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
	Job     string `json:"job"`
}

type accountResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Handle     string    `json:"handle"`
	Name       string    `json:"name"`
	Contact    string    `json:"contact"`
	Address    string    `json:"address"`
	Job        string    `json:"job"`
	Role       string    `json:"role"`
	IsApproved bool      `json:"is_approved"`
	Points     int       `json:"points"`
	CreatedAt  time.Time `json:"created_at"`
}

// EnsureMe はトークンの利用者に対応するアカウントを返す。存在しなければ自動作成する。
// POST /api/accounts/me
func (h *AccountHandler) EnsureMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := ensureActor(w, r, h.service)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// GetMe は自分のアカウントを返す。自動作成は行わない。
// GET /api/accounts/me
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	acc, err := h.service.Get(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// UpdateMe は自分のプロフィールを更新する。
// PATCH /api/accounts/me
func (h *AccountHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.UpdateProfile(r.Context(), accountID, account.ProfileInput{
		Name:    req.Name,
		Contact: req.Contact,
		Address: req.Address,
		Job:     req.Job,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// Register は明示的な会員登録を行う。登録直後のアカウントは管理者の承認待ちになる。
// POST /api/accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.Register(r.Context(), account.RegisterInput{
		AccountID: identity.AccountID,
		Email:     identity.Email,
		Handle:    req.Handle,
		Name:      req.Name,
		Contact:   req.Contact,
		Address:   req.Address,
		Job:       req.Job,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(acc))
}

// Approve は管理者がアカウントを承認する。
// POST /api/admin/accounts/{id}/approve
func (h *AccountHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := activeActor(w, r, h.service)
	if !ok {
		return
	}

	if err := h.service.Approve(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccountEnsurer は操作者のアカウントを解決するためのインターフェース。
type AccountEnsurer interface {
	Ensure(ctx context.Context, accountID, email, nameHint string) (*model.Account, error)
}

// ensureActor はトークンの利用者のアカウントを解決する。必要なら自動作成する。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func ensureActor(w http.ResponseWriter, r *http.Request, accounts AccountEnsurer) (*model.Account, bool) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return nil, false
	}

	acc, err := accounts.Ensure(r.Context(), identity.AccountID, identity.Email, identity.Name)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return acc, true
}

// activeActor はensureActorに加えて、管理者の承認が済んでいることを要求する。
// 状態を変更するルートはこちらを使う。
func activeActor(w http.ResponseWriter, r *http.Request, accounts AccountEnsurer) (*model.Account, bool) {
	acc, ok := ensureActor(w, r, accounts)
	if !ok {
		return nil, false
	}
	if !acc.IsApproved {
		handleServiceError(w, model.NewAccountNotApprovedError())
		return nil, false
	}
	return acc, true
}

func toAccountResponse(acc *model.Account) accountResponse {
	return accountResponse{
		ID:         acc.ID,
		Email:      acc.Email,
		Handle:     acc.Handle,
		Name:       acc.Name,
		Contact:    acc.Contact,
		Address:    acc.Address,
		Job:        acc.Job,
		Role:       string(acc.Role),
		IsApproved: acc.IsApproved,
		Points:     acc.Points,
		CreatedAt:  acc.CreatedAt,
	}
}
