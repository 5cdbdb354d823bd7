package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmswl6310/volunteer-work/internal/account"
	"github.com/dmswl6310/volunteer-work/internal/middleware"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/post"
	"github.com/dmswl6310/volunteer-work/internal/review"
)

// --- モック定義 ---

type mockVerifier struct{}

// Verify は "Bearer <accountID>" 形式のトークンをそのままアカウントIDとして扱う。
func (mockVerifier) Verify(token string) (*model.Identity, error) {
	if token == "invalid" {
		return nil, errors.New("invalid token")
	}
	return &model.Identity{AccountID: token, Email: token + "@example.com", Name: "Tester"}, nil
}

type mockAccountService struct {
	ensureFn        func(ctx context.Context, accountID, email, nameHint string) (*model.Account, error)
	registerFn      func(ctx context.Context, in account.RegisterInput) (*model.Account, error)
	approveFn       func(ctx context.Context, actor *model.Account, accountID string) error
	updateProfileFn func(ctx context.Context, accountID string, in account.ProfileInput) (*model.Account, error)
	getFn           func(ctx context.Context, accountID string) (*model.Account, error)
}

func (m *mockAccountService) Ensure(ctx context.Context, accountID, email, nameHint string) (*model.Account, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, accountID, email, nameHint)
	}
	return &model.Account{ID: accountID, Email: email, Role: model.RoleMember, IsApproved: true}, nil
}

func (m *mockAccountService) Register(ctx context.Context, in account.RegisterInput) (*model.Account, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAccountService) Approve(ctx context.Context, actor *model.Account, accountID string) error {
	if m.approveFn != nil {
		return m.approveFn(ctx, actor, accountID)
	}
	return nil
}

func (m *mockAccountService) UpdateProfile(ctx context.Context, accountID string, in account.ProfileInput) (*model.Account, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, accountID, in)
	}
	return nil, nil
}

func (m *mockAccountService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	if m.getFn != nil {
		return m.getFn(ctx, accountID)
	}
	return nil, model.NewAccountNotFoundError(accountID)
}

type mockPostService struct {
	createFn func(ctx context.Context, authorID string, in post.Input) (*model.Post, error)
	updateFn func(ctx context.Context, actor *model.Account, postID string, in post.Input) (*model.Post, error)
	getFn    func(ctx context.Context, postID string) (*model.Post, error)
}

func (m *mockPostService) Create(ctx context.Context, authorID string, in post.Input) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, authorID, in)
	}
	return nil, nil
}

func (m *mockPostService) Update(ctx context.Context, actor *model.Account, postID string, in post.Input) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, postID, in)
	}
	return nil, nil
}

func (m *mockPostService) Get(ctx context.Context, postID string) (*model.Post, error) {
	if m.getFn != nil {
		return m.getFn(ctx, postID)
	}
	return nil, model.NewPostNotFoundError(postID)
}

type mockScrapService struct {
	toggleFn func(ctx context.Context, postID, accountID string) (bool, error)
}

func (m *mockScrapService) Toggle(ctx context.Context, postID, accountID string) (bool, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, postID, accountID)
	}
	return false, nil
}

type mockEngine struct {
	submitFn      func(ctx context.Context, postID, accountID string) (*model.Application, error)
	setStatusAsFn func(ctx context.Context, actor *model.Account, applicationID string, status model.ApplicationStatus) (*model.Application, error)
	cancelAsFn    func(ctx context.Context, actor *model.Account, applicationID string) error
}

func (m *mockEngine) Submit(ctx context.Context, postID, accountID string) (*model.Application, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, postID, accountID)
	}
	return nil, nil
}

func (m *mockEngine) SetStatusAs(ctx context.Context, actor *model.Account, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if m.setStatusAsFn != nil {
		return m.setStatusAsFn(ctx, actor, applicationID, status)
	}
	return nil, nil
}

func (m *mockEngine) CancelAs(ctx context.Context, actor *model.Account, applicationID string) error {
	if m.cancelAsFn != nil {
		return m.cancelAsFn(ctx, actor, applicationID)
	}
	return nil
}

type mockReviewService struct {
	checkFn  func(ctx context.Context, postID, accountID string) (review.Decision, error)
	submitFn func(ctx context.Context, postID, accountID, content string) (*model.Review, error)
	listFn   func(ctx context.Context, postID string) ([]*model.Review, error)
}

func (m *mockReviewService) CheckEligibility(ctx context.Context, postID, accountID string) (review.Decision, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, postID, accountID)
	}
	return review.Decision{}, nil
}

func (m *mockReviewService) Submit(ctx context.Context, postID, accountID, content string) (*model.Review, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, postID, accountID, content)
	}
	return nil, nil
}

func (m *mockReviewService) ListByPost(ctx context.Context, postID string) ([]*model.Review, error) {
	if m.listFn != nil {
		return m.listFn(ctx, postID)
	}
	return []*model.Review{}, nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- テストヘルパー ---

// newTestDeps は全依存をモックで埋めたRouterDepsを返す。
func newTestDeps(t *testing.T) *RouterDeps {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(1000, 1000))
	t.Cleanup(rl.Stop)
	return &RouterDeps{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Verifier:          mockVerifier{},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Accounts:          &mockAccountService{},
		Posts:             &mockPostService{},
		Scraps:            &mockScrapService{},
		Applications:      &mockEngine{},
		Reviews:           &mockReviewService{},
	}
}

// doRequest はルーター経由でリクエストを送る。accountIDが空なら認証ヘッダーを付けない。
func doRequest(t *testing.T, h http.Handler, method, path, accountID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if accountID != "" {
		req.Header.Set("Authorization", "Bearer "+accountID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// parseAPIErrorResponse はレスポンスボディから統一エラーフォーマットをパースする。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}
