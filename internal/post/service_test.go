package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/profanity"
	"github.com/dmswl6310/volunteer-work/internal/repository"
	"github.com/dmswl6310/volunteer-work/internal/security"
)

// --- モック ---

type mockPostRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.Post, error)
	createFn         func(ctx context.Context, p *model.Post) error
	updateFn         func(ctx context.Context, p *model.Post) error
	incrementViewsFn func(ctx context.Context, id string) error
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockPostRepo) Create(ctx context.Context, p *model.Post) error {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	return nil
}
func (m *mockPostRepo) Update(ctx context.Context, p *model.Post) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, p)
	}
	return nil
}
func (m *mockPostRepo) IncrementViews(ctx context.Context, id string) error {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, id)
	}
	return nil
}

type recordingNotifier struct {
	paths [][]string
}

func (r *recordingNotifier) Invalidate(paths ...string) {
	r.paths = append(r.paths, paths)
}

func newTestService(repo repository.PostRepository, n *recordingNotifier) *Service {
	return NewService(repo, profanity.NewFilter(), security.NewContentSanitizer(), security.NewURLGuard(), n)
}

func validInput() Input {
	return Input{
		Title:           "  해변 정화 봉사  ",
		Content:         "<p>함께해요</p><script>alert(1)</script>",
		Category:        "환경",
		MaxParticipants: 5,
	}
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	var created *model.Post
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, p *model.Post) error {
			created = p
			return nil
		},
	}
	n := &recordingNotifier{}
	svc := newTestService(repo, n)

	p, err := svc.Create(context.Background(), "author-1", validInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created == nil || created.ID != p.ID {
		t.Fatal("expected repository Create to be called with the post")
	}
	if p.Title != "해변 정화 봉사" {
		t.Errorf("title = %q, want trimmed", p.Title)
	}
	if strings.Contains(p.Content, "script") {
		t.Errorf("content should be sanitized, got %q", p.Content)
	}
	if !p.IsRecruiting || p.CurrentParticipants != 0 {
		t.Errorf("new post should be recruiting with 0 participants: %+v", p)
	}
	if len(n.paths) != 1 {
		t.Errorf("expected 1 invalidation, got %d", len(n.paths))
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(in *Input)
		wantCode string
	}{
		{"タイトルなし", func(in *Input) { in.Title = " " }, model.ErrCodeValidation},
		{"本文なし", func(in *Input) { in.Content = "" }, model.ErrCodeValidation},
		{"本文がタグのみ", func(in *Input) { in.Content = "<script>x()</script>" }, model.ErrCodeValidation},
		{"カテゴリ不正", func(in *Input) { in.Category = "스포츠" }, model.ErrCodeValidation},
		{"定員0", func(in *Input) { in.MaxParticipants = 0 }, model.ErrCodeValidation},
		{"タイトルに禁止語", func(in *Input) { in.Title = "시발 모집" }, model.ErrCodeProfanityDetected},
		{"本文に禁止語", func(in *Input) { in.Content = "<p>존나 재밌음</p>" }, model.ErrCodeProfanityDetected},
		{"画像URLがhttp", func(in *Input) { in.ImageURL = "http://cdn.example.com/a.png" }, model.ErrCodeValidation},
		{"画像URLが内部アドレス", func(in *Input) { in.ImageURL = "https://10.0.0.1/a.png" }, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockPostRepo{
				createFn: func(ctx context.Context, p *model.Post) error {
					called = true
					return nil
				},
			}
			svc := newTestService(repo, &recordingNotifier{})

			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), "author-1", in)
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
			if called {
				t.Error("repository should not be called on validation failure")
			}
		})
	}
}

func TestCreate_UnknownAuthor(t *testing.T) {
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, p *model.Post) error {
			return &repository.ConstraintError{Constraint: "posts_author_id_fkey", Err: repository.ErrReferenceNotFound}
		},
	}
	svc := newTestService(repo, &recordingNotifier{})

	_, err := svc.Create(context.Background(), "ghost", validInput())
	if !model.HasCode(err, model.ErrCodeAccountNotFound) {
		t.Errorf("expected ACCOUNT_NOT_FOUND, got %v", err)
	}
}

// --- Update ---

func existingPost() *model.Post {
	return &model.Post{
		ID:                  "p1",
		AuthorID:            "author-1",
		Title:               "old",
		Content:             "old",
		Category:            "교육",
		MaxParticipants:     5,
		CurrentParticipants: 3,
		IsRecruiting:        true,
	}
}

func TestUpdate_Success(t *testing.T) {
	var updated *model.Post
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Post, error) {
			return existingPost(), nil
		},
		updateFn: func(ctx context.Context, p *model.Post) error {
			updated = p
			return nil
		},
	}
	n := &recordingNotifier{}
	svc := newTestService(repo, n)

	closed := false
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	in := validInput()
	in.IsRecruiting = &closed
	in.DueDate = &due

	p, err := svc.Update(context.Background(), &model.Account{ID: "author-1"}, "p1", in)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated == nil {
		t.Fatal("expected repository Update to be called")
	}
	if p.IsRecruiting {
		t.Error("expected recruiting to be switched off")
	}
	if p.CurrentParticipants != 3 {
		t.Errorf("current participants must not change, got %d", p.CurrentParticipants)
	}
	if len(n.paths) != 1 || n.paths[0][0] != "/board/p1" {
		t.Errorf("unexpected invalidation: %v", n.paths)
	}
}

func TestUpdate_Errors(t *testing.T) {
	closedPost := existingPost()
	closedPost.IsRecruiting = false

	tests := []struct {
		name     string
		post     *model.Post
		actor    *model.Account
		mutate   func(in *Input)
		updateFn func(ctx context.Context, p *model.Post) error
		wantCode string
	}{
		{name: "投稿なし", actor: &model.Account{ID: "author-1"}, wantCode: model.ErrCodePostNotFound},
		{name: "作成者以外", post: existingPost(), actor: &model.Account{ID: "other"}, wantCode: model.ErrCodeForbidden},
		{name: "管理者でも作成者以外", post: existingPost(), actor: &model.Account{ID: "admin", Role: model.RoleAdministrator}, wantCode: model.ErrCodeForbidden},
		{name: "募集終了後", post: closedPost, actor: &model.Account{ID: "author-1"}, wantCode: model.ErrCodePostNotEditable},
		{
			name:     "定員を参加人数未満に",
			post:     existingPost(),
			actor:    &model.Account{ID: "author-1"},
			mutate:   func(in *Input) { in.MaxParticipants = 2 },
			wantCode: model.ErrCodeCapacityBelowOccupancy,
		},
		{
			name:  "更新時に参加人数が増えていた",
			post:  existingPost(),
			actor: &model.Account{ID: "author-1"},
			updateFn: func(ctx context.Context, p *model.Post) error {
				return repository.ErrCapacityBelowOccupancy
			},
			wantCode: model.ErrCodeCapacityBelowOccupancy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPostRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.Post, error) {
					if tt.post == nil {
						return nil, nil
					}
					cp := *tt.post
					return &cp, nil
				},
				updateFn: tt.updateFn,
			}
			svc := newTestService(repo, &recordingNotifier{})

			in := validInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			_, err := svc.Update(context.Background(), tt.actor, "p1", in)
			if !model.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

// --- Get ---

func TestGet_IncrementsViews(t *testing.T) {
	incremented := false
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Post, error) {
			p := existingPost()
			p.Views = 10
			return p, nil
		},
		incrementViewsFn: func(ctx context.Context, id string) error {
			incremented = true
			return nil
		},
	}
	svc := newTestService(repo, &recordingNotifier{})

	p, err := svc.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !incremented || p.Views != 11 {
		t.Errorf("expected views to be incremented, got %d", p.Views)
	}
}

// 閲覧数の更新に失敗しても投稿は返すこと
func TestGet_ViewsFailureIgnored(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Post, error) {
			return existingPost(), nil
		},
		incrementViewsFn: func(ctx context.Context, id string) error {
			return errors.New("deadlock detected")
		},
	}
	svc := newTestService(repo, &recordingNotifier{})

	p, err := svc.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if p.Views != 0 {
		t.Errorf("views = %d, want 0", p.Views)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(&mockPostRepo{}, &recordingNotifier{})

	_, err := svc.Get(context.Background(), "missing")
	if !model.HasCode(err, model.ErrCodePostNotFound) {
		t.Errorf("expected POST_NOT_FOUND, got %v", err)
	}
}
