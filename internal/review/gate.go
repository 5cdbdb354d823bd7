// Package review は後記の作成可否判定と後記の作成・一覧を提供する。
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/profanity"
	"github.com/dmswl6310/volunteer-work/internal/repository"
	"github.com/dmswl6310/volunteer-work/internal/security"
)

// 後記を作成できない理由
const (
	ReasonNoApplication       = "NoApplication"
	ReasonNotApproved         = "NotApproved"
	ReasonActivityNotFinished = "ActivityNotFinished"
	ReasonDuplicateReview     = "DuplicateReview"
	ReasonProfanityDetected   = "ProfanityDetected"
)

const contentLabel = "후기 내용"

// Decision は後記作成可否の判定結果。Allowedがfalseのとき Reason に理由が入る。
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Service は後記の作成可否判定と作成を行う。
type Service struct {
	posts     repository.PostRepository
	apps      repository.ApplicationRepository
	reviews   repository.ReviewRepository
	filter    *profanity.Filter
	sanitizer security.ContentSanitizer
	notifier  invalidate.Notifier
	metrics   metrics.Recorder
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	apps repository.ApplicationRepository,
	reviews repository.ReviewRepository,
	filter *profanity.Filter,
	sanitizer security.ContentSanitizer,
	notifier invalidate.Notifier,
	rec metrics.Recorder,
) *Service {
	if notifier == nil {
		notifier = invalidate.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		posts:     posts,
		apps:      apps,
		reviews:   reviews,
		filter:    filter,
		sanitizer: sanitizer,
		notifier:  notifier,
		metrics:   rec,
		now:       time.Now,
	}
}

// CheckEligibility はaccountIDがpostIDに後記を書けるかを判定する。
// 判定順: 申請の有無 → 承認状態 → 活動終了 → 既存後記。
func (s *Service) CheckEligibility(ctx context.Context, postID, accountID string) (Decision, error) {
	app, err := s.apps.FindByPostAndAccount(ctx, postID, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	if app == nil {
		return deny(ReasonNoApplication), nil
	}
	if !app.Status.IsCounted() {
		return deny(ReasonNotApproved), nil
	}

	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return Decision{}, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return Decision{}, model.NewPostNotFoundError(postID)
	}
	if !post.HasFinished(s.now()) {
		return deny(ReasonActivityNotFinished), nil
	}

	existing, err := s.reviews.FindByPostAndAccount(ctx, postID, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("後記の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return deny(ReasonDuplicateReview), nil
	}
	return Decision{Allowed: true}, nil
}

// Submit は判定を通過した場合に後記を1件作成する。本文はタグを除去して保存する。
func (s *Service) Submit(ctx context.Context, postID, accountID, content string) (*model.Review, error) {
	if strings.TrimSpace(content) == "" {
		return nil, model.NewValidationError("後記の内容は必須です")
	}

	decision, err := s.CheckEligibility(ctx, postID, accountID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if decision.Reason == ReasonDuplicateReview {
			return nil, model.NewDuplicateReviewError()
		}
		return nil, model.NewReviewNotAllowedError(decision.Reason)
	}

	if s.filter != nil && s.filter.IsProfane(content) {
		return nil, model.NewProfanityDetectedError(contentLabel)
	}

	text := content
	if s.sanitizer != nil {
		text = s.sanitizer.PlainText(content)
	}
	if text == "" {
		return nil, model.NewValidationError("後記の内容は必須です")
	}

	rv := &model.Review{
		ID:        uuid.NewString(),
		PostID:    postID,
		AccountID: accountID,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewDuplicateReviewError()
		case errors.Is(err, repository.ErrReferenceNotFound):
			return nil, model.NewPostNotFoundError(postID)
		}
		return nil, fmt.Errorf("後記の作成に失敗しました: %w", err)
	}

	s.metrics.RecordReviewCreated()
	slog.Info("後記を作成しました",
		slog.String("review_id", rv.ID),
		slog.String("post_id", postID),
		slog.String("account_id", accountID),
	)
	s.notifier.Invalidate(fmt.Sprintf("/board/%s", postID), "/mypage")
	return rv, nil
}

// ListByPost は投稿の後記を新しい順に返す。
func (s *Service) ListByPost(ctx context.Context, postID string) ([]*model.Review, error) {
	reviews, err := s.reviews.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("後記一覧の取得に失敗しました: %w", err)
	}
	if reviews == nil {
		reviews = []*model.Review{}
	}
	return reviews, nil
}
