// Package post は募集投稿の作成・編集・閲覧を提供する。
// 参加人数（current_participants）はこのパッケージからは変更しない。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/profanity"
	"github.com/dmswl6310/volunteer-work/internal/repository"
	"github.com/dmswl6310/volunteer-work/internal/security"
)

// Input は投稿の作成・編集の入力。
// IsRecruitingは編集時のみ使い、nilの場合は現在の値を保つ。
type Input struct {
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Category        string     `json:"category"`
	ImageURL        string     `json:"image_url"`
	MaxParticipants int        `json:"max_participants"`
	IsUrgent        bool       `json:"is_urgent"`
	IsRecruiting    *bool      `json:"is_recruiting,omitempty"`
	DueDate         *time.Time `json:"due_date,omitempty"`
}

// Service は募集投稿のサービス層。
type Service struct {
	posts     repository.PostRepository
	filter    *profanity.Filter
	sanitizer security.ContentSanitizer
	guard     security.URLGuard
	notifier  invalidate.Notifier
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	filter *profanity.Filter,
	sanitizer security.ContentSanitizer,
	guard security.URLGuard,
	notifier invalidate.Notifier,
) *Service {
	if notifier == nil {
		notifier = invalidate.Nop{}
	}
	return &Service{
		posts:     posts,
		filter:    filter,
		sanitizer: sanitizer,
		guard:     guard,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Create は募集投稿を作成する。作成直後は募集中、参加人数は0。
func (s *Service) Create(ctx context.Context, authorID string, in Input) (*model.Post, error) {
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Post{
		ID:              uuid.NewString(),
		AuthorID:        authorID,
		Title:           in.Title,
		Content:         in.Content,
		Category:        in.Category,
		ImageURL:        in.ImageURL,
		MaxParticipants: in.MaxParticipants,
		IsRecruiting:    true,
		IsUrgent:        in.IsUrgent,
		DueDate:         in.DueDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			return nil, model.NewAccountNotFoundError(authorID)
		}
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	slog.Info("募集投稿を作成しました",
		slog.String("post_id", p.ID),
		slog.String("author_id", authorID),
	)
	s.notifier.Invalidate("/board", "/mypage")
	return p, nil
}

// Update は作成者が募集中の投稿を編集する。募集終了への切り替えもここで行う。
func (s *Service) Update(ctx context.Context, actor *model.Account, postID string, in Input) (*model.Post, error) {
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	if actor == nil || p.AuthorID != actor.ID {
		return nil, model.NewForbiddenError()
	}
	if !p.IsRecruiting {
		return nil, model.NewPostNotEditableError()
	}

	in, err = s.validate(in)
	if err != nil {
		return nil, err
	}
	if in.MaxParticipants < p.CurrentParticipants {
		return nil, model.NewCapacityBelowOccupancyError(p.CurrentParticipants)
	}

	p.Title = in.Title
	p.Content = in.Content
	p.Category = in.Category
	p.ImageURL = in.ImageURL
	p.MaxParticipants = in.MaxParticipants
	p.IsUrgent = in.IsUrgent
	p.DueDate = in.DueDate
	if in.IsRecruiting != nil {
		p.IsRecruiting = *in.IsRecruiting
	}

	if err := s.posts.Update(ctx, p); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewPostNotFoundError(postID)
		case errors.Is(err, repository.ErrCapacityBelowOccupancy):
			// 読み取り後に承認が進んだ
			latest, ferr := s.posts.FindByID(ctx, postID)
			current := p.CurrentParticipants
			if ferr == nil && latest != nil {
				current = latest.CurrentParticipants
			}
			return nil, model.NewCapacityBelowOccupancyError(current)
		}
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}

	slog.Info("募集投稿を更新しました",
		slog.String("post_id", postID),
		slog.Bool("is_recruiting", p.IsRecruiting),
	)
	s.notifier.Invalidate(invalidate.PostPaths(postID)...)
	return p, nil
}

// Get は投稿を取得し、閲覧数を1増やす。閲覧数の更新失敗は取得結果に影響させない。
func (s *Service) Get(ctx context.Context, postID string) (*model.Post, error) {
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(postID)
	}

	if err := s.posts.IncrementViews(ctx, postID); err != nil {
		slog.Warn("閲覧数の更新に失敗しました",
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
	} else {
		p.Views++
	}
	return p, nil
}

// validate は入力を検証し、前後の空白除去と本文のサニタイズを済ませた値を返す。
func (s *Service) validate(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	switch {
	case in.Title == "":
		return in, model.NewValidationError("タイトルは必須です")
	case strings.TrimSpace(in.Content) == "":
		return in, model.NewValidationError("本文は必須です")
	case !model.IsValidCategory(in.Category):
		return in, model.NewValidationError(fmt.Sprintf("カテゴリが不正です: %s", in.Category))
	case in.MaxParticipants < 1:
		return in, model.NewValidationError("募集人数は1以上にしてください")
	}

	if s.filter != nil {
		if label, bad := s.filter.Validate(
			profanity.Field{Label: "제목", Value: in.Title},
			profanity.Field{Label: "내용", Value: in.Content},
		); bad {
			return in, model.NewProfanityDetectedError(label)
		}
	}

	if in.ImageURL != "" && s.guard != nil {
		if err := s.guard.ValidateImageURL(in.ImageURL); err != nil {
			return in, model.NewValidationError(fmt.Sprintf("画像URLが不正です: %v", err))
		}
	}

	if s.sanitizer != nil {
		in.Content = s.sanitizer.SanitizePost(in.Content)
		if in.Content == "" {
			return in, model.NewValidationError("本文は必須です")
		}
	}
	return in, nil
}
