// Package scrap は投稿のスクラップ（ブックマーク）を扱う。
package scrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/repository"
)

// Service はスクラップのサービス層。
type Service struct {
	posts    repository.PostRepository
	scraps   repository.ScrapRepository
	notifier invalidate.Notifier
}

// NewService はServiceを生成する。
func NewService(posts repository.PostRepository, scraps repository.ScrapRepository, notifier invalidate.Notifier) *Service {
	if notifier == nil {
		notifier = invalidate.Nop{}
	}
	return &Service{posts: posts, scraps: scraps, notifier: notifier}
}

// Toggle はスクラップを付け外しし、付けた場合はtrueを返す。
func (s *Service) Toggle(ctx context.Context, postID, accountID string) (bool, error) {
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return false, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return false, model.NewPostNotFoundError(postID)
	}

	scrapped, err := s.scraps.Toggle(ctx, postID, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			return false, model.NewAccountNotFoundError(accountID)
		}
		return false, fmt.Errorf("スクラップの切り替えに失敗しました: %w", err)
	}

	slog.Debug("スクラップを切り替えました",
		slog.String("post_id", postID),
		slog.String("account_id", accountID),
		slog.Bool("scrapped", scrapped),
	)
	s.notifier.Invalidate(fmt.Sprintf("/board/%s", postID), "/board")
	return scrapped, nil
}
