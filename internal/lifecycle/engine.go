// Package lifecycle は参加申請の状態遷移と、それに連動する参加人数（定員台帳）を管理する。
//
// 参加人数を変更するのはこのパッケージの操作だけで、増減は必ずステータス変更と
// 同じトランザクション内の条件付き更新で行う（repository.ApplicationRepository参照）。
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/repository"
)

// maxTransitionAttempts はステータスのcompare-and-setが競合した場合の試行回数の上限。
const maxTransitionAttempts = 3

// Engine は申請ライフサイクルエンジン。
type Engine struct {
	posts    repository.PostRepository
	apps     repository.ApplicationRepository
	notifier invalidate.Notifier
	metrics  metrics.Recorder
	loc      *time.Location
	now      func() time.Time
}

// NewEngine はEngineを生成する。locは締切日の暦日判定に使うタイムゾーン。
func NewEngine(
	posts repository.PostRepository,
	apps repository.ApplicationRepository,
	notifier invalidate.Notifier,
	rec metrics.Recorder,
	loc *time.Location,
) *Engine {
	if notifier == nil {
		notifier = invalidate.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		posts:    posts,
		apps:     apps,
		notifier: notifier,
		metrics:  rec,
		loc:      loc,
		now:      time.Now,
	}
}

// Submit は投稿への参加申請をpendingで作成する。参加人数は変更しない。
func (e *Engine) Submit(ctx context.Context, postID, accountID string) (*model.Application, error) {
	post, err := e.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}

	if !post.IsRecruiting || post.IsPastDueDay(e.now(), e.loc) {
		return nil, model.NewRecruitmentClosedError()
	}
	if post.IsFull() {
		e.metrics.RecordCapacityRejection(metrics.StageSubmit)
		slog.Warn("定員に達しているため申請を拒否しました",
			slog.String("post_id", postID),
			slog.String("account_id", accountID),
			slog.Int("max_participants", post.MaxParticipants),
		)
		return nil, model.NewCapacityExceededError()
	}

	existing, err := e.apps.FindByPostAndAccount(ctx, postID, accountID)
	if err != nil {
		return nil, fmt.Errorf("既存申請の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateApplicationError()
	}

	now := e.now()
	app := &model.Application{
		ID:        uuid.NewString(),
		PostID:    postID,
		AccountID: accountID,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.apps.Create(ctx, app); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewDuplicateApplicationError()
		case errors.Is(err, repository.ErrReferenceNotFound):
			if repository.ViolatedConstraint(err) == repository.ConstraintApplicationsPostFK {
				return nil, model.NewPostNotFoundError(postID)
			}
			return nil, model.NewAccountNotFoundError(accountID)
		}
		return nil, fmt.Errorf("申請の作成に失敗しました: %w", err)
	}

	e.metrics.RecordApplicationSubmitted()
	slog.Info("参加申請を受け付けました",
		slog.String("application_id", app.ID),
		slog.String("post_id", postID),
		slog.String("account_id", accountID),
	)
	e.notifier.Invalidate(invalidate.PostPaths(postID)...)
	return app, nil
}

// SetStatus は申請をapprovedまたはrejectedにする。
// 既に同じ状態であれば何もせず成功する（approvedとconfirmedは同じ状態として扱う）。
// approvedへの遷移では同一トランザクションで参加枠を1つ確保し、確保できなければ
// ステータスを変えずにCAPACITY_EXCEEDEDを返す。
func (e *Engine) SetStatus(ctx context.Context, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if status != model.StatusApproved && status != model.StatusRejected {
		return nil, model.NewInvalidStatusError(string(status))
	}

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		app, err := e.apps.FindByID(ctx, applicationID)
		if err != nil {
			return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
		}
		if app == nil {
			return nil, model.NewApplicationNotFoundError(applicationID)
		}

		current := app.Status
		if current.Normalize() == status {
			return app, nil
		}

		delta, err := transitionDelta(current, status)
		if err != nil {
			return nil, err
		}

		updated, err := e.apps.TransitionStatus(ctx, applicationID, current, status, delta)
		switch {
		case err == nil:
			e.metrics.RecordTransition(string(status))
			slog.Info("申請ステータスを変更しました",
				slog.String("application_id", applicationID),
				slog.String("post_id", updated.PostID),
				slog.String("from", string(current)),
				slog.String("to", string(status)),
			)
			e.notifier.Invalidate(invalidate.PostPaths(updated.PostID)...)
			return updated, nil
		case errors.Is(err, repository.ErrStatusConflict):
			slog.Debug("申請ステータスが並行して変更されたため再試行します",
				slog.String("application_id", applicationID),
				slog.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewApplicationNotFoundError(applicationID)
		case errors.Is(err, repository.ErrCapacityExceeded):
			e.metrics.RecordCapacityRejection(metrics.StageApprove)
			slog.Warn("定員に達しているため承認できませんでした",
				slog.String("application_id", applicationID),
				slog.String("post_id", app.PostID),
			)
			return nil, model.NewCapacityExceededError()
		default:
			return nil, fmt.Errorf("申請ステータスの変更に失敗しました: %w", err)
		}
	}

	return nil, fmt.Errorf("申請ステータスの変更が競合し続けました（%d回）: %w",
		maxTransitionAttempts, repository.ErrStatusConflict)
}

// transitionDelta は遷移が状態機械の辺であるかを確認し、参加人数の増減を返す。
func transitionDelta(from, to model.ApplicationStatus) (int, error) {
	switch to {
	case model.StatusApproved:
		if from == model.StatusPending || from == model.StatusRejected {
			return 1, nil
		}
	case model.StatusRejected:
		if from == model.StatusPending {
			return 0, nil
		}
	}
	return 0, model.NewInvalidStatusTransitionError(from, to)
}

// Cancel は申請を取り消す。行は無条件に削除し、参加人数に数えられていた場合は
// 同じトランザクションで1枠解放する（0未満にはならない）。
func (e *Engine) Cancel(ctx context.Context, applicationID string) error {
	deleted, err := e.apps.Delete(ctx, applicationID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewApplicationNotFoundError(applicationID)
	}
	if err != nil {
		return fmt.Errorf("申請の取り消しに失敗しました: %w", err)
	}

	e.metrics.RecordApplicationCancelled()
	slog.Info("参加申請を取り消しました",
		slog.String("application_id", applicationID),
		slog.String("post_id", deleted.PostID),
		slog.String("status", string(deleted.Status)),
		slog.Bool("released_seat", deleted.Status.IsCounted()),
	)
	e.notifier.Invalidate(invalidate.PostPaths(deleted.PostID)...)
	return nil
}

// SetStatusAs は投稿の作成者または管理者としてSetStatusを行う。
func (e *Engine) SetStatusAs(ctx context.Context, actor *model.Account, applicationID string, status model.ApplicationStatus) (*model.Application, error) {
	if actor == nil {
		return nil, model.NewForbiddenError()
	}
	app, err := e.findApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdministrator() {
		post, err := e.posts.FindByID(ctx, app.PostID)
		if err != nil {
			return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
		}
		if post == nil || post.AuthorID != actor.ID {
			return nil, model.NewForbiddenError()
		}
	}
	return e.SetStatus(ctx, applicationID, status)
}

// CancelAs は申請者本人または管理者としてCancelを行う。
func (e *Engine) CancelAs(ctx context.Context, actor *model.Account, applicationID string) error {
	if actor == nil {
		return model.NewForbiddenError()
	}
	app, err := e.findApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if !actor.IsAdministrator() && app.AccountID != actor.ID {
		return model.NewForbiddenError()
	}
	return e.Cancel(ctx, applicationID)
}

func (e *Engine) findApplication(ctx context.Context, applicationID string) (*model.Application, error) {
	app, err := e.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	return app, nil
}
