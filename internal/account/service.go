// Package account はアカウントの自動作成・登録・承認・プロフィール管理を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/model"
	"github.com/dmswl6310/volunteer-work/internal/profanity"
	"github.com/dmswl6310/volunteer-work/internal/repository"
)

// maxHandleSuffix はハンドル候補の末尾に付ける連番の上限。
const maxHandleSuffix = 1000

// defaultHandle はメールアドレスのローカル部が空のときに使うハンドル。
const defaultHandle = "user"

// RegisterInput は明示的な会員登録の入力。
type RegisterInput struct {
	AccountID string
	Email     string
	Handle    string
	Name      string
	Contact   string
	Address   string
	Job       string
}

// ProfileInput はプロフィール更新の入力。
type ProfileInput struct {
	Name    string
	Contact string
	Address string
	Job     string
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts repository.AccountRepository
	filter   *profanity.Filter
	metrics  metrics.Recorder
	now      func() time.Time
}

// NewService はServiceを生成する。filterとrecがnilの場合は検査・記録を行わない。
func NewService(accounts repository.AccountRepository, filter *profanity.Filter, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		accounts: accounts,
		filter:   filter,
		metrics:  rec,
		now:      time.Now,
	}
}

// Ensure はaccountIDのアカウントを返し、存在しなければ作成する。
// 同じaccountIDで並行に呼ばれても行は1つだけ作られる。
func (s *Service) Ensure(ctx context.Context, accountID, email, nameHint string) (*model.Account, error) {
	if accountID == "" {
		return nil, model.NewValidationError("アカウントIDが空です")
	}

	existing, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, model.NewMissingContactInfoError()
	}

	name := strings.TrimSpace(nameHint)
	if name == "" {
		name = model.DefaultDisplayName
	}
	base := handleBase(email)

	for i := 0; i <= maxHandleSuffix; i++ {
		handle := base
		if i > 0 {
			handle = base + strconv.Itoa(i)
		}

		owner, err := s.accounts.FindByHandle(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("ハンドルの確認に失敗しました: %w", err)
		}
		if owner != nil {
			if owner.ID == accountID {
				return owner, nil
			}
			s.recordCollision(accountID, handle)
			continue
		}

		now := s.now()
		acc := &model.Account{
			ID:         accountID,
			Email:      email,
			Handle:     handle,
			Name:       name,
			Contact:    model.DefaultContact,
			Address:    model.DefaultAddress,
			Job:        model.DefaultJob,
			Role:       model.RoleMember,
			IsApproved: true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		err = s.accounts.Create(ctx, acc)
		if err == nil {
			s.metrics.RecordAccountProvisioned()
			slog.Info("アカウントを自動作成しました",
				slog.String("account_id", accountID),
				slog.String("handle", handle),
			)
			return acc, nil
		}

		switch repository.ViolatedConstraint(err) {
		case repository.ConstraintAccountsPkey:
			// 並行した呼び出しが先に作成した
			winner, ferr := s.accounts.FindByID(ctx, accountID)
			if ferr != nil {
				return nil, fmt.Errorf("アカウントの再取得に失敗しました: %w", ferr)
			}
			if winner == nil {
				return nil, fmt.Errorf("作成済みのアカウントが見つかりません: %w", err)
			}
			return winner, nil
		case repository.ConstraintAccountsHandle:
			s.recordCollision(accountID, handle)
			continue
		case repository.ConstraintAccountsEmail:
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	slog.Warn("ハンドル候補を使い切りました",
		slog.String("account_id", accountID),
		slog.String("handle", base),
	)
	return nil, model.NewHandleTakenError(base)
}

func (s *Service) recordCollision(accountID, handle string) {
	s.metrics.RecordHandleCollision()
	slog.Info("ハンドルが使用済みのため次の候補を試します",
		slog.String("account_id", accountID),
		slog.String("handle", handle),
	)
}

// handleBase はメールアドレスの@より前をハンドルの候補にする。
func handleBase(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	local = strings.TrimSpace(local)
	if local == "" {
		return defaultHandle
	}
	return local
}

// Register は会員登録フォームからアカウントを作成する。作成直後は未承認。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Handle = strings.TrimSpace(in.Handle)
	in.Name = strings.TrimSpace(in.Name)

	switch {
	case in.AccountID == "":
		return nil, model.NewValidationError("アカウントIDが空です")
	case in.Email == "":
		return nil, model.NewValidationError("メールアドレスは必須です")
	case in.Handle == "":
		return nil, model.NewValidationError("ニックネームは必須です")
	case in.Name == "":
		return nil, model.NewValidationError("名前は必須です")
	}

	if label, bad := s.checkProfanity(
		profanity.Field{Label: "닉네임", Value: in.Handle},
		profanity.Field{Label: "이름", Value: in.Name},
	); bad {
		return nil, model.NewProfanityDetectedError(label)
	}

	existing, err := s.accounts.FindByID(ctx, in.AccountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAccountAlreadyExistsError()
	}

	owner, err := s.accounts.FindByHandle(ctx, in.Handle)
	if err != nil {
		return nil, fmt.Errorf("ハンドルの確認に失敗しました: %w", err)
	}
	if owner != nil {
		return nil, model.NewHandleTakenError(in.Handle)
	}

	byEmail, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	}
	if byEmail != nil {
		return nil, model.NewEmailTakenError()
	}

	now := s.now()
	acc := &model.Account{
		ID:        in.AccountID,
		Email:     in.Email,
		Handle:    in.Handle,
		Name:      in.Name,
		Contact:   in.Contact,
		Address:   in.Address,
		Job:       in.Job,
		Role:      model.RoleMember,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		switch repository.ViolatedConstraint(err) {
		case repository.ConstraintAccountsPkey:
			return nil, model.NewAccountAlreadyExistsError()
		case repository.ConstraintAccountsHandle:
			return nil, model.NewHandleTakenError(in.Handle)
		case repository.ConstraintAccountsEmail:
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("アカウントの登録に失敗しました: %w", err)
	}

	slog.Info("アカウントを登録しました",
		slog.String("account_id", acc.ID),
		slog.String("handle", acc.Handle),
	)
	return acc, nil
}

// Approve は管理者が未承認アカウントを承認する。承認は一度だけ行える。
func (s *Service) Approve(ctx context.Context, actor *model.Account, accountID string) error {
	if !actor.IsAdministrator() {
		return model.NewForbiddenError()
	}

	err := s.accounts.Approve(ctx, accountID)
	switch {
	case err == nil:
		slog.Info("アカウントを承認しました",
			slog.String("account_id", accountID),
			slog.String("approved_by", actor.ID),
		)
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return model.NewAccountNotFoundError(accountID)
	case errors.Is(err, repository.ErrAlreadyApproved):
		return model.NewAccountAlreadyApprovedError()
	}
	return fmt.Errorf("アカウントの承認に失敗しました: %w", err)
}

// UpdateProfile はプロフィール項目を更新する。空の項目は現在の値を保つ。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, in ProfileInput) (*model.Account, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc == nil {
		return nil, model.NewAccountNotFoundError(accountID)
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		if label, bad := s.checkProfanity(profanity.Field{Label: "이름", Value: name}); bad {
			return nil, model.NewProfanityDetectedError(label)
		}
		acc.Name = name
	}
	if v := strings.TrimSpace(in.Contact); v != "" {
		acc.Contact = v
	}
	if v := strings.TrimSpace(in.Address); v != "" {
		acc.Address = v
	}
	if v := strings.TrimSpace(in.Job); v != "" {
		acc.Job = v
	}

	if err := s.accounts.UpdateProfile(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewAccountNotFoundError(accountID)
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return acc, nil
}

// Get はアカウントを取得する。存在しない場合でも作成はしない。
func (s *Service) Get(ctx context.Context, accountID string) (*model.Account, error) {
	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc == nil {
		return nil, model.NewAccountNotFoundError(accountID)
	}
	return acc, nil
}

// GrantAdmin は運用コマンドからアカウントを管理者に昇格させる。
func (s *Service) GrantAdmin(ctx context.Context, accountID string) error {
	if err := s.accounts.GrantAdmin(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewAccountNotFoundError(accountID)
		}
		return fmt.Errorf("管理者権限の付与に失敗しました: %w", err)
	}
	slog.Info("管理者権限を付与しました", slog.String("account_id", accountID))
	return nil
}

func (s *Service) checkProfanity(fields ...profanity.Field) (string, bool) {
	if s.filter == nil {
		return "", false
	}
	return s.filter.Validate(fields...)
}
