// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByHandle はハンドルでアカウントを検索する。見つからない場合はnilを返す。
	FindByHandle(ctx context.Context, handle string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。
	// 一意制約違反は制約名付きの *ConstraintError（ErrDuplicate）で返す。
	Create(ctx context.Context, account *model.Account) error

	// Approve はis_approvedをfalseからtrueへ一度だけ切り替える。
	// 承認済みの場合はErrAlreadyApproved、存在しない場合はErrNotFoundを返す。
	Approve(ctx context.Context, id string) error

	// UpdateProfile は表示名と連絡先などのプロフィール項目を更新する。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// GrantAdmin はアカウントを管理者に昇格させ、同時に承認済みにする。
	GrantAdmin(ctx context.Context, id string) error
}

// PostRepository は募集投稿の永続化インターフェース。
// current_participants は申請ライフサイクル（ApplicationRepository）と整合性ジョブ以外から書き込まない。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// Update は投稿内容を更新する。参加人数は変更しない。
	// 定員が現在の参加人数を下回る場合はErrCapacityBelowOccupancyを返す。
	Update(ctx context.Context, post *model.Post) error

	// IncrementViews は閲覧数を1増やす。
	IncrementViews(ctx context.Context, id string) error
}

// ApplicationRepository は参加申請の永続化インターフェース。
// ステータス遷移と参加人数の増減を同一トランザクションで行う。
type ApplicationRepository interface {
	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// FindByPostAndAccount は投稿IDとアカウントIDで申請を検索する。見つからない場合はnilを返す。
	FindByPostAndAccount(ctx context.Context, postID, accountID string) (*model.Application, error)

	// Create は申請を作成する。参加人数は変更しない。
	// (post_id, account_id) の重複はErrDuplicate、参照先の欠落はErrReferenceNotFoundを返す。
	Create(ctx context.Context, app *model.Application) error

	// TransitionStatus はステータスがfromのときに限りtoへ変更する（compare-and-set）。
	// delta > 0 の場合は同一トランザクションで定員未満のときだけ参加人数を1増やし、
	// 増やせなければロールバックしてErrCapacityExceededを返す。
	// delta < 0 の場合は0を下限として1減らす。
	// ステータスが変わっていた場合はErrStatusConflict、行がない場合はErrNotFoundを返す。
	TransitionStatus(ctx context.Context, id string, from, to model.ApplicationStatus, delta int) (*model.Application, error)

	// Delete は申請を削除し、削除した行を返す。
	// 削除した行が参加人数に数えられる状態だった場合、同一トランザクションで参加人数を1減らす（下限0）。
	Delete(ctx context.Context, id string) (*model.Application, error)
}

// ReviewRepository は後記の永続化インターフェース。
type ReviewRepository interface {
	// FindByPostAndAccount は投稿IDとアカウントIDで後記を検索する。見つからない場合はnilを返す。
	FindByPostAndAccount(ctx context.Context, postID, accountID string) (*model.Review, error)

	// Create は後記を作成する。(post_id, account_id) の重複はErrDuplicateを返す。
	Create(ctx context.Context, review *model.Review) error

	// ListByPost は投稿の後記を作成日時の降順で返す。作成者の表示名を含む。
	ListByPost(ctx context.Context, postID string) ([]*model.Review, error)
}

// ScrapRepository はスクラップ（ブックマーク）の永続化インターフェース。
type ScrapRepository interface {
	// Toggle はスクラップが存在すれば削除し、存在しなければ作成する。
	// posts.scrap_count を同一トランザクションで±1する（下限0）。
	// 作成した場合はtrueを返す。
	Toggle(ctx context.Context, postID, accountID string) (bool, error)
}

// OccupancyCorrection は参加人数の整合性ジョブで補正した投稿を表す。
type OccupancyCorrection struct {
	PostID   string
	Previous int
	Current  int
}

// MaintenanceRepository は定期メンテナンスジョブのデータ操作インターフェース。
type MaintenanceRepository interface {
	// ReconcileOccupancy は承認済み申請数と食い違う current_participants を
	// LEAST(承認済み申請数, max_participants) に補正し、補正した投稿を返す。
	ReconcileOccupancy(ctx context.Context) ([]OccupancyCorrection, error)

	// CloseExpiredRecruitment は締切日がlocの暦日でnowの日付より前の募集中投稿を募集終了にし、件数を返す。
	CloseExpiredRecruitment(ctx context.Context, now time.Time, loc *time.Location) (int64, error)
}
