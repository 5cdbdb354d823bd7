package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// リポジトリ層が返す番兵エラー。サービス層はerrors.Isで判定し、model.APIErrorへ変換する。
var (
	// ErrNotFound は対象の行が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict は読み取り後に別の操作がステータスを変更したことを表す。
	ErrStatusConflict = errors.New("status changed concurrently")
	// ErrCapacityExceeded は条件付き更新で参加枠を確保できなかったことを表す。
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrCapacityBelowOccupancy は定員を現在の参加人数未満に下げようとしたことを表す。
	ErrCapacityBelowOccupancy = errors.New("capacity below occupancy")
	// ErrAlreadyApproved はアカウントが既に承認済みであることを表す。
	ErrAlreadyApproved = errors.New("account already approved")
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("duplicate record")
	// ErrReferenceNotFound は外部キー制約違反（参照先が存在しない）を表す。
	ErrReferenceNotFound = errors.New("referenced record not found")
)

// 制約名。マイグレーションで明示的に命名している。
const (
	ConstraintAccountsPkey          = "accounts_pkey"
	ConstraintAccountsHandle        = "accounts_handle_key"
	ConstraintAccountsEmail         = "accounts_email_key"
	ConstraintApplicationsUnique    = "applications_post_id_account_id_key"
	ConstraintApplicationsAccountFK = "applications_account_id_fkey"
	ConstraintApplicationsPostFK    = "applications_post_id_fkey"
	ConstraintReviewsUnique         = "reviews_post_id_account_id_key"
)

// ConstraintError はPostgreSQLの制約違反を制約名付きで表す。
// Errには ErrDuplicate または ErrReferenceNotFound が入る。
type ConstraintError struct {
	Constraint string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (constraint %s)", e.Err, e.Constraint)
}

// Unwrap は番兵エラーを返す。
func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// ViolatedConstraint はerrが制約違反であればその制約名を返す。
func ViolatedConstraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// mapPQError はpqのエラーコードを番兵エラーに変換する。
// 23505（unique_violation）と23503（foreign_key_violation）以外はそのまま返す。
func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return &ConstraintError{Constraint: pqErr.Constraint, Err: ErrDuplicate}
	case "23503":
		return &ConstraintError{Constraint: pqErr.Constraint, Err: ErrReferenceNotFound}
	}
	return err
}
