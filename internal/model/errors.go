package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, application, review, post, system
	Action   string // ユーザー向け対処方法
	Reason   string // 拒否理由（後記の作成可否判定など。空の場合あり）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HasCode はerrがcodeを持つAPIErrorかを返す。ラップされたエラーも辿る。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeValidation              = "VALIDATION_FAILED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeMissingContactInfo      = "MISSING_CONTACT_INFO"
	ErrCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	ErrCodeAccountAlreadyApproved  = "ACCOUNT_ALREADY_APPROVED"
	ErrCodeAccountNotApproved      = "ACCOUNT_NOT_APPROVED"
	ErrCodeAccountAlreadyExists    = "ACCOUNT_ALREADY_EXISTS"
	ErrCodeHandleTaken             = "HANDLE_TAKEN"
	ErrCodeEmailTaken              = "EMAIL_TAKEN"
	ErrCodePostNotFound            = "POST_NOT_FOUND"
	ErrCodePostNotEditable         = "POST_NOT_EDITABLE"
	ErrCodeCapacityBelowOccupancy  = "CAPACITY_BELOW_OCCUPANCY"
	ErrCodeRecruitmentClosed       = "RECRUITMENT_CLOSED"
	ErrCodeCapacityExceeded        = "CAPACITY_EXCEEDED"
	ErrCodeDuplicateApplication    = "DUPLICATE_APPLICATION"
	ErrCodeApplicationNotFound     = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidStatus           = "INVALID_STATUS"
	ErrCodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	ErrCodeReviewNotAllowed        = "REVIEW_NOT_ALLOWED"
	ErrCodeDuplicateReview         = "DUPLICATE_REVIEW"
	ErrCodeProfanityDetected       = "PROFANITY_DETECTED"
)

// NewUnauthorizedError はアクセストークンがない、または検証できない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewForbiddenError は操作権限がない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "投稿の作成者または管理者のアカウントで操作してください。",
	}
}

// NewAccountNotApprovedError は管理者の承認待ちのアカウントが操作しようとした場合のエラーを生成する。
func NewAccountNotApprovedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotApproved,
		Message:  "アカウントは管理者の承認待ちです。",
		Category: "auth",
		Action:   "承認後に再度お試しください。",
	}
}

// NewMissingContactInfoError はアカウント自動作成に必要なメールアドレスがない場合のエラーを生成する。
func NewMissingContactInfoError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingContactInfo,
		Message:  "アカウントが存在せず、自動作成に必要なメールアドレスもありません。",
		Category: "auth",
		Action:   "メールアドレスを登録したアカウントでログインし直してください。",
	}
}

// NewAccountNotFoundError はアカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("アカウントが見つかりません: %s", accountID),
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAccountAlreadyApprovedError は承認済みアカウントを再承認しようとした場合のエラーを生成する。
func NewAccountAlreadyApprovedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountAlreadyApproved,
		Message:  "このアカウントは既に承認されています。",
		Category: "auth",
		Action:   "承認待ち一覧を更新してください。",
	}
}

// NewAccountAlreadyExistsError は登録済みのアカウントで再登録しようとした場合のエラーを生成する。
func NewAccountAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountAlreadyExists,
		Message:  "このアカウントは既に登録されています。",
		Category: "auth",
		Action:   "マイページからプロフィールを編集してください。",
	}
}

// NewHandleTakenError はハンドルが使用中の場合のエラーを生成する。
func NewHandleTakenError(handle string) *APIError {
	return &APIError{
		Code:     ErrCodeHandleTaken,
		Message:  fmt.Sprintf("このニックネームは既に使われています: %s", handle),
		Category: "validation",
		Action:   "別のニックネームを入力してください。",
	}
}

// NewEmailTakenError はメールアドレスが別アカウントで使用中の場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "登録済みのアカウントでログインしてください。",
	}
}

// NewPostNotFoundError は投稿が見つからない場合のエラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "post",
		Action:   "投稿一覧から選び直してください。",
	}
}

// NewPostNotEditableError は募集終了後の投稿を編集しようとした場合のエラーを生成する。
func NewPostNotEditableError() *APIError {
	return &APIError{
		Code:     ErrCodePostNotEditable,
		Message:  "募集が終了した投稿は編集できません。",
		Category: "post",
		Action:   "新しい募集投稿を作成してください。",
	}
}

// NewCapacityBelowOccupancyError は定員を現在の参加人数より小さくしようとした場合のエラーを生成する。
func NewCapacityBelowOccupancyError(current int) *APIError {
	return &APIError{
		Code:     ErrCodeCapacityBelowOccupancy,
		Message:  fmt.Sprintf("定員を現在の参加人数（%d人）より少なくすることはできません。", current),
		Category: "post",
		Action:   "定員を参加人数以上の値にしてください。",
	}
}

// NewRecruitmentClosedError は募集終了済みの投稿に申請した場合のエラーを生成する。
func NewRecruitmentClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeRecruitmentClosed,
		Message:  "募集が終了しています。",
		Category: "application",
		Action:   "募集中の投稿に申請してください。",
	}
}

// NewCapacityExceededError は定員に達している場合のエラーを生成する。
func NewCapacityExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeCapacityExceeded,
		Message:  "募集人数が上限に達しています。",
		Category: "application",
		Action:   "他の募集投稿を探してください。",
	}
}

// NewDuplicateApplicationError は同じ投稿に重複して申請した場合のエラーを生成する。
func NewDuplicateApplicationError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateApplication,
		Message:  "この募集には既に申請しています。",
		Category: "application",
		Action:   "マイページで申請状況を確認してください。",
	}
}

// NewApplicationNotFoundError は申請が見つからない場合のエラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された申請が見つかりません: %s", applicationID),
		Category: "application",
		Action:   "画面を更新して申請状況を確認してください。",
	}
}

// NewInvalidStatusError は指定できない申請ステータスの場合のエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには approved または rejected を指定してください。",
	}
}

// NewInvalidStatusTransitionError は状態遷移表にない遷移を要求した場合のエラーを生成する。
func NewInvalidStatusTransitionError(from, to ApplicationStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatusTransition,
		Message:  fmt.Sprintf("申請ステータスを %s から %s に変更することはできません。", from, to),
		Category: "application",
		Action:   "承認済みの参加を取り消す場合は申請者本人が取り消してください。",
	}
}

// NewReviewNotAllowedError は後記の作成条件を満たさない場合のエラーを生成する。
func NewReviewNotAllowedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotAllowed,
		Message:  fmt.Sprintf("後記を作成できません: %s", reason),
		Category: "review",
		Action:   "主催者の承認を受け、活動終了後に作成してください。",
		Reason:   reason,
	}
}

// NewDuplicateReviewError は同じ投稿に後記を重複して作成した場合のエラーを生成する。
func NewDuplicateReviewError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateReview,
		Message:  "この活動の後記は既に作成済みです。",
		Category: "review",
		Action:   "作成済みの後記を確認してください。",
		Reason:   "DuplicateReview",
	}
}

// NewProfanityDetectedError は不適切な表現が含まれる場合のエラーを生成する。
func NewProfanityDetectedError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeProfanityDetected,
		Message:  fmt.Sprintf("%sに不適切な表現が含まれています。", field),
		Category: "validation",
		Action:   "表現を修正して再度お試しください。",
		Reason:   "ProfanityDetected",
	}
}
