package model

import "time"

// ApplicationStatus は参加申請の状態を表す。
type ApplicationStatus string

const (
	// StatusPending は主催者の判断待ち。参加人数には数えない。
	StatusPending ApplicationStatus = "pending"
	// StatusApproved は承認済み。参加人数に数える。
	StatusApproved ApplicationStatus = "approved"
	// StatusRejected は却下。終端状態。
	StatusRejected ApplicationStatus = "rejected"
	// StatusConfirmed はapprovedの同義語。遷移で生成されることはないが、保存済みの値としては受け付ける。
	StatusConfirmed ApplicationStatus = "confirmed"
	// StatusCancelled は取り消し。取り消し時は行を削除するため保存されない。
	StatusCancelled ApplicationStatus = "cancelled"
)

// IsCounted は参加人数に数えられる状態かを返す。
func (s ApplicationStatus) IsCounted() bool {
	return s == StatusApproved || s == StatusConfirmed
}

// Normalize はconfirmedをapprovedに寄せた比較用の値を返す。
func (s ApplicationStatus) Normalize() ApplicationStatus {
	if s == StatusConfirmed {
		return StatusApproved
	}
	return s
}

// IsValid は保存可能な状態値かを返す。
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusConfirmed:
		return true
	}
	return false
}

// Application は1アカウントの1投稿への参加申請を表す。
// (PostID, AccountID) の組は一意。
type Application struct {
	ID        string
	PostID    string
	AccountID string
	Status    ApplicationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Review は参加者が投稿に対して書く後記。(PostID, AccountID) の組は一意。
type Review struct {
	ID         string
	PostID     string
	AccountID  string
	AuthorName string
	Content    string
	CreatedAt  time.Time
}
