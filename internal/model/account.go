// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの権限種別を表す。
type Role string

const (
	// RoleMember は一般会員。
	RoleMember Role = "member"
	// RoleAdministrator は管理者。アカウント承認と全申請の操作が可能。
	RoleAdministrator Role = "administrator"
)

// 自動作成時に設定するプロフィールの既定値。
const (
	DefaultDisplayName = "User"
	DefaultContact     = "010-0000-0000"
	DefaultAddress     = "Unknown"
	DefaultJob         = "Unknown"
)

// Account はサービス利用者のプロフィールを表す。
// IDは外部IdPが発行する不透明な識別子をそのまま用いる。
type Account struct {
	ID         string
	Email      string
	Handle     string // 全アカウントで一意
	Name       string
	Contact    string
	Address    string
	Job        string
	Role       Role
	IsApproved bool
	Points     int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAdministrator は管理者権限を持つかを返す。
func (a *Account) IsAdministrator() bool {
	return a != nil && a.Role == RoleAdministrator
}

// Identity は外部IdPが検証済みとして渡してくる利用者情報。
// コアはこの値を信頼し、再検証しない。
type Identity struct {
	AccountID string
	Email     string
	Name      string
}
