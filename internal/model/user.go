package model

import (
	"slices"
	"time"
)

// RoleAdmin は管理者ロール名。
const RoleAdmin = "admin"

// User はサービス利用ユーザー（職員・ボランティア）を表す。
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole は指定ロールを保持しているかを返す。
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}
