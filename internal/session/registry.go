// Package session はユーザーごとに有効なトークンを1つに限定するセッションレジストリを提供する。
//
// 再ログインすると同じユーザーの以前のトークンは即座に無効になる。
// 失効リストは持たず、ユーザーIDをキーに最新のトークンだけを保持する。
package session

import (
	"context"
	"crypto/subtle"
	"time"
)

// DefaultIdleTimeout は最終アクティビティからセッションを破棄するまでの既定時間。
const DefaultIdleTimeout = 24 * time.Hour

// Session は1ユーザーの有効なログインを表す。
type Session struct {
	UserID       int64
	Token        string
	LoginTime    time.Time
	LastActivity time.Time
}

// Registry はユーザーごとに高々1つのセッションを保持するストア。
type Registry interface {
	// SetActiveSession は既存セッションを無条件に置き換える。
	// 置き換えた既存セッションがあった場合はtrueを返す。
	SetActiveSession(ctx context.Context, userID int64, token string) (bool, error)

	// IsTokenValid はuserIDのセッションが存在し、トークンが一致する場合にtrueを返す。
	// 一致した場合は最終アクティビティ時刻を更新する。
	IsTokenValid(ctx context.Context, userID int64, token string) (bool, error)

	// RemoveActiveSession はセッションを無条件に削除する。
	RemoveActiveSession(ctx context.Context, userID int64) error

	// RemoveIfTokenMatches は保存中のトークンがtokenと一致する場合のみセッションを削除する。
	// 比較と削除は不可分に行う。削除した場合はtrueを返す。
	RemoveIfTokenMatches(ctx context.Context, userID int64, token string) (bool, error)

	// CleanupExpiredSessions はアイドル時間を超えたセッションを削除し、削除件数を返す。
	CleanupExpiredSessions(ctx context.Context) (int, error)

	// Count は現在保持しているセッション数を返す。
	Count(ctx context.Context) (int, error)
}

// tokensEqual はトークンを定数時間で比較する。
func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
