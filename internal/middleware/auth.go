// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/ongdesk/ongdesk/internal/auth"
	"github.com/ongdesk/ongdesk/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みの利用者情報を格納するためのキー。
var identityContextKey = contextKey("identity")

// Identity は認証ミドルウェアが検証した利用者情報。
type Identity struct {
	UserID int64
	Roles  []string
	Token  string
}

// IsAdmin は管理者ロールを持つかを返す。
func (id *Identity) IsAdmin() bool {
	return slices.Contains(id.Roles, model.RoleAdmin)
}

// TokenVerifier はトークンの署名検証に必要なインターフェース。
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// SessionValidator はセッションレジストリの照合に必要なインターフェース。
// session.Registryの部分集合として定義する。
type SessionValidator interface {
	IsTokenValid(ctx context.Context, userID int64, token string) (bool, error)
}

// SupersededRecorder は無効化済みトークンの利用を記録するインターフェース。
type SupersededRecorder interface {
	RecordSessionSuperseded()
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// NewAuthMiddleware はBearerトークンを検証し、利用者情報をコンテキストに注入するミドルウェアを返す。
//
// 判定順:
//  1. トークンなし → 401 NO_TOKEN
//  2. 署名不正・期限切れ・形式不正 → 403 INVALID_TOKEN
//  3. ユーザーIDを解決できない → 403 NO_USER_ID
//  4. セッションレジストリのトークンと一致しない → 401 SESSION_INVALIDATED
func NewAuthMiddleware(verifier TokenVerifier, sessions SessionValidator, recorder SupersededRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidTokenError())
				return
			}

			userID, ok := claims.ResolveUserID()
			if !ok {
				WriteErrorResponse(w, http.StatusForbidden, model.NewNoUserIDError())
				return
			}

			valid, err := sessions.IsTokenValid(r.Context(), userID, token)
			if err != nil {
				slog.Error("failed to validate session",
					slog.Int64("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if !valid {
				if recorder != nil {
					recorder.RecordSessionSuperseded()
				}
				slog.Info("rejected superseded token", slog.Int64("user_id", userID))
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionInvalidatedError())
				return
			}

			setRequestUserID(r.Context(), userID)
			ctx := ContextWithIdentity(r.Context(), &Identity{
				UserID: userID,
				Roles:  claims.Roles,
				Token:  token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin は管理者ロールを要求するミドルウェア。NewAuthMiddlewareの後に配置する。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
			return
		}
		if !identity.IsAdmin() {
			WriteErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext はリクエストコンテキストから利用者情報を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok && identity != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return 0, false
	}
	return identity.UserID, true
}

// ContextWithIdentity はコンテキストに利用者情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
