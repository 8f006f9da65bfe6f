package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ongdesk/ongdesk/internal/model"
)

// DefaultTokenTTL はトークンの既定の有効期間。
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken は署名不正・期限切れ・形式不正のトークンを表す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアクセストークンのクレーム。
// ユーザーIDはuserIdを優先し、旧形式のトークンではidを使う。
type Claims struct {
	UserID   *int64   `json:"userId,omitempty"`
	LegacyID *int64   `json:"id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// ResolveUserID はクレームからユーザーIDを解決する。どちらもない場合はfalseを返す。
func (c *Claims) ResolveUserID() (int64, bool) {
	switch {
	case c.UserID != nil && *c.UserID > 0:
		return *c.UserID, true
	case c.LegacyID != nil && *c.LegacyID > 0:
		return *c.LegacyID, true
	default:
		return 0, false
	}
}

// TokenManager はHS256で署名したアクセストークンの発行と検証を行う。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。ttlが0以下の場合はDefaultTokenTTLを使う。
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はユーザーのアクセストークンを発行する。
// jtiにUUIDを含めるため、同じ秒に発行しても同一のトークンにはならない。
func (m *TokenManager) Issue(user *model.User) (string, *Claims, error) {
	now := m.now()
	userID := user.ID
	claims := &Claims{
		UserID: &userID,
		Email:  user.Email,
		Roles:  user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
