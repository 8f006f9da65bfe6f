// Package auth はパスワードログイン、アクセストークンの発行・検証、ユーザー作成を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ongdesk/ongdesk/internal/model"
	"github.com/ongdesk/ongdesk/internal/repository"
	"github.com/ongdesk/ongdesk/internal/security"
	"github.com/ongdesk/ongdesk/internal/session"
)

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// CreateUserInput はユーザー作成の入力。
type CreateUserInput struct {
	Email    string
	FullName string
	Password string
	Roles    []string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	tokens    *TokenManager
	sessions  session.Registry
	sanitizer security.TextSanitizer
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	tokens *TokenManager,
	sessions session.Registry,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		userRepo:  userRepo,
		tokens:    tokens,
		sessions:  sessions,
		sanitizer: sanitizer,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login はメールアドレスとパスワードでユーザーを認証し、アクセストークンを発行する。
// 同じユーザーの既存セッションは置き換えられ、以前のトークンは無効になる。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("email and password are required")
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password for user %d: %w", user.ID, err)
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}
	if !user.IsActive {
		return nil, model.NewUserInactiveError()
	}

	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	replaced, err := s.sessions.SetActiveSession(ctx, user.ID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}
	if replaced {
		slog.Info("previous session superseded by new login",
			slog.Int64("user_id", user.ID),
		)
	}

	slog.Info("user logged in", slog.Int64("user_id", user.ID))
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
	}, nil
}

// Logout は提示されたトークンが現在のセッションと一致する場合のみセッションを削除する。
// トークンがない、または検証できない場合は何もしない。
// 新しいログインで置き換えられた古いトークンでは、新しいセッションを削除しない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil
	}
	userID, ok := claims.ResolveUserID()
	if !ok {
		return nil
	}

	removed, err := s.sessions.RemoveIfTokenMatches(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	if removed {
		slog.Info("user logged out", slog.Int64("user_id", userID))
	} else {
		slog.Info("logout ignored for stale token", slog.Int64("user_id", userID))
	}
	return nil
}

// VerifyToken はトークンを検証してクレームを返す。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// CurrentUser は指定IDのユーザーを返す。
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// CreateUser は新しいユーザーを作成する。メールアドレスが重複する場合はCONFLICTを返す。
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*model.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, model.NewValidationError("email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.NewValidationError("email is invalid")
	}

	fullName := s.sanitizer.Clean(input.FullName)
	if fullName == "" {
		return nil, model.NewValidationError("full_name is required")
	}

	if len(input.Password) < MinPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(input.Password) > MaxPasswordBytes {
		return nil, model.NewValidationError(fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}

	roles, err := normalizeRoles(input.Roles)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Roles:        roles,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError(email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.Int64("user_id", user.ID),
		slog.Any("roles", user.Roles),
	)
	return user, nil
}

// normalizeRoles はロール名を小文字化・重複除去する。英小文字とアンダースコア以外は拒否する。
func normalizeRoles(roles []string) ([]string, error) {
	seen := make(map[string]bool, len(roles))
	result := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" || seen[r] {
			continue
		}
		for _, c := range r {
			if (c < 'a' || c > 'z') && c != '_' {
				return nil, model.NewValidationError(fmt.Sprintf("invalid role: %q", r))
			}
		}
		seen[r] = true
		result = append(result, r)
	}
	return result, nil
}
