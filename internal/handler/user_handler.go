package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ongdesk/ongdesk/internal/auth"
	"github.com/ongdesk/ongdesk/internal/middleware"
	"github.com/ongdesk/ongdesk/internal/model"
)

// AuthServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, userID int64) (*model.User, error)
	CreateUser(ctx context.Context, input auth.CreateUserInput) (*model.User, error)
}

// UserHandler はログイン・ログアウトとユーザー管理のHTTPハンドラー。
type UserHandler struct {
	errorResponder
	service AuthServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AuthServiceInterface, devMode bool) *UserHandler {
	return &UserHandler{
		errorResponder: errorResponder{devMode: devMode},
		service:        service,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createUserRequest struct {
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Roles     []string  `json:"roles"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func toUserResponse(u *model.User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Roles:     roles,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// Login はメールアドレスとパスワードで認証し、トークンを発行する。
// 同じユーザーの既存トークンはこの時点で無効になる。
// POST /users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// Logout は提示されたトークンが現在のセッションと一致する場合のみセッションを削除する。
// トークンの有無にかかわらず200を返す。
// POST /users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.BearerToken(r)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// Me は認証済みユーザーの情報を返す。
// GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), identity.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// CreateUser はユーザーを作成する（管理者のみ）。
// POST /users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), auth.CreateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}
