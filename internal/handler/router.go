package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ongdesk/ongdesk/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier      middleware.TokenVerifier
	SessionValidator   middleware.SessionValidator
	SupersededRecorder middleware.SupersededRecorder
	HTTPRecorder       middleware.HTTPRecorder
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigin  string
	Logger             *slog.Logger

	// サービス
	AuthService       AuthServiceInterface
	TrackService      ActivityTrackServiceInterface
	AttendanceService AttendanceServiceInterface
	SessionSweeper    SessionSweeper

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	PageMaxLimit int
	DevMode      bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → Logging → CORS → SecurityHeaders → Auth → RateLimit(General) → RequireAdmin
//
// ヘルスチェック・メトリクス・ログイン・ログアウトは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	userHandler := NewUserHandler(deps.AuthService, deps.DevMode)
	trackHandler := NewActivityTrackHandler(deps.TrackService, deps.PageMaxLimit, deps.DevMode)
	attendanceHandler := NewAttendanceHandler(deps.AttendanceService, deps.PageMaxLimit, deps.DevMode)
	adminHandler := NewAdminHandler(deps.SessionSweeper, deps.DevMode)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/users/login", userHandler.Login)
	// ログアウトは提示されたトークンが有効なセッションと一致する場合のみ削除するため、認証を要求しない
	r.Post("/users/logout", userHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.SessionValidator, deps.SupersededRecorder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユーザー
		r.Get("/users/me", userHandler.Me)
		r.With(middleware.RequireAdmin).Post("/users", userHandler.CreateUser)

		// アクティビティトラック
		r.Route("/activity-tracks", func(r chi.Router) {
			r.Post("/", trackHandler.Create)
			r.Get("/", trackHandler.List)
			r.Get("/active-scanning", trackHandler.ActiveScanning)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", trackHandler.Get)
				r.Put("/", trackHandler.Update)
				r.With(middleware.RequireAdmin).Delete("/", trackHandler.Delete)
				r.Put("/start-scanning", trackHandler.StartScanning)
				r.Put("/stop-scanning", trackHandler.StopScanning)
			})
		})

		// 出席記録
		r.Route("/attendance-records", func(r chi.Router) {
			r.Post("/qr-scan", attendanceHandler.QRScan)
			r.Post("/manual", attendanceHandler.Manual)
			r.Get("/", attendanceHandler.List)
			r.Get("/stats", attendanceHandler.Stats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", attendanceHandler.Get)
				r.Put("/", attendanceHandler.Update)
				r.With(middleware.RequireAdmin).Delete("/", attendanceHandler.Delete)
			})
		})

		// 運用
		r.With(middleware.RequireAdmin).Post("/admin/sessions/cleanup", adminHandler.CleanupSessions)
	})

	return r
}
