package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ongdesk/ongdesk/internal/worker/cleanup"
)

// SessionSweeper は期限切れセッションの掃除を実行するインターフェース。
type SessionSweeper interface {
	Run(ctx context.Context) (cleanup.Result, error)
}

// HealthChecker はデータベースの疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// AdminHandler は運用系エンドポイントのHTTPハンドラー。
type AdminHandler struct {
	errorResponder
	sweeper SessionSweeper
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(sweeper SessionSweeper, devMode bool) *AdminHandler {
	return &AdminHandler{
		errorResponder: errorResponder{devMode: devMode},
		sweeper:        sweeper,
	}
}

// CleanupSessions は期限切れセッションを即時に掃除する（管理者のみ）。
// POST /admin/sessions/cleanup
func (h *AdminHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Run(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// checkerがnilの場合はプロセスの生存のみを返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
