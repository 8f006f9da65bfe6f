// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ongdesk/ongdesk/internal/middleware"
	"github.com/ongdesk/ongdesk/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// listResponse はページネーション付き一覧のAPIレスポンス。
type listResponse[T any] struct {
	Data       []T              `json:"data"`
	Pagination model.Pagination `json:"pagination"`
}

// messageResponse はメッセージのみのAPIレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。失敗時はINVALID_REQUESTを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewInvalidRequestError()
	}
	return nil
}

// parseIDParam はパスパラメータ{id}を正の整数として解析する。
func parseIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewInvalidIDError(raw)
	}
	return id, nil
}

// parsePageRequest はpage・limitクエリを解析する。不正な値はデフォルトに丸める。
func parsePageRequest(r *http.Request, maxLimit int) model.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return model.NewPageRequest(page, limit, maxLimit)
}

// errorResponder はサービス層のエラーをHTTPレスポンスに変換する。
// devModeが有効な場合のみ内部エラーの詳細をクライアントに返す。
type errorResponder struct {
	devMode bool
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (e errorResponder) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	details := ""
	if e.devMode {
		details = err.Error()
	}
	middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(details))
}

// mapAPIErrorToHTTPStatus はAPIErrorのカテゴリからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Category {
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryUnauthenticated:
		return http.StatusUnauthorized
	case model.CategoryForbidden:
		return http.StatusForbidden
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryConflict:
		return http.StatusConflict
	case model.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// requireIdentity はコンテキストから利用者情報を取り出す。
// 認証ミドルウェアの外で呼ばれた場合は401を書き込みfalseを返す。
func requireIdentity(w http.ResponseWriter, r *http.Request) (*middleware.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())
		return nil, false
	}
	return identity, true
}
