package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/ongdesk/ongdesk/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Category      string `json:"category"`
	Details       string `json:"details,omitempty"`
	ActiveTrackID *int64 `json:"activeTrackId,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// Detailsの出し分けは呼び出し側で行う。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:         apiErr.Message,
		Code:          apiErr.Code,
		Category:      apiErr.Category,
		Details:       apiErr.Details,
		ActiveTrackID: apiErr.ActiveTrackID,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError(""))
}
