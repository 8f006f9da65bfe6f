package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ongdesk/ongdesk/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusConflict, model.NewAlreadyRecordedError(2, 100))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Error != "attendance already recorded" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Code != model.ErrCodeAlreadyRecorded || body.Category != model.CategoryConflict {
		t.Errorf("code/category = %q/%q", body.Code, body.Category)
	}
	if body.Details == "" {
		t.Error("details should be present")
	}
	if body.ActiveTrackID != nil {
		t.Errorf("activeTrackId = %v, want nil", *body.ActiveTrackID)
	}
}

// TestWriteErrorResponse_ActiveTrackID はスキャン対象不一致時にactiveTrackIdが含まれることを検証する。
func TestWriteErrorResponse_ActiveTrackID(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewTrackMismatchError(2, 3))

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["activeTrackId"] != float64(3) {
		t.Errorf("activeTrackId = %v, want 3", raw["activeTrackId"])
	}
}

// TestWriteErrorResponse_OmitsEmptyOptionalFields は任意フィールドが空の場合に出力されないことを検証する。
func TestWriteErrorResponse_OmitsEmptyOptionalFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoTokenError())

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"error", "code", "category"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
	for _, field := range []string{"details", "activeTrackId"} {
		if _, ok := raw[field]; ok {
			t.Errorf("unexpected field: %s", field)
		}
	}
}

// TestInternalServerError_HidesDetails は内部エラーが詳細なしの統一フォーマットで返ることを検証する。
func TestInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != model.CategoryInternal {
		t.Errorf("code/category = %q/%q", body.Code, body.Category)
	}
	if body.Details != "" {
		t.Errorf("details = %q, want empty", body.Details)
	}
}

// TestRecoveryMiddleware_ReturnsJSON500 はpanic時に500のJSONが返ることを検証する。
func TestRecoveryMiddleware_ReturnsJSON500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/activity-tracks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeError(t, w); body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q", body.Code)
	}
}
