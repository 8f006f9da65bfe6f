package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ongdesk/ongdesk/internal/attendance"
	"github.com/ongdesk/ongdesk/internal/model"
)

// AttendanceServiceInterface は出席記録ハンドラーが必要とするサービスインターフェース。
type AttendanceServiceInterface interface {
	RecordQRScan(ctx context.Context, input attendance.QRScanInput) (*model.AttendanceRecord, error)
	RecordManual(ctx context.Context, input attendance.ManualInput) (*model.AttendanceRecord, error)
	List(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, model.Pagination, error)
	Get(ctx context.Context, id int64) (*model.AttendanceRecord, error)
	Update(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error)
}

// AttendanceHandler は出席記録のHTTPハンドラー。
type AttendanceHandler struct {
	errorResponder
	service      AttendanceServiceInterface
	pageMaxLimit int
}

// NewAttendanceHandler はAttendanceHandlerを生成する。
func NewAttendanceHandler(service AttendanceServiceInterface, pageMaxLimit int, devMode bool) *AttendanceHandler {
	return &AttendanceHandler{
		errorResponder: errorResponder{devMode: devMode},
		service:        service,
		pageMaxLimit:   pageMaxLimit,
	}
}

// qrRecordID はQRコード内のrecord_id。QR生成側によって数値と数字文字列の両方がある。
type qrRecordID int64

// UnmarshalJSON は数値または数字のみの文字列を受け付ける。
func (id *qrRecordID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("record_id must be an integer: %w", err)
	}
	*id = qrRecordID(v)
	return nil
}

// ptr はnilを保ったまま*int64に変換する。
func (id *qrRecordID) ptr() *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

// qrScanRequest はQRスキャンリクエストのボディ。
type qrScanRequest struct {
	QRData struct {
		RecordID *qrRecordID `json:"record_id"`
		Name     string      `json:"name"`
	} `json:"qrData"`
	ActivityTrackID int64 `json:"activityTrackId"`
}

// manualRequest は手入力リクエストのボディ。
type manualRequest struct {
	ActivityTrackID int64   `json:"activity_track_id"`
	AttendanceType  string  `json:"attendance_type"`
	FullName        string  `json:"full_name"`
	Cedula          *string `json:"cedula"`
	Phone           *string `json:"phone"`
	RecordID        *int64  `json:"record_id"`
}

// attendanceUpdateRequest は出席記録の訂正リクエストのボディ。
type attendanceUpdateRequest struct {
	FullName *string `json:"full_name"`
	Cedula   *string `json:"cedula"`
	Phone    *string `json:"phone"`
}

// attendanceResponse は出席記録のAPIレスポンス。
type attendanceResponse struct {
	ID               int64     `json:"id"`
	ActivityTrackID  int64     `json:"activity_track_id"`
	RecordID         *int64    `json:"record_id"`
	AttendanceType   string    `json:"attendance_type"`
	FullName         string    `json:"full_name"`
	Cedula           *string   `json:"cedula"`
	Phone            *string   `json:"phone"`
	AttendanceMethod string    `json:"attendance_method"`
	ScannedAt        time.Time `json:"scanned_at"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	ActivityName     string    `json:"activity_name,omitempty"`
	CreatedByName    string    `json:"created_by_name,omitempty"`
}

// statsResponse は出席集計のAPIレスポンス。
type statsResponse struct {
	Total         int `json:"total"`
	Beneficiarios int `json:"beneficiarios"`
	Guests        int `json:"guests"`
	QRScans       int `json:"qr_scans"`
	ManualEntries int `json:"manual_entries"`
	UniqueRecords int `json:"unique_records"`
}

func toAttendanceResponse(rec *model.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		ID:               rec.ID,
		ActivityTrackID:  rec.ActivityTrackID,
		RecordID:         rec.RecordID,
		AttendanceType:   string(rec.AttendanceType),
		FullName:         rec.FullName,
		Cedula:           rec.Cedula,
		Phone:            rec.Phone,
		AttendanceMethod: string(rec.AttendanceMethod),
		ScannedAt:        rec.ScannedAt,
		CreatedBy:        rec.CreatedBy,
		CreatedAt:        rec.CreatedAt,
		ActivityName:     rec.ActivityName,
		CreatedByName:    rec.CreatedByName,
	}
}

// QRScan はQRコードのスキャン結果から出席を記録する。
// POST /attendance-records/qr-scan
func (h *AttendanceHandler) QRScan(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req qrScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	rec, err := h.service.RecordQRScan(r.Context(), attendance.QRScanInput{
		QRData: attendance.QRData{
			RecordID: req.QRData.RecordID.ptr(),
			Name:     req.QRData.Name,
		},
		ActivityTrackID: req.ActivityTrackID,
		OperatorID:      identity.UserID,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceResponse(rec))
}

// Manual は手入力で出席を記録する。
// POST /attendance-records/manual
func (h *AttendanceHandler) Manual(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req manualRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	rec, err := h.service.RecordManual(r.Context(), attendance.ManualInput{
		ActivityTrackID: req.ActivityTrackID,
		AttendanceType:  req.AttendanceType,
		FullName:        req.FullName,
		Cedula:          req.Cedula,
		Phone:           req.Phone,
		RecordID:        req.RecordID,
		OperatorID:      identity.UserID,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceResponse(rec))
}

// List は出席記録一覧を返す。
// GET /attendance-records?page&limit&activityTrackId&attendanceType&attendanceMethod&startDate&endDate
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAttendanceFilter(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	page := parsePageRequest(r, h.pageMaxLimit)
	records, pagination, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]attendanceResponse, len(records))
	for i, rec := range records {
		data[i] = toAttendanceResponse(rec)
	}
	writeJSON(w, http.StatusOK, listResponse[attendanceResponse]{Data: data, Pagination: pagination})
}

// Stats は出席記録の集計を返す。絞り込み条件はListと同じ。
// GET /attendance-records/stats
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAttendanceFilter(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:         stats.Total,
		Beneficiarios: stats.Beneficiarios,
		Guests:        stats.Guests,
		QRScans:       stats.QRScans,
		ManualEntries: stats.ManualEntries,
		UniqueRecords: stats.UniqueRecords,
	})
}

// Get は出席記録を返す。
// GET /attendance-records/{id}
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(rec))
}

// Update は出席記録の氏名・身分証番号・電話番号を訂正する。
// PUT /attendance-records/{id}
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	var req attendanceUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	rec, err := h.service.Update(r.Context(), id, model.AttendanceUpdate{
		FullName: req.FullName,
		Cedula:   req.Cedula,
		Phone:    req.Phone,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResponse(rec))
}

// Delete は出席記録を削除する（管理者のみ）。
// DELETE /attendance-records/{id}
func (h *AttendanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseAttendanceFilter はクエリパラメータから絞り込み条件を組み立てる。
// 値の形式が不正な場合はVALIDATIONエラーを返す。種別・登録経路の値の検証はサービス層で行う。
func parseAttendanceFilter(r *http.Request) (model.AttendanceFilter, error) {
	q := r.URL.Query()
	var filter model.AttendanceFilter

	if raw := q.Get("activityTrackId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, model.NewValidationError("activityTrackId must be a positive integer")
		}
		filter.ActivityTrackID = &id
	}
	if raw := q.Get("attendanceType"); raw != "" {
		t := model.AttendanceType(raw)
		filter.AttendanceType = &t
	}
	if raw := q.Get("attendanceMethod"); raw != "" {
		m := model.AttendanceMethod(raw)
		filter.AttendanceMethod = &m
	}
	if raw := q.Get("startDate"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return filter, model.NewValidationError("startDate must be YYYY-MM-DD")
		}
		filter.StartDate = &d
	}
	if raw := q.Get("endDate"); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return filter, model.NewValidationError("endDate must be YYYY-MM-DD")
		}
		filter.EndDate = &d
	}
	return filter, nil
}
