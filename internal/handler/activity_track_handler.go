package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ongdesk/ongdesk/internal/activity"
	"github.com/ongdesk/ongdesk/internal/model"
)

// ActivityTrackServiceInterface はアクティビティトラックハンドラーが必要とするサービスインターフェース。
type ActivityTrackServiceInterface interface {
	Create(ctx context.Context, input activity.CreateInput) (*model.ActivityTrack, error)
	Get(ctx context.Context, id int64) (*model.ActivityTrack, error)
	List(ctx context.Context, status string, page model.PageRequest) ([]*model.ActivityTrack, model.Pagination, error)
	Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error)
	Delete(ctx context.Context, id int64) error
	StartScanning(ctx context.Context, id int64) (*model.ActivityTrack, error)
	StopScanning(ctx context.Context, id int64) (*model.ActivityTrack, error)
	ActiveScanningTrack(ctx context.Context) (*model.ActivityTrack, error)
}

// ActivityTrackHandler はアクティビティトラックのHTTPハンドラー。
type ActivityTrackHandler struct {
	errorResponder
	service      ActivityTrackServiceInterface
	pageMaxLimit int
}

// NewActivityTrackHandler はActivityTrackHandlerを生成する。
func NewActivityTrackHandler(service ActivityTrackServiceInterface, pageMaxLimit int, devMode bool) *ActivityTrackHandler {
	return &ActivityTrackHandler{
		errorResponder: errorResponder{devMode: devMode},
		service:        service,
		pageMaxLimit:   pageMaxLimit,
	}
}

// trackRequest はトラック作成・更新リクエストのボディ。
// 更新時は指定されたフィールドのみを変更する。
type trackRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	EventDate   *string `json:"event_date"`
	EventTime   *string `json:"event_time"`
	Location    *string `json:"location"`
	Status      *string `json:"status"`
}

// trackResponse はアクティビティトラックのAPIレスポンス。
type trackResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	EventDate      string    `json:"event_date"`
	EventTime      *string   `json:"event_time"`
	Location       *string   `json:"location"`
	Status         string    `json:"status"`
	ScanningActive bool      `json:"scanning_active"`
	CreatedBy      int64     `json:"created_by"`
	CreatedByName  string    `json:"created_by_name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// activeScanningResponse はスキャン中トラックのAPIレスポンス。存在しない場合はnull。
type activeScanningResponse struct {
	ActiveTrack *trackResponse `json:"activeTrack"`
}

func toTrackResponse(t *model.ActivityTrack) trackResponse {
	return trackResponse{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		EventDate:      t.EventDate,
		EventTime:      t.EventTime,
		Location:       t.Location,
		Status:         string(t.Status),
		ScanningActive: t.ScanningActive,
		CreatedBy:      t.CreatedBy,
		CreatedByName:  t.CreatedByName,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create はトラックを作成する。
// POST /activity-tracks
func (h *ActivityTrackHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	track, err := h.service.Create(r.Context(), activity.CreateInput{
		Name:        deref(req.Name),
		Description: req.Description,
		EventDate:   deref(req.EventDate),
		EventTime:   req.EventTime,
		Location:    req.Location,
		Status:      deref(req.Status),
		CreatedBy:   identity.UserID,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrackResponse(track))
}

// List はトラック一覧を返す。
// GET /activity-tracks?page&limit&status
func (h *ActivityTrackHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parsePageRequest(r, h.pageMaxLimit)
	tracks, pagination, err := h.service.List(r.Context(), r.URL.Query().Get("status"), page)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	data := make([]trackResponse, len(tracks))
	for i, t := range tracks {
		data[i] = toTrackResponse(t)
	}
	writeJSON(w, http.StatusOK, listResponse[trackResponse]{Data: data, Pagination: pagination})
}

// Get はトラックを返す。
// GET /activity-tracks/{id}
func (h *ActivityTrackHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.service.Get, http.StatusOK)
}

// Update はトラックの指定フィールドを更新する。
// PUT /activity-tracks/{id}
func (h *ActivityTrackHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleServiceError(w, err)
		return
	}

	update := model.TrackUpdate{
		Name:        req.Name,
		Description: req.Description,
		EventDate:   req.EventDate,
		EventTime:   req.EventTime,
		Location:    req.Location,
	}
	if req.Status != nil {
		status := model.TrackStatus(*req.Status)
		update.Status = &status
	}

	track, err := h.service.Update(r.Context(), id, update)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrackResponse(track))
}

// Delete はトラックを削除する（管理者のみ）。出席記録が残っている場合は409を返す。
// DELETE /activity-tracks/{id}
func (h *ActivityTrackHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// StartScanning はトラックのスキャンを開始し、他のトラックのスキャンを停止する。
// PUT /activity-tracks/{id}/start-scanning
func (h *ActivityTrackHandler) StartScanning(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.service.StartScanning, http.StatusOK)
}

// StopScanning はトラックのスキャンを停止する。
// PUT /activity-tracks/{id}/stop-scanning
func (h *ActivityTrackHandler) StopScanning(w http.ResponseWriter, r *http.Request) {
	h.withID(w, r, h.service.StopScanning, http.StatusOK)
}

// ActiveScanning はスキャン中のトラックを返す。
// GET /activity-tracks/active-scanning
func (h *ActivityTrackHandler) ActiveScanning(w http.ResponseWriter, r *http.Request) {
	track, err := h.service.ActiveScanningTrack(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	var resp activeScanningResponse
	if track != nil {
		t := toTrackResponse(track)
		resp.ActiveTrack = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// withID はパスパラメータのIDでサービスを呼び出し、結果のトラックを返す。
func (h *ActivityTrackHandler) withID(
	w http.ResponseWriter,
	r *http.Request,
	call func(ctx context.Context, id int64) (*model.ActivityTrack, error),
	statusCode int,
) {
	id, err := parseIDParam(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	track, err := call(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, statusCode, toTrackResponse(track))
}
