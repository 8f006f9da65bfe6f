package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ongdesk/ongdesk/internal/activity"
	"github.com/ongdesk/ongdesk/internal/attendance"
	"github.com/ongdesk/ongdesk/internal/auth"
	"github.com/ongdesk/ongdesk/internal/middleware"
	"github.com/ongdesk/ongdesk/internal/model"
	"github.com/ongdesk/ongdesk/internal/worker/cleanup"
)

// --- サービスのモック ---

type mockAuthService struct {
	loginFn       func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn      func(ctx context.Context, token string) error
	currentUserFn func(ctx context.Context, userID int64) (*model.User, error)
	createUserFn  func(ctx context.Context, input auth.CreateUserInput) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn == nil {
		return nil
	}
	return m.logoutFn(ctx, token)
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID int64) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

func (m *mockAuthService) CreateUser(ctx context.Context, input auth.CreateUserInput) (*model.User, error) {
	return m.createUserFn(ctx, input)
}

type mockTrackService struct {
	createFn func(ctx context.Context, input activity.CreateInput) (*model.ActivityTrack, error)
	getFn    func(ctx context.Context, id int64) (*model.ActivityTrack, error)
	listFn   func(ctx context.Context, status string, page model.PageRequest) ([]*model.ActivityTrack, model.Pagination, error)
	updateFn func(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error)
	deleteFn func(ctx context.Context, id int64) error
	startFn  func(ctx context.Context, id int64) (*model.ActivityTrack, error)
	stopFn   func(ctx context.Context, id int64) (*model.ActivityTrack, error)
	activeFn func(ctx context.Context) (*model.ActivityTrack, error)
}

func (m *mockTrackService) Create(ctx context.Context, input activity.CreateInput) (*model.ActivityTrack, error) {
	return m.createFn(ctx, input)
}

func (m *mockTrackService) Get(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	return m.getFn(ctx, id)
}

func (m *mockTrackService) List(ctx context.Context, status string, page model.PageRequest) ([]*model.ActivityTrack, model.Pagination, error) {
	return m.listFn(ctx, status, page)
}

func (m *mockTrackService) Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error) {
	return m.updateFn(ctx, id, update)
}

func (m *mockTrackService) Delete(ctx context.Context, id int64) error {
	return m.deleteFn(ctx, id)
}

func (m *mockTrackService) StartScanning(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	return m.startFn(ctx, id)
}

func (m *mockTrackService) StopScanning(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	return m.stopFn(ctx, id)
}

func (m *mockTrackService) ActiveScanningTrack(ctx context.Context) (*model.ActivityTrack, error) {
	return m.activeFn(ctx)
}

type mockAttendanceService struct {
	qrScanFn func(ctx context.Context, input attendance.QRScanInput) (*model.AttendanceRecord, error)
	manualFn func(ctx context.Context, input attendance.ManualInput) (*model.AttendanceRecord, error)
	listFn   func(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, model.Pagination, error)
	getFn    func(ctx context.Context, id int64) (*model.AttendanceRecord, error)
	updateFn func(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error)
	deleteFn func(ctx context.Context, id int64) error
	statsFn  func(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error)
}

func (m *mockAttendanceService) RecordQRScan(ctx context.Context, input attendance.QRScanInput) (*model.AttendanceRecord, error) {
	return m.qrScanFn(ctx, input)
}

func (m *mockAttendanceService) RecordManual(ctx context.Context, input attendance.ManualInput) (*model.AttendanceRecord, error) {
	return m.manualFn(ctx, input)
}

func (m *mockAttendanceService) List(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, model.Pagination, error) {
	return m.listFn(ctx, filter, page)
}

func (m *mockAttendanceService) Get(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	return m.getFn(ctx, id)
}

func (m *mockAttendanceService) Update(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error) {
	return m.updateFn(ctx, id, update)
}

func (m *mockAttendanceService) Delete(ctx context.Context, id int64) error {
	return m.deleteFn(ctx, id)
}

func (m *mockAttendanceService) Stats(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error) {
	return m.statsFn(ctx, filter)
}

type mockSweeper struct {
	runFn func(ctx context.Context) (cleanup.Result, error)
}

func (m *mockSweeper) Run(ctx context.Context) (cleanup.Result, error) {
	return m.runFn(ctx)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- リクエスト組み立てヘルパー ---

// withIdentity は認証済みの利用者情報をリクエストのコンテキストに設定する。
func withIdentity(r *http.Request, userID int64, roles ...string) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), &middleware.Identity{
		UserID: userID,
		Roles:  roles,
		Token:  "test-token",
	})
	return r.WithContext(ctx)
}

// withIDParam はchiのURLパラメータ{id}をリクエストに設定する。
func withIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body.Code != wantCode {
		t.Errorf("code = %q, want %q", body.Code, wantCode)
	}
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }
