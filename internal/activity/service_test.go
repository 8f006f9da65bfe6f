package activity

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/ongdesk/ongdesk/internal/model"
	"github.com/ongdesk/ongdesk/internal/repository"
	"github.com/ongdesk/ongdesk/internal/security"
)

// --- モック定義 ---

// fakeTrackRepo はActivityTrackRepositoryのインメモリ実装。
type fakeTrackRepo struct {
	mu         sync.Mutex
	tracks     map[int64]*model.ActivityTrack
	nextID     int64
	referenced map[int64]bool

	// startScanningFn が設定されている場合はStartScanningの結果を差し替える。
	startScanningFn func(id int64) (bool, error)
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{tracks: map[int64]*model.ActivityTrack{}, referenced: map[int64]bool{}}
}

func (f *fakeTrackRepo) Create(_ context.Context, track *model.ActivityTrack) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	track.ID = f.nextID
	cp := *track
	f.tracks[track.ID] = &cp
	return nil
}

func (f *fakeTrackRepo) FindByID(_ context.Context, id int64) (*model.ActivityTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTrackRepo) List(_ context.Context, status *model.TrackStatus, page model.PageRequest) ([]*model.ActivityTrack, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.ActivityTrack
	for _, t := range f.tracks {
		if status == nil || t.Status == *status {
			cp := *t
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := min(page.Offset(), len(all))
	end := min(start+page.Limit, len(all))
	return all[start:end], len(all), nil
}

func (f *fakeTrackRepo) Update(_ context.Context, id int64, u model.TrackUpdate) (*model.ActivityTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return nil, nil
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = u.Description
	}
	if u.EventDate != nil {
		t.EventDate = *u.EventDate
	}
	if u.EventTime != nil {
		t.EventTime = u.EventTime
	}
	if u.Location != nil {
		t.Location = u.Location
	}
	if u.Status != nil {
		t.Status = *u.Status
		t.ScanningActive = t.ScanningActive && *u.Status == model.TrackStatusActive
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTrackRepo) Delete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tracks[id]; !ok {
		return false, nil
	}
	if f.referenced[id] {
		return false, repository.ErrReferenced
	}
	delete(f.tracks, id)
	return true, nil
}

func (f *fakeTrackRepo) StartScanning(_ context.Context, id int64) (bool, error) {
	if f.startScanningFn != nil {
		return f.startScanningFn(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.tracks[id]
	if !ok || target.Status != model.TrackStatusActive {
		return false, nil
	}
	for _, t := range f.tracks {
		t.ScanningActive = false
	}
	target.ScanningActive = true
	return true, nil
}

func (f *fakeTrackRepo) StopScanning(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tracks[id]
	if !ok {
		return false, nil
	}
	t.ScanningActive = false
	return true, nil
}

func (f *fakeTrackRepo) FindActiveScanning(_ context.Context) (*model.ActivityTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tracks {
		if t.ScanningActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTrackRepo) scanningCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tracks {
		if t.ScanningActive {
			n++
		}
	}
	return n
}

type mockRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *mockRecorder) RecordScanningTransition(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

// --- テストヘルパー ---

func newTestService() (*Service, *fakeTrackRepo, *mockRecorder) {
	repo := newFakeTrackRepo()
	rec := &mockRecorder{}
	return NewService(repo, security.NewTextSanitizer(), rec), repo, rec
}

func mustCreate(t *testing.T, svc *Service, name, status string) *model.ActivityTrack {
	t.Helper()
	track, err := svc.Create(context.Background(), CreateInput{
		Name: name, EventDate: "2026-05-20", Status: status, CreatedBy: 1,
	})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", name, err)
	}
	return track
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func strPtr(s string) *string { return &s }

// --- テスト ---

func TestService_Create_Defaults(t *testing.T) {
	svc, _, _ := newTestService()

	track, err := svc.Create(context.Background(), CreateInput{
		Name:      "  <b>Taller</b> de costura ",
		EventDate: "2026-05-20",
		EventTime: strPtr("14:30"),
		Location:  strPtr("<i>Sede</i>"),
		CreatedBy: 9,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if track.Status != model.TrackStatusActive {
		t.Errorf("Status = %q, want active", track.Status)
	}
	if track.ScanningActive {
		t.Error("作成直後はスキャン停止状態であるべき")
	}
	if track.Name != "Taller de costura" || *track.Location != "Sede" {
		t.Errorf("free text not sanitized: %q / %q", track.Name, *track.Location)
	}
	if track.CreatedBy != 9 {
		t.Errorf("CreatedBy = %d, want 9", track.CreatedBy)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc, repo, _ := newTestService()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"名前なし", CreateInput{EventDate: "2026-05-20"}},
		{"日付形式不正", CreateInput{Name: "T", EventDate: "20-05-2026"}},
		{"存在しない日付", CreateInput{Name: "T", EventDate: "2026-02-30"}},
		{"時刻形式不正", CreateInput{Name: "T", EventDate: "2026-05-20", EventTime: strPtr("2pm")}},
		{"時刻範囲外", CreateInput{Name: "T", EventDate: "2026-05-20", EventTime: strPtr("25:00")}},
		{"不正なstatus", CreateInput{Name: "T", EventDate: "2026-05-20", Status: "archived"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
		})
	}
	if len(repo.tracks) != 0 {
		t.Errorf("検証エラー時に永続化されています: %d件", len(repo.tracks))
	}
}

// 2件目のスキャン開始で1件目が停止し、スキャン中は常に1件となることを検証
func TestService_StartScanning_SwitchesActiveTrack(t *testing.T) {
	ctx := context.Background()
	svc, repo, rec := newTestService()
	t1 := mustCreate(t, svc, "Taller 1", "")
	t2 := mustCreate(t, svc, "Taller 2", "")

	started, err := svc.StartScanning(ctx, t1.ID)
	if err != nil {
		t.Fatalf("StartScanning(t1) failed: %v", err)
	}
	if !started.ScanningActive {
		t.Error("t1がスキャン中になっていません")
	}

	if _, err := svc.StartScanning(ctx, t2.ID); err != nil {
		t.Fatalf("StartScanning(t2) failed: %v", err)
	}

	first, _ := svc.Get(ctx, t1.ID)
	if first.ScanningActive {
		t.Error("t2開始後もt1がスキャン中です")
	}
	active, err := svc.ActiveScanningTrack(ctx)
	if err != nil {
		t.Fatalf("ActiveScanningTrack failed: %v", err)
	}
	if active == nil || active.ID != t2.ID {
		t.Errorf("active = %+v, want track %d", active, t2.ID)
	}
	if repo.scanningCount() != 1 {
		t.Errorf("スキャン中のトラック数 = %d, want 1", repo.scanningCount())
	}
	if len(rec.actions) != 2 || rec.actions[0] != "start" {
		t.Errorf("recorded actions = %v", rec.actions)
	}
}

// 非activeトラックのスキャン開始はVALIDATIONで拒否され、状態が変わらないことを検証
func TestService_StartScanning_RejectsNonActiveTrack(t *testing.T) {
	ctx := context.Background()
	svc, repo, rec := newTestService()
	t1 := mustCreate(t, svc, "Taller 1", "")
	t3 := mustCreate(t, svc, "Taller 3", "inactive")

	if _, err := svc.StartScanning(ctx, t1.ID); err != nil {
		t.Fatalf("StartScanning(t1) failed: %v", err)
	}

	_, err := svc.StartScanning(ctx, t3.ID)
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotActive)

	active, _ := svc.ActiveScanningTrack(ctx)
	if active == nil || active.ID != t1.ID {
		t.Errorf("拒否後もt1がスキャン中であるべき: %+v", active)
	}
	if repo.scanningCount() != 1 || len(rec.actions) != 1 {
		t.Errorf("state changed: scanning=%d actions=%v", repo.scanningCount(), rec.actions)
	}
}

func TestService_StartScanning_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.StartScanning(context.Background(), 404)
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotFound)
}

// 確認後にstatusが変わり開始できなかった場合もVALIDATIONを返すことを検証
func TestService_StartScanning_LostRace(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()
	track := mustCreate(t, svc, "Taller", "")

	repo.startScanningFn = func(id int64) (bool, error) {
		repo.mu.Lock()
		repo.tracks[id].Status = model.TrackStatusCompleted
		repo.mu.Unlock()
		return false, nil
	}

	_, err := svc.StartScanning(ctx, track.ID)
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotActive)
}

// 任意の開始・停止の列の後でもスキャン中のトラックが1件以下であることを検証
func TestService_ScanningSingleton_RandomSequence(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()

	statuses := []string{"", "", "", "inactive", "completed"}
	var ids []int64
	for i, st := range statuses {
		ids = append(ids, mustCreate(t, svc, "T"+string(rune('A'+i)), st).ID)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(3) == 0 {
			svc.StopScanning(ctx, id)
		} else {
			svc.StartScanning(ctx, id)
		}
		if n := repo.scanningCount(); n > 1 {
			t.Fatalf("step %d: スキャン中のトラックが%d件あります", i, n)
		}
	}
}

func TestService_StopScanning(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	track := mustCreate(t, svc, "Taller", "")

	svc.StartScanning(ctx, track.ID)
	stopped, err := svc.StopScanning(ctx, track.ID)
	if err != nil {
		t.Fatalf("StopScanning failed: %v", err)
	}
	if stopped.ScanningActive {
		t.Error("停止後もスキャン中です")
	}

	// 停止済みトラックの停止も成功する
	if _, err := svc.StopScanning(ctx, track.ID); err != nil {
		t.Errorf("2回目のStopScanning failed: %v", err)
	}

	_, err = svc.StopScanning(ctx, 999)
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotFound)
}

// statusをactive以外に変更するとスキャンも停止することを検証
func TestService_Update_StatusChangeStopsScanning(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newTestService()
	track := mustCreate(t, svc, "Taller", "")
	svc.StartScanning(ctx, track.ID)

	completed := model.TrackStatusCompleted
	updated, err := svc.Update(ctx, track.ID, model.TrackUpdate{Status: &completed})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ScanningActive {
		t.Error("completedへの変更後もスキャン中です")
	}
	if active, _ := svc.ActiveScanningTrack(ctx); active != nil {
		t.Errorf("スキャン中のトラックが残っています: %+v", active)
	}
	if rec.actions[len(rec.actions)-1] != "stop" {
		t.Errorf("stop遷移が記録されていません: %v", rec.actions)
	}
}

func TestService_Update_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	track := mustCreate(t, svc, "Taller", "")
	bad := model.TrackStatus("archived")

	tests := []struct {
		name   string
		update model.TrackUpdate
	}{
		{"更新項目なし", model.TrackUpdate{}},
		{"空の名前", model.TrackUpdate{Name: strPtr("  ")}},
		{"日付形式不正", model.TrackUpdate{EventDate: strPtr("2026/05/20")}},
		{"時刻形式不正", model.TrackUpdate{EventTime: strPtr("9h")}},
		{"不正なstatus", model.TrackUpdate{Status: &bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, track.ID, tt.update)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
		})
	}

	_, err := svc.Update(ctx, 999, model.TrackUpdate{Name: strPtr("x")})
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotFound)
}

// 出席記録が残っているトラックは削除できないことを検証
func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()
	used := mustCreate(t, svc, "Con asistencia", "")
	unused := mustCreate(t, svc, "Sin asistencia", "")
	repo.referenced[used.ID] = true

	err := svc.Delete(ctx, used.ID)
	assertAPIErrorCode(t, err, model.ErrCodeTrackHasAttendance)

	if err := svc.Delete(ctx, unused.ID); err != nil {
		t.Errorf("Delete(unused) failed: %v", err)
	}
	err = svc.Delete(ctx, unused.ID)
	assertAPIErrorCode(t, err, model.ErrCodeTrackNotFound)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()
	for i := 0; i < 3; i++ {
		mustCreate(t, svc, "Activa", "")
	}
	mustCreate(t, svc, "Cerrada", "completed")

	tracks, page, err := svc.List(ctx, "active", model.NewPageRequest(1, 2, 100))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tracks) != 2 || page.Total != 3 || page.TotalPages != 2 {
		t.Errorf("List = %d tracks, pagination %+v", len(tracks), page)
	}

	_, _, err = svc.List(ctx, "bogus", model.NewPageRequest(1, 10, 100))
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}
