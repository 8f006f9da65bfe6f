// Package activity はアクティビティトラックとスキャン状態のドメインロジックを提供する。
//
// スキャン中（scanning_active）のトラックはシステム全体で高々1件であり、
// statusがactiveのトラックのみスキャンを開始できる。
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ongdesk/ongdesk/internal/model"
	"github.com/ongdesk/ongdesk/internal/repository"
	"github.com/ongdesk/ongdesk/internal/security"
)

// MaxNameLength はトラック名の最大文字数。
const MaxNameLength = 200

// ScanningRecorder はスキャン遷移のメトリクス記録に必要なインターフェース。
type ScanningRecorder interface {
	RecordScanningTransition(action string)
}

// CreateInput はトラック作成の入力。
type CreateInput struct {
	Name        string
	Description *string
	EventDate   string
	EventTime   *string
	Location    *string
	Status      string // 省略時はactive
	CreatedBy   int64
}

// Service はアクティビティトラックのサービス層。
type Service struct {
	repo      repository.ActivityTrackRepository
	sanitizer security.TextSanitizer
	metrics   ScanningRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ActivityTrackRepository,
	sanitizer security.TextSanitizer,
	metrics ScanningRecorder,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

func validateName(name string) error {
	if name == "" {
		return model.NewValidationError("name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return model.NewValidationError(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return nil
}

func validateEventDate(date string) error {
	if !model.IsValidEventDate(date) {
		return model.NewValidationError("event_date must be in YYYY-MM-DD format")
	}
	return nil
}

func validateEventTime(t *string) error {
	if t != nil && !model.IsValidEventTime(*t) {
		return model.NewValidationError("event_time must be in HH:MM or HH:MM:SS format")
	}
	return nil
}

func parseStatus(raw string) (model.TrackStatus, error) {
	status := model.TrackStatus(raw)
	if !status.Valid() {
		return "", model.NewValidationError("status must be one of active, inactive, completed")
	}
	return status, nil
}

// Create はトラックを作成する。statusの既定値はactive、スキャンは停止状態で作成する。
// 入力検証は永続化の前に行う。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.ActivityTrack, error) {
	name := s.sanitizer.Clean(input.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateEventDate(input.EventDate); err != nil {
		return nil, err
	}
	if err := validateEventTime(input.EventTime); err != nil {
		return nil, err
	}
	status := model.TrackStatusActive
	if input.Status != "" {
		var err error
		if status, err = parseStatus(input.Status); err != nil {
			return nil, err
		}
	}

	track := &model.ActivityTrack{
		Name:        name,
		Description: s.sanitizer.CleanPtr(input.Description),
		EventDate:   input.EventDate,
		EventTime:   input.EventTime,
		Location:    s.sanitizer.CleanPtr(input.Location),
		Status:      status,
		CreatedBy:   input.CreatedBy,
	}
	if err := s.repo.Create(ctx, track); err != nil {
		return nil, fmt.Errorf("failed to create activity track: %w", err)
	}

	slog.Info("activity track created",
		slog.Int64("track_id", track.ID),
		slog.Int64("created_by", track.CreatedBy),
	)
	return s.Get(ctx, track.ID)
}

// Get は指定IDのトラックを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	track, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find activity track: %w", err)
	}
	if track == nil {
		return nil, model.NewTrackNotFoundError(id)
	}
	return track, nil
}

// List はトラック一覧を返す。statusが空の場合は全件を対象とする。
func (s *Service) List(ctx context.Context, status string, page model.PageRequest) ([]*model.ActivityTrack, model.Pagination, error) {
	var filter *model.TrackStatus
	if status != "" {
		parsed, err := parseStatus(status)
		if err != nil {
			return nil, model.Pagination{}, err
		}
		filter = &parsed
	}

	tracks, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list activity tracks: %w", err)
	}
	return tracks, model.NewPagination(page, total), nil
}

// Update は指定されたフィールドのみを更新する。
// statusをactive以外に変更した場合、そのトラックのスキャンも停止する。
func (s *Service) Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error) {
	if update.IsEmpty() {
		return nil, model.NewValidationError("no fields to update")
	}
	if update.Name != nil {
		name := s.sanitizer.Clean(*update.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		update.Name = &name
	}
	if update.EventDate != nil {
		if err := validateEventDate(*update.EventDate); err != nil {
			return nil, err
		}
	}
	if err := validateEventTime(update.EventTime); err != nil {
		return nil, err
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, model.NewValidationError("status must be one of active, inactive, completed")
	}
	update.Description = s.sanitizer.CleanPtr(update.Description)
	update.Location = s.sanitizer.CleanPtr(update.Location)

	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	track, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update activity track: %w", err)
	}
	if track == nil {
		return nil, model.NewTrackNotFoundError(id)
	}

	if before.ScanningActive && !track.ScanningActive {
		s.metrics.RecordScanningTransition("stop")
		slog.Info("scanning stopped by status change",
			slog.Int64("track_id", id),
			slog.String("status", string(track.Status)),
		)
	}
	return track, nil
}

// Delete はトラックを削除する。出席記録が残っている場合は削除せずCONFLICTを返す。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrReferenced) {
		return model.NewTrackHasAttendanceError(id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete activity track: %w", err)
	}
	if !deleted {
		return model.NewTrackNotFoundError(id)
	}
	slog.Info("activity track deleted", slog.Int64("track_id", id))
	return nil
}

// StartScanning は指定トラックのスキャンを開始し、他のトラックのスキャンを停止する。
// トラックが存在しない場合はNOT_FOUND、statusがactiveでない場合は状態を変更せずVALIDATIONを返す。
func (s *Service) StartScanning(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	track, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if track.Status != model.TrackStatusActive {
		return nil, model.NewTrackNotActiveError(track.Status)
	}

	started, err := s.repo.StartScanning(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to start scanning: %w", err)
	}
	if !started {
		// 確認後に削除またはstatus変更された場合
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, model.NewTrackNotActiveError(current.Status)
	}

	s.metrics.RecordScanningTransition("start")
	slog.Info("scanning started", slog.Int64("track_id", id))
	return s.Get(ctx, id)
}

// StopScanning は指定トラックのスキャンを停止する。すでに停止している場合も成功とする。
func (s *Service) StopScanning(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	stopped, err := s.repo.StopScanning(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to stop scanning: %w", err)
	}
	if !stopped {
		return nil, model.NewTrackNotFoundError(id)
	}

	s.metrics.RecordScanningTransition("stop")
	slog.Info("scanning stopped", slog.Int64("track_id", id))
	return s.Get(ctx, id)
}

// ActiveScanningTrack はスキャン中のトラックを返す。存在しない場合はnilを返す。
func (s *Service) ActiveScanningTrack(ctx context.Context) (*model.ActivityTrack, error) {
	track, err := s.repo.FindActiveScanning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find scanning track: %w", err)
	}
	return track, nil
}
