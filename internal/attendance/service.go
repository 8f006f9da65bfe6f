// Package attendance は出席記録の登録・訂正・集計を提供する。
//
// 出席はQRスキャンと手入力の2経路で登録される。受益者（beneficiario）の出席は
// アクティビティトラックごとに1件に限られ、ゲストは重複判定を行わない。
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ongdesk/ongdesk/internal/model"
	"github.com/ongdesk/ongdesk/internal/repository"
	"github.com/ongdesk/ongdesk/internal/security"
)

// MaxFullNameLength は氏名の最大文字数。
const MaxFullNameLength = 200

// 拒否理由（メトリクスのラベル）
const (
	RejectNoScanningTrack = "no_scanning_track"
	RejectTrackMismatch   = "track_mismatch"
	RejectRecordNotFound  = "record_not_found"
	RejectDuplicate       = "duplicate"
)

// Recorder は出席記録のメトリクス記録に必要なインターフェース。
type Recorder interface {
	RecordAttendance(method, attendanceType string)
	RecordAttendanceRejected(reason string)
}

// QRData はQRコードに埋め込まれた受益者情報。
type QRData struct {
	RecordID *int64
	Name     string
}

// QRScanInput はQRスキャンによる出席登録の入力。
type QRScanInput struct {
	QRData          QRData
	ActivityTrackID int64
	OperatorID      int64
}

// ManualInput は手入力による出席登録の入力。
type ManualInput struct {
	ActivityTrackID int64
	AttendanceType  string
	FullName        string
	Cedula          *string
	Phone           *string
	RecordID        *int64
	OperatorID      int64
}

// Service は出席記録のサービス層。
type Service struct {
	attendanceRepo  repository.AttendanceRepository
	trackRepo       repository.ActivityTrackRepository
	beneficiaryRepo repository.BeneficiaryRepository
	sanitizer       security.TextSanitizer
	metrics         Recorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	attendanceRepo repository.AttendanceRepository,
	trackRepo repository.ActivityTrackRepository,
	beneficiaryRepo repository.BeneficiaryRepository,
	sanitizer security.TextSanitizer,
	metrics Recorder,
) *Service {
	return &Service{
		attendanceRepo:  attendanceRepo,
		trackRepo:       trackRepo,
		beneficiaryRepo: beneficiaryRepo,
		sanitizer:       sanitizer,
		metrics:         metrics,
	}
}

// RecordQRScan はQRスキャンによる受益者の出席を登録する。
//
// 受け付けるのはスキャン中のトラックに対するスキャンのみで、
// 指定トラックがスキャン中のトラックと異なる場合は実際のトラックIDを返して拒否する。
// 氏名はQRコードの値ではなく受益者レコードの値を使う。
func (s *Service) RecordQRScan(ctx context.Context, input QRScanInput) (*model.AttendanceRecord, error) {
	if input.QRData.RecordID == nil || s.sanitizer.Clean(input.QRData.Name) == "" {
		return nil, model.NewValidationError("qrData.record_id and qrData.name are required")
	}
	if input.ActivityTrackID <= 0 {
		return nil, model.NewValidationError("activityTrackId is required")
	}
	recordID := *input.QRData.RecordID

	active, err := s.trackRepo.FindActiveScanning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find scanning track: %w", err)
	}
	if active == nil {
		s.metrics.RecordAttendanceRejected(RejectNoScanningTrack)
		return nil, model.NewNoActiveScanningTrackError()
	}
	if active.ID != input.ActivityTrackID {
		s.metrics.RecordAttendanceRejected(RejectTrackMismatch)
		slog.Warn("qr scan for non-scanning track",
			slog.Int64("requested_track_id", input.ActivityTrackID),
			slog.Int64("active_track_id", active.ID),
			slog.Int64("operator_id", input.OperatorID),
		)
		return nil, model.NewTrackMismatchError(input.ActivityTrackID, active.ID)
	}

	beneficiary, err := s.findActiveBeneficiary(ctx, recordID)
	if err != nil {
		return nil, err
	}

	rec := &model.AttendanceRecord{
		ActivityTrackID:  active.ID,
		RecordID:         &beneficiary.ID,
		AttendanceType:   model.AttendanceTypeBeneficiario,
		FullName:         beneficiary.FullName,
		Cedula:           beneficiary.Cedula,
		Phone:            beneficiary.Phone,
		AttendanceMethod: model.AttendanceMethodQRScan,
		CreatedBy:        input.OperatorID,
	}
	return s.insert(ctx, rec)
}

// RecordManual は手入力による出席を登録する。
// beneficiarioの場合はrecord_idが必須で、QRスキャンと同じ重複判定を行う。
func (s *Service) RecordManual(ctx context.Context, input ManualInput) (*model.AttendanceRecord, error) {
	attendanceType := model.AttendanceType(input.AttendanceType)
	if !attendanceType.Valid() {
		return nil, model.NewValidationError("attendance_type must be beneficiario or guest")
	}
	if attendanceType == model.AttendanceTypeBeneficiario && input.RecordID == nil {
		return nil, model.NewValidationError("record_id is required for beneficiario attendance")
	}
	if input.ActivityTrackID <= 0 {
		return nil, model.NewValidationError("activity_track_id is required")
	}
	fullName := s.sanitizer.Clean(input.FullName)
	if len([]rune(fullName)) > MaxFullNameLength {
		return nil, model.NewValidationError(fmt.Sprintf("full_name must be at most %d characters", MaxFullNameLength))
	}
	if fullName == "" && attendanceType == model.AttendanceTypeGuest {
		return nil, model.NewValidationError("full_name is required")
	}

	track, err := s.trackRepo.FindByID(ctx, input.ActivityTrackID)
	if err != nil {
		return nil, fmt.Errorf("failed to find activity track: %w", err)
	}
	if track == nil {
		return nil, model.NewTrackNotFoundError(input.ActivityTrackID)
	}

	rec := &model.AttendanceRecord{
		ActivityTrackID:  track.ID,
		AttendanceType:   attendanceType,
		FullName:         fullName,
		Cedula:           s.sanitizer.CleanPtr(input.Cedula),
		Phone:            s.sanitizer.CleanPtr(input.Phone),
		AttendanceMethod: model.AttendanceMethodManualForm,
		CreatedBy:        input.OperatorID,
	}
	if attendanceType == model.AttendanceTypeBeneficiario {
		beneficiary, err := s.findActiveBeneficiary(ctx, *input.RecordID)
		if err != nil {
			return nil, err
		}
		rec.RecordID = &beneficiary.ID
		if rec.FullName == "" {
			rec.FullName = beneficiary.FullName
		}
	}
	return s.insert(ctx, rec)
}

func (s *Service) findActiveBeneficiary(ctx context.Context, recordID int64) (*model.Beneficiary, error) {
	beneficiary, err := s.beneficiaryRepo.FindByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to find beneficiary: %w", err)
	}
	if beneficiary == nil || beneficiary.Status != model.BeneficiaryStatusActive {
		s.metrics.RecordAttendanceRejected(RejectRecordNotFound)
		return nil, model.NewRecordNotFoundError(recordID)
	}
	return beneficiary, nil
}

// insert は出席記録を保存し、表示用フィールド付きで読み直す。
func (s *Service) insert(ctx context.Context, rec *model.AttendanceRecord) (*model.AttendanceRecord, error) {
	created, err := s.attendanceRepo.Create(ctx, rec)
	if errors.Is(err, repository.ErrReferenced) {
		// 確認後にトラックが削除された場合
		return nil, model.NewTrackNotFoundError(rec.ActivityTrackID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create attendance record: %w", err)
	}
	if !created {
		s.metrics.RecordAttendanceRejected(RejectDuplicate)
		return nil, model.NewAlreadyRecordedError(rec.ActivityTrackID, *rec.RecordID)
	}

	s.metrics.RecordAttendance(string(rec.AttendanceMethod), string(rec.AttendanceType))
	slog.Info("attendance recorded",
		slog.Int64("attendance_id", rec.ID),
		slog.Int64("track_id", rec.ActivityTrackID),
		slog.String("type", string(rec.AttendanceType)),
		slog.String("method", string(rec.AttendanceMethod)),
		slog.Int64("operator_id", rec.CreatedBy),
	)

	stored, err := s.attendanceRepo.FindByID(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload attendance record: %w", err)
	}
	if stored == nil {
		return rec, nil
	}
	return stored, nil
}

func validateFilter(filter model.AttendanceFilter) error {
	if filter.AttendanceType != nil && !filter.AttendanceType.Valid() {
		return model.NewValidationError("attendanceType must be beneficiario or guest")
	}
	if filter.AttendanceMethod != nil && !filter.AttendanceMethod.Valid() {
		return model.NewValidationError("attendanceMethod must be qr_scan or manual_form")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return model.NewValidationError("endDate must not be before startDate")
	}
	return nil
}

// List は条件に一致する出席記録をscanned_at降順で返す。
func (s *Service) List(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, model.Pagination, error) {
	if err := validateFilter(filter); err != nil {
		return nil, model.Pagination{}, err
	}
	records, total, err := s.attendanceRepo.List(ctx, filter, page)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("failed to list attendance records: %w", err)
	}
	return records, model.NewPagination(page, total), nil
}

// Get は指定IDの出席記録を返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	rec, err := s.attendanceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance record: %w", err)
	}
	if rec == nil {
		return nil, model.NewAttendanceNotFoundError(id)
	}
	return rec, nil
}

// Update は氏名・身分証番号・電話番号を訂正する。
func (s *Service) Update(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error) {
	if update.IsEmpty() {
		return nil, model.NewValidationError("no fields to update")
	}
	if update.FullName != nil {
		name := s.sanitizer.Clean(*update.FullName)
		if name == "" {
			return nil, model.NewValidationError("full_name must not be empty")
		}
		if len([]rune(name)) > MaxFullNameLength {
			return nil, model.NewValidationError(fmt.Sprintf("full_name must be at most %d characters", MaxFullNameLength))
		}
		update.FullName = &name
	}
	update.Cedula = s.sanitizer.CleanPtr(update.Cedula)
	update.Phone = s.sanitizer.CleanPtr(update.Phone)

	rec, err := s.attendanceRepo.Update(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update attendance record: %w", err)
	}
	if rec == nil {
		return nil, model.NewAttendanceNotFoundError(id)
	}
	return rec, nil
}

// Delete は出席記録を削除する。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.attendanceRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete attendance record: %w", err)
	}
	if !deleted {
		return model.NewAttendanceNotFoundError(id)
	}
	slog.Info("attendance record deleted", slog.Int64("attendance_id", id))
	return nil
}

// Stats は条件に一致する出席記録を種別・登録経路ごとに集計する。
func (s *Service) Stats(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	stats, err := s.attendanceRepo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attendance records: %w", err)
	}
	return stats, nil
}
