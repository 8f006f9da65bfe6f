package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ongdesk/ongdesk/internal/model"
)

// PostgresAttendanceRepo はPostgreSQLを使用した出席記録リポジトリ。
type PostgresAttendanceRepo struct {
	db *sql.DB
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db *sql.DB) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

const attendanceSelect = `SELECT ar.id, ar.activity_track_id, ar.record_id, ar.attendance_type,
	       ar.full_name, ar.cedula, ar.phone, ar.attendance_method, ar.scanned_at,
	       ar.created_by, ar.created_at, COALESCE(t.name, ''), COALESCE(u.full_name, '')
	FROM attendance_records ar
	LEFT JOIN activity_tracks t ON t.id = ar.activity_track_id
	LEFT JOIN users u ON u.id = ar.created_by`

func scanAttendance(row rowScanner) (*model.AttendanceRecord, error) {
	rec := &model.AttendanceRecord{}
	var recordID sql.NullInt64
	var cedula, phone sql.NullString
	err := row.Scan(
		&rec.ID, &rec.ActivityTrackID, &recordID, &rec.AttendanceType,
		&rec.FullName, &cedula, &phone, &rec.AttendanceMethod, &rec.ScannedAt,
		&rec.CreatedBy, &rec.CreatedAt, &rec.ActivityName, &rec.CreatedByName,
	)
	if err != nil {
		return nil, err
	}
	rec.RecordID = nullInt64Ptr(recordID)
	rec.Cedula = nullStringPtr(cedula)
	rec.Phone = nullStringPtr(phone)
	return rec, nil
}

// Create は出席記録を作成する。
// 受益者の重複はuq_attendance_beneficiary_per_trackに対するON CONFLICTで判定するため、
// 確認と挿入の間に並行リクエストが割り込んでも重複行は作られない。
// 重複した場合はfalseを返す。トラックまたは受益者が存在しない場合はErrReferencedを返す。
func (r *PostgresAttendanceRepo) Create(ctx context.Context, rec *model.AttendanceRecord) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO attendance_records
		    (activity_track_id, record_id, attendance_type, full_name, cedula, phone, attendance_method, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (activity_track_id, record_id) WHERE attendance_type = 'beneficiario' DO NOTHING
		 RETURNING id, scanned_at, created_at`,
		rec.ActivityTrackID, rec.RecordID, string(rec.AttendanceType), rec.FullName,
		rec.Cedula, rec.Phone, string(rec.AttendanceMethod), rec.CreatedBy,
	).Scan(&rec.ID, &rec.ScannedAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if sentinel := translatePQError(err); sentinel != nil {
			return false, sentinel
		}
		return false, fmt.Errorf("failed to insert attendance record: %w", err)
	}
	return true, nil
}

// FindByID は指定IDの出席記録を取得する。見つからない場合はnilを返す。
func (r *PostgresAttendanceRepo) FindByID(ctx context.Context, id int64) (*model.AttendanceRecord, error) {
	rec, err := scanAttendance(r.db.QueryRowContext(ctx, attendanceSelect+` WHERE ar.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance record: %w", err)
	}
	return rec, nil
}

// buildAttendanceWhere は絞り込み条件からWHERE句と引数を組み立てる。
// 条件がない場合は空文字列を返す。EndDateはその日の終わりまでを含む。
func buildAttendanceWhere(filter model.AttendanceFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(expr string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}

	if filter.ActivityTrackID != nil {
		add("ar.activity_track_id = $%d", *filter.ActivityTrackID)
	}
	if filter.AttendanceType != nil {
		add("ar.attendance_type = $%d", string(*filter.AttendanceType))
	}
	if filter.AttendanceMethod != nil {
		add("ar.attendance_method = $%d", string(*filter.AttendanceMethod))
	}
	if filter.StartDate != nil {
		add("ar.scanned_at >= $%d::date", filter.StartDate.Format(time.DateOnly))
	}
	if filter.EndDate != nil {
		add("ar.scanned_at < ($%d::date + 1)", filter.EndDate.Format(time.DateOnly))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List は条件に一致する出席記録をscanned_at降順で返す。
func (r *PostgresAttendanceRepo) List(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, int, error) {
	where, args := buildAttendanceWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM attendance_records ar`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count attendance records: %w", err)
	}

	query := fmt.Sprintf(`%s%s ORDER BY ar.scanned_at DESC, ar.id DESC LIMIT $%d OFFSET $%d`,
		attendanceSelect, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attendance records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.AttendanceRecord, 0, page.Limit)
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate attendance records: %w", err)
	}
	return records, total, nil
}

// buildAttendanceUpdate はAttendanceUpdateからSET句と引数を組み立てる。
func buildAttendanceUpdate(update model.AttendanceUpdate) (string, []any) {
	var sets []string
	var args []any
	if update.FullName != nil {
		args = append(args, *update.FullName)
		sets = append(sets, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if update.Cedula != nil {
		args = append(args, *update.Cedula)
		sets = append(sets, fmt.Sprintf("cedula = $%d", len(args)))
	}
	if update.Phone != nil {
		args = append(args, *update.Phone)
		sets = append(sets, fmt.Sprintf("phone = $%d", len(args)))
	}
	return strings.Join(sets, ", "), args
}

// Update は指定されたフィールドのみを更新し、更新後の記録を返す。見つからない場合はnilを返す。
func (r *PostgresAttendanceRepo) Update(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error) {
	if update.IsEmpty() {
		return r.FindByID(ctx, id)
	}
	set, args := buildAttendanceUpdate(update)
	query := fmt.Sprintf(`UPDATE attendance_records SET %s WHERE id = $%d`, set, len(args)+1)

	result, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update attendance record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

// Delete は指定IDの出席記録を削除する。見つからない場合はfalseを返す。
func (r *PostgresAttendanceRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete attendance record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Stats は条件に一致する出席記録を種別・登録経路ごとに集計する。
func (r *PostgresAttendanceRepo) Stats(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error) {
	where, args := buildAttendanceWhere(filter)
	stats := &model.AttendanceStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE ar.attendance_type = 'beneficiario'),
		        count(*) FILTER (WHERE ar.attendance_type = 'guest'),
		        count(*) FILTER (WHERE ar.attendance_method = 'qr_scan'),
		        count(*) FILTER (WHERE ar.attendance_method = 'manual_form'),
		        count(DISTINCT ar.record_id)
		 FROM attendance_records ar`+where,
		args...,
	).Scan(&stats.Total, &stats.Beneficiarios, &stats.Guests, &stats.QRScans, &stats.ManualEntries, &stats.UniqueRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attendance records: %w", err)
	}
	return stats, nil
}

var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
