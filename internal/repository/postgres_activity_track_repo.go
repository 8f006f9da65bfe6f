package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ongdesk/ongdesk/internal/model"
)

// scanningLockKey はスキャン開始処理を直列化するアドバイザリロックのキー。
const scanningLockKey int64 = 0x6f6e6764_00000001

// PostgresActivityTrackRepo はPostgreSQLを使用したアクティビティトラックリポジトリ。
type PostgresActivityTrackRepo struct {
	db *sql.DB
}

// NewPostgresActivityTrackRepo はPostgresActivityTrackRepoを生成する。
func NewPostgresActivityTrackRepo(db *sql.DB) *PostgresActivityTrackRepo {
	return &PostgresActivityTrackRepo{db: db}
}

const trackSelect = `SELECT t.id, t.name, t.description, t.event_date::text, t.event_time::text,
	       t.location, t.status, t.scanning_active, t.created_by,
	       COALESCE(u.full_name, ''), t.created_at, t.updated_at
	FROM activity_tracks t
	LEFT JOIN users u ON u.id = t.created_by`

func scanTrack(row rowScanner) (*model.ActivityTrack, error) {
	track := &model.ActivityTrack{}
	var description, eventTime, location sql.NullString
	err := row.Scan(
		&track.ID, &track.Name, &description, &track.EventDate, &eventTime,
		&location, &track.Status, &track.ScanningActive, &track.CreatedBy,
		&track.CreatedByName, &track.CreatedAt, &track.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	track.Description = nullStringPtr(description)
	track.EventTime = nullStringPtr(eventTime)
	track.Location = nullStringPtr(location)
	return track, nil
}

// Create はトラックを作成する。scanning_activeは常にfalseで作成する。
func (r *PostgresActivityTrackRepo) Create(ctx context.Context, track *model.ActivityTrack) error {
	status := track.Status
	if status == "" {
		status = model.TrackStatusActive
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO activity_tracks (name, description, event_date, event_time, location, status, created_by)
		 VALUES ($1, $2, $3::date, $4::time, $5, $6, $7)
		 RETURNING id, status, scanning_active, created_at, updated_at`,
		track.Name, track.Description, track.EventDate, track.EventTime, track.Location, status, track.CreatedBy,
	).Scan(&track.ID, &track.Status, &track.ScanningActive, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity track: %w", err)
	}
	return nil
}

// FindByID は指定IDのトラックを取得する。見つからない場合はnilを返す。
func (r *PostgresActivityTrackRepo) FindByID(ctx context.Context, id int64) (*model.ActivityTrack, error) {
	track, err := scanTrack(r.db.QueryRowContext(ctx, trackSelect+` WHERE t.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find activity track: %w", err)
	}
	return track, nil
}

// List はトラック一覧をevent_date降順で返す。
func (r *PostgresActivityTrackRepo) List(ctx context.Context, status *model.TrackStatus, page model.PageRequest) ([]*model.ActivityTrack, int, error) {
	where := ""
	var args []any
	if status != nil {
		where = ` WHERE t.status = $1`
		args = append(args, string(*status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM activity_tracks t`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity tracks: %w", err)
	}

	query := fmt.Sprintf(`%s%s ORDER BY t.event_date DESC, t.id DESC LIMIT $%d OFFSET $%d`,
		trackSelect, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.ActivityTrack, 0, page.Limit)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate activity tracks: %w", err)
	}
	return tracks, total, nil
}

// buildTrackUpdate はTrackUpdateからSET句と引数を組み立てる。
// カラム名は固定の許可リストからのみ生成し、呼び出し側の入力は値としてのみ扱う。
// statusがactive以外になる場合はscanning_activeも同時にfalseにする。
func buildTrackUpdate(update model.TrackUpdate) (string, []any) {
	var sets []string
	var args []any
	add := func(expr string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if update.Name != nil {
		add("name = $%d", *update.Name)
	}
	if update.Description != nil {
		add("description = $%d", *update.Description)
	}
	if update.EventDate != nil {
		add("event_date = $%d::date", *update.EventDate)
	}
	if update.EventTime != nil {
		add("event_time = $%d::time", *update.EventTime)
	}
	if update.Location != nil {
		add("location = $%d", *update.Location)
	}
	if update.Status != nil {
		add("status = $%d", string(*update.Status))
		sets = append(sets, fmt.Sprintf("scanning_active = (scanning_active AND $%d = 'active')", len(args)))
	}
	sets = append(sets, "updated_at = now()")
	return strings.Join(sets, ", "), args
}

// Update は指定されたフィールドのみを更新し、更新後のトラックを返す。
// 見つからない場合はnilを返す。
func (r *PostgresActivityTrackRepo) Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error) {
	set, args := buildTrackUpdate(update)
	query := fmt.Sprintf(`UPDATE activity_tracks SET %s WHERE id = $%d`, set, len(args)+1)

	result, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update activity track: %w", err)
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

// Delete は指定IDのトラックを削除する。
// 出席記録から参照されている場合はErrReferencedを返す。
func (r *PostgresActivityTrackRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_tracks WHERE id = $1`, id)
	if err != nil {
		if sentinel := translatePQError(err); sentinel != nil {
			return false, sentinel
		}
		return false, fmt.Errorf("failed to delete activity track: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// StartScanning は他のトラックのスキャンを停止し、指定トラックのスキャンを開始する。
// 停止と開始は同一トランザクションで行い、並行するスキャン開始はアドバイザリロックで直列化する。
// 指定トラックが存在しないかstatusがactiveでない場合はロールバックしてfalseを返す。
func (r *PostgresActivityTrackRepo) StartScanning(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, scanningLockKey); err != nil {
		return false, fmt.Errorf("failed to acquire scanning lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE activity_tracks SET scanning_active = false, updated_at = now()
		 WHERE scanning_active AND id <> $1`,
		id,
	); err != nil {
		return false, fmt.Errorf("failed to clear scanning tracks: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE activity_tracks SET scanning_active = true, updated_at = now()
		 WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to start scanning: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// StopScanning は指定トラックのスキャンを停止する。すでに停止している場合も成功とする。
func (r *PostgresActivityTrackRepo) StopScanning(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE activity_tracks SET scanning_active = false, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to stop scanning: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// FindActiveScanning はスキャン中のトラックを返す。存在しない場合はnilを返す。
func (r *PostgresActivityTrackRepo) FindActiveScanning(ctx context.Context) (*model.ActivityTrack, error) {
	track, err := scanTrack(r.db.QueryRowContext(ctx, trackSelect+` WHERE t.scanning_active LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find scanning track: %w", err)
	}
	return track, nil
}

var _ ActivityTrackRepository = (*PostgresActivityTrackRepo)(nil)
