// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/ongdesk/ongdesk/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// BeneficiaryRepository は受益者レコード（recordsテーブル）の参照インターフェース。
type BeneficiaryRepository interface {
	// FindByID は指定IDの受益者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Beneficiary, error)
}

// ActivityTrackRepository はアクティビティトラックの永続化インターフェース。
type ActivityTrackRepository interface {
	// Create はトラックを作成し、採番されたIDとタイムスタンプをtrackに設定する。
	Create(ctx context.Context, track *model.ActivityTrack) error

	// FindByID は指定IDのトラックを作成者名付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.ActivityTrack, error)

	// List はトラック一覧をevent_date降順で返す。statusがnilの場合は全件を対象とする。
	// 2番目の戻り値はページングを適用しない総件数。
	List(ctx context.Context, status *model.TrackStatus, page model.PageRequest) ([]*model.ActivityTrack, int, error)

	// Update は指定されたフィールドのみを更新し、更新後のトラックを返す。
	// statusがactive以外に変わる場合はscanning_activeもfalseにする。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.ActivityTrack, error)

	// Delete は指定IDのトラックを削除する。見つからない場合はfalseを返す。
	// 出席記録から参照されている場合はErrReferencedを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// StartScanning は他のすべてのトラックのスキャンを停止し、指定トラックのスキャンを開始する。
	// 1トランザクション内でアドバイザリロックを取得して実行する。
	// 指定トラックが存在しないかstatusがactiveでない場合は何も変更せずfalseを返す。
	StartScanning(ctx context.Context, id int64) (bool, error)

	// StopScanning は指定トラックのスキャンを停止する。見つからない場合はfalseを返す。
	StopScanning(ctx context.Context, id int64) (bool, error)

	// FindActiveScanning はスキャン中のトラックを返す。存在しない場合はnilを返す。
	FindActiveScanning(ctx context.Context) (*model.ActivityTrack, error)
}

// AttendanceRepository は出席記録の永続化インターフェース。
type AttendanceRepository interface {
	// Create は出席記録を作成し、採番されたIDとタイムスタンプをrecordに設定する。
	// 同一トラックで同じ受益者の出席がすでにある場合は何もせずfalseを返す。
	// ゲストは重複判定の対象外。
	Create(ctx context.Context, record *model.AttendanceRecord) (bool, error)

	// FindByID は指定IDの出席記録をアクティビティ名・登録者名付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.AttendanceRecord, error)

	// List は条件に一致する出席記録をscanned_at降順で返す。
	// 2番目の戻り値はページングを適用しない総件数。
	List(ctx context.Context, filter model.AttendanceFilter, page model.PageRequest) ([]*model.AttendanceRecord, int, error)

	// Update は氏名・身分証番号・電話番号のうち指定されたものを更新し、更新後の記録を返す。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, id int64, update model.AttendanceUpdate) (*model.AttendanceRecord, error)

	// Delete は指定IDの出席記録を削除する。見つからない場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// Stats は条件に一致する出席記録を種別・登録経路ごとに集計する。
	Stats(ctx context.Context, filter model.AttendanceFilter) (*model.AttendanceStats, error)
}
