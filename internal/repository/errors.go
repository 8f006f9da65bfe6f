package repository

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのエラーコード
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrReferenced は他テーブルから参照されている行の削除・更新を表す。
	ErrReferenced = errors.New("repository: row is still referenced")
)

// translatePQError はlib/pqのエラーコードをリポジトリのセンチネルエラーに変換する。
// 該当しない場合はnilを返す。
func translatePQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	switch pqErr.Code {
	case pgUniqueViolation:
		return ErrDuplicate
	case pgForeignKeyViolation:
		return ErrReferenced
	}
	return nil
}
