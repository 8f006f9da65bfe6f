package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ongdesk/ongdesk/internal/model"
)

// PostgresBeneficiaryRepo はrecordsテーブルを参照する受益者リポジトリ。
type PostgresBeneficiaryRepo struct {
	db *sql.DB
}

// NewPostgresBeneficiaryRepo はPostgresBeneficiaryRepoを生成する。
func NewPostgresBeneficiaryRepo(db *sql.DB) *PostgresBeneficiaryRepo {
	return &PostgresBeneficiaryRepo{db: db}
}

// FindByID は指定IDの受益者を取得する。見つからない場合はnilを返す。
func (r *PostgresBeneficiaryRepo) FindByID(ctx context.Context, id int64) (*model.Beneficiary, error) {
	b := &model.Beneficiary{}
	var cedula, phone sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, cedula, phone, status FROM records WHERE id = $1`, id,
	).Scan(&b.ID, &b.FullName, &cedula, &phone, &b.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find beneficiary record: %w", err)
	}
	b.Cedula = nullStringPtr(cedula)
	b.Phone = nullStringPtr(phone)
	return b, nil
}

var _ BeneficiaryRepository = (*PostgresBeneficiaryRepo)(nil)
