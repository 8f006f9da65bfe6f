package model

import "math"

const (
	// DefaultPageLimit はlimit未指定時の取得件数。
	DefaultPageLimit = 10
	// DefaultMaxPageLimit はlimitの上限のデフォルト値。
	DefaultMaxPageLimit = 100
)

// PageRequest はページ番号方式のページネーション要求。
type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest はページ番号とlimitを正規化する。
// pageは1以上、limitは1以上maxLimit以下に丸める。
// OFFSETがint32の範囲を超えないよう、pageの上限はlimitから決める。
func NewPageRequest(page, limit, maxLimit int) PageRequest {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxPageLimit
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if maxPage := math.MaxInt32/limit + 1; page > maxPage {
		page = maxPage
	}
	return PageRequest{Page: page, Limit: limit}
}

// Offset はSQLのOFFSET値を返す。
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination はページネーション結果のメタ情報。
// Totalはページングを適用しない同一条件の総件数。
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination は要求と総件数からPaginationを生成する。
func NewPagination(req PageRequest, total int) Pagination {
	totalPages := 0
	if req.Limit > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}
	return Pagination{
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
