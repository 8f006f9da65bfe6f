// Package model はドメインモデルを定義する。
package model

import "fmt"

// エラーカテゴリ。HTTPステータスへの変換はhandler層で行う。
const (
	CategoryValidation      = "validation"
	CategoryUnauthenticated = "unauthenticated"
	CategoryForbidden       = "forbidden"
	CategoryNotFound        = "not_found"
	CategoryConflict        = "conflict"
	CategoryRateLimit       = "rate_limit"
	CategoryInternal        = "internal"
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, unauthenticated, forbidden, not_found, conflict, internal
	Details  string // 補足情報（任意）

	// ActiveTrackID はスキャン対象の不一致時に、実際にスキャン中のトラックIDを返すために使う。
	ActiveTrackID *int64
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeInvalidID             = "INVALID_ID"
	ErrCodeNoToken               = "NO_TOKEN"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeNoUserID              = "NO_USER_ID"
	ErrCodeSessionInvalidated    = "SESSION_INVALIDATED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeAdminRequired         = "ADMIN_REQUIRED"
	ErrCodeUserInactive          = "USER_INACTIVE"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeTrackNotFound         = "TRACK_NOT_FOUND"
	ErrCodeTrackNotActive        = "TRACK_NOT_ACTIVE"
	ErrCodeTrackHasAttendance    = "TRACK_HAS_ATTENDANCE"
	ErrCodeNoActiveScanningTrack = "NO_ACTIVE_SCANNING_TRACK"
	ErrCodeTrackMismatch         = "TRACK_MISMATCH"
	ErrCodeRecordNotFound        = "RECORD_NOT_FOUND"
	ErrCodeAttendanceNotFound    = "ATTENDANCE_NOT_FOUND"
	ErrCodeAlreadyRecorded       = "ALREADY_RECORDED"
	ErrCodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "invalid request body",
		Category: CategoryValidation,
	}
}

// NewInvalidIDError はパスパラメータのID形式エラーを生成する。
func NewInvalidIDError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  "invalid id",
		Category: CategoryValidation,
		Details:  fmt.Sprintf("id must be a positive integer: %q", raw),
	}
}

// NewNoTokenError はAuthorizationヘッダー未指定エラーを生成する。
func NewNoTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeNoToken,
		Message:  "no token provided",
		Category: CategoryUnauthenticated,
	}
}

// NewInvalidTokenError は署名不正・期限切れ・形式不正のトークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "invalid token",
		Category: CategoryForbidden,
	}
}

// NewNoUserIDError はクレームからユーザーIDを解決できない場合のエラーを生成する。
func NewNoUserIDError() *APIError {
	return &APIError{
		Code:     ErrCodeNoUserID,
		Message:  "no user id",
		Category: CategoryForbidden,
	}
}

// NewSessionInvalidatedError は別の端末での再ログインによりトークンが無効化された場合のエラーを生成する。
func NewSessionInvalidatedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionInvalidated,
		Message:  "session invalidated: logged in from another location",
		Category: CategoryUnauthenticated,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "invalid email or password",
		Category: CategoryUnauthenticated,
	}
}

// NewAdminRequiredError は管理者権限が必要な操作のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "admin access required",
		Category: CategoryForbidden,
	}
}

// NewUserInactiveError は無効化されたユーザーのログインエラーを生成する。
func NewUserInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeUserInactive,
		Message:  "user account is disabled",
		Category: CategoryForbidden,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "user not found",
		Category: CategoryNotFound,
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "email already registered",
		Category: CategoryConflict,
		Details:  email,
	}
}

// NewTrackNotFoundError はアクティビティトラック未検出エラーを生成する。
func NewTrackNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeTrackNotFound,
		Message:  "activity track not found",
		Category: CategoryNotFound,
		Details:  fmt.Sprintf("activity track %d does not exist", id),
	}
}

// NewTrackNotActiveError はstatusがactiveでないトラックのスキャン開始エラーを生成する。
func NewTrackNotActiveError(status TrackStatus) *APIError {
	return &APIError{
		Code:     ErrCodeTrackNotActive,
		Message:  "only active tracks can have scanning enabled",
		Category: CategoryValidation,
		Details:  fmt.Sprintf("current status: %s", status),
	}
}

// NewTrackHasAttendanceError は出席記録が残っているトラックの削除エラーを生成する。
func NewTrackHasAttendanceError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeTrackHasAttendance,
		Message:  "activity track has attendance records",
		Category: CategoryConflict,
		Details:  fmt.Sprintf("delete the attendance records of track %d first", id),
	}
}

// NewNoActiveScanningTrackError はスキャン中のトラックが存在しない場合のエラーを生成する。
func NewNoActiveScanningTrackError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActiveScanningTrack,
		Message:  "no active scanning track; start scanning first",
		Category: CategoryValidation,
	}
}

// NewTrackMismatchError はスキャン要求のトラックIDがスキャン中トラックと異なる場合のエラーを生成する。
// クライアントが再同期できるよう、実際のスキャン中トラックIDを含める。
func NewTrackMismatchError(requested, active int64) *APIError {
	return &APIError{
		Code:          ErrCodeTrackMismatch,
		Message:       "activity track is not the one currently scanning",
		Category:      CategoryValidation,
		Details:       fmt.Sprintf("requested track %d, active track %d", requested, active),
		ActiveTrackID: &active,
	}
}

// NewRecordNotFoundError は受益者レコードが存在しないか非アクティブな場合のエラーを生成する。
func NewRecordNotFoundError(recordID int64) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  "beneficiary record not found or inactive",
		Category: CategoryNotFound,
		Details:  fmt.Sprintf("record %d", recordID),
	}
}

// NewAttendanceNotFoundError は出席記録未検出エラーを生成する。
func NewAttendanceNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeAttendanceNotFound,
		Message:  "attendance record not found",
		Category: CategoryNotFound,
		Details:  fmt.Sprintf("attendance record %d does not exist", id),
	}
}

// NewAlreadyRecordedError は同一アクティビティでの受益者の重複出席エラーを生成する。
func NewAlreadyRecordedError(trackID, recordID int64) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRecorded,
		Message:  "attendance already recorded",
		Category: CategoryConflict,
		Details:  fmt.Sprintf("record %d already attended activity track %d", recordID, trackID),
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "too many requests",
		Category: CategoryRateLimit,
	}
}

// NewInternalError は内部エラーを生成する。
// detailsは開発モードでのみクライアントに返す。
func NewInternalError(details string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "internal server error",
		Category: CategoryInternal,
		Details:  details,
	}
}
