package model

import "time"

// AttendanceType は出席者の種別を表す。
type AttendanceType string

const (
	AttendanceTypeBeneficiario AttendanceType = "beneficiario"
	AttendanceTypeGuest        AttendanceType = "guest"
)

// Valid は定義済みの種別かどうかを返す。
func (t AttendanceType) Valid() bool {
	return t == AttendanceTypeBeneficiario || t == AttendanceTypeGuest
}

// AttendanceMethod は出席記録の登録経路を表す。
type AttendanceMethod string

const (
	AttendanceMethodQRScan     AttendanceMethod = "qr_scan"
	AttendanceMethodManualForm AttendanceMethod = "manual_form"
)

// Valid は定義済みの登録経路かどうかを返す。
func (m AttendanceMethod) Valid() bool {
	return m == AttendanceMethodQRScan || m == AttendanceMethodManualForm
}

// AttendanceRecord は1件の出席記録を表す。
// 受益者（beneficiario）は(ActivityTrackID, RecordID)ごとに高々1件。
// ゲストは重複判定を行わない。
type AttendanceRecord struct {
	ID               int64
	ActivityTrackID  int64
	RecordID         *int64 // beneficiarioの場合のみ設定される
	AttendanceType   AttendanceType
	FullName         string
	Cedula           *string
	Phone            *string
	AttendanceMethod AttendanceMethod
	ScannedAt        time.Time
	CreatedBy        int64
	CreatedAt        time.Time

	// JOINで取得する表示用フィールド
	ActivityName  string
	CreatedByName string
}

// AttendanceUpdate は出席記録の訂正内容。氏名・身分証番号・電話番号のみ変更できる。
type AttendanceUpdate struct {
	FullName *string
	Cedula   *string
	Phone    *string
}

// IsEmpty は更新対象のフィールドが1つもないかを返す。
func (u AttendanceUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Cedula == nil && u.Phone == nil
}

// AttendanceFilter は出席記録一覧・集計の絞り込み条件。
// EndDateはその日の終わりまでを含む。
type AttendanceFilter struct {
	ActivityTrackID  *int64
	AttendanceType   *AttendanceType
	AttendanceMethod *AttendanceMethod
	StartDate        *time.Time
	EndDate          *time.Time
}

// AttendanceStats は出席記録の集計結果。
type AttendanceStats struct {
	Total         int
	Beneficiarios int
	Guests        int
	QRScans       int
	ManualEntries int
	UniqueRecords int // 出席した受益者の実人数
}
