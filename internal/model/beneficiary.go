package model

// BeneficiaryStatusActive は出席登録可能な受益者の状態。
const BeneficiaryStatusActive = "active"

// Beneficiary は団体のサービスを受ける登録済み受益者を表す。
// QRコードにはIDと氏名のみが含まれ、氏名の正はこのレコードとする。
type Beneficiary struct {
	ID       int64
	FullName string
	Cedula   *string
	Phone    *string
	Status   string
}
