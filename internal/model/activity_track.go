package model

import (
	"regexp"
	"time"
)

// TrackStatus はアクティビティトラックの状態を表す。
type TrackStatus string

const (
	TrackStatusActive    TrackStatus = "active"
	TrackStatusInactive  TrackStatus = "inactive"
	TrackStatusCompleted TrackStatus = "completed"
)

// Valid は定義済みの状態かどうかを返す。
func (s TrackStatus) Valid() bool {
	switch s {
	case TrackStatusActive, TrackStatusInactive, TrackStatusCompleted:
		return true
	default:
		return false
	}
}

var (
	eventDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	eventTimePattern = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)
)

// IsValidEventDate はYYYY-MM-DD形式かつ実在する日付かを判定する。
func IsValidEventDate(s string) bool {
	if !eventDatePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// IsValidEventTime はHH:MMまたはHH:MM:SS形式の時刻かを判定する。
func IsValidEventTime(s string) bool {
	if !eventTimePattern.MatchString(s) {
		return false
	}
	layout := "15:04"
	if len(s) == len("15:04:05") {
		layout = time.TimeOnly
	}
	_, err := time.Parse(layout, s)
	return err == nil
}

// ActivityTrack は出席スキャンの対象となるイベント・セッションを表す。
// システム全体でScanningActiveがtrueのトラックは高々1件。
type ActivityTrack struct {
	ID             int64
	Name           string
	Description    *string
	EventDate      string  // YYYY-MM-DD
	EventTime      *string // HH:MM:SS
	Location       *string
	Status         TrackStatus
	ScanningActive bool
	CreatedBy      int64
	CreatedByName  string // usersとのJOINで取得する表示用フィールド
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TrackUpdate はアクティビティトラックの部分更新内容。
// nilのフィールドは更新しない。
type TrackUpdate struct {
	Name        *string
	Description *string
	EventDate   *string
	EventTime   *string
	Location    *string
	Status      *TrackStatus
}

// IsEmpty は更新対象のフィールドが1つもないかを返す。
func (u TrackUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.EventDate == nil &&
		u.EventTime == nil && u.Location == nil && u.Status == nil
}
