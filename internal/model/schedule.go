// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// MinutesOfDay は0時からの経過分で表した時刻（time-of-day）。
// 日付やタイムゾーンを持たない時間割の開始/終了時刻に使用する。
type MinutesOfDay int

// MinutesSinceMidnight はタイムスタンプを0時からの経過分に変換する。
// タイムスタンプのロケーションのまま換算する。
func MinutesSinceMidnight(t time.Time) MinutesOfDay {
	return MinutesOfDay(t.Hour()*60 + t.Minute())
}

// String は "HH:MM" 形式の表記を返す。
func (m MinutesOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Period は時間割の1時限を表すイミュータブルなエントリ。
type Period struct {
	Number int          // 時限番号。スケジュール内で一意な正の整数。
	Start  MinutesOfDay // 開始時刻（含む）
	End    MinutesOfDay // 終了時刻（含む）
	Label  string       // 授業名などの自由記述
}

// Contains は指定時刻がこの時限に含まれるかを返す。境界は両端とも含む。
func (p Period) Contains(m MinutesOfDay) bool {
	return m >= p.Start && m <= p.End
}

// Schedule は教員（または教室）1人分の、重複のない時限の順序付き集合。
// 構築時にScheduleConflict検証を通過したもののみが存在する。
type Schedule struct {
	TeacherID string
	Periods   []Period
}

// Staff はAPIを利用する教員/管理者を表す。
type Staff struct {
	ID        string
	Name      string
	Role      StaffRole
	APIToken  string
	CreatedAt time.Time
}

// StaffRole はスタッフの権限区分を表す。
type StaffRole string

const (
	// StaffRoleTeacher は教員。自分が発行したパスのみ閲覧・操作できる。
	StaffRoleTeacher StaffRole = "teacher"
	// StaffRoleAdmin は管理者。全校のパスの閲覧と強制返却ができる。
	StaffRoleAdmin StaffRole = "admin"
)

// CanViewSchoolWide は全校のパスを閲覧できる権限かを返す。
func (r StaffRole) CanViewSchoolWide() bool {
	return r == StaffRoleAdmin
}
