// Package model はドメインモデルを定義する。
package model

import "time"

// Pass は生徒の一時退出許可（ホールパス）を表す。
// Pass Storeが唯一の所有者であり、他コンポーネントはスナップショットのみを読む。
type Pass struct {
	ID               string
	StudentID        string
	IssuedBy         string // 発行した教員/スタッフのID
	Destination      string
	Reason           string // 自由記述の理由（サニタイズ済み）
	IssuedAt         time.Time
	ExpectedReturnAt time.Time
	ReturnedAt       *time.Time
	Period           *int // 発行時点の時限。時間割の隙間で発行された場合はnil。発行後は不変。
	Status           PassStatus
	WasOverdue       bool // 一度でもoverdueに遷移したか。返却後のオンタイム率算出に使用する。
	IssuedByScan     bool // QRスキャン経由の発行か
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PassStatus はパスの状態を表す。
type PassStatus string

const (
	// PassStatusActive は未返却かつ期限内の状態。
	PassStatusActive PassStatus = "active"
	// PassStatusOverdue は未返却のまま予定返却時刻を超過した状態。
	PassStatusOverdue PassStatus = "overdue"
	// PassStatusReturned は返却済みの終端状態。以後は変更されない。
	PassStatusReturned PassStatus = "returned"
)

// IsOpen は未返却状態（active または overdue）かどうかを返す。
func (s PassStatus) IsOpen() bool {
	return s == PassStatusActive || s == PassStatusOverdue
}

// ParsePassStatus は文字列をPassStatusに変換する。
// サポート外の値の場合はfalseを返す。
func ParsePassStatus(s string) (PassStatus, bool) {
	switch PassStatus(s) {
	case PassStatusActive, PassStatusOverdue, PassStatusReturned:
		return PassStatus(s), true
	}
	return "", false
}

// PassFilter はパス一覧の絞り込み条件を表す。
// ゼロ値のフィールドは条件なしとして扱う。
type PassFilter struct {
	StudentID string
	IssuedBy  string
	Period    *int
	Status    PassStatus
	OpenOnly  bool // active と overdue のみに絞る。Statusより優先される。
	From      time.Time // issued_at >= From
	To        time.Time // issued_at < To
	Limit     int
}

// PassEvent はパスの状態遷移を記録するアクティビティフィードのエントリ。
type PassEvent struct {
	ID         string
	PassID     string
	StudentID  string
	IssuedBy   string
	Type       PassEventType
	OccurredAt time.Time
}

// PassEventType はアクティビティフィードのイベント種別を表す。
type PassEventType string

const (
	// PassEventIssued はパス発行イベント。
	PassEventIssued PassEventType = "pass_issued"
	// PassEventReturned はパス返却イベント。
	PassEventReturned PassEventType = "pass_returned"
	// PassEventOverdue は期限超過遷移イベント。遷移ごとに1回のみ記録される。
	PassEventOverdue PassEventType = "pass_overdue"
)
