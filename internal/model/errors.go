// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, pass, schedule, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePassNotFound          = "PASS_NOT_FOUND"
	ErrCodePassConflict          = "PASS_CONFLICT"
	ErrCodeInvalidDuration       = "INVALID_DURATION"
	ErrCodeDestinationNotAllowed = "DESTINATION_NOT_ALLOWED"
	ErrCodeStudentRequired       = "STUDENT_REQUIRED"
	ErrCodeInvalidFilter         = "INVALID_FILTER"
	ErrCodeInvalidDateRange      = "INVALID_DATE_RANGE"
	ErrCodeScheduleConflict      = "SCHEDULE_CONFLICT"
	ErrCodeScheduleNotFound      = "SCHEDULE_NOT_FOUND"
	ErrCodeStaffNotFound         = "STAFF_NOT_FOUND"
	ErrCodeForbidden             = "FORBIDDEN"
)

// NewPassNotFoundError はパス未検出エラーを生成する。
// 存在しないパスIDの指定と、返却済みパスへの再操作の両方で使用される。
func NewPassNotFoundError(passID string) *APIError {
	return &APIError{
		Code:     ErrCodePassNotFound,
		Message:  fmt.Sprintf("指定されたパスが見つからないか、すでに返却済みです: %s", passID),
		Category: "pass",
		Action:   "パスIDと状態を確認してください。",
	}
}

// NewPassConflictError は同一生徒の未返却パス重複エラーを生成する。
func NewPassConflictError(studentID string) *APIError {
	return &APIError{
		Code:     ErrCodePassConflict,
		Message:  fmt.Sprintf("この生徒には未返却のパスがあります: %s", studentID),
		Category: "pass",
		Action:   "既存のパスを返却してから、新しいパスを発行してください。",
	}
}

// NewInvalidDurationError は無効な持ち出し時間エラーを生成する。
func NewInvalidDurationError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDuration,
		Message:  fmt.Sprintf("無効な持ち出し時間です: %d分", minutes),
		Category: "validation",
		Action:   "持ち出し時間は1分以上、上限以内で指定してください。",
	}
}

// NewDestinationNotAllowedError は許可されていない行き先エラーを生成する。
func NewDestinationNotAllowedError(destination string) *APIError {
	return &APIError{
		Code:     ErrCodeDestinationNotAllowed,
		Message:  fmt.Sprintf("許可されていない行き先です: %s", destination),
		Category: "validation",
		Action:   "行き先は学校で設定された許可リストから選択してください。",
	}
}

// NewStudentRequiredError は生徒ID未指定エラーを生成する。
func NewStudentRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeStudentRequired,
		Message:  "生徒IDが指定されていません。",
		Category: "validation",
		Action:   "発行対象の生徒IDを指定してください。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なステータスフィルタです: %s", filter),
		Category: "validation",
		Action:   "ステータスには active、overdue、returned のいずれかを指定してください。",
	}
}

// NewInvalidDateRangeError は無効な日付範囲エラーを生成する。
func NewInvalidDateRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  fmt.Sprintf("無効な日付範囲です: %s", reason),
		Category: "validation",
		Action:   "from/to はRFC 3339形式で、from <= to となるよう指定してください。",
	}
}

// NewScheduleConflictError は時限の重複エラーを生成する。
// スケジュール設定の読み込み時に検出され、発行時には発生しない。
func NewScheduleConflictError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeScheduleConflict,
		Message:  fmt.Sprintf("時間割の時限が重複しています: %s", detail),
		Category: "schedule",
		Action:   "スケジュール設定ファイルの時限が重複しないよう修正してください。",
	}
}

// NewScheduleNotFoundError はスケジュール未設定エラーを生成する。
func NewScheduleNotFoundError(teacherID string) *APIError {
	return &APIError{
		Code:     ErrCodeScheduleNotFound,
		Message:  fmt.Sprintf("この教員の時間割が設定されていません: %s", teacherID),
		Category: "schedule",
		Action:   "スケジュール設定ファイルに時間割を追加してください。",
	}
}

// NewStaffNotFoundError はスタッフ未検出エラーを生成する。
func NewStaffNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeStaffNotFound,
		Message:  "スタッフが見つかりません。",
		Category: "auth",
		Action:   "APIトークンを確認してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", detail),
		Category: "auth",
		Action:   "管理者権限が必要な操作です。管理者に依頼してください。",
	}
}
