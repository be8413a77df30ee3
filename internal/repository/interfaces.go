// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/passman/internal/model"
)

// ErrDuplicateOpenPass は同一生徒の未返却パスが既に存在することを示す。
// passesテーブルの部分一意インデックス違反から検出され、
// サービス層でConflictエラーに変換される。
var ErrDuplicateOpenPass = errors.New("duplicate open pass for student")

// PassRepository はパスデータの永続化インターフェース。
// パスの状態遷移はすべて条件付きUPDATEで行い、途中状態が観測されないことを保証する。
type PassRepository interface {
	// Create はパスを作成する。
	// 同一生徒の未返却パスが既に存在する場合はErrDuplicateOpenPassを返す。
	Create(ctx context.Context, pass *model.Pass) error

	// FindByID は指定IDのパスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Pass, error)

	// FindOpenByStudent は指定生徒の未返却パスを取得する。存在しない場合はnilを返す。
	FindOpenByStudent(ctx context.Context, studentID string) (*model.Pass, error)

	// MarkReturned はパスを返却済みに遷移させる。
	// status IN ('active','overdue') の場合のみ適用され、適用後のパスを返す。
	// 対象が存在しない、またはすでに返却済みの場合はnilを返す。
	MarkReturned(ctx context.Context, id string, now time.Time) (*model.Pass, error)

	// MarkOverdue はパスを期限超過状態に遷移させる。
	// status = 'active' の場合のみ適用される条件付き更新で、
	// スイープ中に返却されたパスへの遷移をスキップする。
	// 適用された場合はtrueを返す。
	MarkOverdue(ctx context.Context, id string, now time.Time) (bool, error)

	// ListOpen は未返却（active または overdue）のパス一覧をissued_at降順で返す。
	ListOpen(ctx context.Context) ([]*model.Pass, error)

	// ListDueForOverdue は期限超過遷移の対象パスを取得する。
	// status = 'active' かつ expected_return_at <= now のパスを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForOverdue(ctx context.Context, now time.Time) ([]*model.Pass, error)

	// ListByFilter は条件に一致するパス一覧をissued_at降順で返す。読み取り専用。
	ListByFilter(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error)

	// DeleteReturnedBefore は指定日時より前に発行された返却済みパスを削除する。
	// 削除件数を返す。関連するpass_eventsはCASCADE削除される。
	DeleteReturnedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PassEventRepository はアクティビティフィードの永続化インターフェース。
type PassEventRepository interface {
	// Create はイベントを記録する。
	Create(ctx context.Context, event *model.PassEvent) error

	// ListRecent は新しい順にイベント一覧を返す。
	// issuedByが空の場合は全校分を対象とする。
	ListRecent(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error)
}

// StaffRepository はスタッフデータの永続化インターフェース。
type StaffRepository interface {
	// FindByAPIToken はAPIトークンでスタッフを検索する。見つからない場合はnilを返す。
	FindByAPIToken(ctx context.Context, token string) (*model.Staff, error)

	// FindByID は指定IDのスタッフを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Staff, error)

	// ListAll は全スタッフの一覧を返す。教員別集計で使用する。
	ListAll(ctx context.Context) ([]*model.Staff, error)
}
