// Package notify は期限超過通知の外部ディスパッチを提供する。
// 通知の再送ポリシーはディスパッチャ自身が持ち、呼び出し側（スイープ）は
// 失敗してもパスの状態遷移をロールバックしない。
package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/passman/internal/model"
)

// Dispatcher は期限超過通知の送信インターフェース。
type Dispatcher interface {
	// NotifyOverdue は期限超過したパスの通知を送信する。
	// 再送はディスパッチャの責務であり、このメソッドが返したエラーを
	// 呼び出し側が再試行する必要はない。
	NotifyOverdue(ctx context.Context, pass *model.Pass) error
}

// NoopDispatcher はWebhook URLが未設定の場合に使用する何もしない実装。
// 通知をログに残すだけで外部送信は行わない。
type NoopDispatcher struct {
	logger *slog.Logger
}

// NewNoopDispatcher はNoopDispatcherを生成する。
func NewNoopDispatcher(logger *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{logger: logger}
}

// NotifyOverdue は通知内容をログに記録する。常にnilを返す。
func (d *NoopDispatcher) NotifyOverdue(ctx context.Context, pass *model.Pass) error {
	d.logger.Info("期限超過通知（Webhook未設定のためログのみ）",
		slog.String("pass_id", pass.ID),
		slog.String("student_id", pass.StudentID),
		slog.String("destination", pass.Destination),
	)
	return nil
}
