// Package sweep は期限超過監視のバックグラウンド処理を提供する。
// 一定間隔のスイープでactiveなパスの期限を確認し、overdueへの遷移と
// 通知ディスパッチを行う。
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/notify"
	"github.com/hitoshi/passman/internal/repository"
)

// MetricsRecorder はスイープが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordOverdueTransition()
	RecordNotifyFailure()
	RecordSweepDuration(duration time.Duration)
}

// noopMetrics はメトリクス未設定時の何もしない実装。
type noopMetrics struct{}

func (noopMetrics) RecordOverdueTransition()                   {}
func (noopMetrics) RecordNotifyFailure()                       {}
func (noopMetrics) RecordSweepDuration(duration time.Duration) {}

// Monitor は期限超過スイープのスケジューリングと並列制御を行う。
// ティッカーで対象パスを取得し、semaphoreパターンで最大並列数を
// 制御しながら遷移と通知を実行する。
type Monitor struct {
	passRepo       repository.PassRepository
	eventRepo      repository.PassEventRepository
	dispatcher     notify.Dispatcher
	logger         *slog.Logger
	metrics        MetricsRecorder
	maxConcurrency int
	now            func() time.Time
}

// NewMonitor はMonitorの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
// metricsがnilの場合は記録しない。
func NewMonitor(
	passRepo repository.PassRepository,
	eventRepo repository.PassEventRepository,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	metrics MetricsRecorder,
	maxConcurrency int,
) *Monitor {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Monitor{
		passRepo:       passRepo,
		eventRepo:      eventRepo,
		dispatcher:     dispatcher,
		logger:         logger,
		metrics:        metrics,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 実行中のスイープはキャンセル後も完了まで待つ（グレースフルシャットダウン）。
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("期限超過スイープを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", m.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error("スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("期限超過スイープを停止しました")
			return
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				m.logger.Error("スイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限超過対象パスのスナップショットを1回取得し、並列で遷移を適用する。
// 遷移は条件付きUPDATE（status = 'active' の場合のみ）で、
// スナップショット取得後に返却されたパスには適用されない（markReturnedが勝つ）。
// 通知は遷移が適用されたパスに対して1回だけ送信し、失敗しても遷移は取り消さない。
func (m *Monitor) RunOnce(ctx context.Context) error {
	start := m.now()

	passes, err := m.passRepo.ListDueForOverdue(ctx, start)
	if err != nil {
		return err
	}

	if len(passes) == 0 {
		return nil
	}

	m.logger.Info("期限超過スイープを実行します",
		slog.Int("pass_count", len(passes)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, m.maxConcurrency)
	var wg sync.WaitGroup

	for _, pass := range passes {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.Pass) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			m.transition(ctx, p)
		}(pass)
	}

	wg.Wait()

	duration := time.Since(start)
	m.metrics.RecordSweepDuration(duration)
	m.logger.Info("期限超過スイープが完了しました",
		slog.Int("pass_count", len(passes)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// transition は1件のパスをoverdueへ遷移させ、イベント記録と通知を行う。
func (m *Monitor) transition(ctx context.Context, pass *model.Pass) {
	now := m.now()

	applied, err := m.passRepo.MarkOverdue(ctx, pass.ID, now)
	if err != nil {
		m.logger.Error("期限超過への遷移に失敗しました",
			slog.String("pass_id", pass.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !applied {
		// スナップショット取得後に返却された。遷移も通知もスキップする。
		return
	}

	m.metrics.RecordOverdueTransition()

	event := &model.PassEvent{
		ID:         uuid.New().String(),
		PassID:     pass.ID,
		StudentID:  pass.StudentID,
		IssuedBy:   pass.IssuedBy,
		Type:       model.PassEventOverdue,
		OccurredAt: now,
	}
	if err := m.eventRepo.Create(ctx, event); err != nil {
		m.logger.Error("期限超過イベントの記録に失敗しました",
			slog.String("pass_id", pass.ID),
			slog.String("error", err.Error()),
		)
	}

	// 通知失敗は状態遷移に影響しない。遷移はすでにコミット済み。
	if err := m.dispatcher.NotifyOverdue(ctx, pass); err != nil {
		m.metrics.RecordNotifyFailure()
		m.logger.Error("期限超過通知の送信に失敗しました",
			slog.String("pass_id", pass.ID),
			slog.String("student_id", pass.StudentID),
			slog.String("error", err.Error()),
		)
	}
}
