// Package cleanup は古い返却済みパスの自動削除ジョブを提供する。
// 保持期間（デフォルト180日）を超過した返却済みパスと関連するpass_eventsを
// 日次バッチで削除する。pass_eventsはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/passman/internal/repository"
)

// Job は保持期間を超過した返却済みパスの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// 未返却（active/overdue）のパスは保持期間に関係なく削除しない。
type Job struct {
	passRepo      repository.PassRepository
	logger        *slog.Logger
	RetentionDays int // パスの保持日数（デフォルト: 180）
	now           func() time.Time
}

// NewJob は新しいJobを生成する。
// retentionDaysが0以下の場合はデフォルトの180日を使用する。
func NewJob(passRepo repository.PassRepository, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = 180
	}
	return &Job{
		passRepo:      passRepo,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run は保持期間を超過した返却済みパスを削除する。
// issued_atがRetentionDays日前より古い返却済みパスをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.passRepo.DeleteReturnedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("パスクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return err
	}

	j.logger.Info("パスクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
