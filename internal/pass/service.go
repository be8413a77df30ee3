// Package pass はホールパスの発行・返却のドメインロジックを提供する。
// Pass Storeの正本はPostgreSQLにあり、同一生徒の未返却パスが
// 同時に2件存在しないという不変条件はDBの部分一意インデックスと
// 条件付きUPDATEによって直列化される。
package pass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/repository"
	"github.com/hitoshi/passman/internal/schedule"
	"github.com/hitoshi/passman/internal/security"
)

// maxReasonLength は理由フィールドの最大文字数。超過分は切り捨てる。
const maxReasonLength = 200

// MetricsRecorder はサービス層が記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordPassIssued(destination string)
	RecordPassReturned(wasOverdue bool)
}

// noopMetrics はメトリクス未設定時の何もしない実装。
type noopMetrics struct{}

func (noopMetrics) RecordPassIssued(destination string) {}
func (noopMetrics) RecordPassReturned(wasOverdue bool)  {}

// Service はパス発行・返却のサービス層。
// 検証 → 時限解決 → 保存 → イベント記録のフローを統括する。
type Service struct {
	passRepo     repository.PassRepository
	eventRepo    repository.PassEventRepository
	schedules    *schedule.Set
	sanitizer    security.TextSanitizerService
	metrics      MetricsRecorder
	destinations []string
	maxDuration  int
	now          func() time.Time
}

// Config はServiceの動作設定。
type Config struct {
	// AllowedDestinations は行き先の許可リスト。
	AllowedDestinations []string
	// MaxDurationMinutes は持ち出し時間の上限（分）。
	MaxDurationMinutes int
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsがnilの場合は記録しない。
func NewService(
	passRepo repository.PassRepository,
	eventRepo repository.PassEventRepository,
	schedules *schedule.Set,
	sanitizer security.TextSanitizerService,
	metrics MetricsRecorder,
	cfg Config,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		passRepo:     passRepo,
		eventRepo:    eventRepo,
		schedules:    schedules,
		sanitizer:    sanitizer,
		metrics:      metrics,
		destinations: cfg.AllowedDestinations,
		maxDuration:  cfg.MaxDurationMinutes,
		now:          time.Now,
	}
}

// IssueInput はパス発行の入力。
type IssueInput struct {
	StudentID       string
	IssuedBy        string // 認証済みスタッフのID
	Destination     string
	Reason          string
	DurationMinutes int
	IssuedByScan    bool
}

// Issue はパスを発行する。
// フロー: 入力検証 → 理由のサニタイズ → 発行時点の時限解決 → 保存 → イベント記録。
// 同一生徒の未返却パスが存在する場合はConflictエラーを返す。
// 事前チェックとINSERTの間のレースはDBの部分一意インデックスが吸収する。
func (s *Service) Issue(ctx context.Context, input IssueInput) (*model.Pass, error) {
	if strings.TrimSpace(input.StudentID) == "" {
		return nil, model.NewStudentRequiredError()
	}
	if input.DurationMinutes <= 0 || input.DurationMinutes > s.maxDuration {
		return nil, model.NewInvalidDurationError(input.DurationMinutes)
	}
	if !s.isAllowedDestination(input.Destination) {
		return nil, model.NewDestinationNotAllowedError(input.Destination)
	}

	// 先にフレンドリーなConflict応答を返すための事前チェック
	existing, err := s.passRepo.FindOpenByStudent(ctx, input.StudentID)
	if err != nil {
		return nil, fmt.Errorf("未返却パスの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewPassConflictError(input.StudentID)
	}

	now := s.now()
	pass := &model.Pass{
		ID:               uuid.New().String(),
		StudentID:        input.StudentID,
		IssuedBy:         input.IssuedBy,
		Destination:      input.Destination,
		Reason:           truncateReason(s.sanitizer.Sanitize(input.Reason)),
		IssuedAt:         now,
		ExpectedReturnAt: now.Add(time.Duration(input.DurationMinutes) * time.Minute),
		Status:           model.PassStatusActive,
		IssuedByScan:     input.IssuedByScan,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// 時限は発行時点の時間割から1回だけ解決し、以後は再計算しない。
	// 時間割の隙間での発行はエラーではなくnilとして保存する。
	if period := s.schedules.PeriodFor(input.IssuedBy, now); period != nil {
		n := period.Number
		pass.Period = &n
	}

	if err := s.passRepo.Create(ctx, pass); err != nil {
		if errors.Is(err, repository.ErrDuplicateOpenPass) {
			return nil, model.NewPassConflictError(input.StudentID)
		}
		return nil, fmt.Errorf("パスの保存に失敗しました: %w", err)
	}

	s.recordEvent(ctx, pass, model.PassEventIssued, now)
	s.metrics.RecordPassIssued(pass.Destination)

	return pass, nil
}

// Return はパスを返却済みに遷移させる。
// 教員は自分が発行したパスのみ返却でき、管理者は任意のパスを強制返却できる。
// 存在しないパス、またはすでに返却済みのパスへの操作はNotFoundエラーを返す
// （冪等な成功にはしない。運用判断の経緯はDESIGN.md参照）。
func (s *Service) Return(ctx context.Context, passID string, staff *model.Staff) (*model.Pass, error) {
	current, err := s.passRepo.FindByID(ctx, passID)
	if err != nil {
		return nil, fmt.Errorf("パスの取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewPassNotFoundError(passID)
	}
	if !canMutate(staff, current) {
		return nil, model.NewForbiddenError("他の教員が発行したパスの返却")
	}

	now := s.now()
	returned, err := s.passRepo.MarkReturned(ctx, passID, now)
	if err != nil {
		return nil, fmt.Errorf("パスの返却に失敗しました: %w", err)
	}
	if returned == nil {
		// 取得後に返却された、またはすでに返却済みだった
		return nil, model.NewPassNotFoundError(passID)
	}

	s.recordEvent(ctx, returned, model.PassEventReturned, now)
	s.metrics.RecordPassReturned(returned.WasOverdue)

	return returned, nil
}

// Get は指定IDのパスを取得する。
// 教員は自分が発行したパスのみ参照できる。
func (s *Service) Get(ctx context.Context, passID string, staff *model.Staff) (*model.Pass, error) {
	pass, err := s.passRepo.FindByID(ctx, passID)
	if err != nil {
		return nil, fmt.Errorf("パスの取得に失敗しました: %w", err)
	}
	if pass == nil {
		return nil, model.NewPassNotFoundError(passID)
	}
	if !canView(staff, pass) {
		return nil, model.NewPassNotFoundError(passID)
	}
	return pass, nil
}

// List は条件に一致するパス一覧を返す。
// 教員の場合はフィルタを自分が発行したパスに強制的に絞り込む。
func (s *Service) List(ctx context.Context, filter model.PassFilter, staff *model.Staff) ([]*model.Pass, error) {
	if !staff.Role.CanViewSchoolWide() {
		filter.IssuedBy = staff.ID
	}
	passes, err := s.passRepo.ListByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("パス一覧の取得に失敗しました: %w", err)
	}
	return passes, nil
}

// ListOpen は未返却パスの一覧を返す。
// 教員の場合は自分が発行したパスに限定する。
func (s *Service) ListOpen(ctx context.Context, staff *model.Staff) ([]*model.Pass, error) {
	if !staff.Role.CanViewSchoolWide() {
		return s.List(ctx, model.PassFilter{OpenOnly: true}, staff)
	}
	passes, err := s.passRepo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("未返却パス一覧の取得に失敗しました: %w", err)
	}
	return passes, nil
}

// isAllowedDestination は行き先が許可リストに含まれるかを判定する。
// 大文字小文字は区別しない。
func (s *Service) isAllowedDestination(destination string) bool {
	for _, allowed := range s.destinations {
		if strings.EqualFold(destination, allowed) {
			return true
		}
	}
	return false
}

// canMutate はスタッフがパスを変更できるかを判定する。
func canMutate(staff *model.Staff, pass *model.Pass) bool {
	return staff.Role == model.StaffRoleAdmin || pass.IssuedBy == staff.ID
}

// canView はスタッフがパスを参照できるかを判定する。
func canView(staff *model.Staff, pass *model.Pass) bool {
	return staff.Role.CanViewSchoolWide() || pass.IssuedBy == staff.ID
}

// recordEvent はアクティビティフィードにイベントを記録する。
// イベント記録の失敗はパス操作自体を失敗させず、ログにのみ残す。
func (s *Service) recordEvent(ctx context.Context, pass *model.Pass, eventType model.PassEventType, at time.Time) {
	event := &model.PassEvent{
		ID:         uuid.New().String(),
		PassID:     pass.ID,
		StudentID:  pass.StudentID,
		IssuedBy:   pass.IssuedBy,
		Type:       eventType,
		OccurredAt: at,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		slog.Error("イベントの記録に失敗しました",
			slog.String("pass_id", pass.ID),
			slog.String("event_type", string(eventType)),
			slog.String("error", err.Error()),
		)
	}
}

// truncateReason は理由フィールドを最大長に切り詰める。
func truncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= maxReasonLength {
		return reason
	}
	return string(runes[:maxReasonLength])
}
