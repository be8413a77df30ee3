// Package stats はPass Storeのスナップショットから導出統計を計算する読み取り専用層。
// すべての集計は取得済みスナップショットに対する純粋関数で、Pass Storeを変更しない。
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/repository"
	"github.com/hitoshi/passman/internal/schedule"
)

// Service は集計のサービス層。
type Service struct {
	passRepo  repository.PassRepository
	staffRepo repository.StaffRepository
	schedules *schedule.Set
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	passRepo repository.PassRepository,
	staffRepo repository.StaffRepository,
	schedules *schedule.Set,
) *Service {
	return &Service{
		passRepo:  passRepo,
		staffRepo: staffRepo,
		schedules: schedules,
		now:       time.Now,
	}
}

// PeriodStats は1時限分のパス件数。
type PeriodStats struct {
	Period  int
	Label   string
	Active  int
	Overdue int
	Total   int
}

// DestinationStat は行き先1件の出現頻度。
// Percentageは四捨五入した整数のため、全行き先の合計が100にならないことがある。
// 合計を100に揃える正規化は行わない。
type DestinationStat struct {
	Name       string
	Count      int
	Percentage int
}

// Summary はダッシュボード向けの概況統計。
type Summary struct {
	PassesIssued           int     // 集計期間内に発行された件数
	ActiveNow              int     // 現在activeの件数
	OverdueNow             int     // 現在overdueの件数
	OnTimeRatePercent      int     // 一度もoverdueにならず返却された割合
	AverageDurationMinutes float64 // 返却済みパスの平均持ち出し時間（分、小数1桁）
}

// TeacherStats は教員別の集計。管理者ビューで使用する。
type TeacherStats struct {
	TeacherID         string
	Name              string
	Passes            int
	OnTimeRatePercent int
}

// Overview は集計期間の全統計をまとめた構造体。
type Overview struct {
	Summary      Summary
	Periods      []PeriodStats
	Destinations []DestinationStat
}

// Window は集計期間。From <= issued_at < To。
type Window struct {
	From time.Time
	To   time.Time
}

// ComputeOverview は指定スタッフの視点での集計期間の統計を計算する。
// 教員の場合は自分が発行したパスのみ、管理者の場合は全校分を対象とする。
// スナップショットは1回だけ取得し、以降の計算はすべてその上で行う。
func (s *Service) ComputeOverview(ctx context.Context, staff *model.Staff, window Window) (*Overview, error) {
	filter := model.PassFilter{From: window.From, To: window.To}
	if !staff.Role.CanViewSchoolWide() {
		filter.IssuedBy = staff.ID
	}

	snapshot, err := s.passRepo.ListByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("集計対象パスの取得に失敗しました: %w", err)
	}

	sched := s.schedules.ForTeacher(staff.ID)

	return &Overview{
		Summary:      ComputeSummary(snapshot),
		Periods:      ComputePeriodStats(snapshot, sched),
		Destinations: ComputeDestinationStats(snapshot),
	}, nil
}

// ComputeTeacherStats は教員別の集計を計算する。管理者専用。
func (s *Service) ComputeTeacherStats(ctx context.Context, staff *model.Staff, window Window) ([]TeacherStats, error) {
	if !staff.Role.CanViewSchoolWide() {
		return nil, model.NewForbiddenError("教員別統計の参照")
	}

	snapshot, err := s.passRepo.ListByFilter(ctx, model.PassFilter{From: window.From, To: window.To})
	if err != nil {
		return nil, fmt.Errorf("集計対象パスの取得に失敗しました: %w", err)
	}

	staffList, err := s.staffRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("スタッフ一覧の取得に失敗しました: %w", err)
	}
	names := make(map[string]string, len(staffList))
	for _, st := range staffList {
		names[st.ID] = st.Name
	}

	byTeacher := make(map[string][]*model.Pass)
	for _, p := range snapshot {
		byTeacher[p.IssuedBy] = append(byTeacher[p.IssuedBy], p)
	}

	var result []TeacherStats
	for teacherID, passes := range byTeacher {
		result = append(result, TeacherStats{
			TeacherID:         teacherID,
			Name:              names[teacherID],
			Passes:            len(passes),
			OnTimeRatePercent: onTimeRate(passes),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Passes > result[j].Passes
	})
	return result, nil
}

// ComputeSummary はスナップショットから概況統計を計算する。
func ComputeSummary(snapshot []*model.Pass) Summary {
	summary := Summary{PassesIssued: len(snapshot)}

	for _, p := range snapshot {
		switch p.Status {
		case model.PassStatusActive:
			summary.ActiveNow++
		case model.PassStatusOverdue:
			summary.OverdueNow++
		}
	}

	summary.OnTimeRatePercent = onTimeRate(snapshot)
	summary.AverageDurationMinutes = averageDuration(snapshot)

	return summary
}

// ComputePeriodStats はスナップショットを時限別に集計する。
// 時間割に含まれる時限はパスが0件でも結果に含める。
// 時限なし（時間割の隙間）で発行されたパスは集計に含まれない。
func ComputePeriodStats(snapshot []*model.Pass, sched *model.Schedule) []PeriodStats {
	byPeriod := make(map[int]*PeriodStats)
	var order []int

	if sched != nil {
		for _, p := range sched.Periods {
			byPeriod[p.Number] = &PeriodStats{Period: p.Number, Label: p.Label}
			order = append(order, p.Number)
		}
	}

	for _, pass := range snapshot {
		if pass.Period == nil {
			continue
		}
		stats, ok := byPeriod[*pass.Period]
		if !ok {
			// 時間割変更後も、発行時点の時限タグはそのまま集計する
			stats = &PeriodStats{Period: *pass.Period}
			byPeriod[*pass.Period] = stats
			order = append(order, *pass.Period)
		}
		stats.Total++
		switch pass.Status {
		case model.PassStatusActive:
			stats.Active++
		case model.PassStatusOverdue:
			stats.Overdue++
		}
	}

	sort.Ints(order)
	result := make([]PeriodStats, 0, len(order))
	for _, n := range order {
		result = append(result, *byPeriod[n])
	}
	return result
}

// ComputeDestinationStats は行き先別の出現頻度を計算する。
// 件数降順、同数の場合は名前昇順で返す。
// パーセンテージは四捨五入のため合計が100にならないことがある。
func ComputeDestinationStats(snapshot []*model.Pass) []DestinationStat {
	counts := make(map[string]int)
	for _, p := range snapshot {
		counts[p.Destination]++
	}

	total := len(snapshot)
	result := make([]DestinationStat, 0, len(counts))
	for name, count := range counts {
		result = append(result, DestinationStat{
			Name:       name,
			Count:      count,
			Percentage: roundPercent(count, total),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// onTimeRate は返却済みパスのうち一度もoverdueにならなかった割合を
// 四捨五入した整数パーセントで返す。返却済みが0件の場合は0を返す。
func onTimeRate(snapshot []*model.Pass) int {
	var returned, onTime int
	for _, p := range snapshot {
		if p.Status != model.PassStatusReturned {
			continue
		}
		returned++
		if !p.WasOverdue {
			onTime++
		}
	}
	return roundPercent(onTime, returned)
}

// averageDuration は返却済みパスの平均持ち出し時間を分単位・小数1桁で返す。
// 返却済みが0件の場合は0を返す。
func averageDuration(snapshot []*model.Pass) float64 {
	var total time.Duration
	var count int
	for _, p := range snapshot {
		if p.Status != model.PassStatusReturned || p.ReturnedAt == nil {
			continue
		}
		total += p.ReturnedAt.Sub(p.IssuedAt)
		count++
	}
	if count == 0 {
		return 0
	}
	mean := total.Minutes() / float64(count)
	return math.Round(mean*10) / 10
}

// roundPercent はcount/totalを四捨五入した整数パーセントで返す。
func roundPercent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}
