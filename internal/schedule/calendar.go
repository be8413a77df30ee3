// Package schedule は時間割（Period Calendar）のドメインロジックを提供する。
// 発行時刻から時限を決定する純粋な参照機能と、
// 重複のない時間割であることを保証する構築時検証を含む。
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/passman/internal/model"
)

// NewSchedule は時限の集合からスケジュールを構築する。
// 検証内容:
//   - 時限番号は正の整数で、スケジュール内で一意であること
//   - 各時限は start < end であること
//   - 時限同士が重複しないこと（境界の共有も重複とみなす）
//
// 検証に失敗した場合はScheduleConflictエラーを返す。
// 時限は開始時刻昇順に整列して保持される。時間割の隙間は許容される。
func NewSchedule(teacherID string, periods []model.Period) (*model.Schedule, error) {
	sorted := make([]model.Period, len(periods))
	copy(sorted, periods)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	seen := make(map[int]bool, len(sorted))
	for i, p := range sorted {
		if p.Number <= 0 {
			return nil, model.NewScheduleConflictError(
				fmt.Sprintf("時限番号は正の整数である必要があります: %d", p.Number))
		}
		if seen[p.Number] {
			return nil, model.NewScheduleConflictError(
				fmt.Sprintf("時限番号が重複しています: %d", p.Number))
		}
		seen[p.Number] = true

		if p.Start >= p.End {
			return nil, model.NewScheduleConflictError(
				fmt.Sprintf("時限%dの開始時刻が終了時刻以降です", p.Number))
		}

		// 境界は両端含みのため、前の時限のEndと同時刻のStartも重複になる
		if i > 0 && p.Start <= sorted[i-1].End {
			return nil, model.NewScheduleConflictError(
				fmt.Sprintf("時限%dと時限%dの時間帯が重複しています",
					sorted[i-1].Number, p.Number))
		}
	}

	return &model.Schedule{TeacherID: teacherID, Periods: sorted}, nil
}

// PeriodAt は指定時刻に該当する時限を返す。
// 時限は重複しないため該当は高々1件で、隙間の場合はnilを返す。
// 境界（開始・終了時刻ちょうど）は時限に含まれる。副作用はない。
func PeriodAt(s *model.Schedule, t time.Time) *model.Period {
	if s == nil {
		return nil
	}
	m := model.MinutesSinceMidnight(t)
	for _, p := range s.Periods {
		if p.Contains(m) {
			period := p
			return &period
		}
	}
	return nil
}

// Set は教員IDからスケジュールを引くための集合。
// 起動時に設定から1回構築され、以後イミュータブルとして扱う。
type Set struct {
	schedules map[string]*model.Schedule
	fallback  *model.Schedule // 教員個別の時間割がない場合の全校共通時間割
}

// NewSet はスケジュール集合を構築する。
// fallbackには全校共通の時間割を指定する（nil可）。
func NewSet(schedules []*model.Schedule, fallback *model.Schedule) *Set {
	m := make(map[string]*model.Schedule, len(schedules))
	for _, s := range schedules {
		m[s.TeacherID] = s
	}
	return &Set{schedules: m, fallback: fallback}
}

// ForTeacher は指定教員のスケジュールを返す。
// 教員個別の時間割がない場合は全校共通の時間割を返す（それもなければnil）。
func (s *Set) ForTeacher(teacherID string) *model.Schedule {
	if sched, ok := s.schedules[teacherID]; ok {
		return sched
	}
	return s.fallback
}

// PeriodFor は指定教員の時間割で時刻を時限に解決する。
// 時間割がない場合や隙間の場合はnilを返す。
func (s *Set) PeriodFor(teacherID string, t time.Time) *model.Period {
	return PeriodAt(s.ForTeacher(teacherID), t)
}
