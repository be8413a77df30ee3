package schedule

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hitoshi/passman/internal/model"
)

// scheduleFile はスケジュール設定ファイルのトップレベル構造。
type scheduleFile struct {
	// Default は教員個別の時間割がない場合に使う全校共通の時間割。
	Default []periodEntry `json:"default"`
	// Teachers は教員IDごとの時間割。
	Teachers map[string][]periodEntry `json:"teachers"`
}

// periodEntry は設定ファイル上の1時限。時刻は "HH:MM" の24時間表記。
type periodEntry struct {
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Label  string `json:"label"`
}

// LoadFile はJSON設定ファイルからスケジュール集合を読み込む。
// 各時間割は構築時に重複検証され、違反があれば読み込み全体が失敗する。
// パスが空の場合は全校共通の既定時間割のみの集合を返す。
func LoadFile(path string) (*Set, error) {
	if path == "" {
		fallback, err := NewSchedule("", DefaultPeriods())
		if err != nil {
			return nil, err
		}
		return NewSet(nil, fallback), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("スケジュール設定ファイルの読み込みに失敗しました: %w", err)
	}

	var file scheduleFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("スケジュール設定ファイルの解析に失敗しました: %w", err)
	}

	var fallback *model.Schedule
	if len(file.Default) > 0 {
		periods, err := parsePeriods(file.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		fallback, err = NewSchedule("", periods)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
	}

	var schedules []*model.Schedule
	for teacherID, entries := range file.Teachers {
		periods, err := parsePeriods(entries)
		if err != nil {
			return nil, fmt.Errorf("teacher %s: %w", teacherID, err)
		}
		s, err := NewSchedule(teacherID, periods)
		if err != nil {
			return nil, fmt.Errorf("teacher %s: %w", teacherID, err)
		}
		schedules = append(schedules, s)
	}

	return NewSet(schedules, fallback), nil
}

// parsePeriods は設定ファイルのエントリをドメインモデルに変換する。
func parsePeriods(entries []periodEntry) ([]model.Period, error) {
	periods := make([]model.Period, 0, len(entries))
	for _, e := range entries {
		start, err := parseClock(e.Start)
		if err != nil {
			return nil, fmt.Errorf("時限%dの開始時刻が不正です: %w", e.Number, err)
		}
		end, err := parseClock(e.End)
		if err != nil {
			return nil, fmt.Errorf("時限%dの終了時刻が不正です: %w", e.Number, err)
		}
		periods = append(periods, model.Period{
			Number: e.Number,
			Start:  start,
			End:    end,
			Label:  e.Label,
		})
	}
	return periods, nil
}

// parseClock は "HH:MM" 表記を0時からの経過分に変換する。
func parseClock(s string) (model.MinutesOfDay, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("時刻はHH:MM形式で指定してください: %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("時刻の範囲が不正です: %q", s)
	}
	return model.MinutesOfDay(hour*60 + minute), nil
}

// DefaultPeriods は全校共通の既定時間割（6時限制）を返す。
func DefaultPeriods() []model.Period {
	return []model.Period{
		{Number: 1, Start: 8 * 60, End: 9 * 60, Label: "1時限"},
		{Number: 2, Start: 9*60 + 5, End: 10*60 + 5, Label: "2時限"},
		{Number: 3, Start: 10*60 + 10, End: 11*60 + 10, Label: "3時限"},
		{Number: 4, Start: 11*60 + 15, End: 12*60 + 15, Label: "4時限"},
		{Number: 5, Start: 13 * 60, End: 14 * 60, Label: "5時限"},
		{Number: 6, Start: 14*60 + 5, End: 15*60 + 5, Label: "6時限"},
	}
}
