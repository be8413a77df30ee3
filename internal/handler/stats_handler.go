package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/passman/internal/middleware"
	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/stats"
)

// StatsServiceInterface は統計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	// ComputeOverview は集計期間の統計概況を計算する。
	ComputeOverview(ctx context.Context, staff *model.Staff, window stats.Window) (*stats.Overview, error)
	// ComputeTeacherStats は教員別の集計を計算する。管理者専用。
	ComputeTeacherStats(ctx context.Context, staff *model.Staff, window stats.Window) ([]stats.TeacherStats, error)
}

// StatsHandler は統計APIのHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
	now     func() time.Time
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		service: service,
		now:     time.Now,
	}
}

// summaryResponse は概況統計のAPIレスポンス。
type summaryResponse struct {
	PassesIssued           int     `json:"passes_issued"`
	ActiveNow              int     `json:"active_now"`
	OverdueNow             int     `json:"overdue_now"`
	OnTimeRatePercent      int     `json:"on_time_rate_percent"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
}

// periodStatsResponse は時限別集計のAPIレスポンス。
type periodStatsResponse struct {
	Period  int    `json:"period"`
	Label   string `json:"label,omitempty"`
	Active  int    `json:"active"`
	Overdue int    `json:"overdue"`
	Total   int    `json:"total"`
}

// destinationStatResponse は行き先別集計のAPIレスポンス。
// 割合は四捨五入した整数のため、合計が100にならないことがある。
type destinationStatResponse struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// overviewResponse は統計概況のAPIレスポンス。
type overviewResponse struct {
	From         time.Time                 `json:"from"`
	To           time.Time                 `json:"to"`
	Summary      summaryResponse           `json:"summary"`
	Periods      []periodStatsResponse     `json:"periods"`
	Destinations []destinationStatResponse `json:"destinations"`
}

// teacherStatsResponse は教員別集計のAPIレスポンス。
type teacherStatsResponse struct {
	TeacherID         string `json:"teacher_id"`
	Name              string `json:"name"`
	Passes            int    `json:"passes"`
	OnTimeRatePercent int    `json:"on_time_rate_percent"`
}

// teacherStatsListResponse は教員別集計一覧のAPIレスポンス。
type teacherStatsListResponse struct {
	From     time.Time              `json:"from"`
	To       time.Time              `json:"to"`
	Teachers []teacherStatsResponse `json:"teachers"`
}

func toOverviewResponse(overview *stats.Overview, window stats.Window) overviewResponse {
	resp := overviewResponse{
		From: window.From,
		To:   window.To,
		Summary: summaryResponse{
			PassesIssued:           overview.Summary.PassesIssued,
			ActiveNow:              overview.Summary.ActiveNow,
			OverdueNow:             overview.Summary.OverdueNow,
			OnTimeRatePercent:      overview.Summary.OnTimeRatePercent,
			AverageDurationMinutes: overview.Summary.AverageDurationMinutes,
		},
		Periods:      make([]periodStatsResponse, 0, len(overview.Periods)),
		Destinations: make([]destinationStatResponse, 0, len(overview.Destinations)),
	}
	for _, p := range overview.Periods {
		resp.Periods = append(resp.Periods, periodStatsResponse{
			Period:  p.Period,
			Label:   p.Label,
			Active:  p.Active,
			Overdue: p.Overdue,
			Total:   p.Total,
		})
	}
	for _, d := range overview.Destinations {
		resp.Destinations = append(resp.Destinations, destinationStatResponse{
			Name:       d.Name,
			Count:      d.Count,
			Percentage: d.Percentage,
		})
	}
	return resp
}

// GetOverview は統計概況を取得する。期間を省略した場合は当日分を集計する。
// GET /api/stats/overview?from=&to=
func (h *StatsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	window, err := h.parseWindow(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	overview, err := h.service.ComputeOverview(r.Context(), staff, window)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOverviewResponse(overview, window))
}

// GetTeacherStats は教員別の集計を取得する。管理者専用。
// GET /api/stats/teachers?from=&to=
func (h *StatsHandler) GetTeacherStats(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	window, err := h.parseWindow(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	teacherStats, err := h.service.ComputeTeacherStats(r.Context(), staff, window)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := teacherStatsListResponse{
		From:     window.From,
		To:       window.To,
		Teachers: make([]teacherStatsResponse, 0, len(teacherStats)),
	}
	for _, t := range teacherStats {
		resp.Teachers = append(resp.Teachers, teacherStatsResponse{
			TeacherID:         t.TeacherID,
			Name:              t.Name,
			Passes:            t.Passes,
			OnTimeRatePercent: t.OnTimeRatePercent,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseWindow はクエリパラメーターから集計期間を組み立てる。
// from/toを省略した場合は当日0時から翌日0時までを対象とする。
func (h *StatsHandler) parseWindow(r *http.Request) (stats.Window, error) {
	q := r.URL.Query()

	now := h.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	window := stats.Window{
		From: startOfDay,
		To:   startOfDay.AddDate(0, 0, 1),
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return stats.Window{}, model.NewInvalidDateRangeError("fromの形式が不正です")
		}
		window.From = from
	}

	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return stats.Window{}, model.NewInvalidDateRangeError("toの形式が不正です")
		}
		window.To = to
	}

	if window.To.Before(window.From) {
		return stats.Window{}, model.NewInvalidDateRangeError("toがfromより前です")
	}

	return window, nil
}
