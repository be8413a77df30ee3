package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/passman/internal/middleware"
	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/schedule"
)

// ScheduleHandler は時間割参照のHTTPハンドラー。
type ScheduleHandler struct {
	schedules *schedule.Set
	now       func() time.Time
}

// NewScheduleHandler はScheduleHandlerを生成する。
func NewScheduleHandler(schedules *schedule.Set) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		now:       time.Now,
	}
}

// periodResponse は時限1件のAPIレスポンス。
type periodResponse struct {
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Label  string `json:"label,omitempty"`
}

// scheduleResponse は時間割のAPIレスポンス。
// CurrentPeriodは現在時刻がどの時限にも該当しない場合nullになる。
type scheduleResponse struct {
	TeacherID     string           `json:"teacher_id"`
	Periods       []periodResponse `json:"periods"`
	CurrentPeriod *periodResponse  `json:"current_period"`
}

// GetSchedule は認証中スタッフの時間割と現在の時限を取得する。
// 専用の時間割が未登録の場合は既定の時間割を返す。
// GET /api/schedule
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sched := h.schedules.ForTeacher(staff.ID)
	if sched == nil {
		handleServiceError(w, model.NewScheduleNotFoundError(staff.ID))
		return
	}

	resp := scheduleResponse{
		TeacherID: staff.ID,
		Periods:   make([]periodResponse, 0, len(sched.Periods)),
	}
	for _, p := range sched.Periods {
		resp.Periods = append(resp.Periods, periodResponse{
			Number: p.Number,
			Start:  p.Start.String(),
			End:    p.End.String(),
			Label:  p.Label,
		})
	}

	if current := schedule.PeriodAt(sched, h.now()); current != nil {
		resp.CurrentPeriod = &periodResponse{
			Number: current.Number,
			Start:  current.Start.String(),
			End:    current.End.String(),
			Label:  current.Label,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
