package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/passman/internal/middleware"
	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/pass"
)

// PassServiceInterface はパスハンドラーが必要とするサービスインターフェース。
type PassServiceInterface interface {
	// Issue はパスを発行する。
	Issue(ctx context.Context, input pass.IssueInput) (*model.Pass, error)
	// Return はパスを返却済みにする。
	Return(ctx context.Context, passID string, staff *model.Staff) (*model.Pass, error)
	// Get はパス1件を取得する。
	Get(ctx context.Context, passID string, staff *model.Staff) (*model.Pass, error)
	// List は条件に合致するパス一覧を返す。
	List(ctx context.Context, filter model.PassFilter, staff *model.Staff) ([]*model.Pass, error)
	// ListOpen は未返却のパス一覧を返す。
	ListOpen(ctx context.Context, staff *model.Staff) ([]*model.Pass, error)
}

// PassHandler はパス管理のHTTPハンドラー。
type PassHandler struct {
	service PassServiceInterface
}

// NewPassHandler はPassHandlerを生成する。
func NewPassHandler(service PassServiceInterface) *PassHandler {
	return &PassHandler{service: service}
}

// issuePassRequest はパス発行リクエストのボディ。
type issuePassRequest struct {
	StudentID       string `json:"student_id"`
	Destination     string `json:"destination"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
	IssuedByScan    bool   `json:"issued_by_scan"`
}

// passResponse はパス情報のAPIレスポンス。
type passResponse struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"student_id"`
	IssuedBy         string     `json:"issued_by"`
	Destination      string     `json:"destination"`
	Reason           string     `json:"reason,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpectedReturnAt time.Time  `json:"expected_return_at"`
	ReturnedAt       *time.Time `json:"returned_at,omitempty"`
	Period           *int       `json:"period"`
	Status           string     `json:"status"`
	WasOverdue       bool       `json:"was_overdue"`
	IssuedByScan     bool       `json:"issued_by_scan"`
}

// passListResponse はパス一覧のAPIレスポンス。
type passListResponse struct {
	Passes []passResponse `json:"passes"`
	Total  int            `json:"total"`
}

func toPassResponse(p *model.Pass) passResponse {
	return passResponse{
		ID:               p.ID,
		StudentID:        p.StudentID,
		IssuedBy:         p.IssuedBy,
		Destination:      p.Destination,
		Reason:           p.Reason,
		IssuedAt:         p.IssuedAt,
		ExpectedReturnAt: p.ExpectedReturnAt,
		ReturnedAt:       p.ReturnedAt,
		Period:           p.Period,
		Status:           string(p.Status),
		WasOverdue:       p.WasOverdue,
		IssuedByScan:     p.IssuedByScan,
	}
}

func toPassListResponse(passes []*model.Pass) passListResponse {
	resp := passListResponse{
		Passes: make([]passResponse, 0, len(passes)),
		Total:  len(passes),
	}
	for _, p := range passes {
		resp.Passes = append(resp.Passes, toPassResponse(p))
	}
	return resp
}

// IssuePass はパス発行を処理する。
// POST /api/passes
func (h *PassHandler) IssuePass(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req issuePassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	issued, err := h.service.Issue(r.Context(), pass.IssueInput{
		StudentID:       req.StudentID,
		IssuedBy:        staff.ID,
		Destination:     req.Destination,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		IssuedByScan:    req.IssuedByScan,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPassResponse(issued))
}

// ReturnPass はパス返却を処理する。
// POST /api/passes/{id}/return
func (h *PassHandler) ReturnPass(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	passID := chi.URLParam(r, "id")

	returned, err := h.service.Return(r.Context(), passID, staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPassResponse(returned))
}

// GetPass はパス詳細を取得する。
// GET /api/passes/{id}
func (h *PassHandler) GetPass(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	passID := chi.URLParam(r, "id")

	found, err := h.service.Get(r.Context(), passID, staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPassResponse(found))
}

// ListPasses はパス一覧を取得する。
// GET /api/passes?student_id=&period=&status=&open=&from=&to=&limit=
func (h *PassHandler) ListPasses(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	filter, err := parsePassFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	passes, err := h.service.List(r.Context(), filter, staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPassListResponse(passes))
}

// ListOpenPasses は未返却パスの一覧を取得する。
// GET /api/passes/open
func (h *PassHandler) ListOpenPasses(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	passes, err := h.service.ListOpen(r.Context(), staff)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPassListResponse(passes))
}

// parsePassFilter はクエリパラメーターをPassFilterに変換する。
// 不正な値はINVALID_FILTERエラーとして返す。
func parsePassFilter(r *http.Request) (model.PassFilter, error) {
	q := r.URL.Query()
	filter := model.PassFilter{
		StudentID: q.Get("student_id"),
	}

	if v := q.Get("period"); v != "" {
		period, err := strconv.Atoi(v)
		if err != nil || period < 1 {
			return model.PassFilter{}, model.NewInvalidFilterError("period")
		}
		filter.Period = &period
	}

	if v := q.Get("status"); v != "" {
		status, ok := model.ParsePassStatus(v)
		if !ok {
			return model.PassFilter{}, model.NewInvalidFilterError("status")
		}
		filter.Status = status
	}

	if v := q.Get("open"); v == "true" {
		filter.OpenOnly = true
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return model.PassFilter{}, model.NewInvalidFilterError("from")
		}
		filter.From = from
	}

	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return model.PassFilter{}, model.NewInvalidFilterError("to")
		}
		filter.To = to
	}

	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return model.PassFilter{}, model.NewInvalidDateRangeError("toがfromより前です")
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return model.PassFilter{}, model.NewInvalidFilterError("limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}
