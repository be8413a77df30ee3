package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/passman/internal/middleware"
	"github.com/hitoshi/passman/internal/model"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// EventListerInterface はイベントハンドラーが必要とするリポジトリインターフェース。
type EventListerInterface interface {
	// ListRecent は新しい順にイベント一覧を返す。
	// issuedByが空の場合は全校分を対象とする。
	ListRecent(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error)
}

// EventHandler はアクティビティフィードのHTTPハンドラー。
type EventHandler struct {
	lister EventListerInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(lister EventListerInterface) *EventHandler {
	return &EventHandler{lister: lister}
}

// eventResponse はイベント1件のAPIレスポンス。
type eventResponse struct {
	ID         string    `json:"id"`
	PassID     string    `json:"pass_id"`
	StudentID  string    `json:"student_id"`
	IssuedBy   string    `json:"issued_by"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// eventListResponse はイベント一覧のAPIレスポンス。
type eventListResponse struct {
	Events []eventResponse `json:"events"`
}

// ListEvents はアクティビティフィードを取得する。
// 教員は自分が発行したパスのイベントのみ、管理者は全校分を閲覧できる。
// GET /api/events?limit=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	staff, err := middleware.StaffFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			handleServiceError(w, model.NewInvalidFilterError("limit"))
			return
		}
		limit = parsed
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	issuedBy := staff.ID
	if staff.Role.CanViewSchoolWide() {
		issuedBy = ""
	}

	events, err := h.lister.ListRecent(r.Context(), issuedBy, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := eventListResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse{
			ID:         e.ID,
			PassID:     e.PassID,
			StudentID:  e.StudentID,
			IssuedBy:   e.IssuedBy,
			Type:       string(e.Type),
			OccurredAt: e.OccurredAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
