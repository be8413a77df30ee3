package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/passman/internal/model"
)

// mockEventLister はEventListerInterfaceのモック実装。
type mockEventLister struct {
	listRecentFunc func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error)
}

func (m *mockEventLister) ListRecent(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
	return m.listRecentFunc(ctx, issuedBy, limit)
}

func sampleEvent() *model.PassEvent {
	return &model.PassEvent{
		ID:         "event-1",
		PassID:     "pass-1",
		StudentID:  "s-1001",
		IssuedBy:   "teacher-1",
		Type:       model.PassEventIssued,
		OccurredAt: time.Date(2026, 4, 6, 10, 30, 0, 0, time.Local),
	}
}

func TestEventHandler_ListEvents_TeacherScopedToOwnPasses(t *testing.T) {
	var gotIssuedBy string
	var gotLimit int
	lister := &mockEventLister{
		listRecentFunc: func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
			gotIssuedBy = issuedBy
			gotLimit = limit
			return []*model.PassEvent{sampleEvent()}, nil
		},
	}
	h := NewEventHandler(lister)

	req := authedRequest(http.MethodGet, "/api/events", nil, teacherStaff())
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotIssuedBy != "teacher-1" {
		t.Errorf("issuedBy = %q, want teacher-1（教員は自分のイベントのみ）", gotIssuedBy)
	}
	if gotLimit != defaultEventLimit {
		t.Errorf("limit = %d, want %d", gotLimit, defaultEventLimit)
	}

	var resp eventListResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスボディのデコードに失敗: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(resp.Events))
	}
	if resp.Events[0].Type != "pass_issued" {
		t.Errorf("type = %q, want pass_issued", resp.Events[0].Type)
	}
}

func TestEventHandler_ListEvents_AdminSeesSchoolWide(t *testing.T) {
	var gotIssuedBy string
	lister := &mockEventLister{
		listRecentFunc: func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
			gotIssuedBy = issuedBy
			return nil, nil
		},
	}
	h := NewEventHandler(lister)

	admin := &model.Staff{ID: "admin-1", Role: model.StaffRoleAdmin}
	req := authedRequest(http.MethodGet, "/api/events", nil, admin)
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if gotIssuedBy != "" {
		t.Errorf("issuedBy = %q, want 空（管理者は全校分）", gotIssuedBy)
	}
}

func TestEventHandler_ListEvents_LimitParsing(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		wantLimit int
	}{
		{"明示的なlimit", "/api/events?limit=10", 10},
		{"上限を超えるlimitは丸められる", "/api/events?limit=999", maxEventLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			lister := &mockEventLister{
				listRecentFunc: func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
					gotLimit = limit
					return nil, nil
				},
			}
			h := NewEventHandler(lister)

			req := authedRequest(http.MethodGet, tt.target, nil, teacherStaff())
			w := httptest.NewRecorder()

			h.ListEvents(w, req)

			if gotLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", gotLimit, tt.wantLimit)
			}
		})
	}
}

func TestEventHandler_ListEvents_InvalidLimitReturns400(t *testing.T) {
	h := NewEventHandler(&mockEventLister{})

	req := authedRequest(http.MethodGet, "/api/events?limit=abc", nil, teacherStaff())
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestEventHandler_ListEvents_RepositoryErrorReturns500(t *testing.T) {
	lister := &mockEventLister{
		listRecentFunc: func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
			return nil, errors.New("database error")
		},
	}
	h := NewEventHandler(lister)

	req := authedRequest(http.MethodGet, "/api/events", nil, teacherStaff())
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}

func TestEventHandler_ListEvents_Unauthenticated(t *testing.T) {
	h := NewEventHandler(&mockEventLister{})

	req := authedRequest(http.MethodGet, "/api/events", nil, nil)
	w := httptest.NewRecorder()

	h.ListEvents(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
