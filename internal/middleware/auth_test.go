package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/passman/internal/model"
)

// mockStaffFinder はStaffFinderのモック実装。
type mockStaffFinder struct {
	findByAPITokenFunc func(ctx context.Context, token string) (*model.Staff, error)
}

func (m *mockStaffFinder) FindByAPIToken(ctx context.Context, token string) (*model.Staff, error) {
	return m.findByAPITokenFunc(ctx, token)
}

func testStaff() *model.Staff {
	return &model.Staff{
		ID:       "staff-1",
		Name:     "山田太郎",
		Role:     model.StaffRoleTeacher,
		APIToken: "valid-token",
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	finder := &mockStaffFinder{
		findByAPITokenFunc: func(ctx context.Context, token string) (*model.Staff, error) {
			if token != "valid-token" {
				t.Errorf("token = %q, want %q", token, "valid-token")
			}
			return testStaff(), nil
		},
	}

	mw := NewAuthMiddleware(finder)

	var gotStaff *model.Staff
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		staff, err := StaffFromContext(r.Context())
		if err != nil {
			t.Fatalf("StaffFromContext() error = %v", err)
		}
		gotStaff = staff
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotStaff == nil || gotStaff.ID != "staff-1" {
		t.Errorf("context staff = %+v, want staff-1", gotStaff)
	}
}

func TestAuthMiddleware_MissingAuthorizationHeader(t *testing.T) {
	finder := &mockStaffFinder{
		findByAPITokenFunc: func(ctx context.Context, token string) (*model.Staff, error) {
			t.Error("ヘッダーがない場合はFindByAPITokenを呼び出さないこと")
			return nil, nil
		},
	}

	mw := NewAuthMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("未認証リクエストで後続ハンドラーが呼ばれた")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_NonBearerScheme(t *testing.T) {
	finder := &mockStaffFinder{
		findByAPITokenFunc: func(ctx context.Context, token string) (*model.Staff, error) {
			return testStaff(), nil
		},
	}

	mw := NewAuthMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Bearerスキーム以外で後続ハンドラーが呼ばれた")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_UnknownToken(t *testing.T) {
	finder := &mockStaffFinder{
		findByAPITokenFunc: func(ctx context.Context, token string) (*model.Staff, error) {
			return nil, nil
		},
	}

	mw := NewAuthMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("無効なトークンで後続ハンドラーが呼ばれた")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	req.Header.Set("Authorization", "Bearer unknown-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_FinderError(t *testing.T) {
	finder := &mockStaffFinder{
		findByAPITokenFunc: func(ctx context.Context, token string) (*model.Staff, error) {
			return nil, errors.New("database error")
		},
	}

	mw := NewAuthMiddleware(finder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("検索エラー時に後続ハンドラーが呼ばれた")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/passes", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"通常のBearerトークン", "Bearer abc123", "abc123"},
		{"空白付きトークン", "Bearer  abc123 ", "abc123"},
		{"ヘッダーなし", "", ""},
		{"Bearerのみ", "Bearer ", ""},
		{"Basicスキーム", "Basic abc123", ""},
		{"小文字のbearer", "bearer abc123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(req); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStaffFromContext_NotSet(t *testing.T) {
	_, err := StaffFromContext(context.Background())
	if err == nil {
		t.Error("スタッフ未設定のコンテキストでエラーが返らなかった")
	}
}

func TestContextWithStaff_RoundTrip(t *testing.T) {
	staff := testStaff()
	ctx := ContextWithStaff(context.Background(), staff)

	got, err := StaffFromContext(ctx)
	if err != nil {
		t.Fatalf("StaffFromContext() error = %v", err)
	}
	if got.ID != staff.ID {
		t.Errorf("staff.ID = %q, want %q", got.ID, staff.ID)
	}
}
