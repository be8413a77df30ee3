package pass

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/passman/internal/model"
	"github.com/hitoshi/passman/internal/repository"
	"github.com/hitoshi/passman/internal/schedule"
)

// --- モック定義 ---

// mockPassRepo はPassRepositoryのテスト用モック。
type mockPassRepo struct {
	createFunc               func(ctx context.Context, pass *model.Pass) error
	findByIDFunc             func(ctx context.Context, id string) (*model.Pass, error)
	findOpenByStudentFunc    func(ctx context.Context, studentID string) (*model.Pass, error)
	markReturnedFunc         func(ctx context.Context, id string, now time.Time) (*model.Pass, error)
	markOverdueFunc          func(ctx context.Context, id string, now time.Time) (bool, error)
	listOpenFunc             func(ctx context.Context) ([]*model.Pass, error)
	listDueForOverdueFunc    func(ctx context.Context, now time.Time) ([]*model.Pass, error)
	listByFilterFunc         func(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error)
	deleteReturnedBeforeFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockPassRepo) Create(ctx context.Context, pass *model.Pass) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, pass)
	}
	return nil
}

func (m *mockPassRepo) FindByID(ctx context.Context, id string) (*model.Pass, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockPassRepo) FindOpenByStudent(ctx context.Context, studentID string) (*model.Pass, error) {
	if m.findOpenByStudentFunc != nil {
		return m.findOpenByStudentFunc(ctx, studentID)
	}
	return nil, nil
}

func (m *mockPassRepo) MarkReturned(ctx context.Context, id string, now time.Time) (*model.Pass, error) {
	if m.markReturnedFunc != nil {
		return m.markReturnedFunc(ctx, id, now)
	}
	return nil, nil
}

func (m *mockPassRepo) MarkOverdue(ctx context.Context, id string, now time.Time) (bool, error) {
	if m.markOverdueFunc != nil {
		return m.markOverdueFunc(ctx, id, now)
	}
	return false, nil
}

func (m *mockPassRepo) ListOpen(ctx context.Context) ([]*model.Pass, error) {
	if m.listOpenFunc != nil {
		return m.listOpenFunc(ctx)
	}
	return nil, nil
}

func (m *mockPassRepo) ListDueForOverdue(ctx context.Context, now time.Time) ([]*model.Pass, error) {
	if m.listDueForOverdueFunc != nil {
		return m.listDueForOverdueFunc(ctx, now)
	}
	return nil, nil
}

func (m *mockPassRepo) ListByFilter(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error) {
	if m.listByFilterFunc != nil {
		return m.listByFilterFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockPassRepo) DeleteReturnedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteReturnedBeforeFunc != nil {
		return m.deleteReturnedBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

// mockEventRepo はPassEventRepositoryのテスト用モック。
type mockEventRepo struct {
	createFunc     func(ctx context.Context, event *model.PassEvent) error
	listRecentFunc func(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error)
}

func (m *mockEventRepo) Create(ctx context.Context, event *model.PassEvent) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, event)
	}
	return nil
}

func (m *mockEventRepo) ListRecent(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
	if m.listRecentFunc != nil {
		return m.listRecentFunc(ctx, issuedBy, limit)
	}
	return nil, nil
}

// passthroughSanitizer は入力をそのまま返すテスト用サニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string { return raw }

// --- テストヘルパー ---

func testConfig() Config {
	return Config{
		AllowedDestinations: []string{"Library", "Bathroom", "Nurse"},
		MaxDurationMinutes:  60,
	}
}

func testSchedules(t *testing.T) *schedule.Set {
	t.Helper()
	set, err := schedule.LoadFile("")
	if err != nil {
		t.Fatalf("時間割の構築に失敗: %v", err)
	}
	return set
}

func newTestService(t *testing.T, passRepo *mockPassRepo, eventRepo *mockEventRepo) *Service {
	t.Helper()
	return NewService(passRepo, eventRepo, testSchedules(t), passthroughSanitizer{}, nil, testConfig())
}

func teacher(id string) *model.Staff {
	return &model.Staff{ID: id, Name: "テスト教員", Role: model.StaffRoleTeacher}
}

func admin() *model.Staff {
	return &model.Staff{ID: "admin-1", Name: "管理者", Role: model.StaffRoleAdmin}
}

// --- 発行のテスト ---

func TestIssue_Success(t *testing.T) {
	var created *model.Pass
	repo := &mockPassRepo{
		createFunc: func(ctx context.Context, pass *model.Pass) error {
			created = pass
			return nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})
	// 10:30 は既定時間割の3時限
	svc.now = func() time.Time { return time.Date(2026, 4, 6, 10, 30, 0, 0, time.Local) }

	issued, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	})
	if err != nil {
		t.Fatalf("Issue() がエラーを返した: %v", err)
	}

	if issued.Status != model.PassStatusActive {
		t.Errorf("status = %q, want %q", issued.Status, model.PassStatusActive)
	}
	if got := issued.ExpectedReturnAt.Sub(issued.IssuedAt); got != 10*time.Minute {
		t.Errorf("期限までの時間 = %v, want 10m", got)
	}
	if issued.Period == nil || *issued.Period != 3 {
		t.Errorf("時限 = %v, want 3", issued.Period)
	}
	if created == nil {
		t.Fatal("Create が呼ばれるべき")
	}
	if issued.ID == "" {
		t.Error("IDが採番されるべき")
	}
}

func TestIssue_DuringGap_PeriodIsNil(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})
	// 09:02 は1時限と2時限の間の休み時間
	svc.now = func() time.Time { return time.Date(2026, 4, 6, 9, 2, 0, 0, time.Local) }

	issued, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Bathroom",
		DurationMinutes: 5,
	})
	if err != nil {
		t.Fatalf("Issue() がエラーを返した: %v", err)
	}
	if issued.Period != nil {
		t.Errorf("休み時間の発行は時限nilになるべき, got %d", *issued.Period)
	}
}

func TestIssue_EmptyStudentID(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	_, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "   ",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	})
	assertErrorCode(t, err, model.ErrCodeStudentRequired)
}

func TestIssue_InvalidDuration(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	for _, minutes := range []int{0, -5, 61} {
		_, err := svc.Issue(context.Background(), IssueInput{
			StudentID:       "student-1",
			IssuedBy:        "teacher-1",
			Destination:     "Library",
			DurationMinutes: minutes,
		})
		assertErrorCode(t, err, model.ErrCodeInvalidDuration)
	}
}

func TestIssue_DisallowedDestination(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	_, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Parking Lot",
		DurationMinutes: 10,
	})
	assertErrorCode(t, err, model.ErrCodeDestinationNotAllowed)
}

func TestIssue_DestinationCaseInsensitive(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	_, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "library",
		DurationMinutes: 10,
	})
	if err != nil {
		t.Fatalf("行き先の照合は大文字小文字を区別しないべき: %v", err)
	}
}

func TestIssue_ConflictOnExistingOpenPass(t *testing.T) {
	repo := &mockPassRepo{
		findOpenByStudentFunc: func(ctx context.Context, studentID string) (*model.Pass, error) {
			return &model.Pass{ID: "existing", StudentID: studentID, Status: model.PassStatusActive}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	_, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	})
	assertErrorCode(t, err, model.ErrCodePassConflict)
}

func TestIssue_ConflictOnRace(t *testing.T) {
	// 事前チェック通過後にINSERTが一意制約違反になるレース
	repo := &mockPassRepo{
		createFunc: func(ctx context.Context, pass *model.Pass) error {
			return repository.ErrDuplicateOpenPass
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	_, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	})
	assertErrorCode(t, err, model.ErrCodePassConflict)
}

func TestIssue_RecordsEvent(t *testing.T) {
	var recorded *model.PassEvent
	events := &mockEventRepo{
		createFunc: func(ctx context.Context, event *model.PassEvent) error {
			recorded = event
			return nil
		},
	}
	svc := newTestService(t, &mockPassRepo{}, events)

	issued, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	})
	if err != nil {
		t.Fatalf("Issue() がエラーを返した: %v", err)
	}

	if recorded == nil {
		t.Fatal("発行イベントが記録されるべき")
	}
	if recorded.Type != model.PassEventIssued {
		t.Errorf("イベント種別 = %q, want %q", recorded.Type, model.PassEventIssued)
	}
	if recorded.PassID != issued.ID {
		t.Errorf("イベントのPassID = %q, want %q", recorded.PassID, issued.ID)
	}
}

func TestIssue_EventFailureDoesNotFailIssue(t *testing.T) {
	events := &mockEventRepo{
		createFunc: func(ctx context.Context, event *model.PassEvent) error {
			return errors.New("event store down")
		},
	}
	svc := newTestService(t, &mockPassRepo{}, events)

	if _, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		DurationMinutes: 10,
	}); err != nil {
		t.Fatalf("イベント記録の失敗は発行を失敗させないべき: %v", err)
	}
}

func TestIssue_TruncatesLongReason(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	issued, err := svc.Issue(context.Background(), IssueInput{
		StudentID:       "student-1",
		IssuedBy:        "teacher-1",
		Destination:     "Library",
		Reason:          strings.Repeat("あ", 300),
		DurationMinutes: 10,
	})
	if err != nil {
		t.Fatalf("Issue() がエラーを返した: %v", err)
	}
	if got := len([]rune(issued.Reason)); got != maxReasonLength {
		t.Errorf("理由の長さ = %d, want %d", got, maxReasonLength)
	}
}

// --- 返却のテスト ---

func TestReturn_Success(t *testing.T) {
	now := time.Date(2026, 4, 6, 10, 45, 0, 0, time.Local)
	current := &model.Pass{ID: "pass-1", StudentID: "student-1", IssuedBy: "teacher-1", Status: model.PassStatusActive}
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return current, nil
		},
		markReturnedFunc: func(ctx context.Context, id string, at time.Time) (*model.Pass, error) {
			returned := *current
			returned.Status = model.PassStatusReturned
			returned.ReturnedAt = &at
			return &returned, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})
	svc.now = func() time.Time { return now }

	returned, err := svc.Return(context.Background(), "pass-1", teacher("teacher-1"))
	if err != nil {
		t.Fatalf("Return() がエラーを返した: %v", err)
	}
	if returned.Status != model.PassStatusReturned {
		t.Errorf("status = %q, want %q", returned.Status, model.PassStatusReturned)
	}
	if returned.ReturnedAt == nil || !returned.ReturnedAt.Equal(now) {
		t.Errorf("ReturnedAt = %v, want %v", returned.ReturnedAt, now)
	}
}

func TestReturn_NotFound(t *testing.T) {
	svc := newTestService(t, &mockPassRepo{}, &mockEventRepo{})

	_, err := svc.Return(context.Background(), "missing", teacher("teacher-1"))
	assertErrorCode(t, err, model.ErrCodePassNotFound)
}

func TestReturn_AlreadyReturned(t *testing.T) {
	// 返却済みのパスへの再返却は冪等成功ではなくNotFound
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusReturned}, nil
		},
		markReturnedFunc: func(ctx context.Context, id string, now time.Time) (*model.Pass, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	_, err := svc.Return(context.Background(), "pass-1", teacher("teacher-1"))
	assertErrorCode(t, err, model.ErrCodePassNotFound)
}

func TestReturn_ForbiddenForOtherTeacher(t *testing.T) {
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusActive}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	_, err := svc.Return(context.Background(), "pass-1", teacher("teacher-2"))
	assertErrorCode(t, err, model.ErrCodeForbidden)
}

func TestReturn_AdminCanForceReturn(t *testing.T) {
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusOverdue}, nil
		},
		markReturnedFunc: func(ctx context.Context, id string, now time.Time) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusReturned, WasOverdue: true}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	returned, err := svc.Return(context.Background(), "pass-1", admin())
	if err != nil {
		t.Fatalf("管理者は任意のパスを強制返却できるべき: %v", err)
	}
	if !returned.WasOverdue {
		t.Error("overdueから返却されたパスはWasOverdueを保持するべき")
	}
}

func TestReturn_RecordsReturnedEvent(t *testing.T) {
	var recorded *model.PassEvent
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusActive}, nil
		},
		markReturnedFunc: func(ctx context.Context, id string, now time.Time) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1", Status: model.PassStatusReturned}, nil
		},
	}
	events := &mockEventRepo{
		createFunc: func(ctx context.Context, event *model.PassEvent) error {
			recorded = event
			return nil
		},
	}
	svc := newTestService(t, repo, events)

	if _, err := svc.Return(context.Background(), "pass-1", teacher("teacher-1")); err != nil {
		t.Fatalf("Return() がエラーを返した: %v", err)
	}
	if recorded == nil || recorded.Type != model.PassEventReturned {
		t.Error("返却イベントが記録されるべき")
	}
}

// --- 参照のテスト ---

func TestGet_TeacherCannotSeeOthersPass(t *testing.T) {
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1"}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	// 存在の露出を避けるためForbiddenではなくNotFound
	_, err := svc.Get(context.Background(), "pass-1", teacher("teacher-2"))
	assertErrorCode(t, err, model.ErrCodePassNotFound)
}

func TestGet_AdminCanSeeAnyPass(t *testing.T) {
	repo := &mockPassRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.Pass, error) {
			return &model.Pass{ID: id, IssuedBy: "teacher-1"}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	if _, err := svc.Get(context.Background(), "pass-1", admin()); err != nil {
		t.Fatalf("管理者は任意のパスを参照できるべき: %v", err)
	}
}

func TestList_TeacherScopedToOwnPasses(t *testing.T) {
	var gotFilter model.PassFilter
	repo := &mockPassRepo{
		listByFilterFunc: func(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	if _, err := svc.List(context.Background(), model.PassFilter{IssuedBy: "teacher-9"}, teacher("teacher-1")); err != nil {
		t.Fatalf("List() がエラーを返した: %v", err)
	}
	if gotFilter.IssuedBy != "teacher-1" {
		t.Errorf("教員のフィルタは自分のIDに固定されるべき, got %q", gotFilter.IssuedBy)
	}
}

func TestListOpen_TeacherUsesOpenOnlyFilter(t *testing.T) {
	var gotFilter model.PassFilter
	repo := &mockPassRepo{
		listByFilterFunc: func(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	if _, err := svc.ListOpen(context.Background(), teacher("teacher-1")); err != nil {
		t.Fatalf("ListOpen() がエラーを返した: %v", err)
	}
	if !gotFilter.OpenOnly {
		t.Error("教員のListOpenはOpenOnlyフィルタを使うべき")
	}
	if gotFilter.IssuedBy != "teacher-1" {
		t.Errorf("IssuedBy = %q, want teacher-1", gotFilter.IssuedBy)
	}
}

func TestListOpen_AdminUsesListOpen(t *testing.T) {
	called := false
	repo := &mockPassRepo{
		listOpenFunc: func(ctx context.Context) ([]*model.Pass, error) {
			called = true
			return []*model.Pass{{ID: "pass-1"}}, nil
		},
	}
	svc := newTestService(t, repo, &mockEventRepo{})

	passes, err := svc.ListOpen(context.Background(), admin())
	if err != nil {
		t.Fatalf("ListOpen() がエラーを返した: %v", err)
	}
	if !called {
		t.Error("管理者のListOpenは全校分を取得するべき")
	}
	if len(passes) != 1 {
		t.Errorf("件数 = %d, want 1", len(passes))
	}
}

func assertErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("エラーコード %q のエラーが返されるべき", wantCode)
	}
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("エラー型 = %T, want *model.APIError (%v)", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("エラーコード = %q, want %q", apiErr.Code, wantCode)
	}
}
