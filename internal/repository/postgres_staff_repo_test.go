package repository

import (
	"testing"

	"github.com/hitoshi/passman/internal/model"
)

// TestPostgresStaffRepo_ImplementsInterface はPostgresStaffRepoがStaffRepositoryを実装することを検証する。
func TestPostgresStaffRepo_ImplementsInterface(t *testing.T) {
	// コンパイル時チェック：PostgresStaffRepoがStaffRepositoryを満たすことを検証
	var _ StaffRepository = (*PostgresStaffRepo)(nil)
}

// NewPostgresStaffRepoが正しく初期化されることを検証
func TestNewPostgresStaffRepo_Initializes(t *testing.T) {
	repo := NewPostgresStaffRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Staffモデルの権限区分が正しく判定されることを検証
func TestPostgresStaffRepo_StaffModel_Roles(t *testing.T) {
	teacher := &model.Staff{ID: "t-1", Role: model.StaffRoleTeacher}
	admin := &model.Staff{ID: "a-1", Role: model.StaffRoleAdmin}

	if teacher.Role.CanViewSchoolWide() {
		t.Error("教員が全校閲覧権限を持っている")
	}
	if !admin.Role.CanViewSchoolWide() {
		t.Error("管理者が全校閲覧権限を持っていない")
	}
}
