package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/passman/internal/model"
)

// PostgresStaffRepo はPostgreSQLを使用したスタッフリポジトリ。
type PostgresStaffRepo struct {
	db *sql.DB
}

// NewPostgresStaffRepo はPostgresStaffRepoを生成する。
func NewPostgresStaffRepo(db *sql.DB) *PostgresStaffRepo {
	return &PostgresStaffRepo{db: db}
}

// FindByAPIToken はAPIトークンでスタッフを検索する。見つからない場合はnilを返す。
func (r *PostgresStaffRepo) FindByAPIToken(ctx context.Context, token string) (*model.Staff, error) {
	staff := &model.Staff{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, api_token, created_at
		 FROM staff WHERE api_token = $1`,
		token,
	).Scan(&staff.ID, &staff.Name, &staff.Role, &staff.APIToken, &staff.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スタッフの検索に失敗しました: %w", err)
	}
	return staff, nil
}

// FindByID は指定IDのスタッフを取得する。見つからない場合はnilを返す。
func (r *PostgresStaffRepo) FindByID(ctx context.Context, id string) (*model.Staff, error) {
	staff := &model.Staff{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, api_token, created_at
		 FROM staff WHERE id = $1`,
		id,
	).Scan(&staff.ID, &staff.Name, &staff.Role, &staff.APIToken, &staff.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スタッフの取得に失敗しました: %w", err)
	}
	return staff, nil
}

// ListAll は全スタッフの一覧を返す。
func (r *PostgresStaffRepo) ListAll(ctx context.Context) ([]*model.Staff, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, role, api_token, created_at FROM staff ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("スタッフ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var staffList []*model.Staff
	for rows.Next() {
		staff := &model.Staff{}
		if err := rows.Scan(
			&staff.ID, &staff.Name, &staff.Role, &staff.APIToken, &staff.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("スタッフのスキャンに失敗しました: %w", err)
		}
		staffList = append(staffList, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スタッフ一覧の読み取りに失敗しました: %w", err)
	}
	return staffList, nil
}
