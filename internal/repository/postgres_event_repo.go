package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/passman/internal/model"
)

// PostgresPassEventRepo はPostgreSQLを使用したアクティビティフィードリポジトリ。
type PostgresPassEventRepo struct {
	db *sql.DB
}

// NewPostgresPassEventRepo はPostgresPassEventRepoを生成する。
func NewPostgresPassEventRepo(db *sql.DB) *PostgresPassEventRepo {
	return &PostgresPassEventRepo{db: db}
}

// Create はイベントを記録する。
func (r *PostgresPassEventRepo) Create(ctx context.Context, event *model.PassEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pass_events (id, pass_id, student_id, issued_by, event_type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.PassID, event.StudentID, event.IssuedBy, event.Type, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は新しい順にイベント一覧を返す。
// issuedByが空の場合は全校分を対象とする。
func (r *PostgresPassEventRepo) ListRecent(ctx context.Context, issuedBy string, limit int) ([]*model.PassEvent, error) {
	query := `SELECT id, pass_id, student_id, issued_by, event_type, occurred_at
	          FROM pass_events`
	args := []any{}

	if issuedBy != "" {
		query += ` WHERE issued_by = $1`
		args = append(args, issuedBy)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []*model.PassEvent
	for rows.Next() {
		event := &model.PassEvent{}
		if err := rows.Scan(
			&event.ID, &event.PassID, &event.StudentID,
			&event.IssuedBy, &event.Type, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("イベントのスキャンに失敗しました: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベント一覧の読み取りに失敗しました: %w", err)
	}
	return events, nil
}
