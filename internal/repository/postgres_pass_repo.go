package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/passman/internal/model"
)

// passColumns はpassesテーブルのSELECT対象カラム。
const passColumns = `id, student_id, issued_by, destination, reason,
	        issued_at, expected_return_at, returned_at, period, status,
	        was_overdue, issued_by_scan, created_at, updated_at`

// PostgresPassRepo はPostgreSQLを使用したパスリポジトリ。
type PostgresPassRepo struct {
	db *sql.DB
}

// NewPostgresPassRepo はPostgresPassRepoを生成する。
func NewPostgresPassRepo(db *sql.DB) *PostgresPassRepo {
	return &PostgresPassRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPass は1行分のパスをスキャンする。
func scanPass(row rowScanner) (*model.Pass, error) {
	pass := &model.Pass{}
	var returnedAt sql.NullTime
	var period sql.NullInt64

	err := row.Scan(
		&pass.ID, &pass.StudentID, &pass.IssuedBy, &pass.Destination, &pass.Reason,
		&pass.IssuedAt, &pass.ExpectedReturnAt, &returnedAt, &period, &pass.Status,
		&pass.WasOverdue, &pass.IssuedByScan, &pass.CreatedAt, &pass.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if returnedAt.Valid {
		t := returnedAt.Time
		pass.ReturnedAt = &t
	}
	if period.Valid {
		p := int(period.Int64)
		pass.Period = &p
	}

	return pass, nil
}

// Create はパスを作成する。
// passes_one_open_per_student（部分一意インデックス）違反の場合はErrDuplicateOpenPassを返す。
func (r *PostgresPassRepo) Create(ctx context.Context, pass *model.Pass) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO passes (id, student_id, issued_by, destination, reason,
		                     issued_at, expected_return_at, returned_at, period, status,
		                     was_overdue, issued_by_scan, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pass.ID, pass.StudentID, pass.IssuedBy, pass.Destination, pass.Reason,
		pass.IssuedAt, pass.ExpectedReturnAt, nullTime(pass.ReturnedAt), nullInt(pass.Period),
		pass.Status, pass.WasOverdue, pass.IssuedByScan, pass.CreatedAt, pass.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "passes_one_open_per_student") {
			return ErrDuplicateOpenPass
		}
		return fmt.Errorf("パスの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのパスを取得する。見つからない場合はnilを返す。
func (r *PostgresPassRepo) FindByID(ctx context.Context, id string) (*model.Pass, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes WHERE id = $1`, id)

	pass, err := scanPass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("パスの取得に失敗しました: %w", err)
	}
	return pass, nil
}

// FindOpenByStudent は指定生徒の未返却パスを取得する。存在しない場合はnilを返す。
func (r *PostgresPassRepo) FindOpenByStudent(ctx context.Context, studentID string) (*model.Pass, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE student_id = $1 AND status IN ('active', 'overdue')`,
		studentID)

	pass, err := scanPass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("未返却パスの検索に失敗しました: %w", err)
	}
	return pass, nil
}

// MarkReturned はパスを返却済みに遷移させる。
// 条件付きUPDATEにより、未返却状態のパスのみが対象となる。
// 対象が存在しない場合はnilを返す（エラーにはしない）。
func (r *PostgresPassRepo) MarkReturned(ctx context.Context, id string, now time.Time) (*model.Pass, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE passes
		 SET status = 'returned', returned_at = $2, updated_at = $2
		 WHERE id = $1 AND status IN ('active', 'overdue')
		 RETURNING `+passColumns,
		id, now)

	pass, err := scanPass(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("パスの返却処理に失敗しました: %w", err)
	}
	return pass, nil
}

// MarkOverdue はパスを期限超過状態に遷移させる。
// status = 'active' の場合のみ適用する条件付きUPDATE。
// スナップショット取得後に返却されたパスには適用されず、falseを返す。
func (r *PostgresPassRepo) MarkOverdue(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE passes
		 SET status = 'overdue', was_overdue = TRUE, updated_at = $2
		 WHERE id = $1 AND status = 'active'`,
		id, now)
	if err != nil {
		return false, fmt.Errorf("期限超過への遷移に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// ListOpen は未返却のパス一覧をissued_at降順で返す。
func (r *PostgresPassRepo) ListOpen(ctx context.Context) ([]*model.Pass, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE status IN ('active', 'overdue')
		 ORDER BY issued_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("未返却パス一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPasses(rows)
}

// ListDueForOverdue は期限超過遷移の対象パスを取得する。
// FOR UPDATE SKIP LOCKEDにより、複数ワーカーが同時にスイープしても
// 同じパスを二重に処理しない。
func (r *PostgresPassRepo) ListDueForOverdue(ctx context.Context, now time.Time) ([]*model.Pass, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+passColumns+` FROM passes
		 WHERE status = 'active' AND expected_return_at <= $1
		 ORDER BY expected_return_at ASC
		 FOR UPDATE SKIP LOCKED`,
		now)
	if err != nil {
		return nil, fmt.Errorf("期限超過対象パスの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPasses(rows)
}

// ListByFilter は条件に一致するパス一覧をissued_at降順で返す。
// フィルタのゼロ値フィールドは条件に含めない。
func (r *PostgresPassRepo) ListByFilter(ctx context.Context, filter model.PassFilter) ([]*model.Pass, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if filter.StudentID != "" {
		add("student_id = ?", filter.StudentID)
	}
	if filter.IssuedBy != "" {
		add("issued_by = ?", filter.IssuedBy)
	}
	if filter.Period != nil {
		add("period = ?", *filter.Period)
	}
	if filter.OpenOnly {
		conds = append(conds, "status IN ('active', 'overdue')")
	} else if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("issued_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		add("issued_at < ?", filter.To)
	}

	query := `SELECT ` + passColumns + ` FROM passes`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY issued_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("パス一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPasses(rows)
}

// DeleteReturnedBefore は保持期間を超過した返却済みパスを削除する。
func (r *PostgresPassRepo) DeleteReturnedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM passes WHERE status = 'returned' AND issued_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("返却済みパスの削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// collectPasses はrowsからパスのスライスを組み立てる。
func collectPasses(rows *sql.Rows) ([]*model.Pass, error) {
	var passes []*model.Pass
	for rows.Next() {
		pass, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("パスのスキャンに失敗しました: %w", err)
		}
		passes = append(passes, pass)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("パス一覧の読み取りに失敗しました: %w", err)
	}
	return passes, nil
}

// isUniqueViolation はpqの一意制約違反エラーかどうかを判定する。
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	// 23505 = unique_violation
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullInt は*intをsql.NullInt64に変換する。
func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
