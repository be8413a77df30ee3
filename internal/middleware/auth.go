// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/passman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// staffContextKey はリクエストコンテキストに認証済みスタッフを格納するためのキー。
var staffContextKey = contextKey("staff")

// StaffFinder はAPIトークンからスタッフを検索するインターフェース。
// repository.StaffRepositoryの部分集合として定義する。
type StaffFinder interface {
	FindByAPIToken(ctx context.Context, token string) (*model.Staff, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みスタッフをリクエストコンテキストに注入するミドルウェアを返す。
// 生徒の本人確認は外部のIDプロバイダの責務であり、
// このミドルウェアはスタッフ（教員/管理者）の認証のみを扱う。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAuthMiddleware(staffFinder StaffFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. AuthorizationヘッダーからBearerトークンを取得
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 2. トークンの有効性を検証
			staff, err := staffFinder.FindByAPIToken(r.Context(), token)
			if err != nil {
				slog.Error("failed to find staff",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if staff == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 3. 認証済みスタッフをコンテキストに注入
			ctx := context.WithValue(r.Context(), staffContextKey, staff)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない、またはBearerスキームでない場合は空文字列を返す。
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// StaffFromContext はリクエストコンテキストから認証済みスタッフを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func StaffFromContext(ctx context.Context) (*model.Staff, error) {
	staff, ok := ctx.Value(staffContextKey).(*model.Staff)
	if !ok || staff == nil {
		return nil, fmt.Errorf("staff not found in context")
	}
	return staff, nil
}

// ContextWithStaff はコンテキストにスタッフを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithStaff(ctx context.Context, staff *model.Staff) context.Context {
	return context.WithValue(ctx, staffContextKey, staff)
}
