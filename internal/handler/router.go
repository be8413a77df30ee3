package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/passman/internal/middleware"
)

// Pinger はヘルスチェックで使用するDB疎通確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	StaffFinder       middleware.StaffFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.HTTPStatusRecorder

	// ヘルスチェック
	DB Pinger

	// サービス
	PassService  PassServiceInterface
	StatsService StatsServiceInterface
	EventLister  EventListerInterface
	Schedules    *ScheduleHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Recovery → Logging → Auth → RateLimit(General)
//
// ヘルスチェック（/health）は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	passHandler := NewPassHandler(deps.PassService)
	statsHandler := NewStatsHandler(deps.StatsService)
	eventHandler := NewEventHandler(deps.EventLister)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.DB))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.StaffFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// パス管理
		r.Route("/api/passes", func(r chi.Router) {
			// POST /api/passes - パス発行（発行専用レート制限を追加）
			r.With(deps.RateLimiter.IssueMiddleware()).Post("/", passHandler.IssuePass)

			r.Get("/", passHandler.ListPasses)
			r.Get("/open", passHandler.ListOpenPasses)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", passHandler.GetPass)
				r.Post("/return", passHandler.ReturnPass)
			})
		})

		// 統計
		r.Route("/api/stats", func(r chi.Router) {
			r.Get("/overview", statsHandler.GetOverview)
			r.Get("/teachers", statsHandler.GetTeacherStats)
		})

		// アクティビティフィード
		r.Get("/api/events", eventHandler.ListEvents)

		// 時間割
		r.Get("/api/schedule", deps.Schedules.GetSchedule)
	})

	return r
}

// NewHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
