package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	IssueRate       rate.Limit    // パス発行のレート（req/sec）。30/60
	IssueBurst      int           // パス発行のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/staff、パス発行 30 req/min/staff。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		IssueRate:       rate.Limit(30.0 / 60.0), // 0.5 req/sec
		IssueBurst:      30,
		CleanupInterval: 5 * time.Minute,
	}
}

// staffLimiter はスタッフごとのレートリミッターとアクセス時刻を保持する。
type staffLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はスタッフごとのレート制限を管理する。
// API全般のレート制限とパス発行のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*staffLimiter

	issueMu       sync.RWMutex
	issueLimiters map[string]*staffLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*staffLimiter),
		issueLimiters:   make(map[string]*staffLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにスタッフが含まれている必要がある（AuthMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staff, err := StaffFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(staff.ID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("staff_id", staff.ID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IssueMiddleware はパス発行専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) IssueMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staff, err := StaffFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateIssueLimiter(staff.ID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.IssueRate)
				slog.Warn("rate limit exceeded",
					slog.String("staff_id", staff.ID),
					slog.String("limit_type", "issue"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// IssueLimiterCount は現在管理されているパス発行リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) IssueLimiterCount() int {
	rl.issueMu.RLock()
	defer rl.issueMu.RUnlock()
	return len(rl.issueLimiters)
}

// getOrCreateGeneralLimiter はスタッフのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(staffID string) *rate.Limiter {
	rl.generalMu.RLock()
	sl, exists := rl.generalLimiters[staffID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		sl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return sl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if sl, exists := rl.generalLimiters[staffID]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[staffID] = &staffLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateIssueLimiter はスタッフのパス発行リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateIssueLimiter(staffID string) *rate.Limiter {
	rl.issueMu.RLock()
	sl, exists := rl.issueLimiters[staffID]
	rl.issueMu.RUnlock()

	if exists {
		rl.issueMu.Lock()
		sl.lastAccess = time.Now()
		rl.issueMu.Unlock()
		return sl.limiter
	}

	rl.issueMu.Lock()
	defer rl.issueMu.Unlock()

	// ダブルチェック
	if sl, exists := rl.issueLimiters[staffID]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	limiter := rate.NewLimiter(rl.config.IssueRate, rl.config.IssueBurst)
	rl.issueLimiters[staffID] = &staffLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for staffID, sl := range rl.generalLimiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(rl.generalLimiters, staffID)
		}
	}
	rl.generalMu.Unlock()

	rl.issueMu.Lock()
	for staffID, sl := range rl.issueLimiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(rl.issueLimiters, staffID)
		}
	}
	rl.issueMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
