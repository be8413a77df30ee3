package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Pass
	AllowedDestinations []string
	MaxDurationMinutes  int

	// Schedule
	SchedulesFile string

	// Sweep
	SweepInterval      time.Duration
	SweepMaxConcurrent int

	// Notify
	OverdueWebhookURL string
	NotifyTimeout     time.Duration

	// Retention
	RetentionDays int

	// Rate Limit
	RateLimitGeneral int
	RateLimitIssue   int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// defaultDestinations は行き先許可リストの既定値。
// ALLOWED_DESTINATIONSが未設定の場合に使用する。
var defaultDestinations = []string{
	"Library", "Bathroom", "Nurse", "Office",
	"Counselor", "Cafeteria", "Gym", "Auditorium",
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AllowedDestinations = getEnvList("ALLOWED_DESTINATIONS", defaultDestinations)
	cfg.MaxDurationMinutes = getEnvInt("MAX_PASS_DURATION_MINUTES", 60)
	cfg.SchedulesFile = getEnvString("SCHEDULES_FILE", "")
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	cfg.SweepMaxConcurrent = getEnvInt("SWEEP_MAX_CONCURRENT", 10)
	cfg.OverdueWebhookURL = getEnvString("OVERDUE_WEBHOOK_URL", "")
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 180)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIssue = getEnvInt("RATE_LIMIT_ISSUE", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数をスライスとして読み込む。
// 空要素は除外し、前後の空白は取り除く。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
