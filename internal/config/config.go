package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT (관리용 API 인증)
	JWTSecret     string
	JWTExpiration time.Duration

	// Rate Limiting (지원 계정당)
	MaxDailyApplications  int
	MaxHourlyApplications int
	MinTimeBetweenApps    int // seconds
	BaseDelayMin          int // seconds
	BaseDelayMax          int // seconds
	HumanPatternVariance  float64

	// Stealth
	StealthLevel string // minimal, standard, maximum

	// Scaling (점진적 확장 주기)
	ScalingInterval time.Duration

	// Notifications
	SlackWebhookURL string

	// Account
	AccountID string
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		Env:                   getEnv("ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:             getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:         parseDuration(getEnv("JWT_EXPIRATION", "24h")),
		MaxDailyApplications:  getEnvInt("MAX_DAILY_APPLICATIONS", 30),
		MaxHourlyApplications: getEnvInt("MAX_HOURLY_APPLICATIONS", 5),
		MinTimeBetweenApps:    getEnvInt("MIN_TIME_BETWEEN_APPLICATIONS", 300),
		BaseDelayMin:          getEnvInt("BASE_DELAY_MIN", 60),
		BaseDelayMax:          getEnvInt("BASE_DELAY_MAX", 180),
		HumanPatternVariance:  getEnvFloat("HUMAN_PATTERN_VARIANCE", 0.3),
		StealthLevel:          getEnv("STEALTH_LEVEL", "standard"),
		ScalingInterval:       parseDuration(getEnv("SCALING_INTERVAL", "24h")),
		SlackWebhookURL:       getEnv("SLACK_WEBHOOK_URL", ""),
		AccountID:             getEnv("ACCOUNT_ID", "default"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
