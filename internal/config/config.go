package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Store
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Attendance
	EventDuration       time.Duration
	GracePeriod         time.Duration
	RequireSessionToken bool
	EventCloserInterval time.Duration
	ScanRateLimit       int

	// Camera
	CameraAttachMaxAttempts int
	CameraAttachBaseDelay   time.Duration
	CameraAttachMaxDelay    time.Duration
	CameraFrameInterval     time.Duration

	// Receipts
	ReceiptWorkers int

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		StoreDriver: getEnvOrDefault("STORE_DRIVER", "postgres"),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "./attendance.db"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		EventDuration:       time.Duration(getEnvAsIntOrDefault("EVENT_DURATION_MINUTES", 120)) * time.Minute,
		GracePeriod:         time.Duration(getEnvAsIntOrDefault("GRACE_PERIOD_MINUTES", 60)) * time.Minute,
		RequireSessionToken: getEnvAsBoolOrDefault("REQUIRE_SESSION_TOKEN", false),
		EventCloserInterval: time.Duration(getEnvAsIntOrDefault("EVENT_CLOSER_INTERVAL_SECONDS", 60)) * time.Second,
		ScanRateLimit:       getEnvAsIntOrDefault("SCAN_RATE_LIMIT_PER_MINUTE", 30),

		CameraAttachMaxAttempts: getEnvAsIntOrDefault("CAMERA_ATTACH_MAX_ATTEMPTS", 8),
		CameraAttachBaseDelay:   time.Duration(getEnvAsIntOrDefault("CAMERA_ATTACH_BASE_DELAY_MS", 100)) * time.Millisecond,
		CameraAttachMaxDelay:    time.Duration(getEnvAsIntOrDefault("CAMERA_ATTACH_MAX_DELAY_MS", 2000)) * time.Millisecond,
		CameraFrameInterval:     time.Duration(getEnvAsIntOrDefault("CAMERA_FRAME_INTERVAL_MS", 100)) * time.Millisecond,

		ReceiptWorkers: getEnvAsIntOrDefault("RECEIPT_WORKERS", 2),

		SMTPHost:    getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:    getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:    getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:    getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:    getEnvOrDefault("SMTP_FROM", "noreply@attendance.local"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	switch cfg.StoreDriver {
	case "postgres":
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	case "sqlite":
	default:
		panic(fmt.Sprintf("unknown STORE_DRIVER %q (want postgres or sqlite)", cfg.StoreDriver))
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
