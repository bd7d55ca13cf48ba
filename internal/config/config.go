package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/api needs to wire the service.
type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret   string
	CORSOrigins []string

	PaymentBaseURL   string
	PaymentSecretKey string
	PaymentTimeout   time.Duration

	// BudgetTimezone decides which calendar month is "current" for budgets.
	BudgetTimezone *time.Location
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSslMode
}

// Load reads configs/.env when present, then the process environment.
func Load(envFile string) (Config, error) {
	// A missing file is fine; the environment may already be populated.
	_ = godotenv.Load(envFile)

	cfg := Config{
		Port:     getenv("PORT", "8080"),
		GinMode:  getenv("GIN_MODE", "debug"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "postgres"),
		DBSslMode:  getenv("DB_SSLMODE", "disable"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: splitCSV(getenv("CORS_ORIGINS", "http://localhost:5173")),

		PaymentBaseURL:   getenv("PAYMENT_BASE_URL", "https://api.tosspayments.com"),
		PaymentSecretKey: os.Getenv("PAYMENT_SECRET_KEY"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(getenv("REDIS_DB", "0")); err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.PaymentTimeout, err = time.ParseDuration(getenv("PAYMENT_TIMEOUT", "10s")); err != nil {
		return Config{}, fmt.Errorf("invalid PAYMENT_TIMEOUT: %w", err)
	}
	if cfg.BudgetTimezone, err = time.LoadLocation(getenv("BUDGET_TIMEZONE", "Asia/Seoul")); err != nil {
		return Config{}, fmt.Errorf("invalid BUDGET_TIMEZONE: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.GinMode == "release" {
			return Config{}, fmt.Errorf("JWT_SECRET is required in release mode")
		}
		cfg.JWTSecret = "default_super_secret_key" // development fallback only
	}
	if cfg.PaymentSecretKey == "" && cfg.GinMode == "release" {
		return Config{}, fmt.Errorf("PAYMENT_SECRET_KEY is required in release mode")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
