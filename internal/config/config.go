package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port   string
	AppURL string

	// DOKU gateway
	DokuClientID       string
	DokuSecretKey      string
	DokuBaseURL        string
	DokuTimeoutSeconds int

	// Payment policy
	PaymentExpiryHours    int
	PaymentSinglePending  bool
	PaymentVerifyCallback bool
	SweepIntervalMinutes  int

	// Mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/gamevault?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:   getEnv("APP_PORT", "8080"),
		AppURL: getEnv("APP_URL", "http://localhost:8080"),

		// DOKU gateway (sandbox by default)
		DokuClientID:       getEnv("DOKU_CLIENT_ID", ""),
		DokuSecretKey:      getEnv("DOKU_SECRET_KEY", ""),
		DokuBaseURL:        getEnv("DOKU_BASE_URL", "https://api-sandbox.doku.com"),
		DokuTimeoutSeconds: getEnvInt("DOKU_TIMEOUT_SECONDS", 15),

		// Payment policy
		PaymentExpiryHours:    getEnvInt("PAYMENT_EXPIRY_HOURS", 24),
		PaymentSinglePending:  getEnvBool("PAYMENT_SINGLE_PENDING", false),
		PaymentVerifyCallback: getEnvBool("PAYMENT_VERIFY_CALLBACK", getEnv("APP_ENV", "development") == "production"),
		SweepIntervalMinutes:  getEnvInt("SWEEP_INTERVAL_MINUTES", 10),

		// Mail
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		EmailFrom:    getEnv("EMAIL_FROM", "noreply@gamevault.id"),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
