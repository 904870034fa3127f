package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Engine tuning
	ScanInterval          time.Duration
	ScanLockTTL           time.Duration
	CriticalRatingMax     int
	RepeatIncidentMinOpen int
	StatsWindow           time.Duration

	// Operator API auth
	AdminJWTSecret string
	HookToken      string

	// Email notification configuration
	EmailProvider     string // "sendgrid", "ses" or "stub"
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	AWSRegion         string

	// Queue channel for the downstream notification subsystem
	EscalationQueueURL string

	// Outbox deliverer tuning
	OutboxInterval  time.Duration
	OutboxBatchSize int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ScanInterval:          getEnvAsDuration("SCAN_INTERVAL", 2*time.Minute),
		ScanLockTTL:           getEnvAsDuration("SCAN_LOCK_TTL", 5*time.Minute),
		CriticalRatingMax:     getEnvAsInt("CRITICAL_RATING_MAX", 1),
		RepeatIncidentMinOpen: getEnvAsInt("REPEAT_INCIDENT_MIN_OPEN", 3),
		StatsWindow:           getEnvAsDuration("STATS_WINDOW", 7*24*time.Hour),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		HookToken:      getEnv("HOOK_TOKEN", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Voxloop Feedback"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Voxloop Feedback"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),

		EscalationQueueURL: getEnv("ESCALATION_QUEUE_URL", ""),

		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
	}
}

// IsProduction returns true when running in the production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}
