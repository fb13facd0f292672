package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	GinMode       string
	LogLevel      string
	DBUrl         string
	RunMigrations bool
	// Identity provider (Clerk-compatible backend API)
	ClerkAPIURL        string
	ClerkSecretKey     string
	ClerkJWKSURL       string
	ClerkWebhookSecret string
	IdPRateLimitRPS    float64
	// Role policy
	RolePolicyFile  string
	RolePolicyWatch bool
	// Billing
	StripeSecretKey string
	// Redis/Upstash, used for webhook delivery de-duplication
	UpstashRedisURL      string
	UpstashRedisPassword string
	WebhookDedupTTL      time.Duration
	// Analytics
	KafkaBrokers        []string
	KafkaAnalyticsTopic string
	// Raw event archive
	EventArchiveBucket string
	S3Region           string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	// Compensation and orphan cleanup
	OrphanSweepSchedule        string
	CompensationMaxAttempts    int
	CompensationInitialBackoff time.Duration
}

func LoadConfig() (*Config, error) {
	// .env is only present locally
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		GinMode:       getEnv("GIN_MODE", "release"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DBUrl:         getEnv("DATABASE_URL", ""),
		RunMigrations: getEnvBool("RUN_MIGRATIONS", true),
		// Trailing slash would produce //users paths
		ClerkAPIURL:        strings.TrimRight(getEnv("CLERK_API_URL", "https://api.clerk.com/v1"), "/"),
		ClerkSecretKey:     getEnv("CLERK_SECRET_KEY", ""),
		ClerkJWKSURL:       getEnv("CLERK_JWKS_URL", ""),
		ClerkWebhookSecret: getEnv("CLERK_WEBHOOK_SECRET", ""),
		IdPRateLimitRPS:    getEnvFloat("IDP_RATE_LIMIT_RPS", 10),
		RolePolicyFile:     getEnv("ROLE_POLICY_FILE", "config/role_policy.yaml"),
		RolePolicyWatch:    getEnvBool("ROLE_POLICY_WATCH", true),
		StripeSecretKey:    getEnv("STRIPE_SECRET_KEY", ""),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		WebhookDedupTTL:      getEnvDuration("WEBHOOK_DEDUP_TTL", 24*time.Hour),
		KafkaBrokers:         splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaAnalyticsTopic:  getEnv("KAFKA_ANALYTICS_TOPIC", "identity.analytics"),
		EventArchiveBucket:   getEnv("EVENT_ARCHIVE_BUCKET", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3AccessKeyID:        getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:    getEnv("S3_SECRET_ACCESS_KEY", ""),
		OrphanSweepSchedule:  getEnv("ORPHAN_SWEEP_SCHEDULE", "@every 15m"),
		// 3 attempts, 200ms, 400ms between them
		CompensationMaxAttempts:    getEnvInt("COMPENSATION_MAX_ATTEMPTS", 3),
		CompensationInitialBackoff: getEnvDuration("COMPENSATION_INITIAL_BACKOFF", 200*time.Millisecond),
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.ClerkWebhookSecret == "" {
		log.Println("WARNING: CLERK_WEBHOOK_SECRET not configured. Webhook deliveries will be rejected.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Webhook de-duplication relies on database idempotency only.")
	}
	if cfg.CompensationMaxAttempts < 1 {
		cfg.CompensationMaxAttempts = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool returns a boolean environment variable or fallback if not set/invalid
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings such as "250ms" or "24h"
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
