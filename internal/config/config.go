package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEvictedContestants is the eviction list used when EVICTED_CONTESTANTS is unset
var DefaultEvictedContestants = []string{
	"CNT-003", "CNT-004", "CNT-005", "CNT-006", "CNT-007",
	"CNT-011", "CNT-013", "CNT-016", "CNT-017", "CNT-021",
	"CNT-022", "CNT-023", "CNT-024", "CNT-025", "CNT-027",
	"CNT-028", "CNT-038", "CNT-039", "CNT-040", "CNT-041",
	"CNT-044",
}

// Config holds the application configuration
type Config struct {
	ServerPort  int
	DatabaseURL string
	JWTSecret   string
	AdminUser   string
	AdminPass   string

	// Payment provider
	CredoPublicKey        string
	CredoBaseURL          string // overrides the environment default when set
	EnvironmentProduction bool
	PublicBaseURL         string
	RegistrationNumber    string

	// Platform backend
	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// Voting
	EvictedContestants []string
	VotingCutoff       time.Time // zero means voting never closes

	// Housekeeping
	SessionTTL       time.Duration
	SweepSchedule    string
	AttemptRetention time.Duration

	// Optional infrastructure
	RedisAddr        string
	RabbitMQURL      string
	RabbitMQExchange string

	// Notifications
	SMTPHost                string
	SMTPPort                int
	SMTPUser                string
	SMTPPass                string
	SMTPFrom                string
	WAProviderURL           string
	WAApiKey                string
	FirebaseCredentialsFile string
	FCMOpsToken             string
	TelegramToken           string
	TelegramChatID          string

	AllowedOrigins []string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		jwtSecret = generateRandomSecret(32)
		fmt.Println("⚠️  WARNING: JWT_SECRET not set, generated a random secret for this run")
		fmt.Println("   Please set JWT_SECRET environment variable for production use!")
	}

	return &Config{
		ServerPort:  getEnvAsInt("SERVER_PORT", 8080),
		DatabaseURL: getEnv("DATABASE_URL", "./data/ticketvote.db"),
		JWTSecret:   jwtSecret,
		AdminUser:   getEnv("ADMIN_USER", "admin"),
		AdminPass:   getEnv("ADMIN_PASS", "admin123"),

		CredoPublicKey:        getEnv("CREDO_PUBLIC_KEY", ""),
		CredoBaseURL:          getEnv("CREDO_BASE_URL", ""),
		EnvironmentProduction: getEnvAsBool("ENVIRONMENT_PRODUCTION", false),
		PublicBaseURL:         strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		RegistrationNumber:    getEnv("REGISTRATION_NUMBER", ""),

		BackendURL:     strings.TrimSuffix(getEnv("BACKEND_URL", "http://localhost:3000/api"), "/"),
		BackendAPIKey:  getEnv("BACKEND_API_KEY", ""),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 30*time.Second),

		EvictedContestants: getEnvAsList("EVICTED_CONTESTANTS", DefaultEvictedContestants),
		VotingCutoff:       getEnvAsTime("VOTING_CUTOFF", time.Time{}),

		SessionTTL:       getEnvAsDuration("SESSION_TTL", 30*time.Minute),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@every 1m"),
		AttemptRetention: getEnvAsDuration("ATTEMPT_RETENTION", 90*24*time.Hour),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange: getEnv("RABBITMQ_EXCHANGE", "payments"),

		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:                getEnv("SMTP_USER", ""),
		SMTPPass:                getEnv("SMTP_PASS", ""),
		SMTPFrom:                getEnv("SMTP_FROM", "noreply@ticketvote.local"),
		WAProviderURL:           getEnv("WA_PROVIDER_URL", "https://api.fonnte.com/send"),
		WAApiKey:                getEnv("WA_API_KEY", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		FCMOpsToken:             getEnv("FCM_OPS_TOKEN", ""),
		TelegramToken:           getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID:          getEnv("TELEGRAM_CHAT_ID", ""),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:4200", "http://localhost:8080"}),
	}
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// generateRandomSecret generates a cryptographically secure random string
func generateRandomSecret(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-secret-%d", time.Now().UnixNano())
	}
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch value {
		case "1", "t", "T", "true", "TRUE", "True", "yes", "YES":
			return true
		case "0", "f", "F", "false", "FALSE", "False", "no", "NO":
			return false
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsTime accepts RFC 3339 or a local "2006-01-02T15:04:05" timestamp
func getEnvAsTime(key string, defaultValue time.Time) time.Time {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local); err == nil {
		return t
	}
	return defaultValue
}
