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
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Registration wizard
	SessionTTL        time.Duration
	SubmissionTimeout time.Duration
	LoginRedirectPath string

	// Session tokens issued by the login service
	TokenSigningSecret string
	TokenTTL           time.Duration
	RememberMeTokenTTL time.Duration
	// DemoFailureEmail forces a login failure for one address (test fixture; empty disables it)
	DemoFailureEmail string

	CORSAllowedOrigins []string
	LoginRatePerSecond float64
	LoginRateBurst     int

	// Outbox delivery
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	// Email delivery: "sendgrid", "ses" or "stub"
	EmailProvider         string
	SendGridAPIKey        string
	EmailFromAddress      string
	EmailFromName         string
	AccountEventsQueueURL string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionTTL:        getEnvAsDuration("REGISTRATION_SESSION_TTL", 2*time.Hour),
		SubmissionTimeout: getEnvAsDuration("SUBMISSION_TIMEOUT", 30*time.Second),
		LoginRedirectPath: getEnv("LOGIN_REDIRECT_PATH", "/login"),

		TokenSigningSecret: getEnv("TOKEN_SIGNING_SECRET", ""),
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", 12*time.Hour),
		RememberMeTokenTTL: getEnvAsDuration("REMEMBER_ME_TOKEN_TTL", 30*24*time.Hour),
		DemoFailureEmail:   strings.ToLower(strings.TrimSpace(getEnv("DEMO_FAILURE_EMAIL", ""))),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		LoginRatePerSecond: getEnvAsFloat("LOGIN_RATE_PER_SECOND", 1),
		LoginRateBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),

		EmailProvider:         strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:        getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "HealthFirst"),
		AccountEventsQueueURL: getEnv("ACCOUNT_EVENTS_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
