package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort   string
	AppBaseURL   string
	Timezone     string
	LogLevel     string
	LogFormat    string
	DatabaseType string
	DatabasePath string
	DatabaseURL  string

	JWTSecret       string
	CSRFSecret      string
	SessionDuration time.Duration
	CronSecret      string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustProxy        bool

	AWSRegion    string
	SESFromEmail string
	SESFromName  string
	EmailDebug   bool

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleClientID       string
	GoogleClientSecret   string
	OAuthRedirectBaseURL string

	AggregatorBaseURL      string
	AggregatorTokenURL     string
	AggregatorClientID     string
	AggregatorClientSecret string

	ReminderBatchSize int
	EmailBatchSize    int
	EmailMaxAttempts  int
	InvitationTTL     time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("PORT", "8080"),
		AppBaseURL:   getEnv("APP_BASE_URL", "http://localhost:8080"),
		Timezone:     getEnv("TIMEZONE", "Local"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		DatabaseType: getEnv("DB_TYPE", "sqlite"),
		DatabasePath: getEnv("DB_PATH", "./famfinance.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		CSRFSecret:      getEnv("CSRF_SECRET", ""),
		SessionDuration: getEnvDuration("SESSION_DURATION", 24*time.Hour),
		CronSecret:      getEnv("CRON_SECRET", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		TrustProxy:        getEnvBool("TRUST_PROXY", false),

		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "Family Finance"),
		EmailDebug:   getEnvBool("EMAIL_DEBUG", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "famfinance"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "email_jobs"),

		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL: getEnv("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080"),

		AggregatorBaseURL:      getEnv("AGGREGATOR_BASE_URL", ""),
		AggregatorTokenURL:     getEnv("AGGREGATOR_TOKEN_URL", ""),
		AggregatorClientID:     getEnv("AGGREGATOR_CLIENT_ID", ""),
		AggregatorClientSecret: getEnv("AGGREGATOR_CLIENT_SECRET", ""),

		ReminderBatchSize: getEnvInt("REMINDER_BATCH_SIZE", 50),
		EmailBatchSize:    getEnvInt("EMAIL_BATCH_SIZE", 20),
		EmailMaxAttempts:  getEnvInt("EMAIL_MAX_ATTEMPTS", 3),
		InvitationTTL:     getEnvDuration("INVITATION_TTL", 7*24*time.Hour),
	}
}

// Validate checks the configuration for values the server cannot start with
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil {
		return fmt.Errorf("invalid port '%s': must be a number", c.ServerPort)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", port)
	}

	switch strings.ToLower(c.DatabaseType) {
	case "sqlite", "sqlite3", "":
		if c.DatabasePath == "" {
			return fmt.Errorf("database path cannot be empty when using sqlite")
		}
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when using %s", c.DatabaseType)
		}
	default:
		return fmt.Errorf("invalid database type '%s': must be one of [sqlite postgres mysql]", c.DatabaseType)
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}

	if c.AMQPURL != "" {
		u, err := url.Parse(c.AMQPURL)
		if err != nil {
			return fmt.Errorf("invalid AMQP URL: %w", err)
		}
		if u.Scheme != "amqp" && u.Scheme != "amqps" {
			return fmt.Errorf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme)
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP exchange and queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.ReminderBatchSize < 1 || c.ReminderBatchSize > 1000 {
		return fmt.Errorf("invalid reminder batch size %d: must be between 1 and 1000", c.ReminderBatchSize)
	}
	if c.EmailBatchSize < 1 || c.EmailBatchSize > 1000 {
		return fmt.Errorf("invalid email batch size %d: must be between 1 and 1000", c.EmailBatchSize)
	}
	if c.EmailMaxAttempts < 1 {
		return fmt.Errorf("invalid email max attempts %d: must be at least 1", c.EmailMaxAttempts)
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	return nil
}

// Location returns the time zone used for calendar calculations such as budget periods
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// CSRFKey returns the CSRF signing key, falling back to the JWT secret
func (c *Config) CSRFKey() string {
	if c.CSRFSecret != "" {
		return c.CSRFSecret
	}
	return c.JWTSecret
}

// getEnv reads an environment variable or returns a default value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
