package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	AnalysisSchedule string // "daily" or "weekly"
	TimeZone         string

	// Record store
	DataDir string

	// Snapshot storage: "memory", "file" or "azure"
	StorageBackend   string
	StorageAccount   string
	StorageContainer string

	// AI provider
	AIProvider      string // "openai" or "anthropic"
	AIModel         string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	EvaluatorModel  string // defaults to AIModel

	// Prompt runner limits
	MaxConcurrency int
	ProviderRPS    float64
	CallTimeout    time.Duration
	BatchTimeout   time.Duration

	// Per-brand snapshot lock
	LockTimeout time.Duration
	LockRetries int

	// Page fetching
	FetchTimeout time.Duration
	UserAgent    string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Debug:            getBoolEnv("DEBUG", false),
		AnalysisSchedule: getEnv("ANALYSIS_SCHEDULE", "daily"),
		TimeZone:         getEnv("TIMEZONE", "UTC"),

		DataDir: getEnv("DATA_DIR", "./data"),

		StorageBackend:   getEnv("STORAGE_BACKEND", "file"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "sov-snapshots"),

		AIProvider:      strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		AIModel:         getEnv("AI_MODEL", "gpt-4.1"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		EvaluatorModel:  getEnv("EVALUATOR_MODEL", ""),

		MaxConcurrency: getIntEnv("MAX_CONCURRENCY", 5),
		ProviderRPS:    getFloatEnv("PROVIDER_RPS", 0),
		CallTimeout:    getDurationEnv("CALL_TIMEOUT", 60*time.Second),
		BatchTimeout:   getDurationEnv("BATCH_TIMEOUT", 10*time.Minute),

		LockTimeout: getDurationEnv("LOCK_TIMEOUT", 5*time.Second),
		LockRetries: getIntEnv("LOCK_RETRIES", 3),

		FetchTimeout: getDurationEnv("FETCH_TIMEOUT", 30*time.Second),
		UserAgent:    getEnv("USER_AGENT", "Brand-Visibility-Bot/1.0"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AnalysisSchedule != "daily" && c.AnalysisSchedule != "weekly" {
		return fmt.Errorf("ANALYSIS_SCHEDULE must be 'daily' or 'weekly'")
	}

	switch c.StorageBackend {
	case "memory", "file":
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory', 'file' or 'azure'")
	}

	switch c.AIProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is 'openai'")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be 'openai' or 'anthropic'")
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1")
	}

	if c.CallTimeout <= 0 || c.BatchTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT and BATCH_TIMEOUT must be positive")
	}

	if c.LockTimeout <= 0 || c.LockRetries < 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive and LOCK_RETRIES non-negative")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// NotificationsEnabled reports whether any report channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
