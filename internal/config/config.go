package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported LLM providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Slack added to the LLM timeout for batch and HTTP write deadlines.
// writeGrace must exceed batchGrace.
const (
	batchGrace = 15 * time.Second
	writeGrace = 30 * time.Second
)

// Supported cache types
const (
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config holds all configuration for the application
type Config struct {
	// Server settings
	Port string `json:"port" yaml:"port"`
	Host string `json:"host" yaml:"host"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`

	// Dataset settings
	DatasetPath        string `json:"dataset_path" yaml:"dataset_path"` // local file or gs://bucket/object
	GCSCredentialsFile string `json:"-" yaml:"gcs_credentials_file"`

	// LLM settings
	LLMProvider       string `json:"llm_provider" yaml:"llm_provider"`
	LLMModel          string `json:"llm_model" yaml:"llm_model"`
	LLMTimeoutSeconds int    `json:"llm_timeout_seconds" yaml:"llm_timeout_seconds"`
	OpenAIAPIKey      string `json:"-" yaml:"openai_api_key"` // Don't expose in JSON
	OpenAIBaseURL     string `json:"openai_base_url" yaml:"openai_base_url"`
	AnthropicAPIKey   string `json:"-" yaml:"anthropic_api_key"`
	GeminiAPIKey      string `json:"-" yaml:"gemini_api_key"`

	// Cache settings; duration is in minutes, cleanup schedule is a cron spec
	CacheType            string `json:"cache_type" yaml:"cache_type"`
	CacheDuration        int    `json:"cache_duration" yaml:"cache_duration"`
	CacheCleanupSchedule string `json:"cache_cleanup_schedule" yaml:"cache_cleanup_schedule"`

	// Rate limiting
	MaxConcurrentRequests int `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`

	// Slack alert settings
	SlackBotToken      string  `json:"-" yaml:"slack_bot_token"`
	SlackChannel       string  `json:"slack_channel" yaml:"slack_channel"`
	RiskAlertThreshold float64 `json:"risk_alert_threshold" yaml:"risk_alert_threshold"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"` // "text" or "json"
}

// Load reads configuration from an optional YAML file, the .env file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &Config{}
	if err := config.loadYAML(getEnvOrDefault("CONFIG_PATH", "config.yaml")); err != nil {
		return nil, err
	}

	config.Port = getEnvOrDefault("PORT", orDefault(config.Port, "8080"))
	config.Host = getEnvOrDefault("HOST", orDefault(config.Host, "0.0.0.0"))
	if origins := parseStringSlice(os.Getenv("CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		config.CORSAllowedOrigins = origins
	}
	if len(config.CORSAllowedOrigins) == 0 {
		config.CORSAllowedOrigins = []string{"*"}
	}
	config.DatasetPath = getEnvOrDefault("DATASET_PATH", orDefault(config.DatasetPath, "data/sample_data.csv"))
	config.GCSCredentialsFile = getEnvOrDefault("GCS_CREDENTIALS_FILE", config.GCSCredentialsFile)
	config.LLMProvider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", orDefault(config.LLMProvider, ProviderOpenAI)))
	config.LLMModel = getEnvOrDefault("LLM_MODEL", config.LLMModel)
	if config.LLMModel == "" && config.LLMProvider == ProviderOpenAI {
		config.LLMModel = os.Getenv("OPENAI_MODEL")
	}
	config.LLMTimeoutSeconds = getEnvOrDefaultInt("LLM_TIMEOUT_SECONDS", orDefaultInt(config.LLMTimeoutSeconds, 60))
	config.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", config.OpenAIAPIKey)
	config.OpenAIBaseURL = getEnvOrDefault("OPENAI_BASE_URL", orDefault(config.OpenAIBaseURL, "https://api.openai.com/v1"))
	config.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", config.AnthropicAPIKey)
	config.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", config.GeminiAPIKey)
	config.CacheType = getEnvOrDefault("CACHE_TYPE", orDefault(config.CacheType, CacheMemory))
	config.CacheDuration = getEnvOrDefaultInt("CACHE_DURATION_MINUTES", orDefaultInt(config.CacheDuration, 60))
	config.CacheCleanupSchedule = getEnvOrDefault("CACHE_CLEANUP_SCHEDULE", orDefault(config.CacheCleanupSchedule, "@every 10m"))
	config.MaxConcurrentRequests = getEnvOrDefaultInt("MAX_CONCURRENT_REQUESTS", orDefaultInt(config.MaxConcurrentRequests, 5))
	config.SlackBotToken = getEnvOrDefault("SLACK_BOT_TOKEN", config.SlackBotToken)
	config.SlackChannel = getEnvOrDefault("SLACK_CHANNEL", orDefault(config.SlackChannel, "#vehicle-risk"))
	config.RiskAlertThreshold = getEnvOrDefaultFloat("RISK_ALERT_THRESHOLD", orDefaultFloat(config.RiskAlertThreshold, 8.0))
	config.LogLevel = getEnvOrDefault("LOG_LEVEL", orDefault(config.LogLevel, "info"))
	config.LogFormat = getEnvOrDefault("LOG_FORMAT", orDefault(config.LogFormat, "text"))

	return config, config.validate()
}

// loadYAML fills c from a YAML file. A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return &ConfigError{Field: "CONFIG_PATH", Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	return nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return &ConfigError{Field: "LLM_PROVIDER", Message: fmt.Sprintf("must be openai, anthropic or gemini, got %q", c.LLMProvider)}
	}
	if strings.TrimSpace(c.DatasetPath) == "" {
		return &ConfigError{Field: "DATASET_PATH", Message: "dataset path is required"}
	}
	switch c.CacheType {
	case CacheMemory, CacheNone:
	default:
		return &ConfigError{Field: "CACHE_TYPE", Message: fmt.Sprintf("unsupported cache type %q", c.CacheType)}
	}
	if c.MaxConcurrentRequests < 1 {
		return &ConfigError{Field: "MAX_CONCURRENT_REQUESTS", Message: "must be >= 1"}
	}
	if c.LLMTimeoutSeconds < 1 {
		return &ConfigError{Field: "LLM_TIMEOUT_SECONDS", Message: "must be >= 1"}
	}
	if c.RiskAlertThreshold < 1 || c.RiskAlertThreshold > 10 {
		return &ConfigError{Field: "RISK_ALERT_THRESHOLD", Message: "must be between 1 and 10"}
	}
	return nil
}

// LLMAPIKey returns the credential of the configured provider.
// An empty key means summaries use the deterministic path only.
func (c *Config) LLMAPIKey() string {
	switch c.LLMProvider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// LLMTimeout bounds a single completer call.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

// BatchTimeout bounds a whole batch. VINs still waiting when it passes are
// answered with deterministic summaries.
func (c *Config) BatchTimeout() time.Duration {
	return c.LLMTimeout() + batchGrace
}

// WriteTimeout is the HTTP write deadline. It outlasts BatchTimeout so a
// batch response is never cut off.
func (c *Config) WriteTimeout() time.Duration {
	return c.LLMTimeout() + writeGrace
}

// SlackEnabled reports whether high-risk alerts can be sent
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default if not set
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func orDefaultInt(value, defaultValue int) int {
	if value != 0 {
		return value
	}
	return defaultValue
}

func orDefaultFloat(value, defaultValue float64) float64 {
	if value != 0 {
		return value
	}
	return defaultValue
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
