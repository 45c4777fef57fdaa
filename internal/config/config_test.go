package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "HOST", "CORS_ALLOWED_ORIGINS", "DATASET_PATH", "GCS_CREDENTIALS_FILE",
		"LLM_PROVIDER", "LLM_MODEL", "OPENAI_MODEL", "LLM_TIMEOUT_SECONDS", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "CACHE_TYPE", "CACHE_DURATION_MINUTES",
		"CACHE_CLEANUP_SCHEDULE", "MAX_CONCURRENT_REQUESTS", "SLACK_BOT_TOKEN", "SLACK_CHANNEL",
		"RISK_ALERT_THRESHOLD", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
}

func TestLoadConfig(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.OpenAIAPIKey != "test-key" {
		t.Errorf("Expected OpenAIAPIKey to be 'test-key', got '%s'", cfg.OpenAIAPIKey)
	}
	if cfg.LLMAPIKey() != "test-key" {
		t.Errorf("Expected LLMAPIKey to follow the openai provider, got '%s'", cfg.LLMAPIKey())
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected Port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.DatasetPath != "data/sample_data.csv" {
		t.Errorf("Expected default dataset path, got '%s'", cfg.DatasetPath)
	}
	if cfg.LLMProvider != ProviderOpenAI {
		t.Errorf("Expected default provider openai, got '%s'", cfg.LLMProvider)
	}
	if cfg.CacheType != CacheMemory || cfg.CacheDuration != 60 {
		t.Errorf("Unexpected cache defaults: %s/%d", cfg.CacheType, cfg.CacheDuration)
	}
	if cfg.RiskAlertThreshold != 8.0 {
		t.Errorf("Expected default alert threshold 8.0, got %f", cfg.RiskAlertThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.SlackEnabled() {
		t.Error("Expected Slack alerts to be disabled without a bot token")
	}
}

func TestLoadConfigWithoutCredential(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Missing API key must not be a config error: %v", err)
	}
	if cfg.LLMAPIKey() != "" {
		t.Errorf("Expected empty credential, got '%s'", cfg.LLMAPIKey())
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	clearConfigEnv(t)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9090"
dataset_path: "gs://fleet-data/inventory.csv"
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
cache_duration: 15
slack_channel: "#yaml-alerts"
cors_allowed_origins: ["https://dealer.example.com"]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("PORT", "7070")
	t.Setenv("RISK_ALERT_THRESHOLD", "9.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Expected port from env override, got '%s'", cfg.Port)
	}
	if cfg.DatasetPath != "gs://fleet-data/inventory.csv" {
		t.Errorf("Expected dataset path from yaml, got '%s'", cfg.DatasetPath)
	}
	if cfg.LLMProvider != ProviderAnthropic || cfg.LLMAPIKey() != "yaml-anthropic" {
		t.Errorf("Expected anthropic credential from yaml, got %s/%s", cfg.LLMProvider, cfg.LLMAPIKey())
	}
	if cfg.CacheDuration != 15 {
		t.Errorf("Expected cache duration from yaml, got %d", cfg.CacheDuration)
	}
	if cfg.SlackChannel != "#yaml-alerts" {
		t.Errorf("Expected slack channel from yaml, got '%s'", cfg.SlackChannel)
	}
	if cfg.RiskAlertThreshold != 9.5 {
		t.Errorf("Expected alert threshold from env, got %f", cfg.RiskAlertThreshold)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "https://dealer.example.com" {
		t.Errorf("Expected CORS origins from yaml, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigOpenAIModelAlias(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		llmModel string
		want     string
	}{
		{"alias used", "openai", "", "gpt-5-mini"},
		{"LLM_MODEL wins", "openai", "gpt-4.1", "gpt-4.1"},
		{"other provider ignores alias", "gemini", "", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv("LLM_PROVIDER", test.provider)
			t.Setenv("LLM_MODEL", test.llmModel)
			t.Setenv("OPENAI_MODEL", "gpt-5-mini")

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Failed to load config: %v", err)
			}
			if cfg.LLMModel != test.want {
				t.Errorf("Expected LLMModel '%s', got '%s'", test.want, cfg.LLMModel)
			}
		})
	}
}

func TestTimeouts(t *testing.T) {
	cfg := &Config{LLMTimeoutSeconds: 60}

	if cfg.LLMTimeout() != 60*time.Second {
		t.Errorf("Expected 60s LLM timeout, got %v", cfg.LLMTimeout())
	}
	if cfg.BatchTimeout() <= cfg.LLMTimeout() {
		t.Errorf("Expected batch timeout above the LLM timeout, got %v", cfg.BatchTimeout())
	}
	if cfg.WriteTimeout() <= cfg.BatchTimeout() {
		t.Errorf("Expected write timeout %v to outlast batch timeout %v", cfg.WriteTimeout(), cfg.BatchTimeout())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown provider", "LLM_PROVIDER", "llama"},
		{"unknown cache", "CACHE_TYPE", "redis"},
		{"zero concurrency", "MAX_CONCURRENT_REQUESTS", "0"},
		{"threshold out of range", "RISK_ALERT_THRESHOLD", "11"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(test.key, test.value)

			_, err := Load()
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cfgErr.Field != test.key {
				t.Errorf("Expected field %s, got %s", test.key, cfgErr.Field)
			}
		})
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	clearConfigEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("port: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)

	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestParseStringSlice(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{"a, b , c ", []string{"a", "b", "c"}},
		{"a,,b", []string{"a", "b"}},
	}

	for _, test := range tests {
		result := parseStringSlice(test.input)
		if len(result) != len(test.expected) {
			t.Errorf("For input '%s', expected length %d, got %d", test.input, len(test.expected), len(result))
			continue
		}
		for i, expected := range test.expected {
			if result[i] != expected {
				t.Errorf("For input '%s', expected[%d] = '%s', got '%s'", test.input, i, expected, result[i])
			}
		}
	}
}
