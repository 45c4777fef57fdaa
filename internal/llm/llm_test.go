package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/vehicle"
)

func testClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func TestNewWithoutCredential(t *testing.T) {
	cfg := &config.Config{LLMProvider: config.ProviderOpenAI, LLMTimeoutSeconds: 5}

	c, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
		want any
	}{
		{"openai", &config.Config{LLMProvider: config.ProviderOpenAI, OpenAIAPIKey: "k", OpenAIBaseURL: "http://localhost"}, &OpenAIClient{}},
		{"anthropic", &config.Config{LLMProvider: config.ProviderAnthropic, AnthropicAPIKey: "k"}, &AnthropicClient{}},
		{"gemini", &config.Config{LLMProvider: config.ProviderGemini, GeminiAPIKey: "k"}, &GeminiClient{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.LLMTimeoutSeconds = 5
			c, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestModelName(t *testing.T) {
	assert.Equal(t, DefaultOpenAIModel, ModelName(&config.Config{LLMProvider: config.ProviderOpenAI}))
	assert.Equal(t, DefaultAnthropicModel, ModelName(&config.Config{LLMProvider: config.ProviderAnthropic}))
	assert.Equal(t, DefaultGeminiModel, ModelName(&config.Config{LLMProvider: config.ProviderGemini}))
	assert.Equal(t, "gpt-5-mini", ModelName(&config.Config{LLMProvider: config.ProviderOpenAI, LLMModel: "gpt-5-mini"}))
}

func TestBuildUserPrompt(t *testing.T) {
	rec := vehicle.Record{
		vehicle.FieldVIN:       "1ABC2345",
		vehicle.FieldMake:      "Ford",
		vehicle.FieldMileage:   42000.0,
		vehicle.FieldDaysOnLot: nil,
	}

	prompt, err := BuildUserPrompt(rec)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(prompt, "Vehicle data (JSON):\n{"))
	assert.Contains(t, prompt, `"VIN": "1ABC2345"`)
	assert.Contains(t, prompt, `"Mileage": 42000`)
	assert.Contains(t, prompt, `"DOL": null`)
	assert.Contains(t, prompt, "Price to Market %:")
	assert.Contains(t, prompt, "Make/Model: Only for description")
	assert.NotContains(t, prompt, "%!")
}

func TestOpenAIComplete(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"}}]}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", "gpt-4o-mini", server.URL+"/v1/", testClient())
	text, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"ok"}`, text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openAIMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, openAIMessage{Role: "user", Content: "usr"}, got.Messages[1])
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`, "invalid api key"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "parsing OpenAI response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewOpenAIClient("k", "m", server.URL, testClient())
			_, err := c.Complete(context.Background(), "sys", "usr")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGeminiComplete(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"{\"risk_score\":4}"}]}}]}`)
	}))
	defer server.Close()

	c := NewGeminiClient("test-key", "gemini-1.5-flash", testClient())
	c.baseURL = server.URL

	text, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"risk_score":4}`, text)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "sys", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "usr", got.Contents[0].Parts[0].Text)
}

func TestGeminiCompleteErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := NewGeminiClient("k", "m", testClient())
		c.baseURL = server.URL
		_, err := c.Complete(context.Background(), "sys", "usr")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("no candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"candidates":[]}`)
		}))
		defer server.Close()

		c := NewGeminiClient("k", "m", testClient())
		c.baseURL = server.URL
		_, err := c.Complete(context.Background(), "sys", "usr")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no content")
	})
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultAnthropicModel, body["model"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"content": [{"type": "text", "text": "{\"summary\":\"fine\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer server.Close()

	c := NewAnthropicClient("test-key", DefaultAnthropicModel, testClient(), option.WithBaseURL(server.URL))
	text, err := c.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"fine"}`, text)
}
