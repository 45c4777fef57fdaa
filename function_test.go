package autoinsight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const functionCSV = `VIN,Year,Make,Model,Current price to market %,DOL,Mileage,Total VDPs (lifetime)
1ABC2345,2021,Ford,F-150,110%,120,200000,0
`

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "autoinsight-function")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(dir, "inventory.csv")
	if err := os.WriteFile(path, []byte(functionCSV), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing dataset: %v\n", err)
		os.Exit(1)
	}

	// Set up test environment variables
	os.Setenv("DATASET_PATH", path)
	os.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	os.Setenv("LLM_PROVIDER", "openai")
	os.Setenv("OPENAI_API_KEY", "")
	os.Setenv("SLACK_BOT_TOKEN", "")
	os.Setenv("CACHE_TYPE", "memory")
	os.Setenv("LOG_LEVEL", "error")

	code := m.Run()

	// Clean up
	for _, key := range []string{"DATASET_PATH", "CONFIG_PATH", "LLM_PROVIDER", "OPENAI_API_KEY", "SLACK_BOT_TOKEN", "CACHE_TYPE", "LOG_LEVEL"} {
		os.Unsetenv(key)
	}
	os.RemoveAll(dir)

	os.Exit(code)
}

func TestVINSummaryHealthCheck(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestVINSummaryRoot(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := w.Body.String(); !bytes.Contains([]byte(got), []byte("VIN Summary Service is running!")) {
		t.Errorf("Unexpected root response: %s", got)
	}
}

func TestVINSummaryLookup(t *testing.T) {
	req := httptest.NewRequest("POST", "/vin-summary", bytes.NewBufferString(`{"vin":"1abc2345"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response struct {
		VIN       string   `json:"vin"`
		RiskScore float64  `json:"risk_score"`
		Reasoning []string `json:"reasoning"`
		Source    string   `json:"source"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if response.VIN != "1ABC2345" {
		t.Errorf("Expected VIN '1ABC2345', got '%s'", response.VIN)
	}
	if response.RiskScore < 7.59 || response.RiskScore > 7.61 {
		t.Errorf("Expected risk score 7.6, got %f", response.RiskScore)
	}
	if response.Source != "fallback" {
		t.Errorf("Expected fallback source without an API key, got '%s'", response.Source)
	}
	if len(response.Reasoning) == 0 {
		t.Error("Expected reasoning lines")
	}
}

func TestVINSummaryNotFound(t *testing.T) {
	req := httptest.NewRequest("POST", "/vin-summary", bytes.NewBufferString(`{"vin":"NOPE99999"}`))
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["detail"] != "VIN not found in dataset" {
		t.Errorf("Unexpected detail: %q", response["detail"])
	}
}

func TestVINSummaryInvalidRoute(t *testing.T) {
	req := httptest.NewRequest("GET", "/invalid/route", nil)
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestVINSummaryCacheStats(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/cache/stats", nil)
	w := httptest.NewRecorder()

	VINSummary(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	for _, field := range []string{"total_entries", "hit_count", "miss_count"} {
		if _, ok := response[field]; !ok {
			t.Errorf("Expected '%s' field in cache stats", field)
		}
	}
}

func TestVINSummaryConfigEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(VINSummary))
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/v1/config")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if _, ok := response["cache_type"]; !ok {
		t.Error("Expected 'cache_type' in config response")
	}
	for _, secret := range []string{"openai_api_key", "anthropic_api_key", "gemini_api_key", "slack_bot_token"} {
		if _, ok := response[secret]; ok {
			t.Errorf("Config response should not contain sensitive '%s'", secret)
		}
	}
}

func BenchmarkVINSummaryHealthCheck(b *testing.B) {
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		w := httptest.NewRecorder()
		VINSummary(w, req)

		if w.Code != http.StatusOK {
			b.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
		}
	}
}
