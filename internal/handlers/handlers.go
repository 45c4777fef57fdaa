package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"github.com/pep299/autoinsight/internal/enrich"
	"github.com/pep299/autoinsight/internal/llm"
	"github.com/pep299/autoinsight/internal/scoring"
	"github.com/pep299/autoinsight/internal/vehicle"
)

// Request limits
const (
	minVINLength = 5
	maxVINLength = 50
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// VINRequest is the body of POST /vin-summary
type VINRequest struct {
	VIN string `json:"vin"`
}

// BatchRequest is the body of POST /api/v1/summary/batch
type BatchRequest struct {
	VINs []string `json:"vins"`
}

// BatchResult is one entry of a batch response, in request order
type BatchResult struct {
	VIN     string           `json:"vin"`
	Summary *vehicle.Summary `json:"summary,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// rootHandler confirms the service is up
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "VIN Summary Service is running!",
	})
}

// vinSummaryHandler summarizes the vehicle named in the request body
func (s *Server) vinSummaryHandler(w http.ResponseWriter, r *http.Request) {
	var req VINRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	vin, err := validateVIN(req.VIN)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeSummary(w, r, vin)
}

// vehicleSummaryHandler summarizes the vehicle named in the path
func (s *Server) vehicleSummaryHandler(w http.ResponseWriter, r *http.Request) {
	vin, err := validateVIN(mux.Vars(r)["vin"])
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeSummary(w, r, vin)
}

func (s *Server) writeSummary(w http.ResponseWriter, r *http.Request, vin string) {
	summary, err := s.Summarize(r.Context(), vin)
	if err != nil {
		if isNotFound(err) {
			writeDetail(w, http.StatusNotFound, "VIN not found in dataset")
			return
		}
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error creating summary: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// listVehiclesHandler lists the VINs of the dataset
func (s *Server) listVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	vins := s.store.VINs()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vins":  vins,
		"count": len(vins),
	})
}

// vehicleHandler returns the raw dataset row of a VIN
func (s *Server) vehicleHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Lookup(mux.Vars(r)["vin"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, "VIN not found in dataset")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// vehicleScoreHandler returns the deterministic summary with its factor breakdown
func (s *Server) vehicleScoreHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Lookup(mux.Vars(r)["vin"])
	if err != nil {
		writeDetail(w, http.StatusNotFound, "VIN not found in dataset")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":  enrich.Fallback(rec),
		"analysis": scoring.Analyze(rec),
	})
}

// batchSummaryHandler creates summaries for multiple VINs
func (s *Server) batchSummaryHandler(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if len(req.VINs) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "vins must not be empty")
		return
	}
	if len(req.VINs) > maxBatchSize {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("at most %d vins per batch", maxBatchSize))
		return
	}

	results := s.SummarizeBatch(r.Context(), req.VINs)

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
		"errors":  failed,
	})
}

// healthHandler provides health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   Version,
	})
}

// cacheStatsHandler returns cache statistics
func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cacheManager.GetStats(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error getting cache stats: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// cacheClearHandler clears the cache
func (s *Server) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.cacheManager.Clear(r.Context()); err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error clearing cache: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cache cleared successfully",
	})
}

// statusHandler returns system status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	cacheStats, err := s.cacheManager.GetStats(r.Context())
	if err != nil {
		s.logger.WarnContext(r.Context(), "cache stats unavailable", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        Version,
		"started":        humanize.Time(s.startedAt),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"vehicles":       s.store.Len(),
		"llm_enabled":    s.summarizer.HasCompleter(),
		"alerts_enabled": s.notifier != nil,
		"cache":          cacheStats,
	})
}

// configHandler returns configuration (sanitized)
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration without sensitive data
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"port":                    s.config.Port,
		"host":                    s.config.Host,
		"dataset_path":            s.config.DatasetPath,
		"llm_provider":            s.config.LLMProvider,
		"llm_model":               llm.ModelName(s.config),
		"llm_timeout_seconds":     s.config.LLMTimeoutSeconds,
		"cache_type":              s.config.CacheType,
		"cache_duration_minutes":  s.config.CacheDuration,
		"cache_cleanup_schedule":  s.config.CacheCleanupSchedule,
		"max_concurrent_requests": s.config.MaxConcurrentRequests,
		"slack_channel":           s.config.SlackChannel,
		"risk_alert_threshold":    s.config.RiskAlertThreshold,
	})
}

func validateVIN(raw string) (string, error) {
	vin := vehicle.NormalizeVIN(raw)
	if n := len(vin); n < minVINLength || n > maxVINLength {
		return "", fmt.Errorf("vin must be between %d and %d characters", minVINLength, maxVINLength)
	}
	return vin, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes {"detail": msg}, the error shape of every endpoint
func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
