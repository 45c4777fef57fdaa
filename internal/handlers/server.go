package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/pep299/autoinsight/internal/cache"
	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/dataset"
	"github.com/pep299/autoinsight/internal/enrich"
	"github.com/pep299/autoinsight/internal/llm"
	"github.com/pep299/autoinsight/internal/slack"
	"github.com/pep299/autoinsight/internal/vehicle"
)

// Version is reported by the health and status endpoints.
const Version = "v1.0.0"

// VehicleStore is the read-only inventory the server looks VINs up in.
type VehicleStore interface {
	Lookup(vin string) (vehicle.Record, error)
	VINs() []string
	Len() int
}

// Summarizer produces a summary for one record and never fails.
type Summarizer interface {
	Enrich(ctx context.Context, rec vehicle.Record) vehicle.Summary
	HasCompleter() bool
}

// Notifier receives summaries at or above the alert threshold.
type Notifier interface {
	SendRiskAlert(ctx context.Context, summary vehicle.Summary) error
}

// Deps are the collaborators of a Server. Notifier may be nil.
type Deps struct {
	Store      VehicleStore
	Summarizer Summarizer
	Notifier   Notifier
	Cache      *cache.Manager
	Logger     *slog.Logger
}

// Server holds the HTTP server and its dependencies
type Server struct {
	config       *config.Config
	store        VehicleStore
	summarizer   Summarizer
	notifier     Notifier
	cacheManager *cache.Manager
	logger       *slog.Logger
	batchTimeout time.Duration
	startedAt    time.Time
}

// NewServer loads the dataset and builds every client named by cfg.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ds, err := dataset.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	logger.Info("dataset loaded", "path", cfg.DatasetPath, "vehicles", ds.Len())

	completer, err := llm.New(cfg)
	if err != nil {
		logger.Warn("llm client unavailable, summaries will use the fallback", "provider", cfg.LLMProvider, "error", err)
		completer = nil
	}
	if completer == nil {
		logger.Info("no llm credential configured, using deterministic summaries", "provider", cfg.LLMProvider)
	}

	cacheManager, err := cache.NewManager(cfg.CacheType, time.Duration(cfg.CacheDuration)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("creating cache manager: %w", err)
	}

	deps := Deps{
		Store:      ds,
		Summarizer: enrich.NewEnricher(completer, logger),
		Cache:      cacheManager,
		Logger:     logger,
	}
	if cfg.SlackEnabled() {
		deps.Notifier = slack.NewClient(cfg.SlackBotToken, cfg.SlackChannel)
	}

	return NewServerWithDeps(cfg, deps), nil
}

// NewServerWithDeps creates a Server from prebuilt collaborators.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheManager := deps.Cache
	if cacheManager == nil {
		cacheManager, _ = cache.NewManager(config.CacheNone, 0)
	}
	return &Server{
		config:       cfg,
		store:        deps.Store,
		summarizer:   deps.Summarizer,
		notifier:     deps.Notifier,
		cacheManager: cacheManager,
		logger:       logger,
		batchTimeout: cfg.BatchTimeout(),
		startedAt:    time.Now(),
	}
}

// CacheManager exposes the summary cache for scheduled maintenance.
func (s *Server) CacheManager() *cache.Manager {
	return s.cacheManager
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() *mux.Router {
	// Every route also accepts OPTIONS so corsMiddleware can answer preflights.
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/vin-summary", s.vinSummaryHandler).Methods(http.MethodPost, http.MethodOptions)

	// API routes
	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet, http.MethodOptions)

	// Vehicle operations
	api.HandleFunc("/vehicles", s.listVehiclesHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/vehicles/{vin}", s.vehicleHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/vehicles/{vin}/summary", s.vehicleSummaryHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/vehicles/{vin}/score", s.vehicleScoreHandler).Methods(http.MethodGet, http.MethodOptions)

	// Summary operations
	api.HandleFunc("/summary/batch", s.batchSummaryHandler).Methods(http.MethodPost, http.MethodOptions)

	// Cache operations
	api.HandleFunc("/cache/stats", s.cacheStatsHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/cache/clear", s.cacheClearHandler).Methods(http.MethodDelete, http.MethodOptions)

	// Status and configuration
	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/config", s.configHandler).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// Summarize returns the summary of vin, serving repeated lookups from the
// cache. Fresh summaries at or above the alert threshold are sent to the
// notifier.
func (s *Server) Summarize(ctx context.Context, vin string) (vehicle.Summary, error) {
	vin = vehicle.NormalizeVIN(vin)

	rec, err := s.store.Lookup(vin)
	if err != nil {
		return vehicle.Summary{}, err
	}

	cached, err := s.cacheManager.GetSummary(ctx, vin)
	if err == nil {
		return *cached, nil
	}
	if !cache.IsMiss(err) {
		s.logger.WarnContext(ctx, "cache read failed", "vin", vin, "error", err)
	}

	summary := s.summarizer.Enrich(ctx, rec)
	if s.cacheable(summary) {
		if err := s.cacheManager.SetSummary(ctx, summary); err != nil {
			s.logger.WarnContext(ctx, "cache write failed", "vin", vin, "error", err)
		}
	}
	s.alert(ctx, summary)

	return summary, nil
}

// cacheable reports whether summary may be served to later requests. A
// fallback produced while a completer is configured means the LLM call
// failed, so the next request must try it again.
func (s *Server) cacheable(summary vehicle.Summary) bool {
	return summary.Source != vehicle.SourceFallback || !s.summarizer.HasCompleter()
}

// SummarizeBatch summarizes vins concurrently, bounded by
// MaxConcurrentRequests. Results keep the order of vins and carry
// per-item errors instead of failing the batch. Once the batch deadline
// passes, outstanding LLM calls are cancelled and the remaining VINs get
// deterministic summaries.
func (s *Server) SummarizeBatch(ctx context.Context, vins []string) []BatchResult {
	ctx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	results := make([]BatchResult, len(vins))

	var g errgroup.Group
	g.SetLimit(max(1, s.config.MaxConcurrentRequests))
	for i, raw := range vins {
		i, raw := i, raw
		g.Go(func() error {
			results[i] = s.batchItem(ctx, raw)
			return nil
		})
	}
	g.Wait()

	return results
}

func (s *Server) batchItem(ctx context.Context, raw string) BatchResult {
	vin, err := validateVIN(raw)
	if err != nil {
		return BatchResult{VIN: vehicle.NormalizeVIN(raw), Error: err.Error()}
	}
	summary, err := s.Summarize(ctx, vin)
	if err != nil {
		return BatchResult{VIN: vin, Error: err.Error()}
	}
	return BatchResult{VIN: vin, Summary: &summary}
}

func (s *Server) alert(ctx context.Context, summary vehicle.Summary) {
	if s.notifier == nil || summary.RiskScore < s.config.RiskAlertThreshold {
		return
	}
	if err := s.notifier.SendRiskAlert(ctx, summary); err != nil {
		s.logger.WarnContext(ctx, "risk alert failed", "vin", summary.VIN, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "risk alert sent", "vin", summary.VIN, "risk_score", summary.RiskScore)
}

// Middleware functions

// corsMiddleware adds CORS headers for the configured origins
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins := s.config.CORSAllowedOrigins
		origin := r.Header.Get("Origin")
		switch {
		case len(origins) == 0 || slices.Contains(origins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned by loggingMiddleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)

		// Wrap the ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		s.logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"request_id", requestID)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func isNotFound(err error) bool {
	return errors.Is(err, dataset.ErrNotFound)
}
