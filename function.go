// Package autoinsight exposes the VIN summary API as a Cloud Function.
package autoinsight

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/pep299/autoinsight/internal/config"
	"github.com/pep299/autoinsight/internal/handlers"
	"github.com/pep299/autoinsight/internal/logging"
)

func init() {
	functions.HTTP("VINSummary", VINSummary)
}

var (
	routerMu sync.Mutex
	router   http.Handler
)

// VINSummary serves every route of the HTTP API. The dataset and clients are
// built on the first request and reused by later invocations of the same
// instance.
func VINSummary(w http.ResponseWriter, r *http.Request) {
	h, err := getRouter(r.Context())
	if err != nil {
		slog.Error("failed to initialize function", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.ServeHTTP(w, r)
}

// getRouter retries initialization until it succeeds once.
func getRouter(ctx context.Context) (http.Handler, error) {
	routerMu.Lock()
	defer routerMu.Unlock()

	if router != nil {
		return router, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := logging.SetDefault(cfg.LogLevel, cfg.LogFormat)

	server, err := handlers.NewServer(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	router = server.SetupRoutes()
	return router, nil
}
