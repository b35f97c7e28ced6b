// Package server provides the HTTP API: ranked feed queries, refresh
// progress, source diagnostics and the cache invalidation hook.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trendfeed/internal/cache"
	"trendfeed/internal/refresh"
	"trendfeed/pkg/content"
	"trendfeed/pkg/scoring"
)

// velocityWindow is how far back engagement snapshots feed the
// velocity signal.
const velocityWindow = 6 * time.Hour

// Store is the slice of the persistence layer the server reads.
type Store interface {
	SnapshotsSince(ctx context.Context, itemIDs []string, since time.Time) (map[string][]content.Snapshot, error)
	CountItemsBySource(ctx context.Context) (map[string]int, error)
	SourceHealth(ctx context.Context) (map[string]content.SourceHealth, error)
	SourceOverrides(ctx context.Context) (map[string]content.SourceOverride, error)
	BoostKeywords(ctx context.Context) ([]string, error)
}

// Refresher serves merged item windows and reports fetch progress.
type Refresher interface {
	Refresh(ctx context.Context, sources []content.SourceConfig, rng content.TimeRange) (refresh.Result, error)
	Progress() refresh.Progress
}

// Options configures the HTTP surface.
type Options struct {
	Port int
	// Sources is the configured source set; enabled flags and priority
	// overrides are layered on from the store per request.
	Sources []content.SourceConfig
	// Keywords are the configured boost keywords, used when the store
	// holds none.
	Keywords []string
}

// Server provides the HTTP API.
type Server struct {
	store     Store
	refresher Refresher
	engine    *scoring.Engine
	results   *cache.Cache
	opts      Options
	log       *slog.Logger
}

// New creates a new HTTP server.
func New(store Store, refresher Refresher, engine *scoring.Engine, results *cache.Cache, opts Options, log *slog.Logger) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		refresher: refresher,
		engine:    engine,
		results:   results,
		opts:      opts,
		log:       log,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/feed", s.handleFeed)
	mux.HandleFunc("/api/v1/trending", s.handleTrending)
	mux.HandleFunc("/api/v1/refresh/status", s.handleRefreshStatus)
	mux.HandleFunc("/api/v1/sources", s.handleSources)
	mux.HandleFunc("/api/v1/cache/invalidate", s.handleCacheInvalidate)
	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.log.Info("http server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
