package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"trendfeed/internal/cache"
	"trendfeed/internal/refresh"
	"trendfeed/pkg/content"
	"trendfeed/pkg/scoring"
)

// feedResponse is the envelope for ranked item queries.
type feedResponse struct {
	Success   bool                    `json:"success"`
	Count     int                     `json:"count"`
	Items     []content.Item          `json:"items"`
	FetchedAt time.Time               `json:"fetchedAt"`
	Cached    bool                    `json:"cached"`
	Mode      content.FeedMode        `json:"mode"`
	Failures  []refresh.SourceFailure `json:"failures,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	cat, err := content.ParseCategory(q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rng, err := content.ParseTimeRange(q.Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := content.ParseFeedMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.serveRanked(w, r, cat, q.Get("source"), rng, mode)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	cat, err := content.ParseCategory(q.Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rng, err := content.ParseTimeRange(q.Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.serveRanked(w, r, cat, q.Get("source"), rng, content.ModeTrending)
}

// serveRanked runs the full pipeline: resolve sources, consult the
// result cache, refresh, score, rank, cache and respond.
func (s *Server) serveRanked(w http.ResponseWriter, r *http.Request, cat content.Category, sourceID string, rng content.TimeRange, mode content.FeedMode) {
	ctx := r.Context()

	overrides, err := s.store.SourceOverrides(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sources, priorities := s.selectSources(cat, sourceID, overrides)
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}

	key := cache.Key(ids, rng, mode)
	if v, ok := s.results.Get(key); ok {
		resp := v.(feedResponse)
		resp.Cached = true
		writeJSON(w, http.StatusOK, resp)
		return
	}

	res, err := s.refresher.Refresh(ctx, sources, rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	srcMap := make(map[string]content.SourceConfig, len(sources))
	for _, src := range sources {
		srcMap[src.ID] = src
	}
	input := scoring.Input{
		Sources:    srcMap,
		Priorities: priorities,
		Keywords:   s.boostKeywords(ctx),
		Velocities: s.velocities(ctx, res.Items),
	}

	ranked := s.engine.RankMode(res.Items, mode, input)
	if ranked == nil {
		ranked = []content.Item{}
	}

	resp := feedResponse{
		Success:   true,
		Count:     len(ranked),
		Items:     ranked,
		FetchedAt: time.Now().UTC(),
		Mode:      mode,
		Failures:  res.Failures,
	}
	s.results.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.refresher.Progress())
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	overrides, err := s.store.SourceOverrides(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := s.store.CountItemsBySource(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	healthRecords, err := s.store.SourceHealth(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type sourceInfo struct {
		content.SourceConfig
		Enabled           bool                  `json:"enabled"`
		EffectivePriority int                   `json:"effectivePriority"`
		Items             int                   `json:"items"`
		Health            *content.SourceHealth `json:"health,omitempty"`
	}

	infos := make([]sourceInfo, 0, len(s.opts.Sources))
	for _, src := range s.opts.Sources {
		info := sourceInfo{
			SourceConfig:      src,
			Enabled:           true,
			EffectivePriority: src.Priority,
			Items:             counts[src.ID],
		}
		if ov, ok := overrides[src.ID]; ok {
			info.Enabled = ov.Enabled
			if ov.Priority > 0 {
				info.EffectivePriority = ov.Priority
			}
		}
		if rec, ok := healthRecords[src.ID]; ok {
			rec := rec
			info.Health = &rec
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  infos,
		"count": len(infos),
	})
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.results.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// selectSources filters the configured set by category and source id,
// drops disabled sources and resolves effective priorities.
func (s *Server) selectSources(cat content.Category, sourceID string, overrides map[string]content.SourceOverride) ([]content.SourceConfig, map[string]int) {
	var out []content.SourceConfig
	priorities := make(map[string]int)

	for _, src := range s.opts.Sources {
		if cat != "" && src.Category != cat {
			continue
		}
		if sourceID != "" && src.ID != sourceID {
			continue
		}

		enabled := true
		priority := src.Priority
		if ov, ok := overrides[src.ID]; ok {
			enabled = ov.Enabled
			if ov.Priority > 0 {
				priority = ov.Priority
			}
		}
		if !enabled {
			continue
		}

		out = append(out, src)
		priorities[src.ID] = priority
	}
	return out, priorities
}

// boostKeywords prefers the stored keyword list; the configured list
// only applies while the store holds none.
func (s *Server) boostKeywords(ctx context.Context) []string {
	kws, err := s.store.BoostKeywords(ctx)
	if err != nil {
		s.log.Warn("boost keywords unavailable", "error", err)
		return s.opts.Keywords
	}
	if kws == nil {
		return s.opts.Keywords
	}
	return kws
}

// velocities derives units-per-hour velocity for each item from its
// snapshots over the trailing window. Snapshot trouble degrades to no
// velocity signal rather than failing the request.
func (s *Server) velocities(ctx context.Context, items []content.Item) map[string]float64 {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}

	snaps, err := s.store.SnapshotsSince(ctx, ids, time.Now().UTC().Add(-velocityWindow))
	if err != nil {
		s.log.Warn("velocity snapshots unavailable", "error", err)
		return nil
	}

	out := make(map[string]float64, len(snaps))
	for id, sn := range snaps {
		out[id] = scoring.VelocityFromSnapshots(sn)
	}
	return out
}
