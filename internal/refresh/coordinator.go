package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trendfeed/internal/health"
	"trendfeed/pkg/adapter"
	"trendfeed/pkg/content"
)

const (
	defaultStaleness    = 15 * time.Minute
	defaultFetchTimeout = 10 * time.Second
)

// Store is the slice of the persistence layer the coordinator needs.
type Store interface {
	Freshness(ctx context.Context, sourceIDs []string) (map[string]time.Time, error)
	SetFreshness(ctx context.Context, sourceIDs []string, fetchedAt time.Time) error
	ItemsBySources(ctx context.Context, sourceIDs []string, since time.Time) ([]content.Item, error)
	UpsertItems(ctx context.Context, items []content.Item) error
}

// AdapterLookup resolves the fetcher serving a source, if any.
type AdapterLookup interface {
	Lookup(src content.SourceConfig) (adapter.Adapter, bool)
}

// HealthRecorder accepts per-source fetch outcomes.
type HealthRecorder interface {
	Record(oc health.Outcome)
}

// SourceFailure is one failed fetch inside an otherwise served refresh.
type SourceFailure struct {
	SourceID string `json:"sourceId"`
	Error    string `json:"error"`
}

// Result is the outcome of one refresh: the merged item window plus
// which sources failed and which were actually refetched.
type Result struct {
	Items     []content.Item
	Failures  []SourceFailure
	Refreshed []string
}

// Config tunes the coordinator. Zero values pick the defaults.
type Config struct {
	// Staleness is how old a freshness stamp may get before the source
	// is refetched.
	Staleness time.Duration
	// FetchTimeout bounds each adapter call.
	FetchTimeout time.Duration
}

// Coordinator serves item windows, refetching stale sources
// concurrently and merging fresh results over the cached rows.
type Coordinator struct {
	store    Store
	adapters AdapterLookup
	recorder HealthRecorder
	sessions *SessionTracker
	cfg      Config
	log      *slog.Logger

	now func() time.Time
}

// NewCoordinator wires a coordinator.
func NewCoordinator(store Store, adapters AdapterLookup, recorder HealthRecorder, sessions *SessionTracker, cfg Config, log *slog.Logger) *Coordinator {
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:    store,
		adapters: adapters,
		recorder: recorder,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Progress reports the in-flight refresh session, if any.
func (c *Coordinator) Progress() Progress {
	return c.sessions.Snapshot()
}

// Refresh returns all items published within the range for the given
// sources. Sources whose freshness stamp is older than the staleness
// budget are refetched first; sources with no adapter are served from
// cache alone. A partial fetch failure is not an error, the failed
// sources are listed in the result instead.
func (c *Coordinator) Refresh(ctx context.Context, sources []content.SourceConfig, rng content.TimeRange) (Result, error) {
	now := c.now().UTC()
	window := rng.Duration()
	since := now.Add(-window)

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}

	fresh, err := c.store.Freshness(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("load freshness: %w", err)
	}

	cached, err := c.store.ItemsBySources(ctx, ids, since)
	if err != nil {
		return Result{}, fmt.Errorf("load cached items: %w", err)
	}

	cutoff := now.Add(-c.cfg.Staleness)
	type target struct {
		src content.SourceConfig
		ad  adapter.Adapter
	}
	var targets []target
	for _, src := range sources {
		if stamp, ok := fresh[src.ID]; ok && !stamp.Before(cutoff) {
			continue
		}
		ad, ok := c.adapters.Lookup(src)
		if !ok {
			c.log.Debug("source has no adapter, serving cache only", "source", src.ID)
			continue
		}
		targets = append(targets, target{src: src, ad: ad})
	}

	if len(targets) == 0 {
		content.SortByPublished(cached)
		return Result{Items: cached}, nil
	}

	targetIDs := make([]string, 0, len(targets))
	for _, tgt := range targets {
		targetIDs = append(targetIDs, tgt.src.ID)
	}
	c.sessions.Begin(targetIDs)

	// Fetches and the writes behind them must survive the caller
	// hanging up, or an abandoned request loses half a refresh.
	detached := context.WithoutCancel(ctx)

	var (
		mu        sync.Mutex
		fetched   []content.Item
		failures  []SourceFailure
		succeeded []string
		wg        sync.WaitGroup
	)

	for _, tgt := range targets {
		wg.Add(1)
		go func(src content.SourceConfig, ad adapter.Adapter) {
			defer wg.Done()
			c.sessions.MarkFetching(src.ID)

			fctx, cancel := context.WithTimeout(detached, c.cfg.FetchTimeout)
			defer cancel()

			items, err := ad.Fetch(fctx, src, window)
			at := c.now().UTC()
			if err != nil {
				c.log.Warn("fetch failed", "source", src.ID, "error", err)
				mu.Lock()
				failures = append(failures, SourceFailure{SourceID: src.ID, Error: err.Error()})
				mu.Unlock()
				c.sessions.MarkFailed(src.ID)
				c.recorder.Record(health.Outcome{SourceID: src.ID, Err: err, At: at})
				return
			}

			var kept []content.Item
			for _, it := range items {
				if it.PublishedAt.Before(since) {
					continue
				}
				kept = append(kept, it)
			}

			mu.Lock()
			fetched = append(fetched, kept...)
			succeeded = append(succeeded, src.ID)
			mu.Unlock()
			c.sessions.MarkDone(src.ID)
			c.recorder.Record(health.Outcome{SourceID: src.ID, ItemCount: len(kept), At: at})
		}(tgt.src, tgt.ad)
	}
	wg.Wait()

	if len(fetched) > 0 {
		if err := c.store.UpsertItems(detached, fetched); err != nil {
			return Result{}, fmt.Errorf("persist items: %w", err)
		}
	}
	if len(succeeded) > 0 {
		if err := c.store.SetFreshness(detached, succeeded, now); err != nil {
			return Result{}, fmt.Errorf("stamp freshness: %w", err)
		}
	}

	merged := content.MergeItems(cached, fetched)
	content.SortByPublished(merged)

	sort.Slice(failures, func(i, j int) bool { return failures[i].SourceID < failures[j].SourceID })
	sort.Strings(succeeded)

	return Result{Items: merged, Failures: failures, Refreshed: succeeded}, nil
}
