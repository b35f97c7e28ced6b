// Package scheduler keeps the store warm. It refreshes all enabled
// sources on an interval and records engagement snapshots, the time
// series the velocity signal is derived from.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"trendfeed/internal/refresh"
	"trendfeed/pkg/content"
)

const defaultInterval = 15 * time.Minute

// Refresher runs the fetch-merge-persist pipeline.
type Refresher interface {
	Refresh(ctx context.Context, sources []content.SourceConfig, rng content.TimeRange) (refresh.Result, error)
}

// Store is the slice of the persistence layer the scheduler writes.
type Store interface {
	SourceOverrides(ctx context.Context) (map[string]content.SourceOverride, error)
	AddSnapshot(ctx context.Context, itemID string, total float64, takenAt time.Time) error
}

// Scheduler runs periodic warm refreshes.
type Scheduler struct {
	store     Store
	refresher Refresher
	sources   []content.SourceConfig
	interval  time.Duration
	log       *slog.Logger

	now func() time.Time
}

// New creates a scheduler. Zero interval defaults to 15 minutes.
func New(store Store, refresher Refresher, sources []content.SourceConfig, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:     store,
		refresher: refresher,
		sources:   sources,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// Run starts the scheduler loop and blocks until ctx is cancelled.
// The first refresh happens immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", s.interval, "sources", len(s.sources))
	s.refreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *Scheduler) refreshOnce(ctx context.Context) {
	enabled, err := s.enabledSources(ctx)
	if err != nil {
		s.log.Error("load source overrides", "error", err)
		return
	}

	res, err := s.refresher.Refresh(ctx, enabled, content.RangeDay)
	if err != nil {
		s.log.Error("warm refresh failed", "error", err)
		return
	}

	for _, f := range res.Failures {
		s.log.Warn("source fetch failed", "source", f.SourceID, "error", f.Error)
	}

	s.recordSnapshots(ctx, res.Items)
	s.log.Info("warm refresh complete",
		"items", len(res.Items),
		"refreshed", len(res.Refreshed),
		"failed", len(res.Failures))
}

// recordSnapshots stores one engagement observation per item. Items
// without engagement counters have no velocity series.
func (s *Scheduler) recordSnapshots(ctx context.Context, items []content.Item) {
	now := s.now().UTC()
	recorded := 0
	for _, it := range items {
		if it.Engagement == nil {
			continue
		}
		if err := s.store.AddSnapshot(ctx, it.ID, content.EngagementTotal(it.Engagement), now); err != nil {
			s.log.Warn("record snapshot", "item", it.ID, "error", err)
			continue
		}
		recorded++
	}
	if recorded > 0 {
		s.log.Debug("engagement snapshots recorded", "count", recorded)
	}
}

func (s *Scheduler) enabledSources(ctx context.Context) ([]content.SourceConfig, error) {
	overrides, err := s.store.SourceOverrides(ctx)
	if err != nil {
		return nil, err
	}

	var out []content.SourceConfig
	for _, src := range s.sources {
		if ov, ok := overrides[src.ID]; ok && !ov.Enabled {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}
