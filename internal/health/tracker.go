// Package health tracks per-source fetch outcomes and raises alerts
// when a source degrades past the failure threshold.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trendfeed/pkg/alert"
	"trendfeed/pkg/content"
)

// Store is the slice of the persistence layer the tracker needs.
type Store interface {
	SourceHealth(ctx context.Context) (map[string]content.SourceHealth, error)
	UpsertSourceHealth(ctx context.Context, rec content.SourceHealth) error
}

// Broadcaster delivers degradation warnings.
type Broadcaster interface {
	HasNotifiers() bool
	Broadcast(ctx context.Context, n *alert.Notification) error
}

// Outcome is one fetch attempt result. Err nil with zero items is a
// soft failure: the source responded but produced nothing usable.
type Outcome struct {
	SourceID  string
	Err       error
	ItemCount int
	At        time.Time
}

const opTimeout = 10 * time.Second

// Tracker consumes outcomes from a queue on a single goroutine, so
// record transitions never race. Producers hand off with Record and
// move on; health bookkeeping must never block a request.
type Tracker struct {
	store     Store
	alerts    Broadcaster
	threshold int
	queue     chan Outcome
	log       *slog.Logger

	mu      sync.RWMutex
	records map[string]content.SourceHealth
}

// NewTracker creates a tracker. Zero threshold defaults to 3
// consecutive failures.
func NewTracker(store Store, alerts Broadcaster, threshold int, log *slog.Logger) *Tracker {
	if threshold <= 0 {
		threshold = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:     store,
		alerts:    alerts,
		threshold: threshold,
		queue:     make(chan Outcome, 64),
		log:       log,
		records:   make(map[string]content.SourceHealth),
	}
}

// Load hydrates records from the store, so failure streaks survive
// restarts.
func (t *Tracker) Load(ctx context.Context) error {
	records, err := t.store.SourceHealth(ctx)
	if err != nil {
		return fmt.Errorf("load source health: %w", err)
	}
	t.mu.Lock()
	t.records = records
	t.mu.Unlock()
	return nil
}

// Record queues an outcome without blocking. If the queue is full the
// outcome is dropped; losing one health sample beats stalling a
// fetch.
func (t *Tracker) Record(oc Outcome) {
	select {
	case t.queue <- oc:
	default:
		t.log.Warn("health queue full, outcome dropped", "source", oc.SourceID)
	}
}

// Run consumes outcomes until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case oc := <-t.queue:
			t.handle(ctx, oc)
		}
	}
}

// Records returns a copy of all current health records.
func (t *Tracker) Records() map[string]content.SourceHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]content.SourceHealth, len(t.records))
	for id, rec := range t.records {
		out[id] = rec
	}
	return out
}

func (t *Tracker) handle(ctx context.Context, oc Outcome) {
	t.mu.Lock()
	prev := t.records[oc.SourceID]
	next := nextRecord(prev, oc)
	t.records[oc.SourceID] = next
	t.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := t.store.UpsertSourceHealth(opCtx, next); err != nil {
		t.log.Error("persist source health", "source", oc.SourceID, "error", err)
	}

	crossed := prev.ConsecutiveFailures < t.threshold && next.ConsecutiveFailures >= t.threshold
	if crossed && t.alerts != nil && t.alerts.HasNotifiers() {
		n := &alert.Notification{
			Title:     "Source degraded",
			Body:      fmt.Sprintf("%s has failed %d fetches in a row", oc.SourceID, next.ConsecutiveFailures),
			SourceID:  oc.SourceID,
			Failures:  next.ConsecutiveFailures,
			LastError: next.LastError,
			At:        oc.At,
		}
		if err := t.alerts.Broadcast(opCtx, n); err != nil {
			t.log.Error("broadcast health alert", "source", oc.SourceID, "error", err)
		}
	}
}

// nextRecord is the transition rule: records are overwritten whole on
// every attempt.
func nextRecord(prev content.SourceHealth, oc Outcome) content.SourceHealth {
	rec := content.SourceHealth{
		SourceID:      oc.SourceID,
		LastAttemptAt: oc.At,
		LastSuccessAt: prev.LastSuccessAt,
	}
	switch {
	case oc.Err != nil:
		rec.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		rec.LastError = oc.Err.Error()
	case oc.ItemCount == 0:
		rec.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		rec.LastError = "fetch succeeded with zero items"
	default:
		rec.ConsecutiveFailures = 0
		rec.LastItemCount = oc.ItemCount
		rec.LastSuccessAt = oc.At
	}
	return rec
}
