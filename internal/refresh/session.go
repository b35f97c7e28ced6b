// Package refresh coordinates per-source staleness checks, concurrent
// adapter fetches and the merge of cached and fresh items.
package refresh

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SourceStatus is the state of one source within a refresh session.
type SourceStatus string

const (
	StatusPending  SourceStatus = "pending"
	StatusFetching SourceStatus = "fetching"
	StatusDone     SourceStatus = "done"
	StatusFailed   SourceStatus = "failed"
)

// Progress is the externally visible snapshot of the active session.
type Progress struct {
	Active    bool             `json:"active"`
	SessionID string           `json:"sessionId,omitempty"`
	Total     int              `json:"total,omitempty"`
	Completed int              `json:"completed,omitempty"`
	Percent   float64          `json:"percent,omitempty"`
	Sources   []SourceProgress `json:"sources,omitempty"`
}

// SourceProgress is one source's state within the session.
type SourceProgress struct {
	SourceID string       `json:"sourceId"`
	Status   SourceStatus `json:"status"`
}

type sessionState struct {
	id        string
	statuses  map[string]SourceStatus
	total     int
	completed int
	startedAt time.Time
}

// SessionTracker tracks the single in-flight refresh session. The
// session is destroyed when its last source resolves, and expires
// after a TTL in case a fetch goroutine never reports back.
type SessionTracker struct {
	mu      sync.Mutex
	current *sessionState
	ttl     time.Duration

	now func() time.Time
}

// NewSessionTracker creates a tracker. Zero ttl defaults to 90s.
func NewSessionTracker(ttl time.Duration) *SessionTracker {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &SessionTracker{ttl: ttl, now: time.Now}
}

// Begin starts a session covering sourceIDs, replacing any previous
// one. Beginning with no sources clears the tracker.
func (t *SessionTracker) Begin(sourceIDs []string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(sourceIDs) == 0 {
		t.current = nil
		return ""
	}

	statuses := make(map[string]SourceStatus, len(sourceIDs))
	for _, id := range sourceIDs {
		statuses[id] = StatusPending
	}
	t.current = &sessionState{
		id:        uuid.NewString(),
		statuses:  statuses,
		total:     len(statuses),
		startedAt: t.now(),
	}
	return t.current.id
}

// MarkFetching flags a source as in flight.
func (t *SessionTracker) MarkFetching(sourceID string) {
	t.mark(sourceID, StatusFetching)
}

// MarkDone resolves a source successfully.
func (t *SessionTracker) MarkDone(sourceID string) {
	t.mark(sourceID, StatusDone)
}

// MarkFailed resolves a source with an error.
func (t *SessionTracker) MarkFailed(sourceID string) {
	t.mark(sourceID, StatusFailed)
}

func (t *SessionTracker) mark(sourceID string, status SourceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return
	}
	prev, ok := t.current.statuses[sourceID]
	if !ok {
		return
	}
	t.current.statuses[sourceID] = status

	resolved := status == StatusDone || status == StatusFailed
	wasResolved := prev == StatusDone || prev == StatusFailed
	if resolved && !wasResolved {
		t.current.completed++
	}
	if t.current.completed >= t.current.total {
		t.current = nil
	}
}

// Snapshot reports the active session, if any. An expired session is
// dropped here rather than waiting for its goroutines.
func (t *SessionTracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Progress{}
	}
	if t.now().Sub(t.current.startedAt) > t.ttl {
		t.current = nil
		return Progress{}
	}

	s := t.current
	p := Progress{
		Active:    true,
		SessionID: s.id,
		Total:     s.total,
		Completed: s.completed,
		Percent:   float64(s.completed) / float64(s.total) * 100,
	}
	for id, st := range s.statuses {
		p.Sources = append(p.Sources, SourceProgress{SourceID: id, Status: st})
	}
	sort.Slice(p.Sources, func(i, j int) bool {
		return p.Sources[i].SourceID < p.Sources[j].SourceID
	})
	return p
}
