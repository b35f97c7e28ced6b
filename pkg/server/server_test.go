package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendfeed/internal/cache"
	"trendfeed/internal/refresh"
	"trendfeed/pkg/content"
	"trendfeed/pkg/scoring"
)

type fakeServerStore struct {
	snapshots map[string][]content.Snapshot
	counts    map[string]int
	health    map[string]content.SourceHealth
	overrides map[string]content.SourceOverride
	keywords  []string

	overridesErr error
	snapshotsErr error
}

func (f *fakeServerStore) SnapshotsSince(ctx context.Context, itemIDs []string, since time.Time) (map[string][]content.Snapshot, error) {
	if f.snapshotsErr != nil {
		return nil, f.snapshotsErr
	}
	return f.snapshots, nil
}

func (f *fakeServerStore) CountItemsBySource(ctx context.Context) (map[string]int, error) {
	return f.counts, nil
}

func (f *fakeServerStore) SourceHealth(ctx context.Context) (map[string]content.SourceHealth, error) {
	return f.health, nil
}

func (f *fakeServerStore) SourceOverrides(ctx context.Context) (map[string]content.SourceOverride, error) {
	if f.overridesErr != nil {
		return nil, f.overridesErr
	}
	return f.overrides, nil
}

func (f *fakeServerStore) BoostKeywords(ctx context.Context) ([]string, error) {
	return f.keywords, nil
}

type fakeRefresher struct {
	mu          sync.Mutex
	result      refresh.Result
	err         error
	calls       int
	lastSources []content.SourceConfig
	lastRange   content.TimeRange
	progress    refresh.Progress
}

func (f *fakeRefresher) Refresh(ctx context.Context, sources []content.SourceConfig, rng content.TimeRange) (refresh.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSources = sources
	f.lastRange = rng
	if f.err != nil {
		return refresh.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeRefresher) Progress() refresh.Progress { return f.progress }

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSources() []content.SourceConfig {
	return []content.SourceConfig{
		{ID: "hn", Name: "Hacker News", Category: content.CategoryCode, Kind: content.KindHackerNews, Method: content.MethodAPI, Priority: 4, Quality: content.TierCommunity},
		{ID: "blog", Name: "Example Blog", Category: content.CategoryNews, Kind: content.KindFeed, Method: content.MethodFeed, URL: "https://example.com/feed", Priority: 3, Quality: content.TierEstablished},
	}
}

func serverItem(srcID, ext string, age time.Duration, e content.Engagement) content.Item {
	now := time.Now().UTC()
	return content.Item{
		ID:          srcID + ":" + ext,
		SourceID:    srcID,
		Title:       ext,
		URL:         "https://example.com/" + ext,
		Engagement:  e,
		PublishedAt: now.Add(-age),
		FetchedAt:   now,
	}
}

func newTestServer(store *fakeServerStore, ref *fakeRefresher) *Server {
	engine := scoring.NewEngine(scoring.Config{UsePercentiles: true, CategoryRebalance: true})
	results := cache.New(time.Minute, 16, discardLogger())
	return New(store, ref, engine, results, Options{Sources: testSources()}, discardLogger())
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

type feedRespBody struct {
	Success  bool   `json:"success"`
	Count    int    `json:"count"`
	Cached   bool   `json:"cached"`
	Mode     string `json:"mode"`
	Items    []struct {
		ID              string   `json:"id"`
		TrendingScore   float64  `json:"trendingScore"`
		VelocityScore   float64  `json:"velocityScore"`
		MatchedKeywords []string `json:"matchedKeywords"`
	} `json:"items"`
	Failures []refresh.SourceFailure `json:"failures"`
}

func decodeFeed(t *testing.T, rr *httptest.ResponseRecorder) feedRespBody {
	t.Helper()
	var body feedRespBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&fakeServerStore{}, &fakeRefresher{})
	rr := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestFeedEndpointRanksAndCaches(t *testing.T) {
	ref := &fakeRefresher{result: refresh.Result{Items: []content.Item{
		serverItem("hn", "low", time.Hour, content.HackerNewsEngagement{Upvotes: 10, Comments: 2}),
		serverItem("hn", "high", time.Hour, content.HackerNewsEngagement{Upvotes: 900, Comments: 300}),
	}}}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeFeed(t, rr)
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "hot", body.Mode)
	assert.False(t, body.Cached)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "hn:high", body.Items[0].ID)
	assert.Greater(t, body.Items[0].TrendingScore, body.Items[1].TrendingScore)

	// The identical query is served from the result cache.
	rr = doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeFeed(t, rr)
	assert.True(t, body.Cached)
	assert.Equal(t, 1, ref.callCount())
}

func TestFeedEndpointFiltersSourcesAndRange(t *testing.T) {
	ref := &fakeRefresher{}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed?category=code&source=hn&range=week&mode=top")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, ref.lastSources, 1)
	assert.Equal(t, "hn", ref.lastSources[0].ID)
	assert.Equal(t, content.RangeWeek, ref.lastRange)

	body := decodeFeed(t, rr)
	assert.Equal(t, "top", body.Mode)
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Items)
}

func TestFeedEndpointRejectsBadParams(t *testing.T) {
	s := newTestServer(&fakeServerStore{}, &fakeRefresher{})

	for _, target := range []string{
		"/api/v1/feed?mode=spicy",
		"/api/v1/feed?range=year",
		"/api/v1/feed?category=sports",
		"/api/v1/feed?mode=trending",
	} {
		rr := doRequest(s, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestFeedMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeServerStore{}, &fakeRefresher{})
	rr := doRequest(s, http.MethodPost, "/api/v1/feed")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTrendingEndpointMode(t *testing.T) {
	ref := &fakeRefresher{result: refresh.Result{Items: []content.Item{
		serverItem("blog", "a", time.Hour, nil),
	}}}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/trending")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeFeed(t, rr)
	assert.Equal(t, "trending", body.Mode)
	assert.Equal(t, 1, body.Count)
	assert.Positive(t, body.Items[0].TrendingScore)
}

func TestFeedSurfacesFailures(t *testing.T) {
	ref := &fakeRefresher{result: refresh.Result{
		Items:    []content.Item{serverItem("blog", "a", time.Hour, nil)},
		Failures: []refresh.SourceFailure{{SourceID: "hn", Error: "status 503"}},
	}}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeFeed(t, rr)
	assert.True(t, body.Success)
	require.Len(t, body.Failures, 1)
	assert.Equal(t, "hn", body.Failures[0].SourceID)
}

func TestFeedRefreshErrorIs500(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("store gone")}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "store gone")
}

func TestFeedOverridesErrorIs500(t *testing.T) {
	store := &fakeServerStore{overridesErr: errors.New("db locked")}
	s := newTestServer(store, &fakeRefresher{})

	rr := doRequest(s, http.MethodGet, "/api/v1/feed")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestFeedExcludesDisabledSources(t *testing.T) {
	store := &fakeServerStore{overrides: map[string]content.SourceOverride{
		"hn": {SourceID: "hn", Enabled: false},
	}}
	ref := &fakeRefresher{}
	s := newTestServer(store, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, http.StatusOK, rr.Code)

	require.Len(t, ref.lastSources, 1)
	assert.Equal(t, "blog", ref.lastSources[0].ID)
}

func TestFeedVelocityFromSnapshots(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeServerStore{snapshots: map[string][]content.Snapshot{
		"hn:a": {
			{ItemID: "hn:a", Total: 100, At: now.Add(-2 * time.Hour)},
			{ItemID: "hn:a", Total: 160, At: now},
		},
	}}
	ref := &fakeRefresher{result: refresh.Result{Items: []content.Item{
		serverItem("hn", "a", time.Hour, content.HackerNewsEngagement{Upvotes: 150, Comments: 10}),
	}}}
	s := newTestServer(store, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/feed?mode=hot")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeFeed(t, rr)
	require.Len(t, body.Items, 1)
	assert.InDelta(t, 30.0, body.Items[0].VelocityScore, 0.01)
}

func TestFeedKeywordsFromStore(t *testing.T) {
	store := &fakeServerStore{keywords: []string{"reader"}}
	ref := &fakeRefresher{result: refresh.Result{Items: []content.Item{
		serverItem("blog", "a-feed-reader", time.Hour, nil),
	}}}
	s := newTestServer(store, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/trending")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeFeed(t, rr)
	require.Len(t, body.Items, 1)
	assert.Equal(t, []string{"reader"}, body.Items[0].MatchedKeywords)
}

func TestRefreshStatusEndpoint(t *testing.T) {
	ref := &fakeRefresher{}
	s := newTestServer(&fakeServerStore{}, ref)

	rr := doRequest(s, http.MethodGet, "/api/v1/refresh/status")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"active":false}`, rr.Body.String())

	ref.progress = refresh.Progress{
		Active:    true,
		SessionID: "abc",
		Total:     2,
		Completed: 1,
		Percent:   50,
		Sources: []refresh.SourceProgress{
			{SourceID: "blog", Status: refresh.StatusDone},
			{SourceID: "hn", Status: refresh.StatusFetching},
		},
	}
	rr = doRequest(s, http.MethodGet, "/api/v1/refresh/status")
	var p refresh.Progress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.True(t, p.Active)
	assert.Equal(t, 2, p.Total)
	assert.Len(t, p.Sources, 2)
}

func TestSourcesEndpoint(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := &fakeServerStore{
		counts: map[string]int{"hn": 42},
		overrides: map[string]content.SourceOverride{
			"blog": {SourceID: "blog", Enabled: false, Priority: 5},
		},
		health: map[string]content.SourceHealth{
			"hn": {SourceID: "hn", LastAttemptAt: now, LastSuccessAt: now, LastItemCount: 42},
		},
	}
	s := newTestServer(store, &fakeRefresher{})

	rr := doRequest(s, http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int `json:"count"`
		Data  []struct {
			ID                string                `json:"id"`
			Enabled           bool                  `json:"enabled"`
			EffectivePriority int                   `json:"effectivePriority"`
			Items             int                   `json:"items"`
			Health            *content.SourceHealth `json:"health"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)

	// Sorted by id: blog first.
	blog, hn := resp.Data[0], resp.Data[1]
	assert.Equal(t, "blog", blog.ID)
	assert.False(t, blog.Enabled)
	assert.Equal(t, 5, blog.EffectivePriority)
	assert.Nil(t, blog.Health)

	assert.Equal(t, "hn", hn.ID)
	assert.True(t, hn.Enabled)
	assert.Equal(t, 4, hn.EffectivePriority)
	assert.Equal(t, 42, hn.Items)
	require.NotNil(t, hn.Health)
	assert.Equal(t, 42, hn.Health.LastItemCount)
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	ref := &fakeRefresher{}
	s := newTestServer(&fakeServerStore{}, ref)

	doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, 1, ref.callCount())
	doRequest(s, http.MethodGet, "/api/v1/feed")
	require.Equal(t, 1, ref.callCount())

	rr := doRequest(s, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rr.Code)

	doRequest(s, http.MethodGet, "/api/v1/feed")
	assert.Equal(t, 2, ref.callCount())
}

func TestCacheInvalidateRequiresPost(t *testing.T) {
	s := newTestServer(&fakeServerStore{}, &fakeRefresher{})
	rr := doRequest(s, http.MethodGet, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
