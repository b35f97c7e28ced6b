package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendfeed/pkg/content"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(Options{
		RedditClientID:     "id",
		RedditClientSecret: "secret",
	})

	tests := []struct {
		name string
		src  content.SourceConfig
		want bool
	}{
		{
			name: "feed source",
			src:  content.SourceConfig{ID: "blog", Kind: content.KindFeed, Method: content.MethodFeed},
			want: true,
		},
		{
			name: "scrape source with rules",
			src: content.SourceConfig{
				ID: "site", Kind: content.KindFeed, Method: content.MethodScrape,
				Scrape: &content.ScrapeRules{Item: ".story", Title: "h2", URL: "a"},
			},
			want: true,
		},
		{
			name: "scrape source without rules",
			src:  content.SourceConfig{ID: "site", Kind: content.KindFeed, Method: content.MethodScrape},
			want: false,
		},
		{
			name: "hackernews api",
			src:  content.SourceConfig{ID: "hn", Kind: content.KindHackerNews, Method: content.MethodAPI},
			want: true,
		},
		{
			name: "github api",
			src:  content.SourceConfig{ID: "gh", Kind: content.KindGitHub, Method: content.MethodAPI},
			want: true,
		},
		{
			name: "reddit api with credentials",
			src:  content.SourceConfig{ID: "rd", Kind: content.KindReddit, Method: content.MethodAPI, NeedsAuth: true},
			want: true,
		},
		{
			name: "api kind without adapter",
			src:  content.SourceConfig{ID: "yt", Kind: content.KindYouTube, Method: content.MethodAPI},
			want: false,
		},
		{
			name: "auth gated kind without credentials",
			src:  content.SourceConfig{ID: "yt", Kind: content.KindYouTube, Method: content.MethodFeed, NeedsAuth: true},
			want: false,
		},
		{
			name: "unknown method",
			src:  content.SourceConfig{ID: "x", Method: content.FetchMethod("push")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := reg.Lookup(tt.src)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.want, a != nil)
		})
	}
}

func TestRegistryLookupRedditWithoutCredentials(t *testing.T) {
	reg := NewRegistry(Options{})
	src := content.SourceConfig{ID: "rd", Kind: content.KindReddit, Method: content.MethodAPI, NeedsAuth: true}

	_, ok := reg.Lookup(src)
	assert.False(t, ok)
}

func TestHackerNewsFetch(t *testing.T) {
	now := time.Now().UTC()
	fresh := now.Add(-2 * time.Hour).Unix()
	stale := now.Add(-72 * time.Hour).Unix()

	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[1, 2, 3]")
	})
	mux.HandleFunc("/item/1.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":1,"title":"Show: a feed reader","url":"","score":120,"by":"pg","time":%d,"descendants":45,"type":"story"}`, fresh)
	})
	mux.HandleFunc("/item/2.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":2,"title":"Hiring","time":%d,"type":"job"}`, fresh)
	})
	mux.HandleFunc("/item/3.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":3,"title":"Old story","time":%d,"type":"story"}`, stale)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	hn := NewHackerNews(0)
	hn.baseURL = srv.URL

	src := content.SourceConfig{ID: "hn", Kind: content.KindHackerNews, Method: content.MethodAPI}
	items, err := hn.Fetch(context.Background(), src, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "hn:1", it.ID)
	assert.Equal(t, "hn", it.SourceID)
	assert.Equal(t, "Show: a feed reader", it.Title)
	assert.Equal(t, "pg", it.Author)
	assert.Equal(t, "https://news.ycombinator.com/item?id=1", it.URL)
	assert.Equal(t, content.HackerNewsEngagement{Upvotes: 120, Comments: 45}, it.Engagement)
	assert.WithinDuration(t, time.Unix(fresh, 0), it.PublishedAt, time.Second)
}

func TestHackerNewsLimit(t *testing.T) {
	now := time.Now().UTC().Add(-time.Hour).Unix()

	mux := http.NewServeMux()
	mux.HandleFunc("/topstories.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[1, 2]")
	})
	mux.HandleFunc("/item/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":1,"title":"Only one","score":10,"time":%d,"type":"story"}`, now)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	hn := NewHackerNews(1)
	hn.baseURL = srv.URL

	src := content.SourceConfig{ID: "hn", Kind: content.KindHackerNews, Method: content.MethodAPI}
	items, err := hn.Fetch(context.Background(), src, 24*time.Hour)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGitHubFetch(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{
			"total_count": 1,
			"items": [{
				"full_name": "octocat/feedkit",
				"html_url": "https://github.com/octocat/feedkit",
				"description": "A toolkit",
				"stargazers_count": 420,
				"forks_count": 37,
				"language": "Go",
				"topics": ["feeds", "rss"],
				"created_at": "2025-06-01T10:00:00Z",
				"owner": {"login": "octocat", "avatar_url": "https://avatars.example.com/octocat"}
			}]
		}`)
	}))
	defer srv.Close()

	g := NewGitHub("tok-123")
	src := content.SourceConfig{
		ID:     "gh-go",
		Kind:   content.KindGitHub,
		Method: content.MethodAPI,
		URL:    srv.URL + "/search/repositories?q=language:go",
	}

	items, err := g.Fetch(context.Background(), src, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Contains(t, gotQuery, "language:go")
	assert.Contains(t, gotQuery, "created:>")
	assert.Equal(t, "Bearer tok-123", gotAuth)

	it := items[0]
	assert.Equal(t, "gh-go:octocat/feedkit", it.ID)
	assert.Equal(t, "octocat/feedkit", it.Title)
	assert.Equal(t, "octocat", it.Author)
	assert.Equal(t, "https://avatars.example.com/octocat", it.ImageURL)
	assert.Equal(t, []string{"feeds", "rss", "Go"}, it.Tags)
	assert.Equal(t, content.GitHubEngagement{Stars: 420, Forks: 37}, it.Engagement)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), it.PublishedAt)
}

func TestGitHubFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGitHub("")
	src := content.SourceConfig{ID: "gh", Kind: content.KindGitHub, Method: content.MethodAPI, URL: srv.URL}

	_, err := g.Fetch(context.Background(), src, 24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestRSSFetch(t *testing.T) {
	recent := time.Now().UTC().Add(-2 * time.Hour)
	stale := time.Now().UTC().Add(-72 * time.Hour)

	feedXML := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Example Blog</title>
<item>
  <title>Fresh entry</title>
  <link>https://example.com/fresh</link>
  <guid>guid-fresh</guid>
  <description>Fresh body</description>
  <category>go</category>
  <pubDate>%s</pubDate>
</item>
<item>
  <title>No guid entry</title>
  <link>https://example.com/noguid</link>
  <pubDate>%s</pubDate>
</item>
<item>
  <title>Stale entry</title>
  <link>https://example.com/stale</link>
  <guid>guid-stale</guid>
  <pubDate>%s</pubDate>
</item>
</channel></rss>`,
		recent.Format(time.RFC1123Z), recent.Format(time.RFC1123Z), stale.Format(time.RFC1123Z))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML)
	}))
	defer srv.Close()

	rss := NewRSS()
	src := content.SourceConfig{ID: "blog", Kind: content.KindFeed, Method: content.MethodFeed, URL: srv.URL}

	items, err := rss.Fetch(context.Background(), src, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "blog:guid-fresh", items[0].ID)
	assert.Equal(t, "Fresh entry", items[0].Title)
	assert.Equal(t, "Fresh body", items[0].Description)
	assert.Equal(t, []string{"go"}, items[0].Tags)
	assert.Nil(t, items[0].Engagement)
	assert.WithinDuration(t, recent, items[0].PublishedAt, 2*time.Second)

	assert.Equal(t, "blog:https://example.com/noguid", items[1].ID)
}

func TestScrapeFetch(t *testing.T) {
	page := `<html><body>
<div class="story">
  <h2 class="headline"><a href="/posts/1">First post</a></h2>
  <p class="summary">Summary one</p>
  <span class="byline">alice</span>
</div>
<div class="story">
  <h2 class="headline"><a href="https://other.example.com/p/2">Second post</a></h2>
</div>
<div class="story">
  <h2 class="headline"></h2>
</div>
<div class="story">
  <h2 class="headline"><a href="/posts/1">First post again</a></h2>
</div>
</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	sc := NewScrape()
	src := content.SourceConfig{
		ID:     "site",
		Kind:   content.KindFeed,
		Method: content.MethodScrape,
		URL:    srv.URL,
		Scrape: &content.ScrapeRules{
			Item:        ".story",
			Title:       ".headline",
			URL:         ".headline a",
			Description: ".summary",
			Author:      ".byline",
		},
	}

	items, err := sc.Fetch(context.Background(), src, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "site:"+srv.URL+"/posts/1", first.ID)
	assert.Equal(t, "First post", first.Title)
	assert.Equal(t, srv.URL+"/posts/1", first.URL)
	assert.Equal(t, "Summary one", first.Description)
	assert.Equal(t, "alice", first.Author)
	assert.Nil(t, first.Engagement)

	second := items[1]
	assert.Equal(t, "https://other.example.com/p/2", second.URL)
	assert.Equal(t, "Second post", second.Title)
}

func TestScrapeFetchWithoutRules(t *testing.T) {
	sc := NewScrape()
	src := content.SourceConfig{ID: "site", Method: content.MethodScrape, URL: "https://example.com"}

	_, err := sc.Fetch(context.Background(), src, 24*time.Hour)
	require.Error(t, err)
}

func TestRedditFetch(t *testing.T) {
	now := time.Now().UTC()
	fresh := float64(now.Add(-3 * time.Hour).Unix())
	stale := float64(now.Add(-50 * time.Hour).Unix())

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		fmt.Fprint(w, `{"access_token":"tok-abc","expires_in":3600}`)
	})
	mux.HandleFunc("/r/golang/hot.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"data":{"children":[
			{"data":{"id":"p1","title":"Generics question","permalink":"/r/golang/comments/p1","selftext":"body","author":"gopher","score":321,"num_comments":57,"created_utc":%f}},
			{"data":{"id":"p2","title":"Weekly thread","stickied":true,"created_utc":%f}},
			{"data":{"id":"p3","title":"Old post","created_utc":%f}}
		]}}`, fresh, fresh, stale)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	rd := NewReddit("client-id", "client-secret")
	rd.authURL = srv.URL + "/token"
	rd.apiURL = srv.URL

	src := content.SourceConfig{
		ID:        "r-golang",
		Kind:      content.KindReddit,
		Method:    content.MethodAPI,
		URL:       "https://reddit.com/r/golang",
		NeedsAuth: true,
	}

	items, err := rd.Fetch(context.Background(), src, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Equal(t, "r-golang:p1", it.ID)
	assert.Equal(t, "Generics question", it.Title)
	assert.Equal(t, "https://reddit.com/r/golang/comments/p1", it.URL)
	assert.Equal(t, "gopher", it.Author)
	assert.Equal(t, []string{"golang"}, it.Tags)
	assert.Equal(t, content.RedditEngagement{Upvotes: 321, Comments: 57}, it.Engagement)
}

func TestSubredditFromURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "https://reddit.com/r/golang", want: "golang"},
		{raw: "https://www.reddit.com/r/programming/", want: "programming"},
		{raw: "https://reddit.com/golang", wantErr: true},
		{raw: "https://reddit.com/r/", wantErr: true},
	}

	for _, tt := range tests {
		got, err := subredditFromURL(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "hello...", truncate("hello world", 5))
}
