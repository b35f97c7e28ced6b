// Package adapter implements the per-source fetchers and the registry
// that resolves which fetcher serves a configured source.
package adapter

import (
	"context"
	"time"

	"trendfeed/pkg/content"
)

const userAgent = "trendfeed/1.0"

// Adapter fetches fresh items for a single configured source. The window
// bounds how far back an adapter should reach when the upstream supports
// time-scoped queries; adapters that cannot scope simply return what the
// upstream offers.
type Adapter interface {
	Fetch(ctx context.Context, src content.SourceConfig, window time.Duration) ([]content.Item, error)
}

// Options carries the credentials and tuning knobs for the built-in
// adapter set. Zero values disable the corresponding authenticated
// adapters rather than failing.
type Options struct {
	GitHubToken        string
	RedditClientID     string
	RedditClientSecret string
	HackerNewsLimit    int
}

// Registry resolves the adapter for a source by fetch method and kind.
type Registry struct {
	opts   Options
	feed   Adapter
	scrape Adapter
	api    map[content.SourceKind]Adapter
}

// NewRegistry builds the default adapter set.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		opts:   opts,
		feed:   NewRSS(),
		scrape: NewScrape(),
		api: map[content.SourceKind]Adapter{
			content.KindHackerNews: NewHackerNews(opts.HackerNewsLimit),
			content.KindGitHub:     NewGitHub(opts.GitHubToken),
		},
	}
	if opts.RedditClientID != "" && opts.RedditClientSecret != "" {
		r.api[content.KindReddit] = NewReddit(opts.RedditClientID, opts.RedditClientSecret)
	}
	return r
}

// Lookup returns the adapter serving src, or false when the source
// cannot be fetched: an API kind with no adapter, a scrape source
// without rules, or an auth-gated source without credentials.
func (r *Registry) Lookup(src content.SourceConfig) (Adapter, bool) {
	if src.NeedsAuth && !r.hasAuth(src.Kind) {
		return nil, false
	}
	switch src.Method {
	case content.MethodFeed:
		return r.feed, true
	case content.MethodScrape:
		if src.Scrape == nil {
			return nil, false
		}
		return r.scrape, true
	case content.MethodAPI:
		a, ok := r.api[src.Kind]
		return a, ok
	default:
		return nil, false
	}
}

func (r *Registry) hasAuth(kind content.SourceKind) bool {
	switch kind {
	case content.KindGitHub:
		return r.opts.GitHubToken != ""
	case content.KindReddit:
		return r.opts.RedditClientID != "" && r.opts.RedditClientSecret != ""
	default:
		return false
	}
}

func itemID(src content.SourceConfig, external string) string {
	return src.ID + ":" + external
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
