// Package content defines the shared data model: items, source
// descriptors, and the enumerations used across fetching, scoring
// and serving.
package content

import (
	"fmt"
	"sort"
	"time"
)

// Category groups sources for client-side filtering.
type Category string

const (
	CategoryNews      Category = "news"
	CategoryResearch  Category = "research"
	CategoryCode      Category = "code"
	CategoryVideo     Category = "video"
	CategoryCommunity Category = "community"
)

// AllCategories returns all known categories.
func AllCategories() []Category {
	return []Category{
		CategoryNews,
		CategoryResearch,
		CategoryCode,
		CategoryVideo,
		CategoryCommunity,
	}
}

// ParseCategory validates a category string. Empty means no filter.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", nil
	}
	for _, c := range AllCategories() {
		if Category(s) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// SourceKind identifies the engagement shape a source produces.
// Kinds with no metric profile (plain feeds) carry no engagement.
type SourceKind string

const (
	KindFeed       SourceKind = "feed"
	KindHackerNews SourceKind = "hackernews"
	KindReddit     SourceKind = "reddit"
	KindGitHub     SourceKind = "github"
	KindYouTube    SourceKind = "youtube"
	KindMedium     SourceKind = "medium"
	KindRegistry   SourceKind = "registry"
)

// FetchMethod is how a source's content is retrieved.
type FetchMethod string

const (
	MethodFeed   FetchMethod = "feed"
	MethodAPI    FetchMethod = "api"
	MethodScrape FetchMethod = "scrape"
)

// QualityTier is the editorial trust level of a source. It supplies
// the engagement baseline for items that carry no metrics.
type QualityTier string

const (
	TierOfficial    QualityTier = "official"
	TierEstablished QualityTier = "established"
	TierCommunity   QualityTier = "community"
	TierMinimal     QualityTier = "minimal"
)

// TimeRange bounds how far back items are considered.
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
)

// ParseTimeRange maps a query value to a TimeRange, defaulting to day.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return RangeDay, nil
	case RangeDay, RangeWeek, RangeMonth:
		return TimeRange(s), nil
	}
	return "", fmt.Errorf("unknown time range %q", s)
}

// Duration returns the window covered by the range.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// FeedMode selects the ranking formula for the feed endpoint.
type FeedMode string

const (
	ModeHot    FeedMode = "hot"
	ModeRising FeedMode = "rising"
	ModeTop    FeedMode = "top"

	// ModeTrending is the default cross-source ranking served by the
	// trending endpoint. It is not accepted as a feed query value.
	ModeTrending FeedMode = "trending"
)

// ParseFeedMode maps a query value to a FeedMode, defaulting to hot.
func ParseFeedMode(s string) (FeedMode, error) {
	switch FeedMode(s) {
	case "":
		return ModeHot, nil
	case ModeHot, ModeRising, ModeTop:
		return FeedMode(s), nil
	}
	return "", fmt.Errorf("unknown feed mode %q", s)
}

// Item is the standardized data model for all sources.
type Item struct {
	ID          string     `json:"id" db:"id"`
	SourceID    string     `json:"sourceId" db:"source_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Author      string     `json:"author,omitempty" db:"author"`
	URL         string     `json:"url" db:"url"`
	ImageURL    string     `json:"imageUrl,omitempty" db:"image_url"`
	Tags        []string   `json:"tags,omitempty" db:"-"`
	Engagement  Engagement `json:"engagement,omitempty" db:"-"`
	PublishedAt time.Time  `json:"publishedAt" db:"published_at"`
	FetchedAt   time.Time  `json:"fetchedAt" db:"fetched_at"`

	// Derived per request, never persisted.
	TrendingScore   float64  `json:"trendingScore" db:"-"`
	VelocityScore   float64  `json:"velocityScore" db:"-"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty" db:"-"`

	TagsJSON       string `json:"-" db:"tags"`
	EngagementJSON string `json:"-" db:"engagement"`
}

// ScrapeRules holds the CSS selectors for scrape-method sources.
// Item scopes each entry; the rest select within that scope. URL
// reads the href attribute of its match.
type ScrapeRules struct {
	Item        string `yaml:"item" json:"item"`
	Title       string `yaml:"title" json:"title"`
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
}

// SourceConfig describes one registered source.
type SourceConfig struct {
	ID        string       `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	Category  Category     `yaml:"category" json:"category"`
	Kind      SourceKind   `yaml:"kind" json:"kind"`
	Method    FetchMethod  `yaml:"method" json:"method"`
	URL       string       `yaml:"url" json:"url"`
	NeedsAuth bool         `yaml:"needs_auth,omitempty" json:"needsAuth,omitempty"`
	Priority  int          `yaml:"priority" json:"priority"`
	Quality   QualityTier  `yaml:"quality" json:"quality"`
	Scrape    *ScrapeRules `yaml:"scrape,omitempty" json:"scrape,omitempty"`
}

// SourceOverride is a runtime adjustment layered over a SourceConfig.
// Priority zero means not overridden.
type SourceOverride struct {
	SourceID string `json:"sourceId" db:"source_id"`
	Enabled  bool   `json:"enabled" db:"enabled"`
	Priority int    `json:"priority,omitempty" db:"priority"`
}

// SourceHealth is the last known fetch outcome for a source. Records
// are overwritten whole on every attempt.
type SourceHealth struct {
	SourceID            string    `json:"sourceId" db:"source_id"`
	LastAttemptAt       time.Time `json:"lastAttemptAt" db:"last_attempt_at"`
	LastSuccessAt       time.Time `json:"lastSuccessAt" db:"last_success_at"`
	LastItemCount       int       `json:"lastItemCount" db:"last_item_count"`
	ConsecutiveFailures int       `json:"consecutiveFailures" db:"consecutive_failures"`
	LastError           string    `json:"lastError,omitempty" db:"last_error"`
}

// Snapshot is one observation of an item's total engagement, used to
// derive velocity from consecutive observations.
type Snapshot struct {
	ItemID string    `json:"itemId" db:"item_id"`
	Total  float64   `json:"total" db:"total"`
	At     time.Time `json:"at" db:"taken_at"`
}

// MergeItems combines a cached batch with a freshly fetched one,
// deduplicating by item ID. The cached instance wins so that scores
// stay stable within a serving window.
func MergeItems(cached, fetched []Item) []Item {
	merged := make([]Item, 0, len(cached)+len(fetched))
	seen := make(map[string]struct{}, len(cached))
	for _, it := range cached {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		merged = append(merged, it)
	}
	for _, it := range fetched {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		merged = append(merged, it)
	}
	return merged
}

// SortByPublished orders items newest first, a stable default before
// any scoring pass runs.
func SortByPublished(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
}
