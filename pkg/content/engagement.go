package content

import (
	"encoding/json"
	"fmt"
)

// Metric names shared between engagement variants and the scoring
// profiles.
const (
	MetricUpvotes   = "upvotes"
	MetricComments  = "comments"
	MetricStars     = "stars"
	MetricForks     = "forks"
	MetricViews     = "views"
	MetricLikes     = "likes"
	MetricClaps     = "claps"
	MetricDownloads = "downloads"
)

// Metric is one named counter extracted from an engagement variant.
type Metric struct {
	Name  string
	Value float64
}

// Engagement is the per-platform counter set attached to an item.
// Each source kind has its own concrete variant; a nil Engagement
// means the source exposes no metrics. Adding a variant for a new
// platform means adding a type here and a case to decodeEngagement,
// nothing else compiles against the counters directly.
type Engagement interface {
	Kind() SourceKind
	Metrics() []Metric
}

// HackerNewsEngagement carries HN story counters.
type HackerNewsEngagement struct {
	Upvotes  int `json:"upvotes"`
	Comments int `json:"comments"`
}

func (HackerNewsEngagement) Kind() SourceKind { return KindHackerNews }

func (e HackerNewsEngagement) Metrics() []Metric {
	return []Metric{
		{Name: MetricUpvotes, Value: float64(e.Upvotes)},
		{Name: MetricComments, Value: float64(e.Comments)},
	}
}

// RedditEngagement carries subreddit post counters.
type RedditEngagement struct {
	Upvotes  int `json:"upvotes"`
	Comments int `json:"comments"`
}

func (RedditEngagement) Kind() SourceKind { return KindReddit }

func (e RedditEngagement) Metrics() []Metric {
	return []Metric{
		{Name: MetricUpvotes, Value: float64(e.Upvotes)},
		{Name: MetricComments, Value: float64(e.Comments)},
	}
}

// GitHubEngagement carries repository counters.
type GitHubEngagement struct {
	Stars int `json:"stars"`
	Forks int `json:"forks"`
}

func (GitHubEngagement) Kind() SourceKind { return KindGitHub }

func (e GitHubEngagement) Metrics() []Metric {
	return []Metric{
		{Name: MetricStars, Value: float64(e.Stars)},
		{Name: MetricForks, Value: float64(e.Forks)},
	}
}

// YouTubeEngagement carries video counters.
type YouTubeEngagement struct {
	Views int `json:"views"`
	Likes int `json:"likes"`
}

func (YouTubeEngagement) Kind() SourceKind { return KindYouTube }

func (e YouTubeEngagement) Metrics() []Metric {
	return []Metric{
		{Name: MetricViews, Value: float64(e.Views)},
		{Name: MetricLikes, Value: float64(e.Likes)},
	}
}

// MediumEngagement carries article counters.
type MediumEngagement struct {
	Claps int `json:"claps"`
}

func (MediumEngagement) Kind() SourceKind { return KindMedium }

func (e MediumEngagement) Metrics() []Metric {
	return []Metric{{Name: MetricClaps, Value: float64(e.Claps)}}
}

// RegistryEngagement carries package download counters.
type RegistryEngagement struct {
	Downloads int `json:"downloads"`
}

func (RegistryEngagement) Kind() SourceKind { return KindRegistry }

func (e RegistryEngagement) Metrics() []Metric {
	return []Metric{{Name: MetricDownloads, Value: float64(e.Downloads)}}
}

// EngagementTotal sums all counters of an engagement, the quantity
// tracked by snapshots for velocity. Nil engagement totals zero.
func EngagementTotal(e Engagement) float64 {
	if e == nil {
		return 0
	}
	var total float64
	for _, m := range e.Metrics() {
		total += m.Value
	}
	return total
}

// MetricValue returns a single named counter, or zero if the variant
// does not carry it.
func MetricValue(e Engagement, name string) float64 {
	if e == nil {
		return 0
	}
	for _, m := range e.Metrics() {
		if m.Name == name {
			return m.Value
		}
	}
	return 0
}

// engagementEnvelope is the storage encoding: the kind tag plus the
// raw counters, so rows stay decodable as variants evolve.
type engagementEnvelope struct {
	Kind     SourceKind         `json:"kind"`
	Counters map[string]float64 `json:"counters"`
}

// MarshalEngagement encodes an engagement for storage. Nil encodes to
// the empty string.
func MarshalEngagement(e Engagement) (string, error) {
	if e == nil {
		return "", nil
	}
	env := engagementEnvelope{Kind: e.Kind(), Counters: map[string]float64{}}
	for _, m := range e.Metrics() {
		env.Counters[m.Name] = m.Value
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal engagement: %w", err)
	}
	return string(b), nil
}

// UnmarshalEngagement decodes a stored engagement. The empty string
// decodes to nil.
func UnmarshalEngagement(data string) (Engagement, error) {
	if data == "" {
		return nil, nil
	}
	var env engagementEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, fmt.Errorf("unmarshal engagement: %w", err)
	}
	return decodeEngagement(env)
}

func decodeEngagement(env engagementEnvelope) (Engagement, error) {
	count := func(name string) int { return int(env.Counters[name]) }
	switch env.Kind {
	case KindHackerNews:
		return HackerNewsEngagement{Upvotes: count(MetricUpvotes), Comments: count(MetricComments)}, nil
	case KindReddit:
		return RedditEngagement{Upvotes: count(MetricUpvotes), Comments: count(MetricComments)}, nil
	case KindGitHub:
		return GitHubEngagement{Stars: count(MetricStars), Forks: count(MetricForks)}, nil
	case KindYouTube:
		return YouTubeEngagement{Views: count(MetricViews), Likes: count(MetricLikes)}, nil
	case KindMedium:
		return MediumEngagement{Claps: count(MetricClaps)}, nil
	case KindRegistry:
		return RegistryEngagement{Downloads: count(MetricDownloads)}, nil
	}
	return nil, fmt.Errorf("unknown engagement kind %q", env.Kind)
}
