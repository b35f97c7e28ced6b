package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngagementStorageRoundTrip(t *testing.T) {
	variants := []Engagement{
		HackerNewsEngagement{Upvotes: 340, Comments: 120},
		RedditEngagement{Upvotes: 9500, Comments: 410},
		GitHubEngagement{Stars: 1250, Forks: 87},
		YouTubeEngagement{Views: 500000, Likes: 21000},
		MediumEngagement{Claps: 760},
		RegistryEngagement{Downloads: 43000},
	}
	for _, e := range variants {
		data, err := MarshalEngagement(e)
		require.NoError(t, err)
		got, err := UnmarshalEngagement(data)
		require.NoError(t, err)
		assert.Equal(t, e, got, "round trip for kind %s", e.Kind())
	}
}

func TestEngagementNilRoundTrip(t *testing.T) {
	data, err := MarshalEngagement(nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	got, err := UnmarshalEngagement("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnmarshalEngagementUnknownKind(t *testing.T) {
	_, err := UnmarshalEngagement(`{"kind":"telegraph","counters":{"beeps":3}}`)
	assert.Error(t, err)
}

func TestEngagementTotal(t *testing.T) {
	assert.Equal(t, 0.0, EngagementTotal(nil))
	assert.Equal(t, 460.0, EngagementTotal(HackerNewsEngagement{Upvotes: 340, Comments: 120}))
	assert.Equal(t, 43000.0, EngagementTotal(RegistryEngagement{Downloads: 43000}))
}

func TestMetricValue(t *testing.T) {
	e := YouTubeEngagement{Views: 1000, Likes: 50}
	assert.Equal(t, 1000.0, MetricValue(e, MetricViews))
	assert.Equal(t, 50.0, MetricValue(e, MetricLikes))
	assert.Equal(t, 0.0, MetricValue(e, MetricClaps))
	assert.Equal(t, 0.0, MetricValue(nil, MetricViews))
}

// API responses expose the concrete counter fields, not the storage
// envelope.
func TestEngagementJSONShape(t *testing.T) {
	it := Item{ID: "gh:owner/repo", Engagement: GitHubEngagement{Stars: 12, Forks: 3}}
	b, err := json.Marshal(it)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"engagement":{"stars":12,"forks":3}`)
}
