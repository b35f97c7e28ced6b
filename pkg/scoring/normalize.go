// Package scoring turns raw engagement counters into comparable
// scores and ranks item batches for the feed and trending endpoints.
package scoring

import (
	"math"

	"trendfeed/pkg/content"
)

// MetricSpec describes how one counter of a platform maps onto the
// shared scale. Baseline is solid performance, Viral is exceptional.
type MetricSpec struct {
	Name     string
	Weight   float64
	Baseline float64
	Viral    float64
}

// RatioSpec is an optional bonus for a healthy ratio between two
// counters, e.g. likes per view.
type RatioSpec struct {
	Numerator   string
	Denominator string
	Ideal       float64
	Weight      float64
}

// Profile is the full normalization recipe for one source kind.
type Profile struct {
	Metrics []MetricSpec
	Ratio   *RatioSpec
}

// DefaultProfiles returns the built-in per-platform recipes. A raw
// count means nothing across platforms, so each kind gets its own
// notion of solid and exceptional.
func DefaultProfiles() map[content.SourceKind]Profile {
	return map[content.SourceKind]Profile{
		content.KindHackerNews: {
			Metrics: []MetricSpec{
				{Name: content.MetricUpvotes, Weight: 0.7, Baseline: 50, Viral: 1500},
				{Name: content.MetricComments, Weight: 0.3, Baseline: 25, Viral: 800},
			},
		},
		content.KindReddit: {
			Metrics: []MetricSpec{
				{Name: content.MetricUpvotes, Weight: 0.6, Baseline: 500, Viral: 20000},
				{Name: content.MetricComments, Weight: 0.4, Baseline: 100, Viral: 3000},
			},
		},
		content.KindGitHub: {
			Metrics: []MetricSpec{
				{Name: content.MetricStars, Weight: 0.6, Baseline: 100, Viral: 10000},
				{Name: content.MetricForks, Weight: 0.4, Baseline: 20, Viral: 2000},
			},
		},
		content.KindYouTube: {
			Metrics: []MetricSpec{
				{Name: content.MetricViews, Weight: 0.7, Baseline: 10000, Viral: 1000000},
				{Name: content.MetricLikes, Weight: 0.3, Baseline: 500, Viral: 50000},
			},
			Ratio: &RatioSpec{
				Numerator:   content.MetricLikes,
				Denominator: content.MetricViews,
				Ideal:       0.04,
				Weight:      0.15,
			},
		},
		content.KindMedium: {
			Metrics: []MetricSpec{
				{Name: content.MetricClaps, Weight: 1.0, Baseline: 100, Viral: 5000},
			},
		},
		content.KindRegistry: {
			Metrics: []MetricSpec{
				{Name: content.MetricDownloads, Weight: 1.0, Baseline: 1000, Viral: 100000},
			},
		},
	}
}

// Score normalizes an engagement against the profile into [0,1].
func (p Profile) Score(e content.Engagement) float64 {
	var score, weights float64
	for _, spec := range p.Metrics {
		score += spec.Weight * scaleMetric(content.MetricValue(e, spec.Name), spec)
		weights += spec.Weight
	}
	if weights > 0 {
		score /= weights
	}

	if p.Ratio != nil {
		den := content.MetricValue(e, p.Ratio.Denominator)
		if den > 0 {
			actual := content.MetricValue(e, p.Ratio.Numerator) / den
			q := actual / p.Ratio.Ideal
			if q > 1 {
				q = 1
			}
			score *= 1 + q*p.Ratio.Weight
		}
	}

	return clamp01(score)
}

// scaleMetric maps a raw counter onto [0,1):
// [0,baseline] fills [0,0.4], (baseline,viral] fills (0.4,0.8], and
// beyond viral the last 0.2 is approached with diminishing returns so
// a 10x outlier cannot flatten everything else.
func scaleMetric(v float64, spec MetricSpec) float64 {
	switch {
	case v <= 0 || spec.Baseline <= 0 || spec.Viral <= spec.Baseline:
		return 0
	case v <= spec.Baseline:
		return v / spec.Baseline * 0.4
	case v <= spec.Viral:
		return 0.4 + (v-spec.Baseline)/(spec.Viral-spec.Baseline)*0.4
	default:
		return 0.8 + 0.2*(1-math.Sqrt(spec.Viral/v))
	}
}

// QualityBaseline is the engagement stand-in for sources that expose
// no metrics. Unknown tiers read as community.
func QualityBaseline(t content.QualityTier) float64 {
	switch t {
	case content.TierOfficial:
		return 0.70
	case content.TierEstablished:
		return 0.55
	case content.TierCommunity:
		return 0.40
	case content.TierMinimal:
		return 0.25
	default:
		return 0.40
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
