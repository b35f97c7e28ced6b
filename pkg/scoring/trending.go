package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"trendfeed/pkg/content"
)

// Weights are the signal weights of the default trending formula.
type Weights struct {
	Priority   float64 `yaml:"priority" json:"priority"`
	Engagement float64 `yaml:"engagement" json:"engagement"`
	Recency    float64 `yaml:"recency" json:"recency"`
	Keyword    float64 `yaml:"keyword" json:"keyword"`
}

// DefaultWeights returns the standard signal mix.
func DefaultWeights() Weights {
	return Weights{Priority: 0.15, Engagement: 0.50, Recency: 0.25, Keyword: 0.10}
}

// Tie margin on the 0-100 scale: scores closer than this are ordered
// by absolute engagement instead.
const tieEpsilon = 0.01

// Floor below which percentile ranks are dampened so near-zero items
// cannot ride a high rank in a weak group.
const percentileFloor = 0.15

// Config tunes an Engine. Zero values fall back to defaults.
type Config struct {
	Weights           Weights
	RecencyHalfLife   time.Duration
	Profiles          map[content.SourceKind]Profile
	UsePercentiles    bool
	CategoryRebalance bool
	Now               func() time.Time
}

// Engine computes trending and feed-mode scores for item batches.
type Engine struct {
	weights        Weights
	halfLife       time.Duration
	profiles       map[content.SourceKind]Profile
	usePercentiles bool
	rebalance      bool
	now            func() time.Time
}

// NewEngine creates a scoring engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 24 * time.Hour
	}
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		weights:        cfg.Weights,
		halfLife:       cfg.RecencyHalfLife,
		profiles:       cfg.Profiles,
		usePercentiles: cfg.UsePercentiles,
		rebalance:      cfg.CategoryRebalance,
		now:            cfg.Now,
	}
}

// Input carries the per-request context a ranking pass needs beyond
// the items themselves.
type Input struct {
	// Sources maps source ID to its config, for kind, category,
	// priority and quality lookups.
	Sources map[string]content.SourceConfig
	// Priorities are effective priorities (1-5) after runtime
	// overrides. Missing entries fall back to the source config.
	Priorities map[string]int
	// Keywords are the boost keywords. Empty means no keyword signal.
	Keywords []string
	// Velocities maps item ID to engagement units per hour.
	Velocities map[string]float64
}

// ranked pairs an item with the intermediate signals the sort and
// rebalance passes need after scores are assigned.
type ranked struct {
	item content.Item
	abs  float64 // absolute normalized engagement
}

// RankTrending scores a batch with the default cross-source formula
// and returns it sorted best first. Scores land on a 0-100 scale.
func (e *Engine) RankTrending(items []content.Item, in Input) []content.Item {
	if len(items) == 0 {
		return nil
	}
	now := e.now()

	batch := make([]ranked, len(items))
	for i, it := range items {
		batch[i] = ranked{item: it, abs: e.absoluteEngagement(it, in)}
	}

	// Engagement signal: absolute score, optionally blended with the
	// intra-source-kind percentile rank so a solid HN story and a
	// solid repo can compete despite different counter magnitudes.
	engagement := make([]float64, len(batch))
	if e.usePercentiles {
		pct := e.percentiles(batch, in)
		for i := range batch {
			p := pct[i]
			if batch[i].abs < percentileFloor {
				p *= batch[i].abs / percentileFloor
			}
			engagement[i] = 0.7*p + 0.3*batch[i].abs
		}
	} else {
		for i := range batch {
			engagement[i] = batch[i].abs
		}
	}

	for i := range batch {
		it := &batch[i].item
		matched := matchKeywords(*it, in.Keywords)
		it.MatchedKeywords = matched

		keyword := 0.0
		if len(in.Keywords) > 0 {
			keyword = float64(len(matched)) / float64(len(in.Keywords))
		}

		score := e.weights.Priority*e.priorityScore(*it, in) +
			e.weights.Engagement*engagement[i] +
			e.weights.Recency*e.recencyScore(it.PublishedAt, now) +
			e.weights.Keyword*keyword

		it.TrendingScore = clamp100(score * 100)
		it.VelocityScore = velocityOf(*it, in)
	}

	sortRanked(batch)

	if e.rebalance {
		e.rebalanceCategories(batch, in)
		sortRanked(batch)
	}

	out := make([]content.Item, len(batch))
	for i := range batch {
		out[i] = batch[i].item
	}
	return out
}

// absoluteEngagement is the normalized engagement in [0,1]: the
// profile score when the item carries metrics, the source quality
// baseline when it does not.
func (e *Engine) absoluteEngagement(it content.Item, in Input) float64 {
	if it.Engagement != nil {
		if p, ok := e.profiles[it.Engagement.Kind()]; ok {
			return p.Score(it.Engagement)
		}
	}
	src := in.Sources[it.SourceID]
	return QualityBaseline(src.Quality)
}

// percentiles ranks each item within its source-kind group. Rank is
// position/(n-1); a single-item group sits at the median.
func (e *Engine) percentiles(batch []ranked, in Input) []float64 {
	groups := make(map[content.SourceKind][]int)
	for i := range batch {
		kind := e.kindOf(batch[i].item, in)
		groups[kind] = append(groups[kind], i)
	}

	pct := make([]float64, len(batch))
	for _, idxs := range groups {
		if len(idxs) == 1 {
			pct[idxs[0]] = 0.5
			continue
		}
		sort.SliceStable(idxs, func(a, b int) bool {
			if batch[idxs[a]].abs != batch[idxs[b]].abs {
				return batch[idxs[a]].abs < batch[idxs[b]].abs
			}
			return batch[idxs[a]].item.ID < batch[idxs[b]].item.ID
		})
		n := float64(len(idxs) - 1)
		for rank, idx := range idxs {
			pct[idx] = float64(rank) / n
		}
	}
	return pct
}

func (e *Engine) kindOf(it content.Item, in Input) content.SourceKind {
	if it.Engagement != nil {
		return it.Engagement.Kind()
	}
	if src, ok := in.Sources[it.SourceID]; ok && src.Kind != "" {
		return src.Kind
	}
	return content.KindFeed
}

// priorityScore maps the effective source priority 1-5 onto [0,1].
func (e *Engine) priorityScore(it content.Item, in Input) float64 {
	p, ok := in.Priorities[it.SourceID]
	if !ok {
		p = in.Sources[it.SourceID].Priority
	}
	if p < 1 {
		p = 1
	}
	if p > 5 {
		p = 5
	}
	return float64(p-1) / 4
}

// recencyScore decays exponentially with age, halving every halfLife.
func (e *Engine) recencyScore(published, now time.Time) float64 {
	age := now.Sub(published).Hours()
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age / e.halfLife.Hours())
}

// rebalanceCategories squeezes each sufficiently large category group
// toward a common band so one loud category cannot monopolize a mixed
// response. Groups under 3 items or with zero spread keep their raw
// scores.
func (e *Engine) rebalanceCategories(batch []ranked, in Input) {
	groups := make(map[content.Category][]int)
	for i := range batch {
		cat := in.Sources[batch[i].item.SourceID].Category
		groups[cat] = append(groups[cat], i)
	}

	for _, idxs := range groups {
		if len(idxs) < 3 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, idx := range idxs {
			s := batch[idx].item.TrendingScore
			if s < lo {
				lo = s
			}
			if s > hi {
				hi = s
			}
		}
		if hi-lo < 1e-9 {
			continue
		}
		for _, idx := range idxs {
			s := batch[idx].item.TrendingScore
			rescaled := 15 + (s-lo)/(hi-lo)*70
			batch[idx].item.TrendingScore = clamp100(0.8*rescaled + 0.2*s)
		}
	}
}

// sortRanked orders by score descending; scores within tieEpsilon are
// ordered by absolute engagement so ties resolve on substance.
func sortRanked(batch []ranked) {
	sort.SliceStable(batch, func(i, j int) bool {
		si, sj := batch[i].item.TrendingScore, batch[j].item.TrendingScore
		if math.Abs(si-sj) < tieEpsilon {
			return batch[i].abs > batch[j].abs
		}
		return si > sj
	})
}

// matchKeywords returns the boost keywords found in the item's title,
// description or tags, case-insensitively.
func matchKeywords(it content.Item, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	haystack := strings.ToLower(it.Title + " " + it.Description + " " + strings.Join(it.Tags, " "))
	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func velocityOf(it content.Item, in Input) float64 {
	v := in.Velocities[it.ID]
	if v < 0 {
		return 0
	}
	return v
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
