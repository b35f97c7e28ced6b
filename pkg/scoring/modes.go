package scoring

import (
	"math"
	"sort"

	"trendfeed/pkg/content"
)

// Velocity saturates on a log10 scale: 10^3.5 engagement units per
// hour normalizes to 1.0.
const velocityLogCeiling = 3.5

// Penalty applied to rising scores of items already in the top
// engagement quintile; rising is for climbers, not champions.
const risingPenalty = 0.6

// RankMode scores a batch with one of the feed-mode formulas and
// returns it sorted best first. Velocity in engagement units per hour
// is attached to every item for display regardless of mode.
func (e *Engine) RankMode(items []content.Item, mode content.FeedMode, in Input) []content.Item {
	if mode == content.ModeTrending {
		return e.RankTrending(items, in)
	}
	if len(items) == 0 {
		return nil
	}
	now := e.now()

	batch := make([]ranked, len(items))
	for i, it := range items {
		batch[i] = ranked{item: it, abs: e.absoluteEngagement(it, in)}
	}

	risingCutoff := topQuintileCutoff(batch)

	for i := range batch {
		it := &batch[i].item
		eng := batch[i].abs
		rec := e.recencyScore(it.PublishedAt, now)
		vel := velocityOf(*it, in)
		velNorm := normalizeVelocity(vel)

		var score float64
		switch mode {
		case content.ModeRising:
			score = 0.7*velNorm + 0.2*rec + 0.1*eng
			if risingCutoff >= 0 && batch[i].abs >= risingCutoff {
				score *= risingPenalty
			}
		case content.ModeTop:
			score = eng
		default: // hot
			score = 0.5*eng + 0.3*rec + 0.2*velNorm
		}

		it.TrendingScore = clamp100(score * 100)
		it.VelocityScore = vel
		it.MatchedKeywords = matchKeywords(*it, in.Keywords)
	}

	sortRanked(batch)

	out := make([]content.Item, len(batch))
	for i := range batch {
		out[i] = batch[i].item
	}
	return out
}

// normalizeVelocity maps engagement units per hour onto [0,1].
func normalizeVelocity(v float64) float64 {
	if v <= 0 {
		return 0
	}
	n := math.Log10(1+v) / velocityLogCeiling
	if n > 1 {
		return 1
	}
	return n
}

// topQuintileCutoff returns the absolute engagement at the edge of
// the top 20% of the batch, or -1 when the batch is too small to have
// a quintile.
func topQuintileCutoff(batch []ranked) float64 {
	n := len(batch) / 5
	if n == 0 {
		return -1
	}
	abs := make([]float64, len(batch))
	for i := range batch {
		abs[i] = batch[i].abs
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(abs)))
	return abs[n-1]
}
