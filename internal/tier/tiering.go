// Package tier implements percentile-rank tiering over ranked wallet
// snapshots, with snapshot validation and ledger fallback.
package tier

import "math"

// Tiers are cumulative percentile buckets over the ranked holder list.
// Tier 1 is the top 2% of holders; tier 5 is everyone else.
var thresholds = []float64{2, 20, 50, 80, 100}

// LowestTier is the defensive default bucket.
const LowestTier = 5

// TierOf returns the 1-based tier for a 1-based rank among total holders.
// Rank 0 (unranked) maps to the lowest tier.
func TierOf(rank, total int) int {
	if rank <= 0 || total <= 0 {
		return LowestTier
	}
	for i, threshold := range thresholds {
		maxRank := int(math.Ceil(threshold * float64(total) / 100))
		if maxRank >= rank {
			return i + 1
		}
	}
	return LowestTier
}

// ProgressOf returns the holder's percentile progress in [0, 100], truncated
// (not rounded) to six decimals. Rank 1 of 100 yields 100.0.
func ProgressOf(rank, total int) float64 {
	if rank <= 0 || total <= 0 {
		return 0
	}
	p := float64(total-rank+1) / float64(total) * 100
	return math.Floor(p*1e6) / 1e6
}
