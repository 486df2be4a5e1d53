package analytics

import (
	"math"
	"sort"
)

// scoreKey quantizes a score so that summation noise below 1e-9 cannot
// split a tie.
func scoreKey(score float64) int64 {
	return int64(math.Round(score * 1e9))
}

// DenseRank returns the dense rank of each score, highest score first.
// Equal scores share a rank and the next distinct score gets the next
// integer, so ranks run 1..k with no gaps.
func DenseRank(scores []float64) []int {
	ranks := make([]int, len(scores))
	if len(scores) == 0 {
		return ranks
	}

	keys := make([]int64, 0, len(scores))
	seen := make(map[int64]bool, len(scores))
	for _, s := range scores {
		k := scoreKey(s)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	position := make(map[int64]int, len(keys))
	for i, k := range keys {
		position[k] = i + 1
	}
	for i, s := range scores {
		ranks[i] = position[scoreKey(s)]
	}
	return ranks
}
