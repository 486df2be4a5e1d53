package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDenseRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		scores []float64
		want   []int
	}{
		{"empty", nil, []int{}},
		{"single", []float64{0.7}, []int{1}},
		{"distinct", []float64{0.1, 0.9, 0.5}, []int{3, 1, 2}},
		{"ties share rank", []float64{1.0, 1.0, 0.8}, []int{1, 1, 2}},
		{"no gaps after ties", []float64{2, 2, 2, 1, 0.5, 0.5, 0}, []int{1, 1, 1, 2, 3, 3, 4}},
		{"float noise is a tie", []float64{0.1 + 0.2, 0.3}, []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DenseRank(tt.scores))
		})
	}
}

func TestDenseRank_NoGaps(t *testing.T) {
	t.Parallel()

	scores := []float64{3.1, 0.2, 3.1, 1.55, 0.2, 0.2, 9}
	ranks := DenseRank(scores)

	maxRank := 0
	present := map[int]bool{}
	for _, r := range ranks {
		present[r] = true
		if r > maxRank {
			maxRank = r
		}
	}
	for r := 1; r <= maxRank; r++ {
		assert.True(t, present[r], "rank %d missing", r)
	}
	assert.Equal(t, 4, maxRank)
}
