package analytics

import (
	"math"
	"sort"

	"golang.org/x/text/cases"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

// caseTypeMatcher compares case types with Unicode case folding. A Caser
// is stateful, so each call builds its own.
func caseTypeMatcher(want string) func(string) bool {
	fold := cases.Fold()
	target := fold.String(want)
	return func(got string) bool { return fold.String(got) == target }
}

type suspectAgg struct {
	caseCount int
	cases     map[string]bool
	states    map[string]bool
	cities    map[string]bool
}

// Rank scores every entity linked to at least one case of the configured
// type and assigns dense ranks by total score. Entities without co-presence
// or social edges score zero on those terms rather than being dropped.
func Rank(overlaps []model.CaseOverlap, edges []model.CoPresenceEdge, social []model.SocialEdge, cfg config.RankingConfig) []model.SuspectRanking {
	matches := caseTypeMatcher(cfg.CaseType)
	base := make(map[string]*suspectAgg)
	for _, o := range overlaps {
		if !matches(o.CaseType) {
			continue
		}
		agg, ok := base[o.EntityID]
		if !ok {
			agg = &suspectAgg{
				cases:  make(map[string]bool),
				states: make(map[string]bool),
				cities: make(map[string]bool),
			}
			base[o.EntityID] = agg
		}
		count := o.EventCount
		if count < 1 {
			count = 1
		}
		agg.caseCount += count
		agg.cases[o.CaseID] = true
		if o.State != "" {
			agg.states[o.State] = true
		}
		if o.City != "" {
			agg.cities[o.City] = true
		}
	}
	if len(base) == 0 {
		return []model.SuspectRanking{}
	}

	copresence := copresenceWeights(edges)
	socialW := socialWeights(social)

	ids := sortedKeys(base)
	out := make([]model.SuspectRanking, 0, len(ids))
	scores := make([]float64, 0, len(ids))
	for _, id := range ids {
		agg := base[id]
		r := model.SuspectRanking{
			EntityID:              id,
			CaseCount:             agg.caseCount,
			UniqueCases:           len(agg.cases),
			StatesCount:           len(agg.states),
			LinkedCases:           sortedKeys(agg.cases),
			LinkedCities:          sortedKeys(agg.cities),
			TotalCopresenceWeight: copresence[id],
			TotalSocialWeight:     socialW[id],
		}
		scoreSuspect(&r, cfg)
		out = append(out, r)
		scores = append(scores, r.TotalScore)
	}

	ranks := DenseRank(scores)
	for i := range out {
		out[i].Rank = ranks[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// scoreSuspect fills the sub-scores and total of r from its aggregates.
func scoreSuspect(r *model.SuspectRanking, cfg config.RankingConfig) {
	r.RecurrenceScore = float64(r.UniqueCases) * cfg.RecurrenceWeight
	if r.StatesCount > 1 {
		r.CrossJurisdictionScore = cfg.CrossJurisdictionWeight
	}
	r.NetworkScore = math.Min(cfg.NetworkCap,
		r.TotalCopresenceWeight*cfg.CopresenceMultiplier+r.TotalSocialWeight*cfg.SocialMultiplier)
	r.TotalScore = r.RecurrenceScore + r.CrossJurisdictionScore + r.NetworkScore
}

// copresenceWeights sums edge weights per endpoint in (e1, e2, cell) order
// so the float sums do not depend on input order.
func copresenceWeights(edges []model.CoPresenceEdge) map[string]float64 {
	sorted := make([]model.CoPresenceEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.EntityID1 != b.EntityID1 {
			return a.EntityID1 < b.EntityID1
		}
		if a.EntityID2 != b.EntityID2 {
			return a.EntityID2 < b.EntityID2
		}
		return a.H3Cell < b.H3Cell
	})

	out := make(map[string]float64)
	for _, e := range sorted {
		out[e.EntityID1] += e.Weight
		out[e.EntityID2] += e.Weight
	}
	return out
}

// socialWeights sums reference edge weights per endpoint in a fixed order.
func socialWeights(edges []model.SocialEdge) map[string]float64 {
	sorted := make([]model.SocialEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.EntityID1 != b.EntityID1 {
			return a.EntityID1 < b.EntityID1
		}
		if a.EntityID2 != b.EntityID2 {
			return a.EntityID2 < b.EntityID2
		}
		return a.EdgeID < b.EdgeID
	})

	out := make(map[string]float64)
	for _, e := range sorted {
		out[e.EntityID1] += e.Weight
		if e.EntityID2 != e.EntityID1 {
			out[e.EntityID2] += e.Weight
		}
	}
	return out
}
