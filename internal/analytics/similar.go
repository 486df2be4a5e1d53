package analytics

import (
	"sort"

	"github.com/sells-group/caselink/internal/model"
)

// SimilarCases ranks every other case against caseID by method-of-entry
// match, then by number of shared target items. It returns nil when caseID
// is unknown.
func SimilarCases(cases []model.Case, caseID string, limit int) []model.SimilarCase {
	var ref *model.Case
	for i := range cases {
		if cases[i].CaseID == caseID {
			ref = &cases[i]
			break
		}
	}
	if ref == nil {
		return nil
	}

	refMOE := ref.MOECategory()
	refTargets := toSet(ref.TargetItems)

	out := []model.SimilarCase{}
	for _, c := range cases {
		if c.CaseID == caseID {
			continue
		}
		sc := model.SimilarCase{Case: c, MOEMatch: c.MOECategory() == refMOE}
		seen := make(map[string]bool)
		for _, item := range c.TargetItems {
			if refTargets[item] && !seen[item] {
				seen[item] = true
				sc.TargetOverlap++
			}
		}
		out = append(out, sc)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MOEMatch != b.MOEMatch {
			return a.MOEMatch
		}
		if a.TargetOverlap != b.TargetOverlap {
			return a.TargetOverlap > b.TargetOverlap
		}
		return a.CaseID < b.CaseID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
