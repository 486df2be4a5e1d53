package analytics

import (
	"sort"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

// presence is the span of buckets one entity was seen in within one cell.
type presence struct {
	entity      string
	firstBucket string
	lastBucket  string
}

// TemporalScore scores the gap between the old device going quiet and the
// new device appearing. The fallback tier only applies when MaxGapMinutes
// exceeds Tier2Minutes; under the default 30 minute filter it is unreachable.
func TemporalScore(gapMinutes float64, cfg config.HandoffConfig) float64 {
	switch {
	case gapMinutes <= cfg.Tier1Minutes:
		return cfg.Tier1Score
	case gapMinutes <= cfg.Tier2Minutes:
		return cfg.Tier2Score
	default:
		return cfg.FallbackTemporalScore
	}
}

// Handoffs finds (old, new) entity pairs where new first appears in a cell
// strictly after old was last seen there, within MaxGapMinutes. Candidates
// whose devices share co-presence partners score higher. Rank 1 is the most
// likely burner switch.
func Handoffs(events []model.LocationEvent, edges []model.CoPresenceEdge, cfg config.HandoffConfig) ([]model.HandoffCandidate, error) {
	spans := cellPresence(events)
	partners := Partners(edges)

	var out []model.HandoffCandidate
	for _, cell := range sortedKeys(spans) {
		list := spans[cell]
		for _, old := range list {
			oldLast, err := model.ParseBucket(old.lastBucket)
			if err != nil {
				return nil, err
			}
			for _, cand := range list {
				if cand.entity == old.entity || cand.firstBucket <= old.lastBucket {
					continue
				}
				newFirst, err := model.ParseBucket(cand.firstBucket)
				if err != nil {
					return nil, err
				}
				gap := newFirst.Sub(oldLast).Minutes()
				if gap <= 0 || gap > cfg.MaxGapMinutes {
					continue
				}

				h := model.HandoffCandidate{
					OldEntityID:     old.entity,
					NewEntityID:     cand.entity,
					H3Cell:          cell,
					OldLastBucket:   old.lastBucket,
					NewFirstBucket:  cand.firstBucket,
					TimeDiffMinutes: gap,
				}
				h.SharedPartners, h.AvgPartnerWeight = sharedPartners(partners, old.entity, cand.entity)
				h.SharedPartnerCount = len(h.SharedPartners)

				h.SpatialScore = cfg.SpatialScore
				h.TemporalScore = TemporalScore(gap, cfg)
				if h.SharedPartnerCount > 0 {
					h.PartnerScore = cfg.PartnerScore
				}
				h.HandoffScore = h.SpatialScore + h.TemporalScore + h.PartnerScore
				out = append(out, h)
			}
		}
	}
	if len(out) == 0 {
		return []model.HandoffCandidate{}, nil
	}

	scores := make([]float64, len(out))
	for i, h := range out {
		scores[i] = h.HandoffScore
	}
	ranks := DenseRank(scores)
	for i := range out {
		out[i].Rank = ranks[i]
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.OldEntityID != b.OldEntityID {
			return a.OldEntityID < b.OldEntityID
		}
		if a.NewEntityID != b.NewEntityID {
			return a.NewEntityID < b.NewEntityID
		}
		return a.H3Cell < b.H3Cell
	})
	return out, nil
}

// cellPresence computes first and last bucket per entity per cell, sorted by
// entity within each cell. Bucket strings sort chronologically.
func cellPresence(events []model.LocationEvent) map[string][]presence {
	type key struct{ cell, entity string }
	spans := make(map[key]*presence)
	for _, ev := range events {
		k := key{ev.H3Cell, ev.EntityID}
		p, ok := spans[k]
		if !ok {
			spans[k] = &presence{entity: ev.EntityID, firstBucket: ev.TimeBucket, lastBucket: ev.TimeBucket}
			continue
		}
		if ev.TimeBucket < p.firstBucket {
			p.firstBucket = ev.TimeBucket
		}
		if ev.TimeBucket > p.lastBucket {
			p.lastBucket = ev.TimeBucket
		}
	}

	out := make(map[string][]presence)
	for k, p := range spans {
		out[k.cell] = append(out[k.cell], *p)
	}
	for cell := range out {
		list := out[cell]
		sort.Slice(list, func(i, j int) bool { return list[i].entity < list[j].entity })
	}
	return out
}

// sharedPartners returns the sorted partners common to both entities and the
// mean weight of the new entity's edges to them.
func sharedPartners(partners map[string]map[string]float64, oldID, newID string) ([]string, float64) {
	oldP, newP := partners[oldID], partners[newID]
	if len(oldP) == 0 || len(newP) == 0 {
		return []string{}, 0
	}

	shared := []string{}
	for p := range oldP {
		if p == oldID || p == newID {
			continue
		}
		if _, ok := newP[p]; ok {
			shared = append(shared, p)
		}
	}
	if len(shared) == 0 {
		return shared, 0
	}
	sort.Strings(shared)

	var sum float64
	for _, p := range shared {
		sum += newP[p]
	}
	return shared, sum / float64(len(shared))
}

// DetectDisappearance reports whether entityID stopped transmitting after
// afterBucket.
func DetectDisappearance(events []model.LocationEvent, entityID, afterBucket string) model.Disappearance {
	d := model.Disappearance{EntityID: entityID, AfterBucket: afterBucket, CitiesSeen: []string{}}
	cities := make(map[string]bool)
	for _, ev := range events {
		if ev.EntityID != entityID {
			continue
		}
		d.TotalEvents++
		if ev.TimeBucket > d.LastSeenBucket {
			d.LastSeenBucket = ev.TimeBucket
		}
		if ev.TimeBucket > afterBucket {
			d.EventsAfterBucket++
		}
		if ev.City != "" {
			cities[ev.City] = true
		}
	}
	d.CitiesSeen = append(d.CitiesSeen, sortedKeys(cities)...)
	d.IsDisappeared = d.TotalEvents > 0 && d.EventsAfterBucket == 0
	return d
}
