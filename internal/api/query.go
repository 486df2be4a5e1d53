package api

import (
	"sort"

	"github.com/sells-group/caselink/internal/model"
)

// BucketSummary is one stop on the heatmap time slider.
type BucketSummary struct {
	TimeBucket   string `json:"time_bucket"`
	TotalDevices int    `json:"total_devices"`
	CellCount    int    `json:"cell_count"`
}

// filterCells returns cells with at least minCount devices, optionally
// restricted to one bucket and city, busiest first.
func filterCells(cells []model.CellDeviceCount, bucket, city string, minCount int) []model.CellDeviceCount {
	out := []model.CellDeviceCount{}
	for _, c := range cells {
		if c.DeviceCount < minCount {
			continue
		}
		if bucket != "" && c.TimeBucket != bucket {
			continue
		}
		if city != "" && c.City != city {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DeviceCount != out[j].DeviceCount {
			return out[i].DeviceCount > out[j].DeviceCount
		}
		if out[i].H3Cell != out[j].H3Cell {
			return out[i].H3Cell < out[j].H3Cell
		}
		return out[i].TimeBucket < out[j].TimeBucket
	})
	return out
}

// bucketSummaries totals devices and distinct cells per bucket.
func bucketSummaries(cells []model.CellDeviceCount, city string) []BucketSummary {
	type agg struct {
		devices int
		cells   map[string]bool
	}
	byBucket := make(map[string]*agg)
	for _, c := range cells {
		if city != "" && c.City != city {
			continue
		}
		a, ok := byBucket[c.TimeBucket]
		if !ok {
			a = &agg{cells: make(map[string]bool)}
			byBucket[c.TimeBucket] = a
		}
		a.devices += c.DeviceCount
		a.cells[c.H3Cell] = true
	}

	out := make([]BucketSummary, 0, len(byBucket))
	for bucket, a := range byBucket {
		out = append(out, BucketSummary{TimeBucket: bucket, TotalDevices: a.devices, CellCount: len(a.cells)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeBucket < out[j].TimeBucket })
	return out
}

// cellEntities lists the entities seen in cell during bucket with their
// ping counts and suspect ranking.
func cellEntities(v *view, cell, bucket string, limit int) []model.CellEntity {
	counts := make(map[string]int)
	for _, ev := range v.in.Events {
		if ev.H3Cell == cell && ev.TimeBucket == bucket {
			counts[ev.EntityID]++
		}
	}
	ranked := make(map[string]model.SuspectRanking, len(v.snap.Rankings))
	for _, r := range v.snap.Rankings {
		ranked[r.EntityID] = r
	}

	out := make([]model.CellEntity, 0, len(counts))
	for id, n := range counts {
		e := model.CellEntity{EntityID: id, EventCount: n}
		if r, ok := ranked[id]; ok {
			e.Rank = r.Rank
			e.TotalScore = r.TotalScore
			e.IsSuspect = true
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return limitSlice(out, limit)
}

// caseSuspects returns the ranked entities linked to caseID, best first.
func caseSuspects(snap *model.Snapshot, caseID string, limit int) []model.SuspectRanking {
	linked := make(map[string]bool)
	for _, o := range snap.CaseOverlaps {
		if o.CaseID == caseID {
			linked[o.EntityID] = true
		}
	}
	out := []model.SuspectRanking{}
	for _, r := range snap.Rankings {
		if linked[r.EntityID] {
			out = append(out, r)
		}
	}
	return limitSlice(out, limit)
}

// filterHandoffs returns candidates in rank order, optionally only those
// where entityID is the old device.
func filterHandoffs(handoffs []model.HandoffCandidate, entityID string, limit int) []model.HandoffCandidate {
	out := []model.HandoffCandidate{}
	for _, h := range handoffs {
		if entityID == "" || h.OldEntityID == entityID {
			out = append(out, h)
		}
	}
	return limitSlice(out, limit)
}

// sortedCases returns cases newest incident first.
func sortedCases(cases []model.Case) []model.Case {
	out := append([]model.Case{}, cases...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].IncidentStart.Equal(out[j].IncidentStart) {
			return out[i].IncidentStart.After(out[j].IncidentStart)
		}
		return out[i].CaseID < out[j].CaseID
	})
	return out
}

func findCase(cases []model.Case, id string) (model.Case, bool) {
	for _, c := range cases {
		if c.CaseID == id {
			return c, true
		}
	}
	return model.Case{}, false
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
