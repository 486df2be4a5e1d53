package analytics

import (
	"sort"

	"github.com/sells-group/caselink/internal/model"
)

type cellBucket struct {
	cell   string
	bucket string
}

// Overlap links entities to cases whose cell and incident bucket they were
// observed in. Rows are deduplicated per (entity_id, case_id): EventCount
// keeps the number of matching events, InExactWindow is set when any of
// them falls inside [IncidentStart, IncidentEnd], and EventTimestamp is the
// earliest match.
func Overlap(events []model.LocationEvent, cases []model.Case) []model.CaseOverlap {
	index := make(map[cellBucket][]model.Case)
	for _, c := range cases {
		k := cellBucket{c.H3Cell, c.IncidentTimeBucket}
		index[k] = append(index[k], c)
	}

	type key struct{ entity, caseID string }
	rows := make(map[key]*model.CaseOverlap)
	for _, ev := range events {
		for _, c := range index[cellBucket{ev.H3Cell, ev.TimeBucket}] {
			k := key{ev.EntityID, c.CaseID}
			row, ok := rows[k]
			if !ok {
				row = &model.CaseOverlap{
					EntityID:       ev.EntityID,
					CaseID:         c.CaseID,
					CaseType:       c.CaseType,
					City:           c.City,
					State:          c.State,
					H3Cell:         c.H3Cell,
					TimeBucket:     c.IncidentTimeBucket,
					EventTimestamp: ev.Timestamp,
					IncidentStart:  c.IncidentStart,
					IncidentEnd:    c.IncidentEnd,
				}
				rows[k] = row
			}
			row.EventCount++
			if ev.Timestamp.Before(row.EventTimestamp) {
				row.EventTimestamp = ev.Timestamp
			}
			if inWindow(ev, c) {
				row.InExactWindow = true
			}
		}
	}

	out := make([]model.CaseOverlap, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CaseID != out[j].CaseID {
			return out[i].CaseID < out[j].CaseID
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// inWindow reports whether the event falls within the closed incident window.
func inWindow(ev model.LocationEvent, c model.Case) bool {
	return !ev.Timestamp.Before(c.IncidentStart) && !ev.Timestamp.After(c.IncidentEnd)
}
