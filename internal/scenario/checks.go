package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/caselink/internal/model"
)

// Check is the outcome of one acceptance check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// AllPassed reports whether every check passed.
func AllPassed(checks []Check) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Verify runs the acceptance checks of the fixture against the inputs and
// the snapshot computed from them.
func (f *Fixture) Verify(in model.Inputs, snap *model.Snapshot) []Check {
	exp := f.Expect
	incident := f.Places[exp.IncidentPlace]
	var checks []Check
	add := func(name string, passed bool, detail string, args ...any) {
		c := Check{Name: name, Passed: passed}
		if !passed {
			c.Detail = fmt.Sprintf(detail, args...)
		}
		checks = append(checks, c)
	}

	devices := entitiesAt(in.Events, incident.H3Cell, exp.IncidentBucket)
	add("incident cell device count", len(devices) == exp.IncidentDevices,
		"expected %d devices in %s at %s, got %d", exp.IncidentDevices, incident.H3Cell, exp.IncidentBucket, len(devices))

	for _, s := range exp.Suspects {
		add("suspect "+s+" present at incident", devices[s],
			"%s not seen in %s at %s", s, incident.H3Cell, exp.IncidentBucket)
	}

	if c, ok := findCase(in.Cases, exp.CrossJurisdictionCase); ok {
		present := entitiesAt(in.Events, c.H3Cell, c.IncidentTimeBucket)
		for _, s := range exp.Suspects {
			add("suspect "+s+" present at "+c.CaseID, present[s],
				"%s not seen in %s at %s", s, c.H3Cell, c.IncidentTimeBucket)
		}
	} else {
		add("cross-jurisdiction case exists", false, "case %s not found", exp.CrossJurisdictionCase)
	}

	linked := make(map[string]map[string]bool)
	for _, o := range snap.CaseOverlaps {
		if linked[o.EntityID] == nil {
			linked[o.EntityID] = make(map[string]bool)
		}
		linked[o.EntityID][o.CaseID] = true
	}
	for _, s := range exp.Suspects {
		n := len(linked[s])
		add(fmt.Sprintf("suspect %s linked to >= %d cases", s, exp.MinLinkedCases), n >= exp.MinLinkedCases,
			"%s linked to %d cases", s, n)
	}

	if len(exp.Suspects) > 0 {
		old := exp.Suspects[0]
		after := 0
		for _, ev := range in.Events {
			if ev.EntityID == old && ev.TimeBucket >= exp.SwitchBucket {
				after++
			}
		}
		add("suspect "+old+" goes dark at switch", after == 0,
			"%s has %d events at or after %s", old, after, exp.SwitchBucket)
	}

	first, cell := firstSeen(in.Events, exp.Burner)
	add("burner "+exp.Burner+" appears at switch bucket", first == exp.SwitchBucket,
		"first seen at %q", first)
	add("burner appears in incident cell", cell == incident.H3Cell,
		"first seen in %q", cell)

	if len(exp.Suspects) > 1 {
		partner := exp.Suspects[1]
		buckets := 0
		for _, e := range snap.CoPresenceEdges {
			if (e.EntityID1 == exp.Burner && e.EntityID2 == partner) || (e.EntityID1 == partner && e.EntityID2 == exp.Burner) {
				buckets += e.TimeBucketCount
			}
		}
		add("burner co-present with "+partner, buckets > 0, "no shared time buckets")
	}

	if len(snap.Handoffs) == 0 {
		add("top handoff candidate", false, "no handoff candidates")
	} else if len(exp.Suspects) > 0 {
		top := snap.Handoffs[0]
		add("top handoff candidate", top.Rank == 1 && top.OldEntityID == exp.Suspects[0] && top.NewEntityID == exp.Burner,
			"expected %s -> %s, got %s -> %s (rank %d)", exp.Suspects[0], exp.Burner, top.OldEntityID, top.NewEntityID, top.Rank)
	}

	var top []string
	for i := 0; i < len(snap.Rankings) && i < len(exp.Suspects); i++ {
		top = append(top, snap.Rankings[i].EntityID)
	}
	want := append([]string{}, exp.Suspects...)
	sort.Strings(top)
	sort.Strings(want)
	add("top ranked suspects", strings.Join(top, ",") == strings.Join(want, ","),
		"expected %v, got %v", want, top)

	multi := 0
	for _, r := range snap.Rankings {
		for _, s := range exp.Suspects {
			if r.EntityID == s && r.StatesCount > 1 {
				multi++
			}
		}
	}
	add("suspects span jurisdictions", multi == len(exp.Suspects),
		"%d of %d suspects linked to more than one state", multi, len(exp.Suspects))

	return checks
}

func entitiesAt(events []model.LocationEvent, cell, bucket string) map[string]bool {
	out := make(map[string]bool)
	for _, ev := range events {
		if ev.H3Cell == cell && ev.TimeBucket == bucket {
			out[ev.EntityID] = true
		}
	}
	return out
}

// firstSeen returns the earliest bucket of entityID and the cell it was in.
// Ties on bucket resolve to the smallest cell.
func firstSeen(events []model.LocationEvent, entityID string) (string, string) {
	var bucket, cell string
	for _, ev := range events {
		if ev.EntityID != entityID {
			continue
		}
		if bucket == "" || ev.TimeBucket < bucket || (ev.TimeBucket == bucket && ev.H3Cell < cell) {
			bucket, cell = ev.TimeBucket, ev.H3Cell
		}
	}
	return bucket, cell
}

func findCase(cases []model.Case, id string) (model.Case, bool) {
	for _, c := range cases {
		if c.CaseID == id {
			return c, true
		}
	}
	return model.Case{}, false
}
