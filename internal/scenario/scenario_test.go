package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caselink/internal/analytics"
	"github.com/sells-group/caselink/internal/model"
)

func computeCrew(t *testing.T) (*Fixture, model.Inputs, *model.Snapshot) {
	t.Helper()
	f, err := BurglaryCrew()
	require.NoError(t, err)
	in, err := f.Inputs()
	require.NoError(t, err)
	snap, err := analytics.Compute(context.Background(), in, analytics.DefaultConfig())
	require.NoError(t, err)
	return f, in, snap
}

func TestBurglaryCrew_Inputs(t *testing.T) {
	t.Parallel()

	f, err := BurglaryCrew()
	require.NoError(t, err)
	assert.Equal(t, "burglary_crew", f.Name)

	in, err := f.Inputs()
	require.NoError(t, err)
	assert.Len(t, in.Events, 209)
	assert.Len(t, in.SocialEdges, 6)
	require.Len(t, in.Cases, 4)
	assert.Equal(t, "CASE_DC_001", in.Cases[0].CaseID)
	assert.Equal(t, "892a1008003ffff", in.Cases[0].H3Cell)
	assert.Equal(t, model.MOEWindowEntry, in.Cases[0].MOECategory())
	assert.Equal(t, model.MOEDoorEntry, in.Cases[3].MOECategory())

	first := in.Events[0]
	assert.Equal(t, "EVT_001000", first.EventID)
	assert.Equal(t, "E_0412", first.EntityID)
	assert.Equal(t, "2025-01-08T15:15", first.TimeBucket)
	assert.Equal(t, "Nashville", first.City)

	for _, ev := range in.Events {
		start := model.MustParseBucket(ev.TimeBucket)
		assert.False(t, ev.Timestamp.Before(start), ev.EventID)
		assert.True(t, ev.Timestamp.Before(start.Add(f.BucketWidth())), ev.EventID)
	}
}

func TestBurglaryCrew_Deterministic(t *testing.T) {
	t.Parallel()

	f, err := BurglaryCrew()
	require.NoError(t, err)
	a, err := f.Inputs()
	require.NoError(t, err)
	b, err := f.Inputs()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBurglaryCrew_Story(t *testing.T) {
	t.Parallel()

	_, _, snap := computeCrew(t)

	require.Len(t, snap.Handoffs, 1)
	h := snap.Handoffs[0]
	assert.Equal(t, "E_0412", h.OldEntityID)
	assert.Equal(t, "E_7734", h.NewEntityID)
	assert.Equal(t, 1, h.Rank)
	assert.InDelta(t, 15.0, h.TimeDiffMinutes, 1e-9)
	assert.InDelta(t, 1.0, h.HandoffScore, 1e-9)
	assert.Equal(t, 49, h.SharedPartnerCount)

	require.GreaterOrEqual(t, len(snap.Rankings), 3)
	for i, id := range []string{"E_0412", "E_1098"} {
		r := snap.Rankings[i]
		assert.Equal(t, id, r.EntityID)
		assert.Equal(t, 1, r.Rank)
		assert.Equal(t, 4, r.UniqueCases)
		assert.Equal(t, 3, r.StatesCount)
		assert.InDelta(t, 2.2, r.TotalScore, 1e-9)
	}
	assert.Equal(t, 2, snap.Rankings[2].Rank)

	var incident *model.CellDeviceCount
	for i, c := range snap.CellCounts {
		if c.H3Cell == "892a1008003ffff" && c.TimeBucket == "2025-01-15T14:30" {
			incident = &snap.CellCounts[i]
		}
	}
	require.NotNil(t, incident)
	assert.Equal(t, 50, incident.DeviceCount)
	assert.Equal(t, model.ActivityVeryHigh, incident.ActivityCategory)
}

func TestVerify_AllPass(t *testing.T) {
	t.Parallel()

	f, in, snap := computeCrew(t)
	checks := f.Verify(in, snap)
	require.Len(t, checks, 14)
	for _, c := range checks {
		assert.True(t, c.Passed, "%s: %s", c.Name, c.Detail)
	}
	assert.True(t, AllPassed(checks))
}

func TestVerify_DetectsBrokenSnapshot(t *testing.T) {
	t.Parallel()

	f, in, snap := computeCrew(t)
	snap.Handoffs = nil
	snap.Rankings[0], snap.Rankings[2] = snap.Rankings[2], snap.Rankings[0]

	failed := map[string]string{}
	for _, c := range f.Verify(in, snap) {
		if !c.Passed {
			failed[c.Name] = c.Detail
		}
	}
	assert.Equal(t, "no handoff candidates", failed["top handoff candidate"])
	assert.Contains(t, failed, "top ranked suspects")
	assert.Len(t, failed, 2)
}

func TestVerify_MissingBurnerEvents(t *testing.T) {
	t.Parallel()

	f, in, snap := computeCrew(t)
	var kept []model.LocationEvent
	for _, ev := range in.Events {
		if ev.EntityID != "E_7734" {
			kept = append(kept, ev)
		}
	}
	in.Events = kept

	checks := f.Verify(in, snap)
	assert.False(t, AllPassed(checks))
	for _, c := range checks {
		if c.Name == "burner E_7734 appears at switch bucket" {
			assert.False(t, c.Passed)
			assert.Equal(t, `first seen at ""`, c.Detail)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "places: [", "decode yaml"},
		{"no bucket width", "name: x\n", "bucket_minutes must be positive"},
		{
			"unknown ping place",
			"bucket_minutes: 15\npings:\n  - {entity: A, place: moon, bucket: \"2025-01-01T00:00\"}\n",
			`unknown place "moon"`,
		},
		{
			"unknown case place",
			"bucket_minutes: 15\ncases:\n  - {case_id: C1, place: moon}\n",
			"case C1 references unknown place",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInputs_BadTimes(t *testing.T) {
	t.Parallel()

	base := "bucket_minutes: 15\nplaces:\n  p: {h3_cell: C1, city: X, state: DC}\n"

	f, err := Parse([]byte(base + "pings:\n  - {entity: A, place: p, bucket: yesterday}\n"))
	require.NoError(t, err)
	_, err = f.Inputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity A")

	f, err = Parse([]byte(base + "cases:\n  - {case_id: C1, place: p, incident_time_bucket: \"2025-01-01T00:00\", incident_start: noon, incident_end: \"2025-01-01T00:10:00\"}\n"))
	require.NoError(t, err)
	_, err = f.Inputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "case C1 incident_start")
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "crew.yaml")
	require.NoError(t, os.WriteFile(path, burglaryCrew, 0o600))
	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"E_0412", "E_1098"}, f.Expect.Suspects)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
