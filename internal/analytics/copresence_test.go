package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caselink/internal/model"
)

func TestEdgeID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "COP_A_B", EdgeID("A", "B"))
	assert.Equal(t, EdgeID("A", "B"), EdgeID("B", "A"))
}

func TestEdgeWeight(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.2, EdgeWeight(1, 5), 1e-9)
	assert.InDelta(t, 0.8, EdgeWeight(4, 5), 1e-9)
	assert.InDelta(t, 1.0, EdgeWeight(5, 5), 1e-9)
	assert.InDelta(t, 1.0, EdgeWeight(12, 5), 1e-9)
}

func TestCoPresence_EdgesPerPairAndCell(t *testing.T) {
	t.Parallel()

	events := []model.LocationEvent{
		ping("1", "B", "c1", t1, 1),
		ping("2", "A", "c1", t1, 2),
		ping("3", "A", "c1", t1, 3),
		ping("4", "A", "c1", t2, 1),
		ping("5", "B", "c1", t2, 4),
		ping("6", "A", "c2", t1, 1),
		ping("7", "C", "c2", t1, 5),
	}

	edges, err := CoPresence(context.Background(), events, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, edges, 2)

	ab := edges[0]
	assert.Equal(t, "COP_A_B", ab.EdgeID)
	assert.Equal(t, "A", ab.EntityID1)
	assert.Equal(t, "B", ab.EntityID2)
	assert.Equal(t, "c1", ab.H3Cell)
	// Two A rows times one B row in t1, then one pair in t2.
	assert.Equal(t, 3, ab.CoOccurrenceCount)
	assert.Equal(t, []string{t1, t2}, ab.TimeBuckets)
	assert.Equal(t, 2, ab.TimeBucketCount)
	assert.Equal(t, model.MustParseBucket(t1), ab.FirstSeenTogether)
	assert.Equal(t, model.MustParseBucket(t2), ab.LastSeenTogether)
	assert.InDelta(t, 0.6, ab.Weight, 1e-9)

	ac := edges[1]
	assert.Equal(t, "COP_A_C", ac.EdgeID)
	assert.Equal(t, "c2", ac.H3Cell)
	assert.Equal(t, 1, ac.CoOccurrenceCount)
	assert.InDelta(t, 0.2, ac.Weight, 1e-9)
}

func TestCoPresence_Invariants(t *testing.T) {
	t.Parallel()

	events := append(crowd(6, "c1", t1), crowd(4, "c2", t2)...)
	events = append(events, ping("x", "E_000", "c1", t2, 0))

	edges, err := CoPresence(context.Background(), events, DefaultConfig())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, e := range edges {
		assert.Less(t, e.EntityID1, e.EntityID2)
		assert.GreaterOrEqual(t, e.Weight, 0.0)
		assert.LessOrEqual(t, e.Weight, 1.0)
		key := e.EdgeID + "|" + e.H3Cell
		assert.False(t, seen[key], "duplicate edge %s", key)
		seen[key] = true
	}
	// C(6,2) + C(4,2)
	assert.Len(t, edges, 21)
}

func TestCoPresence_SingleEntityHasNoEdges(t *testing.T) {
	t.Parallel()

	events := []model.LocationEvent{
		ping("1", "A", "c1", t1, 0),
		ping("2", "A", "c1", t1, 5),
	}
	edges, err := CoPresence(context.Background(), events, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestCoPresence_OrderIndependent(t *testing.T) {
	t.Parallel()

	events := append(crowd(5, "c1", t1), crowd(3, "c1", t2)...)
	reversed := make([]model.LocationEvent, len(events))
	for i, ev := range events {
		reversed[len(events)-1-i] = ev
	}

	a, err := CoPresence(context.Background(), events, DefaultConfig())
	require.NoError(t, err)
	b, err := CoPresence(context.Background(), reversed, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCoPresence_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CoPresence(ctx, crowd(3, "c1", t1), DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
}

func TestPartners(t *testing.T) {
	t.Parallel()

	edges := []model.CoPresenceEdge{
		{EntityID1: "A", EntityID2: "B", H3Cell: "c1", Weight: 0.2},
		{EntityID1: "A", EntityID2: "B", H3Cell: "c2", Weight: 0.6},
		{EntityID1: "B", EntityID2: "C", H3Cell: "c1", Weight: 0.4},
	}
	p := Partners(edges)

	assert.InDelta(t, 0.6, p["A"]["B"], 1e-9)
	assert.InDelta(t, 0.6, p["B"]["A"], 1e-9)
	assert.InDelta(t, 0.4, p["C"]["B"], 1e-9)
	assert.Len(t, p["B"], 2)
	assert.NotContains(t, p["A"], "C")
}
