package analytics

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

// EdgeID returns the stable identifier of the co-presence edge between two
// entities. Arguments may be given in either order.
func EdgeID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "COP_" + a + "_" + b
}

// EdgeWeight maps a co-occurrence count onto [0,1], saturating at
// saturation occurrences.
func EdgeWeight(count int, saturation float64) float64 {
	return math.Min(1.0, float64(count)/saturation)
}

// CoPresence self-joins events on (h3_cell, time_bucket) and returns one
// edge per (entity_id_1 < entity_id_2, h3_cell). Cells are processed
// independently on up to cfg.Workers goroutines.
func CoPresence(ctx context.Context, events []model.LocationEvent, cfg config.AnalyticsConfig) ([]model.CoPresenceEdge, error) {
	cells := partitionByCell(events)
	keys := sortedKeys(cells)

	results := make([][]model.CoPresenceEdge, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(cfg.Workers))

	for i, cell := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			edges, err := cellCoPresence(cell, cells[cell], cfg.CoPresence.SaturationCount)
			if err != nil {
				return err
			}
			results[i] = edges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analytics: co-presence")
	}

	var out []model.CoPresenceEdge
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EntityID1 != b.EntityID1 {
			return a.EntityID1 < b.EntityID1
		}
		if a.EntityID2 != b.EntityID2 {
			return a.EntityID2 < b.EntityID2
		}
		return a.H3Cell < b.H3Cell
	})
	return out, nil
}

// entityBucket holds one entity's rows within a single (cell, bucket).
type entityBucket struct {
	rows  int
	city  string
	state string
}

type pairAgg struct {
	edge    model.CoPresenceEdge
	buckets map[string]bool
}

// cellCoPresence computes the edges of one cell. The count is the number of
// joined row pairs, so an entity pinging twice in a bucket counts twice.
func cellCoPresence(cell string, events []model.LocationEvent, saturation float64) ([]model.CoPresenceEdge, error) {
	byBucket := make(map[string]map[string]*entityBucket)
	for _, ev := range events {
		m, ok := byBucket[ev.TimeBucket]
		if !ok {
			m = make(map[string]*entityBucket)
			byBucket[ev.TimeBucket] = m
		}
		eb, ok := m[ev.EntityID]
		if !ok {
			eb = &entityBucket{city: ev.City, state: ev.State}
			m[ev.EntityID] = eb
		}
		eb.rows++
	}

	pairs := make(map[[2]string]*pairAgg)
	for _, bucket := range sortedKeys(byBucket) {
		start, err := model.ParseBucket(bucket)
		if err != nil {
			return nil, err
		}
		present := byBucket[bucket]
		ids := sortedKeys(present)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				e1, e2 := ids[i], ids[j]
				key := [2]string{e1, e2}
				agg, ok := pairs[key]
				if !ok {
					agg = &pairAgg{
						edge: model.CoPresenceEdge{
							EdgeID:            EdgeID(e1, e2),
							EntityID1:         e1,
							EntityID2:         e2,
							H3Cell:            cell,
							City:              present[e1].city,
							State:             present[e1].state,
							FirstSeenTogether: start,
						},
						buckets: make(map[string]bool),
					}
					pairs[key] = agg
				}
				agg.edge.CoOccurrenceCount += present[e1].rows * present[e2].rows
				agg.buckets[bucket] = true
				agg.edge.LastSeenTogether = start
			}
		}
	}

	edges := make([]model.CoPresenceEdge, 0, len(pairs))
	for _, agg := range pairs {
		e := agg.edge
		e.TimeBuckets = sortedKeys(agg.buckets)
		e.TimeBucketCount = len(e.TimeBuckets)
		e.Weight = EdgeWeight(e.CoOccurrenceCount, saturation)
		edges = append(edges, e)
	}
	return edges, nil
}

// Partners returns, for every entity, the co-presence partners it shares an
// edge with and the strongest edge weight to each. Edges are symmetric.
func Partners(edges []model.CoPresenceEdge) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	link := func(a, b string, w float64) {
		m, ok := out[a]
		if !ok {
			m = make(map[string]float64)
			out[a] = m
		}
		if cur, ok := m[b]; !ok || w > cur {
			m[b] = w
		}
	}
	for _, e := range edges {
		link(e.EntityID1, e.EntityID2, e.Weight)
		link(e.EntityID2, e.EntityID1, e.Weight)
	}
	return out
}

func partitionByCell(events []model.LocationEvent) map[string][]model.LocationEvent {
	cells := make(map[string][]model.LocationEvent)
	for _, ev := range events {
		cells[ev.H3Cell] = append(cells[ev.H3Cell], ev)
	}
	return cells
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func workerLimit(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
