package analytics

import (
	"sort"

	"github.com/sells-group/caselink/internal/model"
)

// ExpandGraph returns the co-presence network around seeds. Edges touching a
// seed with weight >= minWeight form the first hop; with hops >= 2 the edges
// touching those neighbours are added. Per-cell edges are merged per pair,
// keeping the strongest weight and summing occurrences.
func ExpandGraph(edges []model.CoPresenceEdge, rankings []model.SuspectRanking, seeds []string, hops int, minWeight float64) model.Graph {
	seedSet := toSet(seeds)
	frontier := seedSet
	selected := make(map[int]bool)

	if hops < 1 {
		hops = 1
	}
	for hop := 0; hop < hops; hop++ {
		next := make(map[string]bool)
		for i, e := range edges {
			if e.Weight < minWeight {
				continue
			}
			if !frontier[e.EntityID1] && !frontier[e.EntityID2] {
				continue
			}
			selected[i] = true
			next[e.EntityID1] = true
			next[e.EntityID2] = true
		}
		frontier = next
	}

	type pairKey struct{ a, b string }
	merged := make(map[pairKey]*model.GraphEdge)
	nodes := make(map[string]bool)
	for i := range selected {
		e := edges[i]
		k := pairKey{e.EntityID1, e.EntityID2}
		ge, ok := merged[k]
		if !ok {
			ge = &model.GraphEdge{Source: e.EntityID1, Target: e.EntityID2}
			merged[k] = ge
		}
		if e.Weight > ge.Weight {
			ge.Weight = e.Weight
		}
		ge.Count += e.CoOccurrenceCount
		ge.Cells = append(ge.Cells, e.H3Cell)
		nodes[e.EntityID1] = true
		nodes[e.EntityID2] = true
	}
	for s := range seedSet {
		nodes[s] = true
	}

	g := model.Graph{Nodes: []model.GraphNode{}, Edges: []model.GraphEdge{}}
	for _, ge := range merged {
		sort.Strings(ge.Cells)
		g.Edges = append(g.Edges, *ge)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})

	ranked := make(map[string]model.SuspectRanking, len(rankings))
	for _, r := range rankings {
		ranked[r.EntityID] = r
	}
	for id := range nodes {
		n := model.GraphNode{ID: id, Rank: model.UnrankedRank, NodeType: model.NodeConnected}
		if r, ok := ranked[id]; ok {
			n.Rank = r.Rank
			n.Score = r.TotalScore
			n.CaseCount = r.UniqueCases
		}
		if seedSet[id] {
			n.NodeType = model.NodeSeed
		}
		g.Nodes = append(g.Nodes, n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Rank != g.Nodes[j].Rank {
			return g.Nodes[i].Rank < g.Nodes[j].Rank
		}
		return g.Nodes[i].ID < g.Nodes[j].ID
	})
	return g
}

// EdgesBetween returns the co-presence edges linking two entities, one per cell.
func EdgesBetween(edges []model.CoPresenceEdge, a, b string) []model.CoPresenceEdge {
	if b < a {
		a, b = b, a
	}
	out := []model.CoPresenceEdge{}
	for _, e := range edges {
		if e.EntityID1 == a && e.EntityID2 == b {
			out = append(out, e)
		}
	}
	return out
}
