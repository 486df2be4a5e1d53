package graph

import (
	"context"
	"errors"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/resilience"
)

// batchSize caps the rows sent in one UNWIND statement.
const batchSize = 500

const (
	clearCypher = `MATCH (:Entity)-[r:CO_PRESENT|POSSIBLE_HANDOFF]->(:Entity) DELETE r`

	entityCypher = `UNWIND $rows AS row
MERGE (e:Entity {id: row.id})
SET e.rank = row.rank, e.score = row.score, e.case_count = row.case_count, e.run_id = $run_id`

	coPresenceCypher = `UNWIND $rows AS row
MATCH (a:Entity {id: row.source}), (b:Entity {id: row.target})
CREATE (a)-[:CO_PRESENT {cell: row.cell, weight: row.weight, count: row.count, buckets: row.buckets}]->(b)`

	handoffCypher = `UNWIND $rows AS row
MATCH (a:Entity {id: row.old}), (b:Entity {id: row.new})
CREATE (a)-[:POSSIBLE_HANDOFF {cell: row.cell, score: row.score, rank: row.rank, gap_minutes: row.gap}]->(b)`
)

// Sink writes each published snapshot to Neo4j. Relationships from the
// previous snapshot are replaced in the same transaction.
type Sink struct {
	driver   driver
	database string
}

// NewSink connects to the configured Neo4j instance.
func NewSink(ctx context.Context, cfg config.GraphConfig) (*Sink, error) {
	d, err := dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	zap.L().Info("graph: connected to neo4j", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))
	return &Sink{driver: d, database: cfg.Database}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "graph" }

// Ping verifies the Neo4j connection.
func (s *Sink) Ping(ctx context.Context) error {
	return eris.Wrap(s.driver.VerifyConnectivity(ctx), "graph: ping")
}

// Close releases the driver.
func (s *Sink) Close(ctx context.Context) error {
	return eris.Wrap(s.driver.Close(ctx), "graph: close")
}

// Publish replaces the exported graph with the contents of snap.
func (s *Sink) Publish(ctx context.Context, snap *model.Snapshot) error {
	entities := entityRows(snap)
	edges := coPresenceRows(snap.CoPresenceEdges)
	handoffs := handoffRows(snap.Handoffs)

	err := s.driver.ExecuteWrite(ctx, s.database, func(tx Tx) error {
		if err := tx.Run(ctx, clearCypher, nil); err != nil {
			return eris.Wrap(err, "clear relationships")
		}
		if err := runBatches(ctx, tx, entityCypher, snap.RunID, entities); err != nil {
			return eris.Wrap(err, "merge entities")
		}
		if err := runBatches(ctx, tx, coPresenceCypher, snap.RunID, edges); err != nil {
			return eris.Wrap(err, "create co-presence")
		}
		if err := runBatches(ctx, tx, handoffCypher, snap.RunID, handoffs); err != nil {
			return eris.Wrap(err, "create handoffs")
		}
		return nil
	})
	if err != nil {
		if retryable(err) {
			err = resilience.NewTransientError(err, s.Name())
		}
		return eris.Wrapf(err, "graph: publish run %s", snap.RunID)
	}

	zap.L().Debug("graph: snapshot exported",
		zap.String("run_id", snap.RunID),
		zap.Int("entities", len(entities)),
		zap.Int("co_presence", len(edges)),
		zap.Int("handoffs", len(handoffs)),
	)
	return nil
}

// retryable reports whether the driver classifies err, or any error it wraps,
// as safe to retry. A spent driver retry budget is retried by the sink policy.
func retryable(err error) bool {
	var limit *neo4j.TransactionExecutionLimit
	if errors.As(err, &limit) {
		return true
	}
	for ; err != nil; err = errors.Unwrap(err) {
		if neo4j.IsRetryable(err) {
			return true
		}
	}
	return false
}

func runBatches(ctx context.Context, tx Tx, cypher, runID string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		params := map[string]any{"rows": rows[start:end], "run_id": runID}
		if err := tx.Run(ctx, cypher, params); err != nil {
			return err
		}
	}
	return nil
}

// entityRows returns one node per entity that appears in the graph, with
// ranking attributes where the entity is ranked.
func entityRows(snap *model.Snapshot) []map[string]any {
	ranked := make(map[string]model.SuspectRanking, len(snap.Rankings))
	ids := make(map[string]bool)
	for _, r := range snap.Rankings {
		ranked[r.EntityID] = r
		ids[r.EntityID] = true
	}
	for _, e := range snap.CoPresenceEdges {
		ids[e.EntityID1] = true
		ids[e.EntityID2] = true
	}
	for _, h := range snap.Handoffs {
		ids[h.OldEntityID] = true
		ids[h.NewEntityID] = true
	}

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	rows := make([]map[string]any, 0, len(sorted))
	for _, id := range sorted {
		row := map[string]any{"id": id, "rank": model.UnrankedRank, "score": 0.0, "case_count": 0}
		if r, ok := ranked[id]; ok {
			row["rank"] = r.Rank
			row["score"] = r.TotalScore
			row["case_count"] = r.UniqueCases
		}
		rows = append(rows, row)
	}
	return rows
}

func coPresenceRows(edges []model.CoPresenceEdge) []map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"source":  e.EntityID1,
			"target":  e.EntityID2,
			"cell":    e.H3Cell,
			"weight":  e.Weight,
			"count":   e.CoOccurrenceCount,
			"buckets": e.TimeBuckets,
		})
	}
	return rows
}

func handoffRows(handoffs []model.HandoffCandidate) []map[string]any {
	rows := make([]map[string]any, 0, len(handoffs))
	for _, h := range handoffs {
		rows = append(rows, map[string]any{
			"old":   h.OldEntityID,
			"new":   h.NewEntityID,
			"cell":  h.H3Cell,
			"score": h.HandoffScore,
			"rank":  h.Rank,
			"gap":   h.TimeDiffMinutes,
		})
	}
	return rows
}
