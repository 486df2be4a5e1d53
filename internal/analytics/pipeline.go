package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
)

// Stage names reported to a Recorder.
const (
	StageCoPresence = "copresence"
	StageOverlap    = "overlap"
	StageCells      = "cells"
	StageRanking    = "ranking"
	StageHandoff    = "handoff"
	StageEvidence   = "evidence"
)

// Recorder receives run and stage timings. *monitoring.Metrics satisfies it.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveRun(status string, d time.Duration)
	SetRowsPublished(table string, n int)
	SinkError(sink string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) ObserveRun(string, time.Duration)   {}
func (nopRecorder) SetRowsPublished(string, int)       {}
func (nopRecorder) SinkError(string)                   {}

// Compute derives a complete snapshot from in. It is a pure function of its
// inputs and config apart from RunID and ComputedAt.
func Compute(ctx context.Context, in model.Inputs, cfg config.AnalyticsConfig) (*model.Snapshot, error) {
	return compute(ctx, in, cfg, uuid.NewString(), nopRecorder{})
}

func compute(ctx context.Context, in model.Inputs, cfg config.AnalyticsConfig, runID string, rec Recorder) (*model.Snapshot, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	// Engines see events in a fixed order regardless of how the store
	// returned them.
	events := append([]model.LocationEvent(nil), in.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].EventID < events[j].EventID })

	snap := &model.Snapshot{RunID: runID}
	timed := func(stage string, fn func() error) func() error {
		return func() error {
			start := time.Now()
			err := fn()
			rec.ObserveStage(stage, time.Since(start))
			return err
		}
	}

	// Stage 1: engines that read only the inputs.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(timed(StageCoPresence, func() error {
		var err error
		snap.CoPresenceEdges, err = CoPresence(gctx, events, cfg)
		return err
	}))
	g.Go(timed(StageOverlap, func() error {
		snap.CaseOverlaps = Overlap(events, in.Cases)
		return nil
	}))
	g.Go(timed(StageCells, func() error {
		var err error
		snap.CellCounts, err = CellCounts(events, cfg.Cells)
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analytics: stage 1")
	}

	// Stage 2: engines that read co-presence edges and overlaps.
	g, gctx = errgroup.WithContext(ctx)
	g.Go(timed(StageRanking, func() error {
		snap.Rankings = Rank(snap.CaseOverlaps, snap.CoPresenceEdges, in.SocialEdges, cfg.Ranking)
		return gctx.Err()
	}))
	g.Go(timed(StageHandoff, func() error {
		var err error
		snap.Handoffs, err = Handoffs(events, snap.CoPresenceEdges, cfg.Handoff)
		return err
	}))
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analytics: stage 2")
	}

	if err := timed(StageEvidence, func() error {
		snap.Evidence = BuildEvidence(snap.Rankings, snap.CaseOverlaps, in.Cases, in.SocialEdges, cfg.EvidenceTopN)
		return ctx.Err()
	})(); err != nil {
		return nil, eris.Wrap(err, "analytics: evidence")
	}

	snap.ComputedAt = time.Now().UTC()
	return snap, nil
}
