package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/store"
)

// HealthSnapshot is a point-in-time view of run health and snapshot freshness.
type HealthSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`
	LastError    string  `json:"last_error,omitempty"`

	HasSnapshot  bool          `json:"has_snapshot"`
	SnapshotRun  string        `json:"snapshot_run,omitempty"`
	SnapshotAge  time.Duration `json:"snapshot_age"`
	RankingCount int           `json:"ranking_count"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunSource is the part of store.Store the collector reads.
type RunSource interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
}

// Collector gathers health data from the run log and the published snapshot.
type Collector struct {
	source  RunSource
	metrics *Metrics
	now     func() time.Time
}

// NewCollector creates a collector. metrics may be nil.
func NewCollector(source RunSource, metrics *Metrics) *Collector {
	return &Collector{source: source, metrics: metrics, now: time.Now}
}

// Collect summarises runs started within the lookback window and the age
// of the published snapshot.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := c.now().UTC()
	h := &HealthSnapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.source.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	// ListRuns is newest first.
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		h.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			h.RunsComplete++
		case model.RunStatusFailed:
			h.RunsFailed++
			if h.LastError == "" {
				h.LastError = r.Error
			}
		case model.RunStatusRunning:
			h.RunsRunning++
		}
	}
	if finished := h.RunsComplete + h.RunsFailed; finished > 0 {
		h.FailRate = float64(h.RunsFailed) / float64(finished)
	}

	snap, err := c.source.LoadSnapshot(ctx)
	switch {
	case eris.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, eris.Wrap(err, "monitoring: load snapshot")
	default:
		h.HasSnapshot = true
		h.SnapshotRun = snap.RunID
		h.SnapshotAge = now.Sub(snap.ComputedAt)
		h.RankingCount = len(snap.Rankings)
		if c.metrics != nil {
			c.metrics.SetSnapshotAge(h.SnapshotAge)
		}
	}
	return h, nil
}
