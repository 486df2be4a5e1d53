package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/resilience"
)

// Store is the part of store.Store a Runner needs.
type Store interface {
	LoadInputs(ctx context.Context) (model.Inputs, error)
	PublishSnapshot(ctx context.Context, snap *model.Snapshot) error
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
}

// Sink receives every published snapshot. Sinks are best effort: a sink
// failure is logged and counted but never fails the run.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap *model.Snapshot) error
}

// Runner executes one load, compute, publish cycle and records it in the
// run log.
type Runner struct {
	store    Store
	cfg      config.AnalyticsConfig
	sinks    []Sink
	policies map[string]*resilience.Policy
	sinkCfg  config.SinksConfig
	rec      Recorder
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks registers sinks to notify after a successful publish.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithSinkPolicy sets the retry and circuit settings for sinks.
func WithSinkPolicy(cfg config.SinksConfig) Option {
	return func(r *Runner) { r.sinkCfg = cfg }
}

// WithRecorder reports stage and run timings to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// NewRunner creates a Runner over st.
func NewRunner(st Store, cfg config.AnalyticsConfig, opts ...Option) *Runner {
	r := &Runner{store: st, cfg: cfg, rec: nopRecorder{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.policies = make(map[string]*resilience.Policy, len(r.sinks))
	for _, s := range r.sinks {
		r.policies[s.Name()] = resilience.NewPolicy(s.Name(), r.sinkCfg)
	}
	return r
}

// Run loads inputs, computes a snapshot, and publishes it atomically. Nothing
// is published if any stage fails. The run is logged as complete or failed.
func (r *Runner) Run(ctx context.Context) (*model.Snapshot, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Status:    model.RunStatusRunning,
		StartedAt: r.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "analytics: create run")
	}
	log.Info("analytics: run started")

	in, err := r.store.LoadInputs(ctx)
	if err != nil {
		return nil, r.fail(ctx, run, log, eris.Wrap(err, "analytics: load inputs"))
	}
	log.Info("analytics: inputs loaded",
		zap.Int("events", len(in.Events)),
		zap.Int("cases", len(in.Cases)),
		zap.Int("social_edges", len(in.SocialEdges)),
	)

	snap, err := compute(ctx, in, r.cfg, run.ID, r.rec)
	if err != nil {
		run.Counts = model.CountsOf(in, nil)
		return nil, r.fail(ctx, run, log, err)
	}

	if err := r.store.PublishSnapshot(ctx, snap); err != nil {
		run.Counts = model.CountsOf(in, nil)
		return nil, r.fail(ctx, run, log, eris.Wrap(err, "analytics: publish snapshot"))
	}

	run.Counts = model.CountsOf(in, snap)
	r.recordRows(run.Counts)

	done := r.now().UTC()
	run.Status = model.RunStatusComplete
	run.CompletedAt = &done
	if err := r.store.FinishRun(ctx, run); err != nil {
		log.Warn("analytics: failed to mark run complete", zap.Error(err))
	}
	r.rec.ObserveRun(string(run.Status), done.Sub(run.StartedAt))
	log.Info("analytics: snapshot published",
		zap.Int("co_presence_edges", run.Counts.Edges),
		zap.Int("suspect_rankings", run.Counts.Rankings),
		zap.Int("handoff_candidates", run.Counts.Handoffs),
		zap.Duration("elapsed", done.Sub(run.StartedAt)),
	)

	r.notify(ctx, snap, log)
	return snap, nil
}

// fail marks run failed and returns cause. The run log is written even when
// ctx has been cancelled.
func (r *Runner) fail(ctx context.Context, run *model.Run, log *zap.Logger, cause error) error {
	done := r.now().UTC()
	run.Status = model.RunStatusFailed
	run.CompletedAt = &done
	run.Error = cause.Error()
	if err := r.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("analytics: failed to mark run failed", zap.Error(err))
	}
	r.rec.ObserveRun(string(run.Status), done.Sub(run.StartedAt))
	log.Error("analytics: run failed", zap.Error(cause))
	return cause
}

func (r *Runner) notify(ctx context.Context, snap *model.Snapshot, log *zap.Logger) {
	for _, s := range r.sinks {
		err := r.policies[s.Name()].Run(ctx, func(ctx context.Context) error {
			return s.Publish(ctx, snap)
		})
		if err != nil {
			r.rec.SinkError(s.Name())
			log.Warn("analytics: sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
			continue
		}
		log.Debug("analytics: sink published", zap.String("sink", s.Name()))
	}
}

func (r *Runner) recordRows(c model.RunCounts) {
	r.rec.SetRowsPublished("co_presence_edges", c.Edges)
	r.rec.SetRowsPublished("entity_case_overlap", c.Overlaps)
	r.rec.SetRowsPublished("suspect_rankings", c.Rankings)
	r.rec.SetRowsPublished("handoff_candidates", c.Handoffs)
	r.rec.SetRowsPublished("cell_device_counts", c.CellCounts)
	r.rec.SetRowsPublished("evidence_cards", c.Evidence)
}
