package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/db"
	"github.com/sells-group/caselink/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"table_exists":  `SELECT to_regclass($1) IS NOT NULL`,
	"insert_run":    `INSERT INTO analytics_runs (id, status, started_at, counts) VALUES ($1, $2, $3, $4)`,
	"finish_run":    `UPDATE analytics_runs SET status = $1, completed_at = $2, error = $3, counts = $4 WHERE id = $5`,
	"snapshot_meta": `SELECT run_id, computed_at FROM snapshot_meta WHERE id = 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// postgresInputMigration creates the input tables. Runs never create them, so
// a database that was never seeded fails with ErrMissingTable.
const postgresInputMigration = `
CREATE TABLE IF NOT EXISTS location_events (
	event_id        TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	event_timestamp TIMESTAMPTZ NOT NULL,
	time_bucket     TEXT NOT NULL,
	h3_cell         TEXT NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	event_type      TEXT NOT NULL DEFAULT '',
	source_system   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_location_events_cell_bucket ON location_events(h3_cell, time_bucket);
CREATE INDEX IF NOT EXISTS idx_location_events_entity ON location_events(entity_id);

CREATE TABLE IF NOT EXISTS cases (
	case_id              TEXT PRIMARY KEY,
	case_type            TEXT NOT NULL,
	city                 TEXT NOT NULL DEFAULT '',
	state                TEXT NOT NULL DEFAULT '',
	address              TEXT NOT NULL DEFAULT '',
	h3_cell              TEXT NOT NULL,
	incident_time_bucket TEXT NOT NULL,
	incident_start       TIMESTAMPTZ NOT NULL,
	incident_end         TIMESTAMPTZ NOT NULL,
	latitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude            DOUBLE PRECISION NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT '',
	priority             TEXT NOT NULL DEFAULT '',
	narrative            TEXT NOT NULL DEFAULT '',
	method_of_entry      TEXT NOT NULL DEFAULT '',
	target_items         TEXT NOT NULL DEFAULT '',
	estimated_loss       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS social_edges (
	edge_id           TEXT PRIMARY KEY,
	entity_id_1       TEXT NOT NULL,
	entity_id_2       TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	weight            DOUBLE PRECISION NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0
);

`

// postgresOutputMigration creates the derived tables, the snapshot header and the
// run log.
const postgresOutputMigration = `
CREATE TABLE IF NOT EXISTS co_presence_edges (
	edge_id             TEXT NOT NULL,
	h3_cell             TEXT NOT NULL,
	entity_id_1         TEXT NOT NULL,
	entity_id_2         TEXT NOT NULL,
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	co_occurrence_count INTEGER NOT NULL,
	time_buckets        JSONB NOT NULL DEFAULT '[]',
	time_bucket_count   INTEGER NOT NULL,
	first_seen_together TIMESTAMPTZ NOT NULL,
	last_seen_together  TIMESTAMPTZ NOT NULL,
	weight              DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (edge_id, h3_cell)
);

CREATE TABLE IF NOT EXISTS entity_case_overlap (
	entity_id       TEXT NOT NULL,
	case_id         TEXT NOT NULL,
	case_type       TEXT NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	h3_cell         TEXT NOT NULL,
	time_bucket     TEXT NOT NULL,
	event_timestamp TIMESTAMPTZ NOT NULL,
	incident_start  TIMESTAMPTZ NOT NULL,
	incident_end    TIMESTAMPTZ NOT NULL,
	in_exact_window BOOLEAN NOT NULL,
	event_count     INTEGER NOT NULL,
	PRIMARY KEY (entity_id, case_id)
);

CREATE TABLE IF NOT EXISTS suspect_rankings (
	entity_id                TEXT PRIMARY KEY,
	case_count               INTEGER NOT NULL,
	unique_cases             INTEGER NOT NULL,
	states_count             INTEGER NOT NULL,
	linked_cases             JSONB NOT NULL DEFAULT '[]',
	linked_cities            JSONB NOT NULL DEFAULT '[]',
	total_copresence_weight  DOUBLE PRECISION NOT NULL,
	total_social_weight      DOUBLE PRECISION NOT NULL,
	recurrence_score         DOUBLE PRECISION NOT NULL,
	cross_jurisdiction_score DOUBLE PRECISION NOT NULL,
	network_score            DOUBLE PRECISION NOT NULL,
	total_score              DOUBLE PRECISION NOT NULL,
	rank                     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS handoff_candidates (
	old_entity_id        TEXT NOT NULL,
	new_entity_id        TEXT NOT NULL,
	h3_cell              TEXT NOT NULL,
	old_last_bucket      TEXT NOT NULL,
	new_first_bucket     TEXT NOT NULL,
	time_diff_minutes    DOUBLE PRECISION NOT NULL,
	shared_partner_count INTEGER NOT NULL,
	shared_partners      JSONB NOT NULL DEFAULT '[]',
	avg_partner_weight   DOUBLE PRECISION NOT NULL,
	spatial_score        DOUBLE PRECISION NOT NULL,
	temporal_score       DOUBLE PRECISION NOT NULL,
	partner_score        DOUBLE PRECISION NOT NULL,
	handoff_score        DOUBLE PRECISION NOT NULL,
	rank                 INTEGER NOT NULL,
	PRIMARY KEY (old_entity_id, new_entity_id, h3_cell)
);

CREATE TABLE IF NOT EXISTS cell_device_counts (
	h3_cell           TEXT NOT NULL,
	time_bucket       TEXT NOT NULL,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	device_count      INTEGER NOT NULL,
	entity_ids        JSONB NOT NULL DEFAULT '[]',
	center_lat        DOUBLE PRECISION NOT NULL,
	center_lon        DOUBLE PRECISION NOT NULL,
	centroid          BYTEA,
	spread_meters     DOUBLE PRECISION NOT NULL,
	first_event       TIMESTAMPTZ NOT NULL,
	last_event        TIMESTAMPTZ NOT NULL,
	is_high_activity  BOOLEAN NOT NULL,
	activity_category TEXT NOT NULL,
	PRIMARY KEY (h3_cell, time_bucket, city, state)
);

CREATE TABLE IF NOT EXISTS evidence_cards (
	entity_id       TEXT PRIMARY KEY,
	rank            INTEGER NOT NULL,
	total_score     DOUBLE PRECISION NOT NULL,
	linked_cases    JSONB NOT NULL DEFAULT '[]',
	linked_cities   JSONB NOT NULL DEFAULT '[]',
	states_count    INTEGER NOT NULL,
	geo_evidence    JSONB NOT NULL DEFAULT '[]',
	social_evidence JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	run_id      TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	error        TEXT NOT NULL DEFAULT '',
	counts       JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_analytics_runs_status ON analytics_runs(status);
CREATE INDEX IF NOT EXISTS idx_analytics_runs_started_at ON analytics_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates every table: inputs, derived tables and the run log.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresInputMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate inputs")
	}
	return s.MigrateOutputs(ctx)
}

// MigrateOutputs creates the derived tables and the run log only.
func (s *PostgresStore) MigrateOutputs(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresOutputMigration)
	return eris.Wrap(err, "postgres: migrate outputs")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// checkTables returns ErrMissingTable for the first absent table.
func (s *PostgresStore) checkTables(ctx context.Context, tables []string) error {
	for _, table := range tables {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return eris.Wrapf(err, "postgres: check table %s", table)
		}
		if !exists {
			return missingTable(table)
		}
	}
	return nil
}

// LoadInputs reads the event, case, and social tables.
func (s *PostgresStore) LoadInputs(ctx context.Context) (model.Inputs, error) {
	var in model.Inputs
	if err := s.checkTables(ctx, InputTables); err != nil {
		return in, err
	}

	var err error
	if in.Events, err = queryAll(ctx, s.pool, eventSpec, scanEvent); err != nil {
		return in, err
	}
	if in.Cases, err = queryAll(ctx, s.pool, caseSpec, scanCase); err != nil {
		return in, err
	}
	if in.SocialEdges, err = queryAll(ctx, s.pool, socialSpec, scanSocial); err != nil {
		return in, err
	}
	return in, nil
}

// SaveInputs merges the input tables, keyed on their natural ids, in one
// transaction.
func (s *PostgresStore) SaveInputs(ctx context.Context, in model.Inputs) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save inputs: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, t := range inputRows(in) {
		_, err := db.MergeRows(ctx, tx, db.MergeSpec{
			Table:   t.spec.name,
			Columns: t.spec.columns,
			Keys:    t.spec.conflict,
		}, t.rows)
		if err != nil {
			return eris.Wrapf(err, "postgres: save %s", t.spec.name)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: save inputs: commit")
}

// PublishSnapshot replaces every derived table and the snapshot header in a
// single transaction. Readers see either the previous or the new snapshot.
func (s *PostgresStore) PublishSnapshot(ctx context.Context, snap *model.Snapshot) error {
	tables, err := snapshotRows(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: publish: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, t := range tables {
		if _, err := db.ReplaceRows(ctx, tx, t.spec.name, t.spec.columns, t.rows); err != nil {
			return eris.Wrapf(err, "postgres: publish %s", t.spec.name)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO snapshot_meta (id, run_id, computed_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, computed_at = EXCLUDED.computed_at`,
		snap.RunID, snap.ComputedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: publish: write snapshot meta")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: publish: commit")
}

// LoadSnapshot reads the most recently published snapshot. It returns
// ErrNotFound when nothing has been published yet.
func (s *PostgresStore) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var meta runMeta
	err := s.pool.QueryRow(ctx, `SELECT run_id, computed_at FROM snapshot_meta WHERE id = 1`).
		Scan(&meta.RunID, &meta.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load snapshot meta")
	}

	snap := &model.Snapshot{RunID: meta.RunID, ComputedAt: meta.ComputedAt.UTC()}
	if snap.CoPresenceEdges, err = queryAll(ctx, s.pool, edgeSpec, scanEdge); err != nil {
		return nil, err
	}
	if snap.CaseOverlaps, err = queryAll(ctx, s.pool, overlapSpec, scanOverlap); err != nil {
		return nil, err
	}
	if snap.Rankings, err = queryAll(ctx, s.pool, rankingSpec, scanRanking); err != nil {
		return nil, err
	}
	if snap.Handoffs, err = queryAll(ctx, s.pool, handoffSpec, scanHandoff); err != nil {
		return nil, err
	}
	if snap.CellCounts, err = queryAll(ctx, s.pool, cellSpec, scanCell); err != nil {
		return nil, err
	}
	if snap.Evidence, err = queryAll(ctx, s.pool, evidenceSpec, scanEvidence); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run counts")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analytics_runs (id, status, started_at, counts) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.StartedAt.UTC(), counts,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run counts")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE analytics_runs SET status = $1, completed_at = $2, error = $3, counts = $4 WHERE id = $5`,
		string(run.Status), run.CompletedAt, run.Error, counts, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, error, counts FROM analytics_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, normalizeLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// queryAll reads every row of spec's table in its canonical order.
func queryAll[T any](ctx context.Context, pool db.Pool, spec tableSpec, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, spec.selectSQL())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", spec.name)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", spec.name)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", spec.name)
}
