package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/caselink/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteInputMigration creates the input tables. Runs never create them, so
// a database that was never seeded fails with ErrMissingTable.
const sqliteInputMigration = `
CREATE TABLE IF NOT EXISTS location_events (
	event_id        TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	event_timestamp DATETIME NOT NULL,
	time_bucket     TEXT NOT NULL,
	h3_cell         TEXT NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL DEFAULT '',
	latitude        REAL NOT NULL,
	longitude       REAL NOT NULL,
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
	incident_start       DATETIME NOT NULL,
	incident_end         DATETIME NOT NULL,
	latitude             REAL NOT NULL DEFAULT 0,
	longitude            REAL NOT NULL DEFAULT 0,
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
	weight            REAL NOT NULL DEFAULT 0,
	source            TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL DEFAULT 0
);

`

// sqliteOutputMigration creates the derived tables, the snapshot header and the
// run log.
const sqliteOutputMigration = `
CREATE TABLE IF NOT EXISTS co_presence_edges (
	edge_id             TEXT NOT NULL,
	h3_cell             TEXT NOT NULL,
	entity_id_1         TEXT NOT NULL,
	entity_id_2         TEXT NOT NULL,
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	co_occurrence_count INTEGER NOT NULL,
	time_buckets        TEXT NOT NULL DEFAULT '[]',
	time_bucket_count   INTEGER NOT NULL,
	first_seen_together DATETIME NOT NULL,
	last_seen_together  DATETIME NOT NULL,
	weight              REAL NOT NULL,
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
	event_timestamp DATETIME NOT NULL,
	incident_start  DATETIME NOT NULL,
	incident_end    DATETIME NOT NULL,
	in_exact_window BOOLEAN NOT NULL,
	event_count     INTEGER NOT NULL,
	PRIMARY KEY (entity_id, case_id)
);

CREATE TABLE IF NOT EXISTS suspect_rankings (
	entity_id                TEXT PRIMARY KEY,
	case_count               INTEGER NOT NULL,
	unique_cases             INTEGER NOT NULL,
	states_count             INTEGER NOT NULL,
	linked_cases             TEXT NOT NULL DEFAULT '[]',
	linked_cities            TEXT NOT NULL DEFAULT '[]',
	total_copresence_weight  REAL NOT NULL,
	total_social_weight      REAL NOT NULL,
	recurrence_score         REAL NOT NULL,
	cross_jurisdiction_score REAL NOT NULL,
	network_score            REAL NOT NULL,
	total_score              REAL NOT NULL,
	rank                     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS handoff_candidates (
	old_entity_id        TEXT NOT NULL,
	new_entity_id        TEXT NOT NULL,
	h3_cell              TEXT NOT NULL,
	old_last_bucket      TEXT NOT NULL,
	new_first_bucket     TEXT NOT NULL,
	time_diff_minutes    REAL NOT NULL,
	shared_partner_count INTEGER NOT NULL,
	shared_partners      TEXT NOT NULL DEFAULT '[]',
	avg_partner_weight   REAL NOT NULL,
	spatial_score        REAL NOT NULL,
	temporal_score       REAL NOT NULL,
	partner_score        REAL NOT NULL,
	handoff_score        REAL NOT NULL,
	rank                 INTEGER NOT NULL,
	PRIMARY KEY (old_entity_id, new_entity_id, h3_cell)
);

CREATE TABLE IF NOT EXISTS cell_device_counts (
	h3_cell           TEXT NOT NULL,
	time_bucket       TEXT NOT NULL,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	device_count      INTEGER NOT NULL,
	entity_ids        TEXT NOT NULL DEFAULT '[]',
	center_lat        REAL NOT NULL,
	center_lon        REAL NOT NULL,
	centroid          BLOB,
	spread_meters     REAL NOT NULL,
	first_event       DATETIME NOT NULL,
	last_event        DATETIME NOT NULL,
	is_high_activity  BOOLEAN NOT NULL,
	activity_category TEXT NOT NULL,
	PRIMARY KEY (h3_cell, time_bucket, city, state)
);

CREATE TABLE IF NOT EXISTS evidence_cards (
	entity_id       TEXT PRIMARY KEY,
	rank            INTEGER NOT NULL,
	total_score     REAL NOT NULL,
	linked_cases    TEXT NOT NULL DEFAULT '[]',
	linked_cities   TEXT NOT NULL DEFAULT '[]',
	states_count    INTEGER NOT NULL,
	geo_evidence    TEXT NOT NULL DEFAULT '[]',
	social_evidence TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS snapshot_meta (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	run_id      TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	error        TEXT NOT NULL DEFAULT '',
	counts       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_analytics_runs_status ON analytics_runs(status);
CREATE INDEX IF NOT EXISTS idx_analytics_runs_started_at ON analytics_runs(started_at);
`

// Migrate creates every table: inputs, derived tables and the run log.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteInputMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate inputs")
	}
	return s.MigrateOutputs(ctx)
}

// MigrateOutputs creates the derived tables and the run log only.
func (s *SQLiteStore) MigrateOutputs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteOutputMigration)
	return eris.Wrap(err, "sqlite: migrate outputs")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) checkTables(ctx context.Context, tables []string) error {
	for _, table := range tables {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&n)
		if err != nil {
			return eris.Wrapf(err, "sqlite: check table %s", table)
		}
		if n == 0 {
			return missingTable(table)
		}
	}
	return nil
}

// LoadInputs reads the event, case, and social tables.
func (s *SQLiteStore) LoadInputs(ctx context.Context) (model.Inputs, error) {
	var in model.Inputs
	if err := s.checkTables(ctx, InputTables); err != nil {
		return in, err
	}

	var err error
	if in.Events, err = sqliteQueryAll(ctx, s.db, eventSpec, scanEvent); err != nil {
		return in, err
	}
	if in.Cases, err = sqliteQueryAll(ctx, s.db, caseSpec, scanCase); err != nil {
		return in, err
	}
	if in.SocialEdges, err = sqliteQueryAll(ctx, s.db, socialSpec, scanSocial); err != nil {
		return in, err
	}
	return in, nil
}

// SaveInputs upserts the input tables, keyed on their natural ids.
func (s *SQLiteStore) SaveInputs(ctx context.Context, in model.Inputs) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save inputs: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range inputRows(in) {
		if err := insertRows(ctx, tx, t.spec, upsertSQL(t.spec), t.rows); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: save inputs: commit")
}

// PublishSnapshot replaces every derived table and the snapshot header in a
// single transaction.
func (s *SQLiteStore) PublishSnapshot(ctx context.Context, snap *model.Snapshot) error {
	tables, err := snapshotRows(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: publish: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.spec.name); err != nil {
			return eris.Wrapf(err, "sqlite: publish: clear %s", t.spec.name)
		}
		if err := insertRows(ctx, tx, t.spec, insertSQL(t.spec), t.rows); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, run_id, computed_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET run_id = excluded.run_id, computed_at = excluded.computed_at`,
		snap.RunID, snap.ComputedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: publish: write snapshot meta")
	}
	return eris.Wrap(tx.Commit(), "sqlite: publish: commit")
}

// LoadSnapshot reads the most recently published snapshot. It returns
// ErrNotFound when nothing has been published yet.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	var meta runMeta
	err := s.db.QueryRowContext(ctx, `SELECT run_id, computed_at FROM snapshot_meta WHERE id = 1`).
		Scan(&meta.RunID, &meta.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load snapshot meta")
	}

	snap := &model.Snapshot{RunID: meta.RunID, ComputedAt: meta.ComputedAt.UTC()}
	if snap.CoPresenceEdges, err = sqliteQueryAll(ctx, s.db, edgeSpec, scanEdge); err != nil {
		return nil, err
	}
	if snap.CaseOverlaps, err = sqliteQueryAll(ctx, s.db, overlapSpec, scanOverlap); err != nil {
		return nil, err
	}
	if snap.Rankings, err = sqliteQueryAll(ctx, s.db, rankingSpec, scanRanking); err != nil {
		return nil, err
	}
	if snap.Handoffs, err = sqliteQueryAll(ctx, s.db, handoffSpec, scanHandoff); err != nil {
		return nil, err
	}
	if snap.CellCounts, err = sqliteQueryAll(ctx, s.db, cellSpec, scanCell); err != nil {
		return nil, err
	}
	if snap.Evidence, err = sqliteQueryAll(ctx, s.db, evidenceSpec, scanEvidence); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run counts")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analytics_runs (id, status, started_at, counts) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt.UTC(), string(counts),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run counts")
	}
	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analytics_runs SET status = ?, completed_at = ?, error = ?, counts = ? WHERE id = ?`,
		string(run.Status), completed, run.Error, string(counts), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, error, counts FROM analytics_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, normalizeLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
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
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func insertSQL(spec tableSpec) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", ")
	return "INSERT INTO " + spec.name + " (" + strings.Join(spec.columns, ", ") + ") VALUES (" + marks + ")"
}

func upsertSQL(spec tableSpec) string {
	keys := make(map[string]bool, len(spec.conflict))
	for _, k := range spec.conflict {
		keys[k] = true
	}
	var sets []string
	for _, c := range spec.columns {
		if !keys[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return insertSQL(spec) + " ON CONFLICT (" + strings.Join(spec.conflict, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// insertRows executes one prepared statement per row inside tx.
func insertRows(ctx context.Context, tx *sql.Tx, spec tableSpec, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", spec.name)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, sqliteArgs(row)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", spec.name)
		}
	}
	return nil
}

// sqliteArgs stores JSON columns as TEXT so json_extract works on them.
func sqliteArgs(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if raw, ok := v.(json.RawMessage); ok {
			out[i] = string(raw)
			continue
		}
		out[i] = v
	}
	return out
}

func sqliteQueryAll[T any](ctx context.Context, db *sql.DB, spec tableSpec, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, spec.selectSQL())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", spec.name)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", spec.name)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", spec.name)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
