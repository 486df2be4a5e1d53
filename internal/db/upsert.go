package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MergeSpec describes how staged rows are merged into a table.
type MergeSpec struct {
	Table   string   // target table, optionally schema qualified
	Columns []string // columns present in every row
	Keys    []string // natural key columns backing the unique constraint
}

// updateColumns returns the non-key columns, which are overwritten on conflict.
func (m MergeSpec) updateColumns() []string {
	keys := make(map[string]bool, len(m.Keys))
	for _, k := range m.Keys {
		keys[k] = true
	}
	var cols []string
	for _, c := range m.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// MergeRows stages rows in a temp table with COPY and merges them into the
// target with INSERT ... ON CONFLICT, inside the caller's transaction.
// Existing rows with the same key are overwritten, so reloading the same
// inputs is idempotent. The staging table is dropped on commit.
func MergeRows(ctx context.Context, tx Execer, spec MergeSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.Errorf("db: merge %s: no columns specified", spec.Table)
	}
	if len(spec.Keys) == 0 {
		return 0, eris.Errorf("db: merge %s: no key columns specified", spec.Table)
	}

	stage := stagingTable(spec.Table)
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(),
		sanitizeTable(spec.Table),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", spec.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy into staging table", spec.Table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(spec, stage))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert on conflict", spec.Table)
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(spec MergeSpec, stage string) string {
	cols := quoteAndJoin(spec.Columns)

	action := "DO NOTHING"
	if update := spec.updateColumns(); len(update) > 0 {
		sets := make([]string, len(update))
		for i, col := range update {
			q := pgx.Identifier{col}.Sanitize()
			sets[i] = q + " = EXCLUDED." + q
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(spec.Table), cols, cols,
		pgx.Identifier{stage}.Sanitize(),
		quoteAndJoin(spec.Keys), action)
}

// stagingTable names the temp table used to merge into table.
func stagingTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified table names like "public.cases".
func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
