package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/model"
)

// ErrMissingTable is returned when a required input table does not exist.
// It signals a pipeline misconfiguration and aborts the run.
var ErrMissingTable = eris.New("store: missing input table")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Input tables read by every run.
const (
	TableLocationEvents = "location_events"
	TableCases          = "cases"
	TableSocialEdges    = "social_edges"
)

// Derived tables replaced by every published snapshot.
const (
	TableCoPresenceEdges = "co_presence_edges"
	TableCaseOverlap     = "entity_case_overlap"
	TableSuspectRankings = "suspect_rankings"
	TableHandoffs        = "handoff_candidates"
	TableCellCounts      = "cell_device_counts"
	TableEvidenceCards   = "evidence_cards"
)

// InputTables lists the tables LoadInputs requires.
var InputTables = []string{TableLocationEvents, TableCases, TableSocialEdges}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analytics pipeline.
type Store interface {
	// Inputs
	LoadInputs(ctx context.Context) (model.Inputs, error)
	SaveInputs(ctx context.Context, in model.Inputs) error

	// Snapshots
	PublishSnapshot(ctx context.Context, snap *model.Snapshot) error
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)

	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	MigrateOutputs(ctx context.Context) error
	Close() error
}

// missingTable wraps ErrMissingTable with the table name.
func missingTable(table string) error {
	return eris.Wrapf(ErrMissingTable, "table %s", table)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
