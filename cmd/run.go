package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/caselink/internal/analytics"
	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/monitoring"
)

var runTop int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute and publish a new analytics snapshot",
	Long:  "Loads the input tables, runs every derivation engine, atomically replaces the derived tables, and notifies the optional graph and Kafka sinks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		st, err := openOutputStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sinks, closeSinks, err := initSinks(ctx)
		if err != nil {
			return err
		}
		defer closeSinks()

		runner := analytics.NewRunner(st, cfg.Analytics,
			analytics.WithSinks(sinks...),
			analytics.WithSinkPolicy(cfg.Sinks),
			analytics.WithRecorder(monitoring.NewMetrics()),
		)

		snap, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		return writeRunSummary(os.Stdout, snap, runTop)
	},
}

// runSummary is the JSON printed after a successful run.
type runSummary struct {
	RunID      string                   `json:"run_id"`
	ComputedAt string                   `json:"computed_at"`
	Rows       map[string]int           `json:"rows"`
	Suspects   []model.SuspectRanking   `json:"top_suspects"`
	Handoffs   []model.HandoffCandidate `json:"top_handoffs"`
}

func writeRunSummary(w io.Writer, snap *model.Snapshot, top int) error {
	s := runSummary{
		RunID:      snap.RunID,
		ComputedAt: snap.ComputedAt.UTC().Format(time.RFC3339),
		Rows: map[string]int{
			"co_presence_edges":   len(snap.CoPresenceEdges),
			"entity_case_overlap": len(snap.CaseOverlaps),
			"suspect_rankings":    len(snap.Rankings),
			"handoff_candidates":  len(snap.Handoffs),
			"cell_device_counts":  len(snap.CellCounts),
			"evidence_cards":      len(snap.Evidence),
		},
		Suspects:   firstN(snap.Rankings, top),
		Handoffs:   firstN(snap.Handoffs, top),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func firstN[T any](items []T, n int) []T {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func init() {
	runCmd.Flags().IntVar(&runTop, "top", 5, "number of suspects and handoffs to print")
	rootCmd.AddCommand(runCmd)
}
