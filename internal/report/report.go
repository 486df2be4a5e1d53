// Package report exports a published snapshot as an xlsx workbook for
// investigators who work outside the dashboard.
package report

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/caselink/internal/model"
)

// Sheet names, in workbook order.
const (
	SheetSummary    = "Summary"
	SheetSuspects   = "Suspects"
	SheetHandoffs   = "Handoffs"
	SheetCells      = "Cells"
	SheetCoPresence = "CoPresence"
	SheetOverlaps   = "CaseOverlap"
	SheetEvidence   = "Evidence"
)

// Options limits the size of the exported sheets. Zero means no limit.
type Options struct {
	MaxSuspects int
	MaxHandoffs int
	// MinDevices drops quieter cells from the Cells sheet.
	MinDevices int
}

// Build renders snap into a new workbook.
func Build(snap *model.Snapshot, opts Options) (*xlsx.File, error) {
	if snap == nil {
		return nil, eris.New("report: nil snapshot")
	}

	f := xlsx.NewFile()
	sheets := []struct {
		name  string
		write func(*xlsx.Sheet)
	}{
		{SheetSummary, func(s *xlsx.Sheet) { writeSummary(s, snap) }},
		{SheetSuspects, func(s *xlsx.Sheet) { writeSuspects(s, limit(snap.Rankings, opts.MaxSuspects)) }},
		{SheetHandoffs, func(s *xlsx.Sheet) { writeHandoffs(s, limit(snap.Handoffs, opts.MaxHandoffs)) }},
		{SheetCells, func(s *xlsx.Sheet) { writeCells(s, snap.CellCounts, opts.MinDevices) }},
		{SheetCoPresence, func(s *xlsx.Sheet) { writeCoPresence(s, snap.CoPresenceEdges) }},
		{SheetOverlaps, func(s *xlsx.Sheet) { writeOverlaps(s, snap.CaseOverlaps) }},
		{SheetEvidence, func(s *xlsx.Sheet) { writeEvidence(s, snap.Evidence) }},
	}
	for _, sh := range sheets {
		s, err := f.AddSheet(sh.name)
		if err != nil {
			return nil, eris.Wrapf(err, "report: add sheet %s", sh.name)
		}
		sh.write(s)
	}
	return f, nil
}

// Write renders snap and streams the workbook to w.
func Write(w io.Writer, snap *model.Snapshot, opts Options) error {
	f, err := Build(snap, opts)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

// Save renders snap to an xlsx file at path.
func Save(path string, snap *model.Snapshot, opts Options) error {
	f, err := Build(snap, opts)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func writeSummary(s *xlsx.Sheet, snap *model.Snapshot) {
	header(s, "metric", "value")
	row(s).text("run_id").text(snap.RunID)
	row(s).text("computed_at").text(timestamp(snap.ComputedAt))
	row(s).text("co_presence_edges").count(len(snap.CoPresenceEdges))
	row(s).text("case_overlaps").count(len(snap.CaseOverlaps))
	row(s).text("suspects").count(len(snap.Rankings))
	row(s).text("handoff_candidates").count(len(snap.Handoffs))
	row(s).text("cell_buckets").count(len(snap.CellCounts))

	high := 0
	for _, c := range snap.CellCounts {
		if c.IsHighActivity {
			high++
		}
	}
	row(s).text("high_activity_cells").count(high)
}

func writeSuspects(s *xlsx.Sheet, rankings []model.SuspectRanking) {
	header(s, "rank", "entity_id", "total_score", "recurrence_score", "cross_jurisdiction_score",
		"network_score", "unique_cases", "case_count", "states_count", "linked_cases", "linked_cities")
	for _, r := range rankings {
		row(s).
			count(r.Rank).
			text(r.EntityID).
			number(r.TotalScore).
			number(r.RecurrenceScore).
			number(r.CrossJurisdictionScore).
			number(r.NetworkScore).
			count(r.UniqueCases).
			count(r.CaseCount).
			count(r.StatesCount).
			joined(r.LinkedCases).
			joined(r.LinkedCities)
	}
}

func writeHandoffs(s *xlsx.Sheet, handoffs []model.HandoffCandidate) {
	header(s, "rank", "old_entity_id", "new_entity_id", "h3_cell", "old_last_bucket", "new_first_bucket",
		"time_diff_minutes", "shared_partners", "handoff_score")
	for _, h := range handoffs {
		row(s).
			count(h.Rank).
			text(h.OldEntityID).
			text(h.NewEntityID).
			text(h.H3Cell).
			text(h.OldLastBucket).
			text(h.NewFirstBucket).
			number(h.TimeDiffMinutes).
			joined(h.SharedPartners).
			number(h.HandoffScore)
	}
}

func writeCells(s *xlsx.Sheet, cells []model.CellDeviceCount, minDevices int) {
	header(s, "h3_cell", "time_bucket", "city", "state", "device_count", "activity_category",
		"center_lat", "center_lon", "spread_meters", "entity_ids")
	for _, c := range cells {
		if c.DeviceCount < minDevices {
			continue
		}
		row(s).
			text(c.H3Cell).
			text(c.TimeBucket).
			text(c.City).
			text(c.State).
			count(c.DeviceCount).
			text(c.ActivityCategory).
			number(c.CenterLat).
			number(c.CenterLon).
			number(c.SpreadMeters).
			joined(c.EntityIDs)
	}
}

func writeCoPresence(s *xlsx.Sheet, edges []model.CoPresenceEdge) {
	header(s, "edge_id", "entity_id_1", "entity_id_2", "h3_cell", "co_occurrence_count",
		"time_bucket_count", "weight", "first_seen_together", "last_seen_together")
	for _, e := range edges {
		row(s).
			text(e.EdgeID).
			text(e.EntityID1).
			text(e.EntityID2).
			text(e.H3Cell).
			count(e.CoOccurrenceCount).
			count(e.TimeBucketCount).
			number(e.Weight).
			text(timestamp(e.FirstSeenTogether)).
			text(timestamp(e.LastSeenTogether))
	}
}

func writeOverlaps(s *xlsx.Sheet, overlaps []model.CaseOverlap) {
	header(s, "case_id", "entity_id", "case_type", "city", "state", "h3_cell", "time_bucket",
		"event_count", "in_exact_window")
	for _, o := range overlaps {
		row(s).
			text(o.CaseID).
			text(o.EntityID).
			text(o.CaseType).
			text(o.City).
			text(o.State).
			text(o.H3Cell).
			text(o.TimeBucket).
			count(o.EventCount).
			flag(o.InExactWindow)
	}
}

// writeEvidence flattens each suspect's bundle to one row per geospatial
// or social item.
func writeEvidence(s *xlsx.Sheet, records []model.EvidenceRecord) {
	header(s, "rank", "entity_id", "kind", "reference", "detail")
	for _, r := range records {
		for _, g := range r.GeoEvidence {
			row(s).count(r.Rank).text(r.EntityID).text(model.ClaimGeospatial).text(g.CaseID).
				text(g.Address + ", " + g.City + " @ " + g.TimeBucket)
		}
		for _, so := range r.SocialEvidence {
			row(s).count(r.Rank).text(r.EntityID).text(model.ClaimSocial).text(so.ConnectedEntity).
				text(so.RelationshipType)
		}
	}
}

// rowWriter appends typed cells to one row.
type rowWriter struct{ r *xlsx.Row }

func row(s *xlsx.Sheet) rowWriter { return rowWriter{s.AddRow()} }

func header(s *xlsx.Sheet, cols ...string) {
	w := row(s)
	for _, c := range cols {
		w.text(c)
	}
}

func (w rowWriter) text(v string) rowWriter {
	w.r.AddCell().SetString(v)
	return w
}

func (w rowWriter) count(v int) rowWriter {
	w.r.AddCell().SetInt(v)
	return w
}

func (w rowWriter) number(v float64) rowWriter {
	w.r.AddCell().SetFloat(v)
	return w
}

func (w rowWriter) flag(v bool) rowWriter {
	w.r.AddCell().SetBool(v)
	return w
}

func (w rowWriter) joined(v []string) rowWriter {
	return w.text(strings.Join(v, ", "))
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
