package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/model"
)

// tableSpec names a table and the column order used for writes and reads.
type tableSpec struct {
	name     string
	columns  []string
	conflict []string
	orderBy  string
}

var (
	eventSpec = tableSpec{
		name: TableLocationEvents,
		columns: []string{"event_id", "entity_id", "event_timestamp", "time_bucket", "h3_cell",
			"city", "state", "latitude", "longitude", "event_type", "source_system"},
		conflict: []string{"event_id"},
		orderBy:  "event_id",
	}
	caseSpec = tableSpec{
		name: TableCases,
		columns: []string{"case_id", "case_type", "city", "state", "address", "h3_cell",
			"incident_time_bucket", "incident_start", "incident_end", "latitude", "longitude",
			"status", "priority", "narrative", "method_of_entry", "target_items", "estimated_loss"},
		conflict: []string{"case_id"},
		orderBy:  "case_id",
	}
	socialSpec = tableSpec{
		name: TableSocialEdges,
		columns: []string{"edge_id", "entity_id_1", "entity_id_2", "relationship_type",
			"weight", "source", "confidence"},
		conflict: []string{"edge_id"},
		orderBy:  "edge_id",
	}
	edgeSpec = tableSpec{
		name: TableCoPresenceEdges,
		columns: []string{"edge_id", "h3_cell", "entity_id_1", "entity_id_2", "city", "state",
			"co_occurrence_count", "time_buckets", "time_bucket_count",
			"first_seen_together", "last_seen_together", "weight"},
		orderBy: "entity_id_1, entity_id_2, h3_cell",
	}
	overlapSpec = tableSpec{
		name: TableCaseOverlap,
		columns: []string{"entity_id", "case_id", "case_type", "city", "state", "h3_cell",
			"time_bucket", "event_timestamp", "incident_start", "incident_end",
			"in_exact_window", "event_count"},
		orderBy: "case_id, entity_id",
	}
	rankingSpec = tableSpec{
		name: TableSuspectRankings,
		columns: []string{"entity_id", "case_count", "unique_cases", "states_count",
			"linked_cases", "linked_cities", "total_copresence_weight", "total_social_weight",
			"recurrence_score", "cross_jurisdiction_score", "network_score", "total_score", "rank"},
		orderBy: "rank, entity_id",
	}
	handoffSpec = tableSpec{
		name: TableHandoffs,
		columns: []string{"old_entity_id", "new_entity_id", "h3_cell", "old_last_bucket",
			"new_first_bucket", "time_diff_minutes", "shared_partner_count", "shared_partners",
			"avg_partner_weight", "spatial_score", "temporal_score", "partner_score",
			"handoff_score", "rank"},
		orderBy: "rank, old_entity_id, new_entity_id, h3_cell",
	}
	cellSpec = tableSpec{
		name: TableCellCounts,
		columns: []string{"h3_cell", "time_bucket", "city", "state", "device_count", "entity_ids",
			"center_lat", "center_lon", "centroid", "spread_meters", "first_event", "last_event",
			"is_high_activity", "activity_category"},
		orderBy: "h3_cell, time_bucket, city, state",
	}
	evidenceSpec = tableSpec{
		name: TableEvidenceCards,
		columns: []string{"entity_id", "rank", "total_score", "linked_cases", "linked_cities",
			"states_count", "geo_evidence", "social_evidence"},
		orderBy: "rank, entity_id",
	}
)

// selectSQL builds the read query for a table spec.
func (t tableSpec) selectSQL() string {
	return "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name + " ORDER BY " + t.orderBy
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// encodeJSON marshals list and nested columns. Empty slices are stored as
// [] rather than null.
func encodeJSON(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode json column")
	}
	if string(data) == "null" {
		return json.RawMessage("[]"), nil
	}
	return data, nil
}

func decodeStrings(data []byte) ([]string, error) {
	out := []string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "store: decode string list")
	}
	return out, nil
}

// --- Inputs ---

func eventRow(e model.LocationEvent) []any {
	return []any{e.EventID, e.EntityID, e.Timestamp.UTC(), e.TimeBucket, e.H3Cell,
		e.City, e.State, e.Latitude, e.Longitude, e.EventType, e.SourceSystem}
}

func scanEvent(r rowScanner) (model.LocationEvent, error) {
	var e model.LocationEvent
	err := r.Scan(&e.EventID, &e.EntityID, &e.Timestamp, &e.TimeBucket, &e.H3Cell,
		&e.City, &e.State, &e.Latitude, &e.Longitude, &e.EventType, &e.SourceSystem)
	e.Timestamp = e.Timestamp.UTC()
	return e, err
}

func caseRow(c model.Case) []any {
	return []any{c.CaseID, c.CaseType, c.City, c.State, c.Address, c.H3Cell,
		c.IncidentTimeBucket, c.IncidentStart.UTC(), c.IncidentEnd.UTC(), c.Latitude, c.Longitude,
		c.Status, c.Priority, c.Narrative, c.MethodOfEntry, strings.Join(c.TargetItems, ","), c.EstimatedLoss}
}

func scanCase(r rowScanner) (model.Case, error) {
	var c model.Case
	var targets string
	err := r.Scan(&c.CaseID, &c.CaseType, &c.City, &c.State, &c.Address, &c.H3Cell,
		&c.IncidentTimeBucket, &c.IncidentStart, &c.IncidentEnd, &c.Latitude, &c.Longitude,
		&c.Status, &c.Priority, &c.Narrative, &c.MethodOfEntry, &targets, &c.EstimatedLoss)
	c.IncidentStart = c.IncidentStart.UTC()
	c.IncidentEnd = c.IncidentEnd.UTC()
	c.TargetItems = model.SplitTargetItems(targets)
	return c, err
}

func socialRow(e model.SocialEdge) []any {
	return []any{e.EdgeID, e.EntityID1, e.EntityID2, e.RelationshipType, e.Weight, e.Source, e.Confidence}
}

func scanSocial(r rowScanner) (model.SocialEdge, error) {
	var e model.SocialEdge
	err := r.Scan(&e.EdgeID, &e.EntityID1, &e.EntityID2, &e.RelationshipType, &e.Weight, &e.Source, &e.Confidence)
	return e, err
}

// --- Derived ---

func edgeRow(e model.CoPresenceEdge) ([]any, error) {
	buckets, err := encodeJSON(e.TimeBuckets)
	if err != nil {
		return nil, err
	}
	return []any{e.EdgeID, e.H3Cell, e.EntityID1, e.EntityID2, e.City, e.State,
		e.CoOccurrenceCount, buckets, e.TimeBucketCount,
		e.FirstSeenTogether.UTC(), e.LastSeenTogether.UTC(), e.Weight}, nil
}

func scanEdge(r rowScanner) (model.CoPresenceEdge, error) {
	var e model.CoPresenceEdge
	var buckets []byte
	if err := r.Scan(&e.EdgeID, &e.H3Cell, &e.EntityID1, &e.EntityID2, &e.City, &e.State,
		&e.CoOccurrenceCount, &buckets, &e.TimeBucketCount,
		&e.FirstSeenTogether, &e.LastSeenTogether, &e.Weight); err != nil {
		return e, err
	}
	e.FirstSeenTogether = e.FirstSeenTogether.UTC()
	e.LastSeenTogether = e.LastSeenTogether.UTC()
	var err error
	e.TimeBuckets, err = decodeStrings(buckets)
	return e, err
}

func overlapRow(o model.CaseOverlap) []any {
	return []any{o.EntityID, o.CaseID, o.CaseType, o.City, o.State, o.H3Cell,
		o.TimeBucket, o.EventTimestamp.UTC(), o.IncidentStart.UTC(), o.IncidentEnd.UTC(),
		o.InExactWindow, o.EventCount}
}

func scanOverlap(r rowScanner) (model.CaseOverlap, error) {
	var o model.CaseOverlap
	err := r.Scan(&o.EntityID, &o.CaseID, &o.CaseType, &o.City, &o.State, &o.H3Cell,
		&o.TimeBucket, &o.EventTimestamp, &o.IncidentStart, &o.IncidentEnd,
		&o.InExactWindow, &o.EventCount)
	o.EventTimestamp = o.EventTimestamp.UTC()
	o.IncidentStart = o.IncidentStart.UTC()
	o.IncidentEnd = o.IncidentEnd.UTC()
	return o, err
}

func rankingRow(s model.SuspectRanking) ([]any, error) {
	cases, err := encodeJSON(s.LinkedCases)
	if err != nil {
		return nil, err
	}
	cities, err := encodeJSON(s.LinkedCities)
	if err != nil {
		return nil, err
	}
	return []any{s.EntityID, s.CaseCount, s.UniqueCases, s.StatesCount, cases, cities,
		s.TotalCopresenceWeight, s.TotalSocialWeight, s.RecurrenceScore,
		s.CrossJurisdictionScore, s.NetworkScore, s.TotalScore, s.Rank}, nil
}

func scanRanking(r rowScanner) (model.SuspectRanking, error) {
	var s model.SuspectRanking
	var cases, cities []byte
	if err := r.Scan(&s.EntityID, &s.CaseCount, &s.UniqueCases, &s.StatesCount, &cases, &cities,
		&s.TotalCopresenceWeight, &s.TotalSocialWeight, &s.RecurrenceScore,
		&s.CrossJurisdictionScore, &s.NetworkScore, &s.TotalScore, &s.Rank); err != nil {
		return s, err
	}
	var err error
	if s.LinkedCases, err = decodeStrings(cases); err != nil {
		return s, err
	}
	s.LinkedCities, err = decodeStrings(cities)
	return s, err
}

func handoffRow(h model.HandoffCandidate) ([]any, error) {
	partners, err := encodeJSON(h.SharedPartners)
	if err != nil {
		return nil, err
	}
	return []any{h.OldEntityID, h.NewEntityID, h.H3Cell, h.OldLastBucket, h.NewFirstBucket,
		h.TimeDiffMinutes, h.SharedPartnerCount, partners, h.AvgPartnerWeight,
		h.SpatialScore, h.TemporalScore, h.PartnerScore, h.HandoffScore, h.Rank}, nil
}

func scanHandoff(r rowScanner) (model.HandoffCandidate, error) {
	var h model.HandoffCandidate
	var partners []byte
	if err := r.Scan(&h.OldEntityID, &h.NewEntityID, &h.H3Cell, &h.OldLastBucket, &h.NewFirstBucket,
		&h.TimeDiffMinutes, &h.SharedPartnerCount, &partners, &h.AvgPartnerWeight,
		&h.SpatialScore, &h.TemporalScore, &h.PartnerScore, &h.HandoffScore, &h.Rank); err != nil {
		return h, err
	}
	var err error
	h.SharedPartners, err = decodeStrings(partners)
	return h, err
}

func cellRow(c model.CellDeviceCount) ([]any, error) {
	ids, err := encodeJSON(c.EntityIDs)
	if err != nil {
		return nil, err
	}
	return []any{c.H3Cell, c.TimeBucket, c.City, c.State, c.DeviceCount, ids,
		c.CenterLat, c.CenterLon, c.Centroid, c.SpreadMeters, c.FirstEvent.UTC(), c.LastEvent.UTC(),
		c.IsHighActivity, c.ActivityCategory}, nil
}

func scanCell(r rowScanner) (model.CellDeviceCount, error) {
	var c model.CellDeviceCount
	var ids []byte
	if err := r.Scan(&c.H3Cell, &c.TimeBucket, &c.City, &c.State, &c.DeviceCount, &ids,
		&c.CenterLat, &c.CenterLon, &c.Centroid, &c.SpreadMeters, &c.FirstEvent, &c.LastEvent,
		&c.IsHighActivity, &c.ActivityCategory); err != nil {
		return c, err
	}
	c.FirstEvent = c.FirstEvent.UTC()
	c.LastEvent = c.LastEvent.UTC()
	var err error
	c.EntityIDs, err = decodeStrings(ids)
	return c, err
}

func evidenceRow(e model.EvidenceRecord) ([]any, error) {
	cases, err := encodeJSON(e.LinkedCases)
	if err != nil {
		return nil, err
	}
	cities, err := encodeJSON(e.LinkedCities)
	if err != nil {
		return nil, err
	}
	geo, err := encodeJSON(e.GeoEvidence)
	if err != nil {
		return nil, err
	}
	social, err := encodeJSON(e.SocialEvidence)
	if err != nil {
		return nil, err
	}
	return []any{e.EntityID, e.Rank, e.TotalScore, cases, cities, e.StatesCount, geo, social}, nil
}

func scanEvidence(r rowScanner) (model.EvidenceRecord, error) {
	var e model.EvidenceRecord
	var cases, cities, geo, social []byte
	if err := r.Scan(&e.EntityID, &e.Rank, &e.TotalScore, &cases, &cities, &e.StatesCount, &geo, &social); err != nil {
		return e, err
	}
	var err error
	if e.LinkedCases, err = decodeStrings(cases); err != nil {
		return e, err
	}
	if e.LinkedCities, err = decodeStrings(cities); err != nil {
		return e, err
	}
	e.GeoEvidence = []model.GeoEvidence{}
	if err := json.Unmarshal(geo, &e.GeoEvidence); err != nil {
		return e, eris.Wrap(err, "store: decode geo evidence")
	}
	e.SocialEvidence = []model.SocialEvidence{}
	if err := json.Unmarshal(social, &e.SocialEvidence); err != nil {
		return e, eris.Wrap(err, "store: decode social evidence")
	}
	return e, nil
}

// snapshotRows encodes every derived table of snap in publish order.
func snapshotRows(snap *model.Snapshot) ([]tableRows, error) {
	out := []tableRows{
		{spec: edgeSpec}, {spec: overlapSpec}, {spec: rankingSpec},
		{spec: handoffSpec}, {spec: cellSpec}, {spec: evidenceSpec},
	}
	for _, e := range snap.CoPresenceEdges {
		row, err := edgeRow(e)
		if err != nil {
			return nil, err
		}
		out[0].rows = append(out[0].rows, row)
	}
	for _, o := range snap.CaseOverlaps {
		out[1].rows = append(out[1].rows, overlapRow(o))
	}
	for _, s := range snap.Rankings {
		row, err := rankingRow(s)
		if err != nil {
			return nil, err
		}
		out[2].rows = append(out[2].rows, row)
	}
	for _, h := range snap.Handoffs {
		row, err := handoffRow(h)
		if err != nil {
			return nil, err
		}
		out[3].rows = append(out[3].rows, row)
	}
	for _, c := range snap.CellCounts {
		row, err := cellRow(c)
		if err != nil {
			return nil, err
		}
		out[4].rows = append(out[4].rows, row)
	}
	for _, e := range snap.Evidence {
		row, err := evidenceRow(e)
		if err != nil {
			return nil, err
		}
		out[5].rows = append(out[5].rows, row)
	}
	return out, nil
}

// inputRows encodes the input tables of in.
func inputRows(in model.Inputs) []tableRows {
	out := []tableRows{{spec: eventSpec}, {spec: caseSpec}, {spec: socialSpec}}
	for _, e := range in.Events {
		out[0].rows = append(out[0].rows, eventRow(e))
	}
	for _, c := range in.Cases {
		out[1].rows = append(out[1].rows, caseRow(c))
	}
	for _, s := range in.SocialEdges {
		out[2].rows = append(out[2].rows, socialRow(s))
	}
	return out
}

type tableRows struct {
	spec tableSpec
	rows [][]any
}

func scanRun(r rowScanner) (model.Run, error) {
	var run model.Run
	var status string
	var completed *time.Time
	var counts []byte
	if err := r.Scan(&run.ID, &status, &run.StartedAt, &completed, &run.Error, &counts); err != nil {
		return run, eris.Wrap(err, "store: scan run")
	}
	run.Status = model.RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	if completed != nil {
		t := completed.UTC()
		run.CompletedAt = &t
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &run.Counts); err != nil {
			return run, eris.Wrap(err, "store: decode run counts")
		}
	}
	return run, nil
}

// runMeta is the snapshot header persisted alongside the derived tables.
type runMeta struct {
	RunID      string
	ComputedAt time.Time
}
