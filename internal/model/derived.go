package model

import "time"

// CoPresenceEdge links two entities seen in the same cell and time bucket.
// EntityID1 is always lexicographically smaller than EntityID2.
type CoPresenceEdge struct {
	EdgeID            string    `json:"edge_id"`
	EntityID1         string    `json:"entity_id_1"`
	EntityID2         string    `json:"entity_id_2"`
	H3Cell            string    `json:"h3_cell"`
	City              string    `json:"city"`
	State             string    `json:"state"`
	CoOccurrenceCount int       `json:"co_occurrence_count"`
	TimeBuckets       []string  `json:"time_buckets"`
	TimeBucketCount   int       `json:"time_bucket_count"`
	FirstSeenTogether time.Time `json:"first_seen_together"`
	LastSeenTogether  time.Time `json:"last_seen_together"`
	Weight            float64   `json:"weight"`
}

// CaseOverlap links an entity to a case whose cell and incident bucket it
// was observed in.
type CaseOverlap struct {
	EntityID       string    `json:"entity_id"`
	CaseID         string    `json:"case_id"`
	CaseType       string    `json:"case_type"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	H3Cell         string    `json:"h3_cell"`
	TimeBucket     string    `json:"time_bucket"`
	EventTimestamp time.Time `json:"event_timestamp"`
	IncidentStart  time.Time `json:"incident_start"`
	IncidentEnd    time.Time `json:"incident_end"`
	InExactWindow  bool      `json:"in_exact_window"`
	EventCount     int       `json:"event_count"`
}

// SuspectRanking is the multi-factor score of one case-linked entity.
type SuspectRanking struct {
	EntityID               string   `json:"entity_id"`
	CaseCount              int      `json:"case_count"`
	UniqueCases            int      `json:"unique_cases"`
	StatesCount            int      `json:"states_count"`
	LinkedCases            []string `json:"linked_cases"`
	LinkedCities           []string `json:"linked_cities"`
	TotalCopresenceWeight  float64  `json:"total_copresence_weight"`
	TotalSocialWeight      float64  `json:"total_social_weight"`
	RecurrenceScore        float64  `json:"recurrence_score"`
	CrossJurisdictionScore float64  `json:"cross_jurisdiction_score"`
	NetworkScore           float64  `json:"network_score"`
	TotalScore             float64  `json:"total_score"`
	Rank                   int      `json:"rank"`
}

// HandoffCandidate is the hypothesis that OldEntityID's device was replaced
// by NewEntityID's device in the same cell shortly after it went quiet.
type HandoffCandidate struct {
	OldEntityID        string   `json:"old_entity_id"`
	NewEntityID        string   `json:"new_entity_id"`
	H3Cell             string   `json:"h3_cell"`
	OldLastBucket      string   `json:"old_last_bucket"`
	NewFirstBucket     string   `json:"new_first_bucket"`
	TimeDiffMinutes    float64  `json:"time_diff_minutes"`
	SharedPartnerCount int      `json:"shared_partner_count"`
	SharedPartners     []string `json:"shared_partners"`
	AvgPartnerWeight   float64  `json:"avg_partner_weight"`
	SpatialScore       float64  `json:"spatial_score"`
	TemporalScore      float64  `json:"temporal_score"`
	PartnerScore       float64  `json:"partner_score"`
	HandoffScore       float64  `json:"handoff_score"`
	Rank               int      `json:"rank"`
}

// Activity categories for cell device density.
const (
	ActivityVeryHigh = "very_high"
	ActivityHigh     = "high"
	ActivityMedium   = "medium"
	ActivityLow      = "low"
)

// CellDeviceCount is the device density of one cell during one bucket.
type CellDeviceCount struct {
	H3Cell           string    `json:"h3_cell"`
	TimeBucket       string    `json:"time_bucket"`
	City             string    `json:"city"`
	State            string    `json:"state"`
	DeviceCount      int       `json:"device_count"`
	EntityIDs        []string  `json:"entity_ids"`
	CenterLat        float64   `json:"center_lat"`
	CenterLon        float64   `json:"center_lon"`
	Centroid         []byte    `json:"-"`
	SpreadMeters     float64   `json:"spread_meters"`
	FirstEvent       time.Time `json:"first_event"`
	LastEvent        time.Time `json:"last_event"`
	IsHighActivity   bool      `json:"is_high_activity"`
	ActivityCategory string    `json:"activity_category"`
}

// GeoEvidence places a suspect at a case location.
type GeoEvidence struct {
	CaseID     string `json:"case_id"`
	City       string `json:"city"`
	Address    string `json:"address"`
	H3Cell     string `json:"h3_cell"`
	TimeBucket string `json:"time_bucket"`
}

// SocialEvidence is a reference relationship touching a suspect.
type SocialEvidence struct {
	ConnectedEntity  string  `json:"connected_entity"`
	RelationshipType string  `json:"relationship_type"`
	Weight           float64 `json:"weight"`
	Confidence       float64 `json:"confidence"`
}

// EvidenceRecord is the precomputed evidence bundle of one top suspect.
type EvidenceRecord struct {
	EntityID       string           `json:"entity_id"`
	Rank           int              `json:"rank"`
	TotalScore     float64          `json:"total_score"`
	LinkedCases    []string         `json:"linked_cases"`
	LinkedCities   []string         `json:"linked_cities"`
	StatesCount    int              `json:"states_count"`
	GeoEvidence    []GeoEvidence    `json:"geo_evidence"`
	SocialEvidence []SocialEvidence `json:"social_evidence"`
}

// Snapshot is the full set of derived tables produced by one run.
type Snapshot struct {
	RunID           string             `json:"run_id"`
	ComputedAt      time.Time          `json:"computed_at"`
	CoPresenceEdges []CoPresenceEdge   `json:"co_presence_edges"`
	CaseOverlaps    []CaseOverlap      `json:"entity_case_overlap"`
	Rankings        []SuspectRanking   `json:"suspect_rankings"`
	Handoffs        []HandoffCandidate `json:"handoff_candidates"`
	CellCounts      []CellDeviceCount  `json:"cell_device_counts"`
	Evidence        []EvidenceRecord   `json:"evidence_cards"`
}

// Inputs bundles the raw tables read from the event store.
type Inputs struct {
	Events      []LocationEvent
	Cases       []Case
	SocialEdges []SocialEdge
}
