package model

// Claim kinds on an evidence card.
const (
	ClaimGeospatial = "geospatial"
	ClaimNarrative  = "narrative"
	ClaimSocial     = "social"
)

// Claim is one supporting statement on an evidence card.
type Claim struct {
	Kind     string   `json:"kind"`
	Type     string   `json:"type,omitempty"`
	Claim    string   `json:"claim"`
	Support  []string `json:"support"`
	EntityID string   `json:"entity_id,omitempty"`
	CaseIDs  []string `json:"case_ids,omitempty"`
}

// EvidenceCard is an on-demand summary linking a set of entities to a set
// of cases.
type EvidenceCard struct {
	Title      string   `json:"title"`
	Entities   []string `json:"entities"`
	CaseIDs    []string `json:"linked_cases"`
	Geospatial []Claim  `json:"geospatial"`
	Narrative  []Claim  `json:"narrative"`
	Social     []Claim  `json:"social"`
	Summary    string   `json:"summary"`
}

// Graph node types.
const (
	NodeSeed      = "seed"
	NodeConnected = "connected"
)

// UnrankedRank is reported for graph nodes with no suspect ranking.
const UnrankedRank = 999

// GraphNode is an entity in an expanded co-presence graph.
type GraphNode struct {
	ID        string  `json:"id"`
	Rank      int     `json:"rank"`
	Score     float64 `json:"score"`
	CaseCount int     `json:"case_count"`
	NodeType  string  `json:"node_type"`
}

// GraphEdge is an aggregated co-presence link between two graph nodes.
type GraphEdge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Weight float64  `json:"weight"`
	Count  int      `json:"count"`
	Cells  []string `json:"cells"`
}

// Graph is the result of expanding the co-presence network around seeds.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Disappearance summarises whether an entity stopped transmitting after a bucket.
type Disappearance struct {
	EntityID          string   `json:"entity_id"`
	AfterBucket       string   `json:"after_bucket"`
	LastSeenBucket    string   `json:"last_seen_bucket"`
	TotalEvents       int      `json:"total_events"`
	CitiesSeen        []string `json:"cities_seen"`
	EventsAfterBucket int      `json:"events_after_bucket"`
	IsDisappeared     bool     `json:"is_disappeared"`
}

// SimilarCase is a case scored against a reference case.
type SimilarCase struct {
	Case
	MOEMatch      bool `json:"moe_match"`
	TargetOverlap int  `json:"target_overlap"`
}

// CellEntity is an entity observed in a cell during a bucket, joined with
// its suspect ranking when one exists.
type CellEntity struct {
	EntityID   string  `json:"entity_id"`
	EventCount int     `json:"event_count"`
	Rank       int     `json:"rank,omitempty"`
	TotalScore float64 `json:"total_score,omitempty"`
	IsSuspect  bool    `json:"is_suspect"`
}
