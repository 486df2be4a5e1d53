package model

import "time"

// RunStatus represents the current state of an analytics run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one entry in the analytics run log.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Counts      RunCounts  `json:"counts"`
}

// RunCounts records the row counts a run read and published.
type RunCounts struct {
	Events      int `json:"events"`
	Cases       int `json:"cases"`
	SocialEdges int `json:"social_edges"`
	Edges       int `json:"co_presence_edges"`
	Overlaps    int `json:"entity_case_overlap"`
	Rankings    int `json:"suspect_rankings"`
	Handoffs    int `json:"handoff_candidates"`
	CellCounts  int `json:"cell_device_counts"`
	Evidence    int `json:"evidence_cards"`
}

// CountsOf summarises the inputs and snapshot of a run.
func CountsOf(in Inputs, snap *Snapshot) RunCounts {
	c := RunCounts{
		Events:      len(in.Events),
		Cases:       len(in.Cases),
		SocialEdges: len(in.SocialEdges),
	}
	if snap != nil {
		c.Edges = len(snap.CoPresenceEdges)
		c.Overlaps = len(snap.CaseOverlaps)
		c.Rankings = len(snap.Rankings)
		c.Handoffs = len(snap.Handoffs)
		c.CellCounts = len(snap.CellCounts)
		c.Evidence = len(snap.Evidence)
	}
	return c
}
