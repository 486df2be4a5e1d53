package model

import (
	"strings"
	"time"
)

// Method-of-entry categories derived from free-text method descriptions.
const (
	MOEWindowEntry = "window_entry"
	MOEDoorEntry   = "door_entry"
	MOEOther       = "other"
)

// Case is an incident record from the case reference tables.
type Case struct {
	CaseID             string    `json:"case_id"`
	CaseType           string    `json:"case_type"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Address            string    `json:"address"`
	H3Cell             string    `json:"h3_cell"`
	IncidentTimeBucket string    `json:"incident_time_bucket"`
	IncidentStart      time.Time `json:"incident_start"`
	IncidentEnd        time.Time `json:"incident_end"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	Narrative          string    `json:"narrative,omitempty"`
	MethodOfEntry      string    `json:"method_of_entry"`
	TargetItems        []string  `json:"target_items"`
	EstimatedLoss      int       `json:"estimated_loss"`
}

// MOECategory buckets the method of entry into a coarse category.
func (c Case) MOECategory() string {
	moe := strings.ToLower(c.MethodOfEntry)
	switch {
	case strings.Contains(moe, "window"):
		return MOEWindowEntry
	case strings.Contains(moe, "door"):
		return MOEDoorEntry
	default:
		return MOEOther
	}
}

// SplitTargetItems parses a comma-separated target item list, dropping blanks.
func SplitTargetItems(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Social relationship types.
const (
	RelKnownAssociate   = "known_associate"
	RelCoArrested       = "co_arrested"
	RelFamily           = "family"
	RelFenceConnection  = "fence_connection"
	RelDeviceSuccession = "device_succession"
)

// SocialEdge is a reference relationship between two entities.
type SocialEdge struct {
	EdgeID           string  `json:"edge_id"`
	EntityID1        string  `json:"entity_id_1"`
	EntityID2        string  `json:"entity_id_2"`
	RelationshipType string  `json:"relationship_type"`
	Weight           float64 `json:"weight"`
	Source           string  `json:"source"`
	Confidence       float64 `json:"confidence"`
}

// Counterpart returns the other endpoint of the edge relative to entityID,
// and false when entityID is not an endpoint.
func (e SocialEdge) Counterpart(entityID string) (string, bool) {
	switch entityID {
	case e.EntityID1:
		return e.EntityID2, true
	case e.EntityID2:
		return e.EntityID1, true
	}
	return "", false
}
