package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// BucketLayout is the string layout of a time bucket (minute precision, no zone).
const BucketLayout = "2006-01-02T15:04"

// LocationEvent is a single cleaned location ping. Events are produced
// upstream and treated as read-only by every engine.
type LocationEvent struct {
	EventID      string    `json:"event_id"`
	EntityID     string    `json:"entity_id"`
	Timestamp    time.Time `json:"timestamp"`
	TimeBucket   string    `json:"time_bucket"`
	H3Cell       string    `json:"h3_cell"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	EventType    string    `json:"event_type,omitempty"`
	SourceSystem string    `json:"source_system,omitempty"`
}

// FloorBucket quantizes t down to the start of its width-sized interval and
// formats it as a bucket string. Times are bucketed in UTC.
func FloorBucket(t time.Time, width time.Duration) string {
	return t.UTC().Truncate(width).Format(BucketLayout)
}

// ParseBucket parses a bucket string into its start instant (UTC).
func ParseBucket(bucket string) (time.Time, error) {
	t, err := time.Parse(BucketLayout, bucket)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse bucket %q", bucket)
	}
	return t, nil
}

// MustParseBucket is ParseBucket for known-good literals (fixtures, tests).
func MustParseBucket(bucket string) time.Time {
	t, err := ParseBucket(bucket)
	if err != nil {
		panic(err)
	}
	return t
}
