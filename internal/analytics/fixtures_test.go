package analytics

import (
	"fmt"
	"time"

	"github.com/sells-group/caselink/internal/model"
)

const (
	t1 = "2024-01-15T02:00"
	t2 = "2024-01-15T02:15"
)

// ping builds an event at the start of bucket plus offset minutes.
func ping(id, entity, cell, bucket string, offset int) model.LocationEvent {
	return model.LocationEvent{
		EventID:    id,
		EntityID:   entity,
		Timestamp:  model.MustParseBucket(bucket).Add(time.Duration(offset) * time.Minute),
		TimeBucket: bucket,
		H3Cell:     cell,
		City:       "DC",
		State:      "DC",
		Latitude:   38.9,
		Longitude:  -77.03,
	}
}

// crowd returns one ping per entity for n distinct entities in cell/bucket.
func crowd(n int, cell, bucket string) []model.LocationEvent {
	out := make([]model.LocationEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ping(fmt.Sprintf("EV_%s_%03d", cell, i), fmt.Sprintf("E_%03d", i), cell, bucket, 1))
	}
	return out
}

func burglary(id, cell, bucket, city, state string) model.Case {
	start := model.MustParseBucket(bucket)
	return model.Case{
		CaseID:             id,
		CaseType:           "burglary",
		City:               city,
		State:              state,
		Address:            "100 Main St",
		H3Cell:             cell,
		IncidentTimeBucket: bucket,
		IncidentStart:      start.Add(2 * time.Minute),
		IncidentEnd:        start.Add(10 * time.Minute),
		MethodOfEntry:      "Rear window forced",
		TargetItems:        []string{"electronics", "jewelry"},
	}
}
