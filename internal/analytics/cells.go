package analytics

import (
	"sort"

	"github.com/sells-group/caselink/internal/config"
	"github.com/sells-group/caselink/internal/geo"
	"github.com/sells-group/caselink/internal/model"
)

// ActivityCategory buckets a device count using the configured thresholds.
func ActivityCategory(deviceCount int, cfg config.CellConfig) string {
	switch {
	case deviceCount >= cfg.VeryHighThreshold:
		return model.ActivityVeryHigh
	case deviceCount >= cfg.HighThreshold:
		return model.ActivityHigh
	case deviceCount >= cfg.MediumThreshold:
		return model.ActivityMedium
	default:
		return model.ActivityLow
	}
}

// CellCounts groups events by (h3_cell, time_bucket, city, state) and
// reports distinct device count, centroid, spread and activity category.
func CellCounts(events []model.LocationEvent, cfg config.CellConfig) ([]model.CellDeviceCount, error) {
	type key struct{ cell, bucket, city, state string }
	type agg struct {
		row      model.CellDeviceCount
		entities map[string]bool
		points   []geo.Point
	}

	groups := make(map[key]*agg)
	for _, ev := range events {
		k := key{ev.H3Cell, ev.TimeBucket, ev.City, ev.State}
		a, ok := groups[k]
		if !ok {
			a = &agg{
				row: model.CellDeviceCount{
					H3Cell:     ev.H3Cell,
					TimeBucket: ev.TimeBucket,
					City:       ev.City,
					State:      ev.State,
					FirstEvent: ev.Timestamp,
					LastEvent:  ev.Timestamp,
				},
				entities: make(map[string]bool),
			}
			groups[k] = a
		}
		a.entities[ev.EntityID] = true
		a.points = append(a.points, geo.Point{Lat: ev.Latitude, Lon: ev.Longitude})
		if ev.Timestamp.Before(a.row.FirstEvent) {
			a.row.FirstEvent = ev.Timestamp
		}
		if ev.Timestamp.After(a.row.LastEvent) {
			a.row.LastEvent = ev.Timestamp
		}
	}

	out := make([]model.CellDeviceCount, 0, len(groups))
	for _, a := range groups {
		r := a.row
		r.EntityIDs = sortedKeys(a.entities)
		r.DeviceCount = len(r.EntityIDs)
		r.IsHighActivity = r.DeviceCount >= cfg.HighThreshold
		r.ActivityCategory = ActivityCategory(r.DeviceCount, cfg)

		center, _ := geo.Centroid(a.points)
		r.CenterLat, r.CenterLon = center.Lat, center.Lon
		r.SpreadMeters = geo.Spread(center, a.points)
		wkb, err := geo.EncodePoint(center)
		if err != nil {
			return nil, err
		}
		r.Centroid = wkb
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.H3Cell != b.H3Cell {
			return a.H3Cell < b.H3Cell
		}
		if a.TimeBucket != b.TimeBucket {
			return a.TimeBucket < b.TimeBucket
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.State < b.State
	})
	return out, nil
}
