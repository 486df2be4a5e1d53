// Package scenario loads the demo burglary crew fixture and checks a
// computed snapshot against the story it tells.
package scenario

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/caselink/internal/model"
)

//go:embed burglary_crew.yaml
var burglaryCrew []byte

const timestampLayout = "2006-01-02T15:04:05"

// Place is a named cell with its reference coordinate.
type Place struct {
	H3Cell string  `yaml:"h3_cell"`
	City   string  `yaml:"city"`
	State  string  `yaml:"state"`
	Lat    float64 `yaml:"lat"`
	Lon    float64 `yaml:"lon"`
}

// Ping is one scripted location event.
type Ping struct {
	Entity string `yaml:"entity"`
	Place  string `yaml:"place"`
	Bucket string `yaml:"bucket"`
	Offset int    `yaml:"offset"`
}

// Crowd is a block of bystander devices pinging once per listed bucket.
type Crowd struct {
	Prefix  string   `yaml:"prefix"`
	First   int      `yaml:"first"`
	Count   int      `yaml:"count"`
	Place   string   `yaml:"place"`
	Buckets []string `yaml:"buckets"`
}

// CaseSpec is a case record placed at a named place.
type CaseSpec struct {
	CaseID             string   `yaml:"case_id"`
	CaseType           string   `yaml:"case_type"`
	Place              string   `yaml:"place"`
	Address            string   `yaml:"address"`
	IncidentTimeBucket string   `yaml:"incident_time_bucket"`
	IncidentStart      string   `yaml:"incident_start"`
	IncidentEnd        string   `yaml:"incident_end"`
	Status             string   `yaml:"status"`
	Priority           string   `yaml:"priority"`
	MethodOfEntry      string   `yaml:"method_of_entry"`
	TargetItems        []string `yaml:"target_items"`
	EstimatedLoss      int      `yaml:"estimated_loss"`
	Narrative          string   `yaml:"narrative"`
}

// SocialEdgeSpec is a reference relationship.
type SocialEdgeSpec struct {
	EdgeID           string  `yaml:"edge_id"`
	EntityID1        string  `yaml:"entity_id_1"`
	EntityID2        string  `yaml:"entity_id_2"`
	RelationshipType string  `yaml:"relationship_type"`
	Weight           float64 `yaml:"weight"`
	Source           string  `yaml:"source"`
	Confidence       float64 `yaml:"confidence"`
}

// Expectations are the outcomes the acceptance checks look for.
type Expectations struct {
	Suspects              []string `yaml:"suspects"`
	Burner                string   `yaml:"burner"`
	IncidentPlace         string   `yaml:"incident_place"`
	IncidentBucket        string   `yaml:"incident_bucket"`
	IncidentDevices       int      `yaml:"incident_devices"`
	SwitchBucket          string   `yaml:"switch_bucket"`
	CrossJurisdictionCase string   `yaml:"cross_jurisdiction_case"`
	MinLinkedCases        int      `yaml:"min_linked_cases"`
}

// Fixture is a complete scenario.
type Fixture struct {
	Name          string           `yaml:"name"`
	BucketMinutes int              `yaml:"bucket_minutes"`
	Places        map[string]Place `yaml:"places"`
	Pings         []Ping           `yaml:"pings"`
	Crowds        []Crowd          `yaml:"crowds"`
	Cases         []CaseSpec       `yaml:"cases"`
	SocialEdges   []SocialEdgeSpec `yaml:"social_edges"`
	Expect        Expectations     `yaml:"expect"`
}

// BurglaryCrew returns the embedded demo scenario.
func BurglaryCrew() (*Fixture, error) {
	return Parse(burglaryCrew)
}

// LoadFile reads a scenario from a YAML file.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scenario: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "scenario: decode yaml")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if f.BucketMinutes <= 0 {
		return eris.New("scenario: bucket_minutes must be positive")
	}
	check := func(where, place string) error {
		if _, ok := f.Places[place]; !ok {
			return eris.Errorf("scenario: %s references unknown place %q", where, place)
		}
		return nil
	}
	for i, p := range f.Pings {
		if err := check(fmt.Sprintf("ping %d (%s)", i, p.Entity), p.Place); err != nil {
			return err
		}
	}
	for i, c := range f.Crowds {
		if err := check(fmt.Sprintf("crowd %d", i), c.Place); err != nil {
			return err
		}
	}
	for _, c := range f.Cases {
		if err := check("case "+c.CaseID, c.Place); err != nil {
			return err
		}
	}
	if f.Expect.IncidentPlace != "" {
		if err := check("expect", f.Expect.IncidentPlace); err != nil {
			return err
		}
	}
	return nil
}

// BucketWidth is the bucket width the fixture was written for.
func (f *Fixture) BucketWidth() time.Duration {
	return time.Duration(f.BucketMinutes) * time.Minute
}

// Inputs expands the fixture into the raw input tables. Event ids follow
// generation order; bystander coordinates are spread on a fixed pattern
// around their place.
func (f *Fixture) Inputs() (model.Inputs, error) {
	width := f.BucketWidth()
	var in model.Inputs
	seq := 1000

	emit := func(entity, placeName, bucket string, offset, spread int) error {
		start, err := model.ParseBucket(bucket)
		if err != nil {
			return eris.Wrapf(err, "scenario: entity %s", entity)
		}
		p := f.Places[placeName]
		ts := start.Add(time.Duration(offset) * time.Minute)
		in.Events = append(in.Events, model.LocationEvent{
			EventID:      fmt.Sprintf("EVT_%06d", seq),
			EntityID:     entity,
			Timestamp:    ts,
			TimeBucket:   model.FloorBucket(ts, width),
			H3Cell:       p.H3Cell,
			City:         p.City,
			State:        p.State,
			Latitude:     p.Lat + 0.0001*float64(spread%7-3),
			Longitude:    p.Lon + 0.0001*float64(spread%5-2),
			EventType:    "location_ping",
			SourceSystem: "carrier_data",
		})
		seq++
		return nil
	}

	for i, p := range f.Pings {
		if err := emit(p.Entity, p.Place, p.Bucket, p.Offset, i); err != nil {
			return model.Inputs{}, err
		}
	}
	for _, c := range f.Crowds {
		for _, bucket := range c.Buckets {
			for i := 0; i < c.Count; i++ {
				id := fmt.Sprintf("%s%04d", c.Prefix, c.First+i)
				if err := emit(id, c.Place, bucket, i%f.BucketMinutes, i); err != nil {
					return model.Inputs{}, err
				}
			}
		}
	}

	for _, cs := range f.Cases {
		c, err := cs.toCase(f.Places[cs.Place])
		if err != nil {
			return model.Inputs{}, err
		}
		in.Cases = append(in.Cases, c)
	}
	for _, e := range f.SocialEdges {
		in.SocialEdges = append(in.SocialEdges, model.SocialEdge{
			EdgeID:           e.EdgeID,
			EntityID1:        e.EntityID1,
			EntityID2:        e.EntityID2,
			RelationshipType: e.RelationshipType,
			Weight:           e.Weight,
			Source:           e.Source,
			Confidence:       e.Confidence,
		})
	}
	sort.Slice(in.Cases, func(i, j int) bool { return in.Cases[i].CaseID < in.Cases[j].CaseID })
	return in, nil
}

func (cs CaseSpec) toCase(p Place) (model.Case, error) {
	start, err := time.Parse(timestampLayout, cs.IncidentStart)
	if err != nil {
		return model.Case{}, eris.Wrapf(err, "scenario: case %s incident_start", cs.CaseID)
	}
	end, err := time.Parse(timestampLayout, cs.IncidentEnd)
	if err != nil {
		return model.Case{}, eris.Wrapf(err, "scenario: case %s incident_end", cs.CaseID)
	}
	if _, err := model.ParseBucket(cs.IncidentTimeBucket); err != nil {
		return model.Case{}, eris.Wrapf(err, "scenario: case %s", cs.CaseID)
	}
	return model.Case{
		CaseID:             cs.CaseID,
		CaseType:           cs.CaseType,
		City:               p.City,
		State:              p.State,
		Address:            cs.Address,
		H3Cell:             p.H3Cell,
		IncidentTimeBucket: cs.IncidentTimeBucket,
		IncidentStart:      start,
		IncidentEnd:        end,
		Latitude:           p.Lat,
		Longitude:          p.Lon,
		Status:             cs.Status,
		Priority:           cs.Priority,
		Narrative:          cs.Narrative,
		MethodOfEntry:      cs.MethodOfEntry,
		TargetItems:        cs.TargetItems,
		EstimatedLoss:      cs.EstimatedLoss,
	}, nil
}
