package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caselink/internal/model"
)

func evidenceFixture() ([]model.CaseOverlap, []model.Case, []model.SocialEdge) {
	c1 := burglary("CASE_1", "c1", t1, "Arlington", "VA")
	c2 := burglary("CASE_2", "c2", t2, "DC", "DC")
	c2.MethodOfEntry = "Side window pried open"
	c2.TargetItems = []string{"jewelry", "electronics", "cash"}
	c2.Address = "200 K St"

	overlaps := []model.CaseOverlap{
		{EntityID: "E1", CaseID: "CASE_1", City: "Arlington", H3Cell: "c1", TimeBucket: t1},
		{EntityID: "E1", CaseID: "CASE_2", City: "DC", H3Cell: "c2", TimeBucket: t2},
		{EntityID: "E2", CaseID: "CASE_2", City: "DC", H3Cell: "c2", TimeBucket: t2},
	}
	social := []model.SocialEdge{
		{EdgeID: "S1", EntityID1: "E1", EntityID2: "E2", RelationshipType: model.RelKnownAssociate, Weight: 0.8, Source: "field_interview", Confidence: 0.7},
		{EdgeID: "S2", EntityID1: "F", EntityID2: "E1", RelationshipType: model.RelFenceConnection, Weight: 0.9, Source: "informant", Confidence: 0.85},
		{EdgeID: "S3", EntityID1: "E1", EntityID2: "E9", RelationshipType: model.RelFamily, Weight: 0.3, Source: "records", Confidence: 0.9},
	}
	return overlaps, []model.Case{c1, c2}, social
}

func TestBuildEvidence(t *testing.T) {
	t.Parallel()

	overlaps, cases, social := evidenceFixture()
	rankings := []model.SuspectRanking{
		{EntityID: "E1", Rank: 1, TotalScore: 1.55, LinkedCases: []string{"CASE_1", "CASE_2"}, StatesCount: 2},
		{EntityID: "E2", Rank: 2, TotalScore: 0.4},
		{EntityID: "E3", Rank: 3, TotalScore: 0.1},
	}

	recs := BuildEvidence(rankings, overlaps, cases, social, 2)
	require.Len(t, recs, 2)

	e1 := recs[0]
	assert.Equal(t, "E1", e1.EntityID)
	assert.InDelta(t, 1.55, e1.TotalScore, 1e-9)
	require.Len(t, e1.GeoEvidence, 2)
	assert.Equal(t, "100 Main St", e1.GeoEvidence[0].Address)
	assert.Equal(t, "200 K St", e1.GeoEvidence[1].Address)

	require.Len(t, e1.SocialEvidence, 3)
	assert.Equal(t, "F", e1.SocialEvidence[0].ConnectedEntity)
	assert.Equal(t, "E2", e1.SocialEvidence[1].ConnectedEntity)
	assert.Equal(t, "E9", e1.SocialEvidence[2].ConnectedEntity)

	assert.Equal(t, "E2", recs[1].EntityID)
	assert.Len(t, recs[1].GeoEvidence, 1)
}

func TestBuildEvidence_NoRankings(t *testing.T) {
	t.Parallel()
	recs := BuildEvidence(nil, nil, nil, nil, 5)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestGenerateEvidenceCard(t *testing.T) {
	t.Parallel()

	overlaps, cases, social := evidenceFixture()
	card := GenerateEvidenceCard([]string{"E1"}, []string{"CASE_1", "CASE_2"}, overlaps, cases, social)

	assert.Equal(t, "CaseLink Evidence Card", card.Title)

	require.Len(t, card.Geospatial, 1)
	geo := card.Geospatial[0]
	assert.Equal(t, "Entity E1 was present at all 2 crime scenes", geo.Claim)
	assert.Equal(t, []string{"CASE_1: Arlington at " + t1, "CASE_2: DC at " + t2}, geo.Support)

	require.Len(t, card.Narrative, 2)
	assert.Equal(t, "All cases share the same entry method: window_entry", card.Narrative[0].Claim)
	assert.Equal(t, "All cases targeted similar items: electronics, jewelry", card.Narrative[1].Claim)

	require.Len(t, card.Social, 2)
	assert.Equal(t, "Entity E1 is a known associate of E2", card.Social[0].Claim)
	assert.Equal(t, []string{"Source: field_interview", "Relationship weight: 0.80"}, card.Social[0].Support)
	assert.Equal(t, "Entity E1 is connected to known fence F", card.Social[1].Claim)
	assert.Equal(t, []string{"Source: informant", "Confidence: 85%"}, card.Social[1].Support)

	assert.Contains(t, card.Summary, "Geospatial analysis shows 1 device(s) were present at 2 crime scenes.")
	assert.Contains(t, card.Summary, "window entry and targeting electronics, jewelry")
	assert.Contains(t, card.Summary, "links suspects to 1 known fencing operation(s).")
}

func TestGenerateEvidenceCard_PartialPresence(t *testing.T) {
	t.Parallel()

	overlaps, cases, _ := evidenceFixture()
	cases = append(cases, burglary("CASE_3", "c3", t1, "DC", "DC"))
	card := GenerateEvidenceCard([]string{"E1", "E2"}, []string{"CASE_1", "CASE_2", "CASE_3"}, overlaps, cases, nil)

	require.Len(t, card.Geospatial, 1)
	assert.Equal(t, "Entity E1 was present at 2 of 3 crime scenes", card.Geospatial[0].Claim)
	assert.Empty(t, card.Social)
	assert.NotContains(t, card.Summary, "fencing")
}

func TestGenerateEvidenceCard_SingleCase(t *testing.T) {
	t.Parallel()

	overlaps, cases, social := evidenceFixture()
	card := GenerateEvidenceCard([]string{"E1"}, []string{"CASE_1"}, overlaps, cases, social)

	assert.Empty(t, card.Geospatial)
	assert.Empty(t, card.Narrative)
	assert.Len(t, card.Social, 2)
}
