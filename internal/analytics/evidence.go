package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/caselink/internal/model"
)

// BuildEvidence precomputes the evidence bundle of every suspect ranked at
// or above topN: the case locations it was observed at and the reference
// relationships touching it.
func BuildEvidence(rankings []model.SuspectRanking, overlaps []model.CaseOverlap, cases []model.Case, social []model.SocialEdge, topN int) []model.EvidenceRecord {
	byCase := indexCases(cases)

	out := []model.EvidenceRecord{}
	for _, r := range rankings {
		if r.Rank > topN {
			continue
		}
		rec := model.EvidenceRecord{
			EntityID:       r.EntityID,
			Rank:           r.Rank,
			TotalScore:     r.TotalScore,
			LinkedCases:    r.LinkedCases,
			LinkedCities:   r.LinkedCities,
			StatesCount:    r.StatesCount,
			GeoEvidence:    []model.GeoEvidence{},
			SocialEvidence: []model.SocialEvidence{},
		}
		for _, o := range overlaps {
			if o.EntityID != r.EntityID {
				continue
			}
			rec.GeoEvidence = append(rec.GeoEvidence, model.GeoEvidence{
				CaseID:     o.CaseID,
				City:       o.City,
				Address:    byCase[o.CaseID].Address,
				H3Cell:     o.H3Cell,
				TimeBucket: o.TimeBucket,
			})
		}
		for _, e := range social {
			other, ok := e.Counterpart(r.EntityID)
			if !ok {
				continue
			}
			rec.SocialEvidence = append(rec.SocialEvidence, model.SocialEvidence{
				ConnectedEntity:  other,
				RelationshipType: e.RelationshipType,
				Weight:           e.Weight,
				Confidence:       e.Confidence,
			})
		}
		sort.Slice(rec.SocialEvidence, func(i, j int) bool {
			a, b := rec.SocialEvidence[i], rec.SocialEvidence[j]
			if a.Weight != b.Weight {
				return a.Weight > b.Weight
			}
			return a.ConnectedEntity < b.ConnectedEntity
		})
		out = append(out, rec)
	}
	return out
}

// GenerateEvidenceCard assembles geospatial, narrative and social claims
// linking entities to the listed cases.
func GenerateEvidenceCard(entities, caseIDs []string, overlaps []model.CaseOverlap, cases []model.Case, social []model.SocialEdge) model.EvidenceCard {
	card := model.EvidenceCard{
		Title:      "CaseLink Evidence Card",
		Entities:   entities,
		CaseIDs:    caseIDs,
		Geospatial: []model.Claim{},
		Narrative:  []model.Claim{},
		Social:     []model.Claim{},
	}

	var methods []string
	if len(caseIDs) >= 2 {
		card.Geospatial = geospatialClaims(entities, caseIDs, overlaps)
		card.Narrative, methods = narrativeClaims(caseIDs, indexCases(cases))
	}
	card.Social = socialClaims(entities, social)
	card.Summary = summarize(card, methods)
	return card
}

func geospatialClaims(entities, caseIDs []string, overlaps []model.CaseOverlap) []model.Claim {
	wanted := toSet(caseIDs)
	claims := []model.Claim{}
	for _, entity := range entities {
		var hits []model.CaseOverlap
		for _, o := range overlaps {
			if o.EntityID == entity && wanted[o.CaseID] {
				hits = append(hits, o)
			}
		}
		if len(hits) < 2 {
			continue
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].TimeBucket < hits[j].TimeBucket })

		c := model.Claim{
			Kind:     model.ClaimGeospatial,
			Type:     "copresence",
			EntityID: entity,
		}
		if len(hits) == len(caseIDs) {
			c.Claim = fmt.Sprintf("Entity %s was present at all %d crime scenes", entity, len(hits))
		} else {
			c.Claim = fmt.Sprintf("Entity %s was present at %d of %d crime scenes", entity, len(hits), len(caseIDs))
		}
		for _, h := range hits {
			c.Support = append(c.Support, fmt.Sprintf("%s: %s at %s", h.CaseID, h.City, h.TimeBucket))
			c.CaseIDs = append(c.CaseIDs, h.CaseID)
		}
		claims = append(claims, c)
	}
	return claims
}

// narrativeClaims compares the listed cases and also returns short phrases
// describing the shared method of operation for the summary.
func narrativeClaims(caseIDs []string, byCase map[string]model.Case) ([]model.Claim, []string) {
	var listed []model.Case
	for _, id := range caseIDs {
		if c, ok := byCase[id]; ok {
			listed = append(listed, c)
		}
	}
	if len(listed) < 2 {
		return []model.Claim{}, nil
	}

	claims := []model.Claim{}
	var methods []string
	moe := listed[0].MOECategory()
	common := toSet(listed[0].TargetItems)
	sameMOE := true
	for _, c := range listed[1:] {
		if c.MOECategory() != moe {
			sameMOE = false
		}
		next := toSet(c.TargetItems)
		for item := range common {
			if !next[item] {
				delete(common, item)
			}
		}
	}

	if sameMOE {
		c := model.Claim{
			Kind:  model.ClaimNarrative,
			Type:  "method_of_entry",
			Claim: fmt.Sprintf("All cases share the same entry method: %s", moe),
		}
		for _, lc := range listed {
			c.Support = append(c.Support, fmt.Sprintf("%s: %s", lc.CaseID, lc.MethodOfEntry))
			c.CaseIDs = append(c.CaseIDs, lc.CaseID)
		}
		claims = append(claims, c)
		methods = append(methods, strings.ReplaceAll(moe, "_", " "))
	}
	if len(common) > 0 {
		items := sortedKeys(common)
		c := model.Claim{
			Kind:  model.ClaimNarrative,
			Type:  "target_items",
			Claim: fmt.Sprintf("All cases targeted similar items: %s", strings.Join(items, ", ")),
		}
		for _, lc := range listed {
			c.Support = append(c.Support, fmt.Sprintf("%s: %s", lc.CaseID, strings.Join(lc.TargetItems, ",")))
			c.CaseIDs = append(c.CaseIDs, lc.CaseID)
		}
		claims = append(claims, c)
		methods = append(methods, "targeting "+strings.Join(items, ", "))
	}
	return claims, methods
}

func socialClaims(entities []string, social []model.SocialEdge) []model.Claim {
	subjects := toSet(entities)
	claims := []model.Claim{}
	for _, e := range social {
		subject := e.EntityID1
		if !subjects[subject] {
			subject = e.EntityID2
		}
		if !subjects[subject] {
			continue
		}
		other, _ := e.Counterpart(subject)

		c := model.Claim{
			Kind:     model.ClaimSocial,
			Type:     e.RelationshipType,
			EntityID: subject,
		}
		switch e.RelationshipType {
		case model.RelFenceConnection:
			c.Claim = fmt.Sprintf("Entity %s is connected to known fence %s", subject, other)
			c.Support = []string{
				"Source: " + e.Source,
				fmt.Sprintf("Confidence: %.0f%%", e.Confidence*100),
			}
		case model.RelKnownAssociate:
			c.Claim = fmt.Sprintf("Entity %s is a known associate of %s", subject, other)
			c.Support = []string{
				"Source: " + e.Source,
				fmt.Sprintf("Relationship weight: %.2f", e.Weight),
			}
		default:
			continue
		}
		claims = append(claims, c)
	}
	return claims
}

func summarize(card model.EvidenceCard, methods []string) string {
	var parts []string
	if len(card.Geospatial) > 0 {
		parts = append(parts, fmt.Sprintf(
			"Geospatial analysis shows %d device(s) were present at %d crime scenes.",
			len(card.Entities), len(card.CaseIDs)))
	}
	if len(methods) > 0 {
		parts = append(parts, "Case narrative comparison reveals similar methods of operation including "+
			strings.Join(methods, " and ")+".")
	}
	var fences int
	for _, c := range card.Social {
		if c.Type == model.RelFenceConnection {
			fences++
		}
	}
	if fences > 0 {
		parts = append(parts, fmt.Sprintf("Social network analysis links suspects to %d known fencing operation(s).", fences))
	}
	return strings.Join(parts, " ")
}

func indexCases(cases []model.Case) map[string]model.Case {
	m := make(map[string]model.Case, len(cases))
	for _, c := range cases {
		m[c.CaseID] = c
	}
	return m
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
