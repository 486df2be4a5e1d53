// Package analytics implements the derivation engines that turn raw location
// pings into co-presence edges, case overlaps, suspect rankings, device
// handoff candidates, and per-cell device density.
package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caselink/internal/config"
)

// DefaultConfig returns a config.AnalyticsConfig with the demo scoring constants.
func DefaultConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		TimeBucketMinutes: 15,
		Workers:           4,
		EvidenceTopN:      5,
		CoPresence: config.CoPresenceConfig{
			SaturationCount: 5.0,
		},
		Ranking: config.RankingConfig{
			CaseType:                "burglary",
			RecurrenceWeight:        0.4,
			CrossJurisdictionWeight: 0.35,
			NetworkCap:              0.25,
			CopresenceMultiplier:    0.1,
			SocialMultiplier:        0.15,
		},
		Handoff: config.HandoffConfig{
			MaxGapMinutes:         30,
			Tier1Minutes:          15,
			Tier2Minutes:          30,
			SpatialScore:          0.5,
			Tier1Score:            0.3,
			Tier2Score:            0.2,
			FallbackTemporalScore: 0.1,
			PartnerScore:          0.2,
		},
		Cells: config.CellConfig{
			VeryHighThreshold: 40,
			HighThreshold:     20,
			MediumThreshold:   10,
		},
	}
}

// BucketWidth returns the time bucket width as a duration.
func BucketWidth(c config.AnalyticsConfig) time.Duration {
	return time.Duration(c.TimeBucketMinutes) * time.Minute
}

// ValidateConfig checks that an AnalyticsConfig is internally consistent.
func ValidateConfig(c config.AnalyticsConfig) error {
	var errs []string

	if c.TimeBucketMinutes <= 0 {
		errs = append(errs, "time_bucket_minutes must be > 0")
	}
	if c.Workers < 0 {
		errs = append(errs, "workers must be >= 0")
	}
	if c.EvidenceTopN < 0 {
		errs = append(errs, "evidence_top_n must be >= 0")
	}

	// Co-presence.
	if c.CoPresence.SaturationCount <= 0 {
		errs = append(errs, "copresence.saturation_count must be > 0")
	}

	// Ranking weights must be non-negative.
	weights := []struct {
		name string
		v    float64
	}{
		{"ranking.recurrence_weight", c.Ranking.RecurrenceWeight},
		{"ranking.cross_jurisdiction_weight", c.Ranking.CrossJurisdictionWeight},
		{"ranking.network_cap", c.Ranking.NetworkCap},
		{"ranking.copresence_multiplier", c.Ranking.CopresenceMultiplier},
		{"ranking.social_multiplier", c.Ranking.SocialMultiplier},
		{"handoff.spatial_score", c.Handoff.SpatialScore},
		{"handoff.tier1_score", c.Handoff.Tier1Score},
		{"handoff.tier2_score", c.Handoff.Tier2Score},
		{"handoff.fallback_temporal_score", c.Handoff.FallbackTemporalScore},
		{"handoff.partner_score", c.Handoff.PartnerScore},
	}
	for _, w := range weights {
		if w.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}
	if strings.TrimSpace(c.Ranking.CaseType) == "" {
		errs = append(errs, "ranking.case_type is required")
	}

	// Handoff windows.
	if c.Handoff.MaxGapMinutes <= 0 {
		errs = append(errs, "handoff.max_gap_minutes must be > 0")
	}
	if c.Handoff.Tier1Minutes <= 0 || c.Handoff.Tier2Minutes < c.Handoff.Tier1Minutes {
		errs = append(errs, "handoff tiers must satisfy 0 < tier1_minutes <= tier2_minutes")
	}

	// Cell thresholds must be strictly descending.
	cc := c.Cells
	if !(cc.VeryHighThreshold > cc.HighThreshold && cc.HighThreshold > cc.MediumThreshold && cc.MediumThreshold > 0) {
		errs = append(errs, fmt.Sprintf("cells thresholds must satisfy very_high > high > medium > 0, got %d/%d/%d",
			cc.VeryHighThreshold, cc.HighThreshold, cc.MediumThreshold))
	}

	if len(errs) > 0 {
		return eris.Errorf("analytics: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
