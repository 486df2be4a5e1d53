package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/caselink/internal/model"
	"github.com/sells-group/caselink/internal/store"
)

func completedAt(t time.Time) *time.Time { return &t }

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Status:      model.RunStatusComplete,
			StartedAt:   now,
			CompletedAt: completedAt(now.Add(1500 * time.Millisecond)),
			Counts:      model.RunCounts{Events: 209, Rankings: 52, Handoffs: 1},
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Status:    model.RunStatusRunning,
			StartedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "SUSPECTS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "209")
}

func TestFormatRunsList_FailedRunTruncatesError(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:          "abc12345",
			Status:      model.RunStatusFailed,
			StartedAt:   now,
			CompletedAt: completedAt(now.Add(time.Second)),
			Error:       "analytics: load inputs: store: missing input table: table social_edges",
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "analytics: load inputs: store: missin...")
	assert.NotContains(t, output, "social_edges")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "1", Status: model.RunStatusComplete, StartedAt: now, CompletedAt: completedAt(now.Add(2 * time.Second)),
			Counts: model.RunCounts{Rankings: 10, Handoffs: 2}},
		{ID: "2", Status: model.RunStatusComplete, StartedAt: now.Add(time.Hour), CompletedAt: completedAt(now.Add(time.Hour + 4*time.Second)),
			Counts: model.RunCounts{Rankings: 12, Handoffs: 3}},
		{ID: "3", Status: model.RunStatusFailed, StartedAt: now, CompletedAt: completedAt(now.Add(time.Second))},
		{ID: "4", Status: model.RunStatusRunning, StartedAt: now},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.InDelta(t, 3.0, s.AvgDurSecs, 0.001)
	assert.Equal(t, now.Add(time.Hour+4*time.Second), s.LastComplete)
	assert.Equal(t, 12, s.LastRankings)
	assert.Equal(t, 3, s.LastHandoffs)
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, runStats{}, s)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:        3,
		Complete:     2,
		Failed:       1,
		AvgDurSecs:   2.5,
		LastComplete: time.Date(2025, 6, 15, 11, 0, 0, 0, time.UTC),
		LastRankings: 12,
		LastHandoffs: 3,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "2.5s")
	assert.Contains(t, output, "2025-06-15 11:00 (12 suspects, 3 handoffs)")
}

func TestFormatRunStats_NoCompletedRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 1, Failed: 1})

	output := buf.String()
	assert.NotContains(t, output, "Avg duration")
	assert.NotContains(t, output, "Last snapshot")
}

func TestFindRun(t *testing.T) {
	runs := []model.Run{
		{ID: "abc12345-0000"},
		{ID: "abc99999-0000"},
		{ID: "def00000-0000"},
	}

	r, err := findRun(runs, "def")
	require.NoError(t, err)
	assert.Equal(t, "def00000-0000", r.ID)

	r, err = findRun(runs, "abc12345-0000")
	require.NoError(t, err)
	assert.Equal(t, "abc12345-0000", r.ID)

	_, err = findRun(runs, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = findRun(runs, "zzz")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunsSince(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "old", StartedAt: now.Add(-48 * time.Hour)},
		{ID: "edge", StartedAt: now.Add(-24 * time.Hour)},
		{ID: "new", StartedAt: now},
	}

	got := runsSince(runs, now.Add(-24*time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].ID)
	assert.Equal(t, "new", got[1].ID)
	assert.Len(t, runs, 3)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}
