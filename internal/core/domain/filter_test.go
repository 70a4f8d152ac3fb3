package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestMergeWindow_FirstRunWithoutFilter(t *testing.T) {
	f := MergeWindow(nil, nil)

	assert.Nil(t, f.ModifiedAfter)
	assert.Nil(t, f.ModifiedBefore)
	assert.Equal(t, OriginNone, f.Origin)
}

func TestMergeWindow_ExplicitEmptyFilterIsDistinguishable(t *testing.T) {
	f := MergeWindow(&TimeWindow{}, nil)

	assert.Nil(t, f.ModifiedAfter)
	assert.Equal(t, OriginConfigured, f.Origin)
	assert.NotEqual(t, MergeWindow(nil, nil), f)
}

func TestMergeWindow_LaterBoundWins(t *testing.T) {
	tests := []struct {
		name       string
		configured *TimeWindow
		watermark  time.Time
		want       time.Time
		origin     FilterOrigin
	}{
		{
			name:       "checkpoint newer than filter",
			configured: &TimeWindow{ModifiedAfter: tsp("2024-01-01T00:00:00Z")},
			watermark:  ts("2024-03-01T00:00:00Z"),
			want:       ts("2024-03-01T00:00:00Z"),
			origin:     OriginCheckpoint,
		},
		{
			name:       "filter newer than checkpoint",
			configured: &TimeWindow{ModifiedAfter: tsp("2024-05-01T00:00:00Z")},
			watermark:  ts("2024-03-01T00:00:00Z"),
			want:       ts("2024-05-01T00:00:00Z"),
			origin:     OriginConfigured,
		},
		{
			name:      "checkpoint only",
			watermark: ts("2024-03-01T00:00:00Z"),
			want:      ts("2024-03-01T00:00:00Z"),
			origin:    OriginCheckpoint,
		},
		{
			name:       "filter only",
			configured: &TimeWindow{ModifiedAfter: tsp("2024-01-01T00:00:00Z")},
			want:       ts("2024-01-01T00:00:00Z"),
			origin:     OriginConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cp *Checkpoint
			if !tt.watermark.IsZero() {
				cp = &Checkpoint{Watermark: tt.watermark}
			}
			f := MergeWindow(tt.configured, cp)

			if assert.NotNil(t, f.ModifiedAfter) {
				assert.True(t, tt.want.Equal(*f.ModifiedAfter))
			}
			assert.Equal(t, tt.origin, f.Origin)
		})
	}
}

func TestMergeWindow_DoesNotAliasConfiguredBound(t *testing.T) {
	after := ts("2024-01-01T00:00:00Z")
	configured := &TimeWindow{ModifiedAfter: &after}

	f := MergeWindow(configured, nil)
	*f.ModifiedAfter = ts("2030-01-01T00:00:00Z")

	assert.True(t, after.Equal(ts("2024-01-01T00:00:00Z")))
}

func TestMergeWindow_ResumeReplaysSince(t *testing.T) {
	since := tsp("2024-02-01T00:00:00Z")
	cp := &Checkpoint{
		Cursor:    "c2",
		Since:     since,
		Watermark: ts("2024-04-01T00:00:00Z"),
	}
	configured := &TimeWindow{
		ModifiedAfter:  tsp("2024-01-01T00:00:00Z"),
		ModifiedBefore: tsp("2025-01-01T00:00:00Z"),
	}

	f := MergeWindow(configured, cp)

	assert.Equal(t, OriginResume, f.Origin)
	assert.Equal(t, since, f.ModifiedAfter)
	assert.Equal(t, configured.ModifiedBefore, f.ModifiedBefore)
}

func TestMergeWindow_ModifiedBeforeAppliedAsIs(t *testing.T) {
	before := tsp("2024-02-01T00:00:00Z")
	cp := &Checkpoint{Watermark: ts("2024-03-01T00:00:00Z")}

	f := MergeWindow(&TimeWindow{ModifiedBefore: before}, cp)

	assert.Equal(t, before, f.ModifiedBefore)
	assert.True(t, f.Empty())
}

func TestFilters_Matches(t *testing.T) {
	f := Filters{
		ModifiedAfter:  tsp("2024-01-01T00:00:00Z"),
		ModifiedBefore: tsp("2024-02-01T00:00:00Z"),
	}

	assert.False(t, f.Matches(ts("2024-01-01T00:00:00Z")), "lower bound is exclusive")
	assert.True(t, f.Matches(ts("2024-01-15T00:00:00Z")))
	assert.False(t, f.Matches(ts("2024-02-01T00:00:00Z")), "upper bound is exclusive")
	assert.True(t, Filters{}.Matches(ts("1999-01-01T00:00:00Z")))
}

func TestFilters_Empty(t *testing.T) {
	assert.False(t, Filters{}.Empty())
	assert.False(t, Filters{ModifiedAfter: tsp("2024-01-01T00:00:00Z")}.Empty())
	assert.True(t, Filters{
		ModifiedAfter:  tsp("2024-01-01T00:00:00Z"),
		ModifiedBefore: tsp("2024-01-01T00:00:00Z"),
	}.Empty())
}

func TestFilterOrigin_String(t *testing.T) {
	assert.Equal(t, "none", OriginNone.String())
	assert.Equal(t, "configured", OriginConfigured.String())
	assert.Equal(t, "checkpoint", OriginCheckpoint.String())
	assert.Equal(t, "resume", OriginResume.String())
}

func TestPageMode_String(t *testing.T) {
	assert.Equal(t, "cursor", PageModeCursor.String())
	assert.Equal(t, "offset", PageModeOffset.String())
}
