package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob_Pending(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j, err := NewJob("t1", "c1", []string{"email", "phone"}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, j.ID)
	assert.Equal(t, JobStatusPending, j.Status)
	assert.Equal(t, []string{"email", "phone"}, j.RequestedFields)
	assert.Equal(t, now, j.CreatedAt)
	assert.Nil(t, j.StartedAt)
}

func TestNewJob_Invalid(t *testing.T) {
	_, err := NewJob("", "", nil, time.Now())
	require.Error(t, err)

	var verr ValidationErrors
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr, 3)
}

func TestJob_AddResult_Totals(t *testing.T) {
	j, err := NewJob("t1", "c1", []string{"email"}, time.Now())
	require.NoError(t, err)

	j.AddResult(EnrichmentResult{Field: "email", Provider: "clearbit", Cost: 0.05, LatencyMs: 120, Outcome: OutcomeFailed})
	j.AddResult(EnrichmentResult{Field: "email", Provider: "hunter", Cost: 0.02, LatencyMs: 80, Outcome: OutcomeBelowThreshold})
	j.AddResult(EnrichmentResult{Field: "email", Provider: "clearbit", Cost: 0.05, LatencyMs: 100, Outcome: OutcomeAccepted})
	j.AddResult(EnrichmentResult{Field: "phone", Provider: "cache", Outcome: OutcomeCacheHit})

	assert.InDelta(t, 0.12, j.TotalCost, 1e-9)
	assert.InDelta(t, j.ResultCost(), j.TotalCost, 1e-12)
	assert.Equal(t, int64(300), j.TotalLatencyMs)
	assert.Equal(t, []string{"clearbit", "hunter"}, j.ProvidersTried)
}

func TestJob_Finalize(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name        string
		resolutions []FieldResolution
		want        JobStatus
		unresolved  []string
	}{
		{
			name: "all resolved",
			resolutions: []FieldResolution{
				{Field: "email", Status: ResolutionResolved},
				{Field: "phone", Status: ResolutionCached},
			},
			want: JobStatusCompleted,
		},
		{
			name: "best effort counts as satisfied",
			resolutions: []FieldResolution{
				{Field: "email", Status: ResolutionBestEffort},
				{Field: "phone", Status: ResolutionResolved},
			},
			want: JobStatusCompleted,
		},
		{
			name: "one unresolved",
			resolutions: []FieldResolution{
				{Field: "email", Status: ResolutionResolved},
				{Field: "phone", Status: ResolutionUnresolved, Reason: ReasonCostCap},
			},
			want:       JobStatusExhausted,
			unresolved: []string{"phone"},
		},
		{
			name:       "missing resolution",
			want:       JobStatusExhausted,
			unresolved: []string{"email", "phone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := NewJob("t1", "c1", []string{"email", "phone"}, now)
			require.NoError(t, err)
			j.Start(now)
			for _, r := range tt.resolutions {
				j.Resolve(r)
			}
			j.Finalize(now)
			assert.Equal(t, tt.want, j.Status)
			assert.Equal(t, tt.unresolved, j.UnresolvedFields)
			assert.NotNil(t, j.CompletedAt)
			assert.True(t, j.Status.Terminal())
		})
	}
}

func TestNewFailedJob(t *testing.T) {
	j := NewFailedJob("t1", "missing", []string{"bogus"}, time.Now(), errors.New("contact not found"))
	assert.Equal(t, JobStatusFailed, j.Status)
	assert.Equal(t, "contact not found", j.Error)
	assert.Empty(t, j.Results)
	assert.Zero(t, j.TotalCost)
}

func TestJob_SnapshotPolicy_IsCopy(t *testing.T) {
	j, err := NewJob("t1", "c1", []string{"email"}, time.Now())
	require.NoError(t, err)

	cap := 0.1
	cfg := DefaultWaterfallConfig("t1", "email")
	cfg.ProviderOrder = []string{"a", "b"}
	cfg.MaxCostPerLead = &cap
	j.SnapshotPolicy(cfg)

	cfg.ProviderOrder[0] = "z"
	*cfg.MaxCostPerLead = 9

	snap := j.Policies["email"]
	assert.Equal(t, []string{"a", "b"}, snap.ProviderOrder)
	assert.InDelta(t, 0.1, *snap.MaxCostPerLead, 1e-9)
}

func TestJob_MarkUnresolved(t *testing.T) {
	j, err := NewJob("t1", "c1", []string{"email"}, time.Now())
	require.NoError(t, err)

	j.MarkUnresolved("email", ReasonCostCap, 1, 0.03)
	res := j.Resolutions["email"]
	assert.Equal(t, ResolutionUnresolved, res.Status)
	assert.Equal(t, ReasonCostCap, res.Reason)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Satisfied())

	j.Finalize(time.Now())
	assert.Equal(t, JobStatusExhausted, j.Status)
	assert.Equal(t, []string{"email"}, j.UnresolvedFields)
}
