package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle position of an enrichment job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusExhausted JobStatus = "exhausted"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusExhausted
}

// ResultOutcome classifies one recorded attempt.
type ResultOutcome string

const (
	OutcomeAccepted       ResultOutcome = "accepted"
	OutcomeBelowThreshold ResultOutcome = "below_threshold"
	OutcomeNoMatch        ResultOutcome = "no_match"
	OutcomeFailed         ResultOutcome = "failed"
	OutcomeCacheHit       ResultOutcome = "cache_hit"
)

// EnrichmentResult is one entry of a job's attempt log. Failed calls are
// recorded too so that the job's cost equals the sum of its results.
type EnrichmentResult struct {
	Field      string        `json:"field"`
	Provider   string        `json:"provider"`
	Value      any           `json:"value,omitempty"`
	Confidence float64       `json:"confidence"`
	Cost       float64       `json:"cost"`
	LatencyMs  int64         `json:"latency_ms"`
	Outcome    ResultOutcome `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// ResolutionStatus is the final state of one requested field.
type ResolutionStatus string

const (
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionCached     ResolutionStatus = "cached"
	ResolutionBestEffort ResolutionStatus = "best_effort"
	ResolutionUnresolved ResolutionStatus = "unresolved"
)

// Reasons a field ends unresolved.
const (
	ReasonNoProviders = "no_providers"
	ReasonExhausted   = "providers_exhausted"
	ReasonMaxAttempts = "max_attempts_reached"
	ReasonCostCap     = "cost_cap_reached"
	ReasonJobBudget   = "job_budget_reached"
	ReasonLowQuality  = "below_min_confidence"
)

// FieldResolution summarises the outcome for one requested field.
type FieldResolution struct {
	Field      string           `json:"field"`
	Status     ResolutionStatus `json:"status"`
	Value      any              `json:"value,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Attempts   int              `json:"attempts"`
	Cost       float64          `json:"cost"`
}

// Satisfied reports whether the field ended with a usable value.
func (r FieldResolution) Satisfied() bool {
	return r.Status != ResolutionUnresolved
}

// EnrichmentJob records one enrichment request's execution and outcome.
type EnrichmentJob struct {
	ID               string                     `json:"id"`
	TenantID         string                     `json:"tenant_id"`
	ContactID        string                     `json:"contact_id"`
	RequestedFields  []string                   `json:"requested_fields"`
	Status           JobStatus                  `json:"status"`
	Results          []EnrichmentResult         `json:"results"`
	Resolutions      map[string]FieldResolution `json:"resolutions"`
	UnresolvedFields []string                   `json:"unresolved_fields,omitempty"`
	Policies         map[string]WaterfallConfig `json:"policies,omitempty"`
	TotalCost        float64                    `json:"total_cost"`
	TotalLatencyMs   int64                      `json:"total_latency_ms"`
	ProvidersTried   []string                   `json:"providers_tried"`
	Error            string                     `json:"error,omitempty"`
	StartedAt        *time.Time                 `json:"started_at,omitempty"`
	CompletedAt      *time.Time                 `json:"completed_at,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// NewJob creates a pending job.
func NewJob(tenantID, contactID string, fields []string, now time.Time) (*EnrichmentJob, error) {
	var verr ValidationErrors
	if tenantID == "" {
		verr.Add("tenant_id", "required")
	}
	if contactID == "" {
		verr.Add("contact_id", "required")
	}
	if len(fields) == 0 {
		verr.Add("requested_fields", "at least one field is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return &EnrichmentJob{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ContactID:       contactID,
		RequestedFields: append([]string(nil), fields...),
		Status:          JobStatusPending,
		Results:         []EnrichmentResult{},
		Resolutions:     make(map[string]FieldResolution, len(fields)),
		ProvidersTried:  []string{},
		CreatedAt:       now,
	}, nil
}

// Start moves a pending job to running.
func (j *EnrichmentJob) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// AddResult appends an attempt and keeps the running totals in step.
func (j *EnrichmentJob) AddResult(r EnrichmentResult) {
	j.Results = append(j.Results, r)
	j.TotalCost += r.Cost
	j.TotalLatencyMs += r.LatencyMs
	if r.Outcome != OutcomeCacheHit && !slices.Contains(j.ProvidersTried, r.Provider) {
		j.ProvidersTried = append(j.ProvidersTried, r.Provider)
	}
}

// SnapshotPolicy records the config a field was resolved with.
func (j *EnrichmentJob) SnapshotPolicy(cfg WaterfallConfig) {
	if j.Policies == nil {
		j.Policies = make(map[string]WaterfallConfig)
	}
	j.Policies[cfg.Field] = cfg.Clone()
}

// Resolve stores the final outcome of one field.
func (j *EnrichmentJob) Resolve(res FieldResolution) {
	if j.Resolutions == nil {
		j.Resolutions = make(map[string]FieldResolution)
	}
	j.Resolutions[res.Field] = res
}

// MarkUnresolved records that a field ended without a usable value.
func (j *EnrichmentJob) MarkUnresolved(field, reason string, attempts int, cost float64) {
	j.Resolve(FieldResolution{
		Field:    field,
		Status:   ResolutionUnresolved,
		Reason:   reason,
		Attempts: attempts,
		Cost:     cost,
	})
}

// Finalize derives the terminal status from the field resolutions: completed
// when every requested field has a value, exhausted otherwise.
func (j *EnrichmentJob) Finalize(now time.Time) {
	j.UnresolvedFields = nil
	for _, f := range j.RequestedFields {
		res, ok := j.Resolutions[f]
		if !ok || !res.Satisfied() {
			j.UnresolvedFields = append(j.UnresolvedFields, f)
		}
	}
	if len(j.UnresolvedFields) == 0 {
		j.Status = JobStatusCompleted
	} else {
		j.Status = JobStatusExhausted
	}
	j.CompletedAt = &now
}

// Fail terminates the job because of a request error.
func (j *EnrichmentJob) Fail(now time.Time, err error) {
	j.Status = JobStatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = &now
}

// ResultCost sums the cost of every recorded result.
func (j *EnrichmentJob) ResultCost() float64 {
	total := 0.0
	for _, r := range j.Results {
		total += r.Cost
	}
	return total
}

// NewFailedJob builds the record returned for a request rejected before any
// provider was called. The NewJob invariants are not applied; the
// rejected input is kept verbatim for audit.
func NewFailedJob(tenantID, contactID string, fields []string, now time.Time, err error) *EnrichmentJob {
	j := &EnrichmentJob{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ContactID:       contactID,
		RequestedFields: append([]string(nil), fields...),
		Results:         []EnrichmentResult{},
		Resolutions:     map[string]FieldResolution{},
		ProvidersTried:  []string{},
		CreatedAt:       now,
	}
	j.Fail(now, err)
	return j
}
