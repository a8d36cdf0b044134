package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/store"
)

// maxJobsScanned bounds a single collection pass.
const maxJobsScanned = 10000

// OpenCircuit identifies a provider whose breaker is not closed for a tenant.
type OpenCircuit struct {
	TenantID   string             `json:"tenant_id"`
	ProviderID string             `json:"provider_id"`
	State      model.CircuitState `json:"state"`
	OpenedAt   *time.Time         `json:"opened_at,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of enrichment health.
type MetricsSnapshot struct {
	// Job metrics (within lookback window).
	JobsTotal     int     `json:"jobs_total"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsExhausted int     `json:"jobs_exhausted"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsInFlight  int     `json:"jobs_in_flight"`
	FailRate      float64 `json:"fail_rate"`
	ExhaustRate   float64 `json:"exhaust_rate"`
	SpendUSD      float64 `json:"spend_usd"`
	AvgJobCostUSD float64 `json:"avg_job_cost_usd"`
	Tenants       int     `json:"tenants"`

	// Breakers that are open or half-open for tenants active in the window.
	OpenCircuits []OpenCircuit `json:"open_circuits,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished is the number of jobs that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.JobsCompleted + s.JobsExhausted + s.JobsFailed
}

// Source is the subset of store.Store the collector reads.
type Source interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.EnrichmentJob, error)
	ListHealth(ctx context.Context, tenantID string) ([]model.ProviderHealth, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src     Source
	nowFunc func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, nowFunc: time.Now}
}

// WithNow overrides the collector clock.
func (c *Collector) WithNow(now func() time.Time) *Collector {
	c.nowFunc = now
	return c
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	jobs, err := c.src.ListJobs(ctx, store.JobFilter{
		CreatedAfter: cutoff,
		Limit:        maxJobsScanned,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	tenants := make(map[string]struct{})
	snap.JobsTotal = len(jobs)
	for _, j := range jobs {
		tenants[j.TenantID] = struct{}{}
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
		case model.JobStatusExhausted:
			snap.JobsExhausted++
		case model.JobStatusFailed:
			snap.JobsFailed++
		case model.JobStatusPending, model.JobStatusRunning:
			snap.JobsInFlight++
		}
		snap.SpendUSD += j.TotalCost
	}
	snap.Tenants = len(tenants)

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
		snap.ExhaustRate = float64(snap.JobsExhausted) / float64(finished)
	}
	if snap.JobsTotal > 0 {
		snap.AvgJobCostUSD = snap.SpendUSD / float64(snap.JobsTotal)
	}

	ids := make([]string, 0, len(tenants))
	for id := range tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, tenant := range ids {
		rows, err := c.src.ListHealth(ctx, tenant)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list health for tenant %s", tenant)
		}
		for _, h := range rows {
			if h.CircuitState == model.CircuitClosed {
				continue
			}
			snap.OpenCircuits = append(snap.OpenCircuits, OpenCircuit{
				TenantID:   h.TenantID,
				ProviderID: h.ProviderID,
				State:      h.CircuitState,
				OpenedAt:   h.CircuitOpenedAt,
			})
		}
	}

	return snap, nil
}
