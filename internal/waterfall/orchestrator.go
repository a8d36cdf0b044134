// Package waterfall resolves requested contact fields by walking an ordered
// chain of enrichment providers under per-field policy.
package waterfall

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrich-waterfall/internal/cache"
	"github.com/sells-group/enrich-waterfall/internal/metrics"
	"github.com/sells-group/enrich-waterfall/internal/model"
	"github.com/sells-group/enrich-waterfall/internal/resilience"
	"github.com/sells-group/enrich-waterfall/internal/waterfall/provider"
)

// DefaultFieldConcurrency bounds how many fields of one job run at once.
const DefaultFieldConcurrency = 4

// ContactStore loads the contact being enriched.
type ContactStore interface {
	GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error)
}

// JobStore persists job snapshots. Save is called for the pending,
// running and final states.
type JobStore interface {
	SaveJob(ctx context.Context, job *model.EnrichmentJob) error
}

// Options tune orchestration policy.
type Options struct {
	// FieldConcurrency limits concurrently resolved fields per job.
	FieldConcurrency int `yaml:"field_concurrency" mapstructure:"field_concurrency"`
	// AcceptBestEffort resolves a field to its best below-threshold value
	// when no provider reached minConfidence.
	AcceptBestEffort bool `yaml:"accept_best_effort" mapstructure:"accept_best_effort"`
	// MaxCostPerJob caps spend across all fields of a job. Zero is unbounded.
	MaxCostPerJob float64 `yaml:"max_cost_per_job" mapstructure:"max_cost_per_job"`
}

// DefaultOptions returns the default policy.
func DefaultOptions() Options {
	return Options{FieldConcurrency: DefaultFieldConcurrency, AcceptBestEffort: true}
}

// Deps are the collaborators of an Orchestrator. Jobs is optional.
type Deps struct {
	Contacts ContactStore
	Registry *provider.Registry
	Configs  *ConfigResolver
	Health   *resilience.HealthTracker
	Cache    cache.Cache
	Jobs     JobStore
}

// Orchestrator runs enrichment jobs.
type Orchestrator struct {
	deps    Deps
	opts    Options
	nowFunc func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.FieldConcurrency <= 0 {
		opts.FieldConcurrency = DefaultFieldConcurrency
	}
	if deps.Configs == nil {
		deps.Configs = NewConfigResolver(nil, nil)
	}
	return &Orchestrator{deps: deps, opts: opts, nowFunc: time.Now}
}

// WithNow sets the clock for testing.
func (o *Orchestrator) WithNow(fn func() time.Time) *Orchestrator {
	o.nowFunc = fn
	return o
}

// Options returns the effective policy.
func (o *Orchestrator) Options() Options { return o.opts }

// Enrich resolves fields for a contact and returns the finished job.
// Provider failures never surface as errors; a non-nil error means the
// request itself was rejected, and the returned job is then failed.
func (o *Orchestrator) Enrich(ctx context.Context, tenantID, contactID string, fields []string) (*model.EnrichmentJob, error) {
	job, contact, err := o.prepare(ctx, tenantID, contactID, fields)
	if err != nil {
		return job, err
	}
	o.run(ctx, job, *contact)
	return job, nil
}

// Submit validates the request, persists a pending job and resolves it in
// the background. The returned snapshot is not updated; poll the JobStore.
func (o *Orchestrator) Submit(ctx context.Context, tenantID, contactID string, fields []string) (*model.EnrichmentJob, error) {
	if o.deps.Jobs == nil {
		return nil, eris.New("waterfall: async enrichment needs a job store")
	}
	job, contact, err := o.prepare(ctx, tenantID, contactID, fields)
	if err != nil {
		return job, err
	}
	snapshot := *job
	snapshot.RequestedFields = append([]string(nil), job.RequestedFields...)
	snapshot.Results = []model.EnrichmentResult{}
	snapshot.Resolutions = map[string]model.FieldResolution{}
	snapshot.ProvidersTried = []string{}

	bg := context.WithoutCancel(ctx)
	go o.run(bg, job, *contact)
	return &snapshot, nil
}

// prepare validates the request and creates the pending job. On rejection
// it returns a failed job with the error.
func (o *Orchestrator) prepare(ctx context.Context, tenantID, contactID string, fields []string) (*model.EnrichmentJob, *model.Contact, error) {
	now := o.nowFunc()

	var verr model.ValidationErrors
	if tenantID == "" {
		verr.Add("tenant_id", "required")
	}
	if contactID == "" {
		verr.Add("contact_id", "required")
	}
	normalized, err := model.NormalizeFields(fields)
	verr.Merge("", err)
	if err := verr.Err(); err != nil {
		return o.reject(ctx, tenantID, contactID, fields, &RequestError{Err: err})
	}

	contact, err := o.deps.Contacts.GetContact(ctx, tenantID, contactID)
	if errors.Is(err, model.ErrNotFound) {
		return o.reject(ctx, tenantID, contactID, fields, &RequestError{Err: eris.Errorf("unknown contact %s", contactID)})
	}
	if err != nil {
		return o.reject(ctx, tenantID, contactID, fields, eris.Wrap(err, "waterfall: load contact"))
	}

	job, err := model.NewJob(tenantID, contactID, normalized, now)
	if err != nil {
		return o.reject(ctx, tenantID, contactID, fields, &RequestError{Err: err})
	}
	o.save(ctx, job)
	return job, contact, nil
}

func (o *Orchestrator) reject(ctx context.Context, tenantID, contactID string, fields []string, cause error) (*model.EnrichmentJob, *model.Contact, error) {
	job := model.NewFailedJob(tenantID, contactID, fields, o.nowFunc(), cause)
	zap.L().Warn("waterfall: request rejected",
		zap.String("tenant_id", tenantID),
		zap.String("contact_id", contactID),
		zap.Strings("fields", fields),
		zap.Error(cause),
	)
	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	if tenantID != "" {
		o.save(ctx, job)
	}
	return job, nil, cause
}

// fieldOutcome is what one field's waterfall produced. It is merged into
// the job after all fields finish so the job has a single writer.
type fieldOutcome struct {
	policy     *model.WaterfallConfig
	results    []model.EnrichmentResult
	resolution model.FieldResolution
}

func (o *Orchestrator) run(ctx context.Context, job *model.EnrichmentJob, contact model.Contact) {
	start := o.nowFunc()
	job.Start(start)
	o.save(ctx, job)

	budget := newJobBudget(o.opts.MaxCostPerJob)
	outcomes := make([]fieldOutcome, len(job.RequestedFields))

	var g errgroup.Group
	g.SetLimit(o.opts.FieldConcurrency)
	for i, field := range job.RequestedFields {
		g.Go(func() error {
			outcomes[i] = o.resolveField(ctx, contact, field, budget)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		if out.policy != nil {
			job.SnapshotPolicy(*out.policy)
		}
		for _, r := range out.results {
			job.AddResult(r)
		}
		job.Resolve(out.resolution)
		metrics.FieldsTotal.WithLabelValues(out.resolution.Field, string(out.resolution.Status)).Inc()
	}
	job.Finalize(o.nowFunc())
	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	o.save(ctx, job)

	zap.L().Info("waterfall: job finished",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("contact_id", job.ContactID),
		zap.String("status", string(job.Status)),
		zap.Strings("unresolved", job.UnresolvedFields),
		zap.Float64("total_cost", job.TotalCost),
		zap.Int64("total_latency_ms", job.TotalLatencyMs),
		zap.Duration("elapsed", o.nowFunc().Sub(start)),
	)
}

// resolveField walks one field's waterfall.
func (o *Orchestrator) resolveField(ctx context.Context, contact model.Contact, field string, budget *jobBudget) fieldOutcome {
	tenantID := contact.TenantID
	log := zap.L().With(
		zap.String("tenant_id", tenantID),
		zap.String("contact_id", contact.ID),
		zap.String("field", field),
	)

	if hit := o.lookupCache(ctx, tenantID, contact.ID, field, log); hit != nil {
		return fieldOutcome{
			results: []model.EnrichmentResult{{
				Field:      field,
				Provider:   hit.ProviderID,
				Value:      hit.Value,
				Confidence: hit.Confidence,
				Outcome:    model.OutcomeCacheHit,
			}},
			resolution: model.FieldResolution{
				Field:      field,
				Status:     model.ResolutionCached,
				Value:      hit.Value,
				Confidence: hit.Confidence,
				Provider:   hit.ProviderID,
			},
		}
	}

	policy := o.policy(ctx, tenantID, field, log)
	out := fieldOutcome{policy: &policy}

	if len(policy.ProviderOrder) == 0 {
		out.resolution = model.FieldResolution{Field: field, Status: model.ResolutionUnresolved, Reason: model.ReasonNoProviders}
		return out
	}

	req := provider.NewRequest(contact, field)
	attempts, spent := 0, 0.0
	var best *model.EnrichmentResult
	reason := model.ReasonExhausted

providers:
	for _, id := range policy.ProviderOrder {
		cand, skip, err := o.deps.Registry.Candidate(ctx, tenantID, id, field)
		if err != nil {
			log.Warn("waterfall: registry lookup failed", zap.String("provider", id), zap.Error(err))
			continue
		}
		if cand == nil {
			log.Debug("waterfall: provider skipped", zap.String("provider", id), zap.String("reason", skip))
			metrics.ProviderSkipsTotal.WithLabelValues(id, skip).Inc()
			continue
		}
		if !o.available(ctx, tenantID, id, log) {
			log.Debug("waterfall: provider circuit open", zap.String("provider", id))
			metrics.ProviderSkipsTotal.WithLabelValues(id, "circuit_open").Inc()
			continue
		}

		if attempts >= policy.MaxAttempts {
			reason = model.ReasonMaxAttempts
			break
		}
		estimate := cand.Provider.CostPerLookup
		if policy.MaxCostPerLead != nil && spent+estimate > *policy.MaxCostPerLead+costEpsilon {
			reason = model.ReasonCostCap
			break
		}
		if !budget.reserve(estimate) {
			reason = model.ReasonJobBudget
			break
		}

		res, callErr := provider.Invoke(ctx, cand.Adapter, req, policy.Timeout())
		r := o.recordAttempt(ctx, tenantID, cand, policy, res, callErr, log)
		budget.settle(estimate, r.Cost)
		attempts++
		spent += r.Cost
		out.results = append(out.results, r)

		switch r.Outcome {
		case model.OutcomeAccepted:
			o.storeCache(ctx, contact, policy, r, log)
			out.resolution = model.FieldResolution{
				Field:      field,
				Status:     model.ResolutionResolved,
				Value:      r.Value,
				Confidence: r.Confidence,
				Provider:   r.Provider,
				Attempts:   attempts,
				Cost:       spent,
			}
			break providers
		case model.OutcomeBelowThreshold:
			if best == nil || r.Confidence > best.Confidence {
				kept := r
				best = &kept
			}
		}
	}

	if out.resolution.Status != "" {
		return out
	}
	if best != nil {
		if o.opts.AcceptBestEffort {
			out.resolution = model.FieldResolution{
				Field:      field,
				Status:     model.ResolutionBestEffort,
				Value:      best.Value,
				Confidence: best.Confidence,
				Provider:   best.Provider,
				Reason:     model.ReasonLowQuality,
				Attempts:   attempts,
				Cost:       spent,
			}
			return out
		}
		reason = model.ReasonLowQuality
	}
	out.resolution = model.FieldResolution{
		Field:    field,
		Status:   model.ResolutionUnresolved,
		Reason:   reason,
		Attempts: attempts,
		Cost:     spent,
	}
	return out
}

// recordAttempt classifies one call and feeds health, stats and metrics.
func (o *Orchestrator) recordAttempt(ctx context.Context, tenantID string, cand *provider.Candidate, policy model.WaterfallConfig, res *provider.Result, callErr error, log *zap.Logger) model.EnrichmentResult {
	id := cand.Provider.ID
	field := policy.Field
	r := model.EnrichmentResult{Field: field, Provider: id}

	switch {
	case callErr != nil:
		// No vendor response: charge the catalog price.
		r.Cost = cand.Provider.CostPerLookup
		r.Outcome = model.OutcomeFailed
		r.Error = callErr.Error()
		if errors.Is(callErr, provider.ErrTimeout) {
			r.LatencyMs = policy.Timeout().Milliseconds()
		}
	case !res.Success:
		r.Cost, r.LatencyMs = res.Cost, res.LatencyMs
		r.Outcome = model.OutcomeFailed
		r.Error = res.Error
	default:
		r.Cost, r.LatencyMs = res.Cost, res.LatencyMs
		fv, ok := res.Field(field)
		switch {
		case !ok || fv.Value == nil:
			r.Outcome = model.OutcomeNoMatch
		default:
			r.Value = model.NormalizeValue(field, fv.Value)
			r.Confidence = fv.Confidence
			r.Outcome = model.OutcomeBelowThreshold
			if fv.Confidence >= policy.MinConfidence {
				r.Outcome = model.OutcomeAccepted
			}
		}
	}
	if res != nil && res.LatencyMs > 0 && r.LatencyMs == 0 {
		r.LatencyMs = res.LatencyMs
	}

	success := r.Outcome != model.OutcomeFailed
	var herr error
	if success {
		herr = o.deps.Health.RecordSuccess(ctx, tenantID, id)
	} else {
		herr = o.deps.Health.RecordFailure(ctx, tenantID, id)
	}
	if herr != nil {
		log.Warn("waterfall: health update failed", zap.String("provider", id), zap.Error(herr))
	}
	if err := o.deps.Registry.RecordCall(ctx, tenantID, id, r.LatencyMs, success); err != nil {
		log.Warn("waterfall: provider stats update failed", zap.String("provider", id), zap.Error(err))
	}

	metrics.ProviderCallsTotal.WithLabelValues(id, string(r.Outcome)).Inc()
	metrics.ProviderCallDuration.WithLabelValues(id).Observe(float64(r.LatencyMs) / 1000)
	if r.Cost > 0 {
		metrics.SpendUSDTotal.WithLabelValues(id).Add(r.Cost)
	}
	log.Debug("waterfall: provider attempt",
		zap.String("provider", id),
		zap.String("outcome", string(r.Outcome)),
		zap.Float64("confidence", r.Confidence),
		zap.Float64("cost", r.Cost),
		zap.Int64("latency_ms", r.LatencyMs),
		zap.String("error", r.Error),
	)
	return r
}

func (o *Orchestrator) lookupCache(ctx context.Context, tenantID, contactID, field string, log *zap.Logger) *model.CacheEntry {
	if o.deps.Cache == nil {
		return nil
	}
	entry, err := o.deps.Cache.Get(ctx, tenantID, contactID, field)
	if err != nil {
		log.Warn("waterfall: cache lookup failed", zap.Error(err))
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil
	}
	if entry == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry
}

// storeCache writes an accepted value. A zero TTL disables caching.
func (o *Orchestrator) storeCache(ctx context.Context, contact model.Contact, policy model.WaterfallConfig, r model.EnrichmentResult, log *zap.Logger) {
	if o.deps.Cache == nil || policy.CacheTTLDays <= 0 {
		return
	}
	now := o.nowFunc()
	entry := model.CacheEntry{
		TenantID:   contact.TenantID,
		ContactID:  contact.ID,
		Field:      r.Field,
		Value:      r.Value,
		Confidence: r.Confidence,
		ProviderID: r.Provider,
		CachedAt:   now,
		ExpiresAt:  now.Add(policy.CacheTTL()),
	}
	if err := o.deps.Cache.Set(ctx, entry); err != nil {
		log.Warn("waterfall: cache write failed", zap.Error(err))
	}
}

// policy snapshots the effective config. An empty provider order falls
// back to the tenant's enabled providers for the field, by priority.
func (o *Orchestrator) policy(ctx context.Context, tenantID, field string, log *zap.Logger) model.WaterfallConfig {
	p, source, err := o.deps.Configs.Get(ctx, tenantID, field)
	if err != nil {
		log.Warn("waterfall: config lookup failed, using defaults", zap.Error(err))
	}
	if len(p.ProviderOrder) == 0 {
		enabled, err := o.deps.Registry.ListEnabled(ctx, tenantID)
		if err != nil {
			log.Warn("waterfall: list providers failed", zap.Error(err))
		}
		for _, ep := range enabled {
			if ep.SupportsField(field) {
				p.ProviderOrder = append(p.ProviderOrder, ep.ID)
			}
		}
	}
	log.Debug("waterfall: policy", zap.String("source", string(source)), zap.Strings("providers", p.ProviderOrder))
	return p
}

// available fails open when health state cannot be read.
func (o *Orchestrator) available(ctx context.Context, tenantID, providerID string, log *zap.Logger) bool {
	ok, err := o.deps.Health.IsAvailable(ctx, tenantID, providerID)
	if err != nil {
		log.Warn("waterfall: health lookup failed", zap.String("provider", providerID), zap.Error(err))
		return true
	}
	return ok
}

func (o *Orchestrator) save(ctx context.Context, job *model.EnrichmentJob) {
	if o.deps.Jobs == nil {
		return
	}
	if err := o.deps.Jobs.SaveJob(ctx, job); err != nil {
		zap.L().Warn("waterfall: save job failed",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Error(err),
		)
	}
}
