package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// HealthStore persists provider health records. GetHealth returns
// model.ErrNotFound when no record exists yet.
type HealthStore interface {
	GetHealth(ctx context.Context, tenantID, providerID string) (*model.ProviderHealth, error)
	SaveHealth(ctx context.Context, h model.ProviderHealth) error
	ListHealth(ctx context.Context, tenantID string) ([]model.ProviderHealth, error)
}

// StateChangeFunc observes circuit transitions.
type StateChangeFunc func(tenantID, providerID string, from, to model.CircuitState)

// HealthTracker applies the breaker to stored health records, serializing
// the read-modify-write per (tenant, provider).
type HealthTracker struct {
	store   HealthStore
	breaker Breaker

	mu    sync.RWMutex
	locks map[string]*sync.Mutex

	onStateChange StateChangeFunc

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// TrackerOption configures a HealthTracker.
type TrackerOption func(*HealthTracker)

// WithTrackerNow overrides the clock.
func WithTrackerNow(fn func() time.Time) TrackerOption {
	return func(t *HealthTracker) { t.nowFunc = fn }
}

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) TrackerOption {
	return func(t *HealthTracker) { t.onStateChange = fn }
}

// NewHealthTracker creates a tracker backed by store.
func NewHealthTracker(store HealthStore, cfg BreakerConfig, opts ...TrackerOption) *HealthTracker {
	t := &HealthTracker{
		store:   store,
		breaker: NewBreaker(cfg),
		locks:   make(map[string]*sync.Mutex),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// IsAvailable reports whether the provider may be called for tenant. The
// open to half-open transition is persisted when it happens. A tenant with
// no record yet is available and nothing is written.
func (t *HealthTracker) IsAvailable(ctx context.Context, tenantID, providerID string) (bool, error) {
	unlock := t.lock(tenantID, providerID)
	defer unlock()

	h, found, err := t.load(ctx, tenantID, providerID)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}

	before := h.CircuitState
	ok := t.breaker.IsAvailable(h, t.nowFunc())
	if h.CircuitState != before {
		if err := t.store.SaveHealth(ctx, *h); err != nil {
			return ok, eris.Wrap(err, "health: save half-open transition")
		}
		t.notify(tenantID, providerID, before, h.CircuitState)
	}
	return ok, nil
}

// RecordSuccess records one successful provider call.
func (t *HealthTracker) RecordSuccess(ctx context.Context, tenantID, providerID string) error {
	return t.update(ctx, tenantID, providerID, t.breaker.RecordSuccess)
}

// RecordFailure records one failed provider call.
func (t *HealthTracker) RecordFailure(ctx context.Context, tenantID, providerID string) error {
	return t.update(ctx, tenantID, providerID, t.breaker.RecordFailure)
}

// Reset forces the circuit closed and clears the failure count. Success
// history is kept.
func (t *HealthTracker) Reset(ctx context.Context, tenantID, providerID string) error {
	return t.update(ctx, tenantID, providerID, func(h *model.ProviderHealth, now time.Time) {
		h.CircuitState = model.CircuitClosed
		h.CircuitOpenedAt = nil
		h.FailureCount = 0
		h.UpdatedAt = now
	})
}

// Snapshot returns the stored records for tenant without applying lazy
// transitions.
func (t *HealthTracker) Snapshot(ctx context.Context, tenantID string) ([]model.ProviderHealth, error) {
	list, err := t.store.ListHealth(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "health: list tenant %s", tenantID)
	}
	return list, nil
}

// Breaker returns the state machine in use.
func (t *HealthTracker) Breaker() Breaker {
	return t.breaker
}

func (t *HealthTracker) update(ctx context.Context, tenantID, providerID string, apply func(*model.ProviderHealth, time.Time)) error {
	unlock := t.lock(tenantID, providerID)
	defer unlock()

	h, _, err := t.load(ctx, tenantID, providerID)
	if err != nil {
		return err
	}
	before := h.CircuitState
	apply(h, t.nowFunc())
	if err := t.store.SaveHealth(ctx, *h); err != nil {
		return eris.Wrapf(err, "health: save %s/%s", tenantID, providerID)
	}
	if h.CircuitState != before {
		t.notify(tenantID, providerID, before, h.CircuitState)
	}
	return nil
}

func (t *HealthTracker) load(ctx context.Context, tenantID, providerID string) (*model.ProviderHealth, bool, error) {
	h, err := t.store.GetHealth(ctx, tenantID, providerID)
	if errors.Is(err, model.ErrNotFound) {
		fresh := model.NewProviderHealth(tenantID, providerID, t.nowFunc())
		return &fresh, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "health: load %s/%s", tenantID, providerID)
	}
	if h.CircuitState == "" {
		h.CircuitState = model.CircuitClosed
	}
	return h, true, nil
}

func (t *HealthTracker) notify(tenantID, providerID string, from, to model.CircuitState) {
	zap.L().Info("circuit state change",
		zap.String("tenant", tenantID),
		zap.String("provider", providerID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if t.onStateChange != nil {
		t.onStateChange(tenantID, providerID, from, to)
	}
}

// lock returns the unlock func for the (tenant, provider) mutex, creating
// the mutex on first use.
func (t *HealthTracker) lock(tenantID, providerID string) func() {
	key := tenantID + "\x00" + providerID

	t.mu.RLock()
	m, ok := t.locks[key]
	t.mu.RUnlock()
	if !ok {
		t.mu.Lock()
		// Double-check after acquiring write lock.
		if m, ok = t.locks[key]; !ok {
			m = &sync.Mutex{}
			t.locks[key] = m
		}
		t.mu.Unlock()
	}
	m.Lock()
	return m.Unlock
}
