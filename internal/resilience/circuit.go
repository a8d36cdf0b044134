// Package resilience tracks provider health with a per-tenant circuit breaker
// and provides retry helpers for outbound vendor calls.
package resilience

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the failure count at which a closed circuit
	// opens. Default: 5.
	FailureThreshold int

	// OpenDuration is how long the circuit stays open before an
	// availability check moves it to half-open. Default: 60s.
	OpenDuration time.Duration
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenDuration:     60 * time.Second,
	}
}

// Breaker is the circuit breaker state machine. It holds no state of its own;
// every method operates on the persisted health record passed in, so callers
// must serialize access per (tenant, provider).
type Breaker struct {
	cfg BreakerConfig
}

// NewBreaker creates a breaker, filling zero values with defaults.
func NewBreaker(cfg BreakerConfig) Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 60 * time.Second
	}
	return Breaker{cfg: cfg}
}

// Config returns the effective configuration.
func (b Breaker) Config() BreakerConfig {
	return b.cfg
}

// IsAvailable reports whether a call may be made. This is not a pure query:
// an open circuit whose open duration has elapsed is moved to half-open.
func (b Breaker) IsAvailable(h *model.ProviderHealth, now time.Time) bool {
	switch h.CircuitState {
	case model.CircuitOpen:
		if h.CircuitOpenedAt != nil && now.Sub(*h.CircuitOpenedAt) < b.cfg.OpenDuration {
			return false
		}
		h.CircuitState = model.CircuitHalfOpen
		h.UpdatedAt = now
		return true
	default:
		return true
	}
}

// RecordSuccess applies a successful call. Only a half-open success closes
// the circuit and clears the failure count.
func (b Breaker) RecordSuccess(h *model.ProviderHealth, now time.Time) {
	h.SuccessCount++
	h.LastSuccessAt = &now
	h.UpdatedAt = now
	if h.CircuitState == model.CircuitHalfOpen {
		h.CircuitState = model.CircuitClosed
		h.FailureCount = 0
		h.CircuitOpenedAt = nil
	}
}

// RecordFailure applies a failed call, opening the circuit at the threshold
// or re-opening it from half-open.
func (b Breaker) RecordFailure(h *model.ProviderHealth, now time.Time) {
	h.FailureCount++
	h.LastFailureAt = &now
	h.UpdatedAt = now
	switch h.CircuitState {
	case model.CircuitClosed, "":
		if h.FailureCount >= int64(b.cfg.FailureThreshold) {
			h.CircuitState = model.CircuitOpen
			h.CircuitOpenedAt = &now
		} else {
			h.CircuitState = model.CircuitClosed
		}
	case model.CircuitHalfOpen:
		h.CircuitState = model.CircuitOpen
		h.CircuitOpenedAt = &now
	}
}
