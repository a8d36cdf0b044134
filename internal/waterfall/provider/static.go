package provider

import (
	"context"
	"sync/atomic"
	"time"
)

// StaticAdapter answers from fixed values. It backs fixture providers in
// local setups and tests.
type StaticAdapter struct {
	ProviderID string
	Fields     []string
	Values     map[string]FieldValue
	Cost       float64
	// Fail makes every call a vendor-reported failure.
	Fail bool
	// Delay is slept before answering, honoring ctx.
	Delay time.Duration
	// Fn, when set, replaces the fixed behavior.
	Fn func(ctx context.Context, req Request) (*Result, error)
	// Unhealthy makes HealthCheck report false.
	Unhealthy bool

	calls atomic.Int64
}

// ID implements Adapter.
func (s *StaticAdapter) ID() string { return s.ProviderID }

// SupportedFields implements Adapter.
func (s *StaticAdapter) SupportedFields() []string { return s.Fields }

// Calls returns how many times Enrich was invoked.
func (s *StaticAdapter) Calls() int64 { return s.calls.Load() }

// Enrich implements Adapter.
func (s *StaticAdapter) Enrich(ctx context.Context, req Request) (*Result, error) {
	s.calls.Add(1)
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if s.Fn != nil {
		return s.Fn(ctx, req)
	}
	if s.Fail {
		return &Result{Success: false, Cost: s.Cost, LatencyMs: 1, Error: "static failure"}, nil
	}
	res := &Result{Success: true, Cost: s.Cost, LatencyMs: 1}
	for _, f := range req.Fields {
		if v, ok := s.Values[f]; ok {
			v.Field = f
			res.Fields = append(res.Fields, v)
		}
	}
	return res, nil
}

// HealthCheck implements Adapter.
func (s *StaticAdapter) HealthCheck(context.Context) bool { return !s.Unhealthy }
