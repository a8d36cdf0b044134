package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/enrich-waterfall/internal/resilience"
)

// HTTPConfig configures a generic JSON-over-HTTP vendor.
type HTTPConfig struct {
	ID            string
	BaseURL       string
	APIKey        string
	Fields        []string
	CostPerLookup float64
	// RatePerSecond limits outbound requests; zero disables the limiter.
	RatePerSecond float64
	Burst         int
	Retry         resilience.RetryConfig
	Client        *http.Client
}

// HTTPAdapter posts lookups to {BaseURL}/enrich and probes {BaseURL}/health.
//
// The request body is the JSON encoding of Request. A 200 response carries
// {"match": bool, "cost": float, "fields": [{"field","value","confidence"}]}.
// "match": false is a healthy reply with no fields. Any other status is a
// vendor failure. Every answered attempt is billed, so retried lookups
// report the sum of what the vendor charged.
type HTTPAdapter struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

type httpResponse struct {
	Match  bool         `json:"match"`
	Cost   *float64     `json:"cost,omitempty"`
	Fields []FieldValue `json:"fields"`
}

// NewHTTPAdapter validates cfg and builds the adapter.
func NewHTTPAdapter(cfg HTTPConfig) (*HTTPAdapter, error) {
	if cfg.ID == "" {
		return nil, eris.New("provider: http adapter requires an id")
	}
	if cfg.BaseURL == "" {
		return nil, eris.Errorf("provider: %s requires base_url", cfg.ID)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	a := &HTTPAdapter{cfg: cfg, client: client}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	if a.cfg.Retry.OnRetry == nil {
		a.cfg.Retry.OnRetry = resilience.RetryLogger(cfg.ID, "enrich")
	}
	return a, nil
}

// ID implements Adapter.
func (a *HTTPAdapter) ID() string { return a.cfg.ID }

// SupportedFields implements Adapter.
func (a *HTTPAdapter) SupportedFields() []string { return a.cfg.Fields }

// Enrich implements Adapter. Transient statuses are retried within ctx.
func (a *HTTPAdapter) Enrich(ctx context.Context, req Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "provider: marshal request")
	}

	start := time.Now()
	var (
		status int
		billed float64
	)
	res, err := resilience.DoVal(ctx, a.cfg.Retry, func(ctx context.Context) (*Result, error) {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "provider: rate limit wait")
			}
		}
		r, code, err := a.post(ctx, body)
		status = code
		if err != nil && code != 0 {
			billed += a.cfg.CostPerLookup
		}
		return r, err
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		if status == 0 && billed == 0 {
			return nil, err
		}
		zap.L().Debug("vendor returned error status",
			zap.String("provider", a.cfg.ID),
			zap.Int("status", status),
			zap.Float64("billed", billed),
			zap.Error(err),
		)
		return &Result{Success: false, Cost: billed, LatencyMs: latency, Error: err.Error()}, nil
	}
	res.Cost += billed
	res.LatencyMs = latency
	return res, nil
}

func (a *HTTPAdapter) post(ctx context.Context, body []byte) (*Result, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, 0, eris.Wrap(err, "provider: build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "provider: %s request", a.cfg.ID)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "provider: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, resilience.NewVendorError(resp.StatusCode, string(raw))
	}

	var parsed httpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "provider: decode response")
	}
	cost := a.cfg.CostPerLookup
	if parsed.Cost != nil {
		cost = *parsed.Cost
	}
	if !parsed.Match {
		return &Result{Success: true, Fields: []FieldValue{}, Cost: cost}, resp.StatusCode, nil
	}
	return &Result{Success: true, Fields: parsed.Fields, Cost: cost}, resp.StatusCode, nil
}

// HealthCheck implements Adapter with a GET to {BaseURL}/health.
func (a *HTTPAdapter) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
