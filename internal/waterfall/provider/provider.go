// Package provider defines the enrichment vendor adapter contract, the
// provider registry and the bundled adapters.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// ErrTimeout is returned by Invoke when an adapter exceeds its timeout.
var ErrTimeout = eris.New("provider: call timed out")

// Request carries the known contact attributes sent to a vendor.
type Request struct {
	TenantID    string   `json:"-"`
	ContactID   string   `json:"-"`
	Fields      []string `json:"fields"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Company     string   `json:"company,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	LinkedInURL string   `json:"linkedin_url,omitempty"`
}

// NewRequest builds a request for the given fields from a contact record.
func NewRequest(c model.Contact, fields ...string) Request {
	return Request{
		TenantID:    c.TenantID,
		ContactID:   c.ID,
		Fields:      fields,
		Email:       c.Email,
		Phone:       c.Phone,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Company:     c.Company,
		Domain:      c.Domain,
		LinkedInURL: c.LinkedInURL,
	}
}

// FieldValue is a single field returned by a vendor.
type FieldValue struct {
	Field      string  `json:"field"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Result is the normalized response of one adapter call. Cost is what the
// vendor charged for the call, successful or not.
type Result struct {
	Success   bool         `json:"success"`
	Fields    []FieldValue `json:"fields,omitempty"`
	Cost      float64      `json:"cost"`
	LatencyMs int64        `json:"latency_ms"`
	Error     string       `json:"error,omitempty"`
}

// Field returns the value for name, if the vendor returned one.
func (r *Result) Field(name string) (FieldValue, bool) {
	if r == nil {
		return FieldValue{}, false
	}
	for _, f := range r.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldValue{}, false
}

// Adapter is implemented by every enrichment vendor integration.
type Adapter interface {
	// ID matches the EnrichmentProvider id in the catalog.
	ID() string
	// SupportedFields lists the fields the vendor can return.
	SupportedFields() []string
	// Enrich performs one lookup. Vendor-level failures are reported as
	// Result{Success: false}; an error means the call could not be made.
	Enrich(ctx context.Context, req Request) (*Result, error)
	// HealthCheck probes the vendor without spending lookup budget.
	HealthCheck(ctx context.Context) bool
}
