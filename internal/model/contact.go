package model

import "time"

// Contact is the lead record being enriched. Only the identifying attributes
// providers can match on are modelled here; the rest of the CRM record lives
// outside this engine.
type Contact struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Company     string    `json:"company,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	LinkedInURL string    `json:"linkedin_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the identity of the contact.
func (c Contact) Validate() error {
	var verr ValidationErrors
	if c.ID == "" {
		verr.Add("id", "required")
	}
	if c.TenantID == "" {
		verr.Add("tenant_id", "required")
	}
	return verr.Err()
}
