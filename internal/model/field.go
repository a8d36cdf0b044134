package model

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Enrichable contact fields.
const (
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldIndustry    = "industry"
	FieldLinkedInURL = "linkedin_url"
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldDomain      = "domain"
	FieldLocation    = "location"
	FieldCompanySize = "company_size"
	FieldSeniority   = "seniority"
)

var knownFields = map[string]bool{
	FieldEmail:       true,
	FieldPhone:       true,
	FieldTitle:       true,
	FieldCompany:     true,
	FieldIndustry:    true,
	FieldLinkedInURL: true,
	FieldFirstName:   true,
	FieldLastName:    true,
	FieldDomain:      true,
	FieldLocation:    true,
	FieldCompanySize: true,
	FieldSeniority:   true,
}

// IsKnownField reports whether name is an enrichable contact field.
func IsKnownField(name string) bool {
	return knownFields[name]
}

// KnownFields returns the enrichable field names in sorted order.
func KnownFields() []string {
	out := make([]string, 0, len(knownFields))
	for f := range knownFields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// NormalizeFields lowercases, trims and de-duplicates requested field names,
// preserving first-seen order. Unknown or empty names are reported as
// validation errors.
func NormalizeFields(fields []string) ([]string, error) {
	var verr ValidationErrors
	if len(fields) == 0 {
		verr.Add("fields", "at least one field is required")
		return nil, verr
	}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		name := strings.ToLower(strings.TrimSpace(f))
		if name == "" {
			verr.Add("fields", "empty field name")
			continue
		}
		if !IsKnownField(name) {
			verr.Add("fields", "unknown field "+name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var folder = cases.Fold()

// NormalizeValue canonicalises a provider-supplied value for storage:
// strings are NFC-normalised and trimmed, emails and domains are case-folded.
func NormalizeValue(field string, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	s = strings.TrimSpace(norm.NFC.String(s))
	switch field {
	case FieldEmail, FieldDomain:
		s = folder.String(s)
	case FieldLinkedInURL:
		s = strings.TrimSuffix(s, "/")
	}
	return s
}
