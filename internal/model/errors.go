package model

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by stores and registries when a keyed record does
// not exist.
var ErrNotFound = eris.New("not found")

// FieldError describes a single invariant violation on an entity.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationErrors collects every invariant violation found while
// constructing an entity. A nil or empty slice means the entity is valid.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (v *ValidationErrors) Add(field, reason string) {
	*v = append(*v, FieldError{Field: field, Reason: reason})
}

// Merge appends all violations of other, prefixing their field names.
func (v *ValidationErrors) Merge(prefix string, other error) {
	if other == nil {
		return
	}
	var ve ValidationErrors
	if !errors.As(other, &ve) {
		v.Add(prefix, other.Error())
		return
	}
	for _, fe := range ve {
		name := fe.Field
		if prefix != "" {
			name = prefix + "." + name
		}
		v.Add(name, fe.Reason)
	}
}

// Err returns v as an error, or nil when there are no violations.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
