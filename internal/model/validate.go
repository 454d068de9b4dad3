package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// NewFieldError returns a *ValidationError carrying a single field failure.
func NewFieldError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateCertificate enforces the structural rules every stored certificate
// meets. Drafts may be incomplete; signatures are checked by the signing
// flow, not here.
func ValidateCertificate(c *Certificate) error {
	var ve ValidationError
	if !c.Type.IsValid() {
		ve.add("type", "invalid value %q", c.Type)
	}
	if !c.Status.IsValid() {
		ve.add("status", "invalid value %q", c.Status)
	}
	if !c.Assessment.IsValid() {
		ve.add("assessment", "invalid value %q", c.Assessment)
	}
	if c.InspectionDate != "" {
		if _, err := time.Parse(time.DateOnly, c.InspectionDate); err != nil {
			ve.add("inspection_date", "must be a YYYY-MM-DD date")
		}
	}
	for i, o := range c.Observations {
		if !o.Code.IsValid() {
			ve.add(fmt.Sprintf("observations[%d].code", i), "invalid value %q", o.Code)
		}
	}
	if c.Status == StatusCompleted && c.GeneratedAt == nil {
		ve.add("generated_at", "is required when status is completed")
	}
	if len(c.Fields) > 0 && !json.Valid(c.Fields) {
		ve.add("fields", "contains invalid JSON")
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
