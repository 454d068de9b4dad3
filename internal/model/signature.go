package model

import "strings"

// SignatureRecord is one signed declaration on a certificate.
// Signature is an opaque encoded image (usually a data URL) or typed text.
type SignatureRecord struct {
	Name         string `json:"name"`
	Signature    string `json:"signature"`
	Company      string `json:"company,omitempty"`
	Position     string `json:"position,omitempty"`
	Address      string `json:"address,omitempty"`
	MembershipNo string `json:"membership_no,omitempty"`
	Date         string `json:"date,omitempty"` // ISO date, YYYY-MM-DD
}

// Valid reports whether the record has a non-blank name and a signature.
// A nil record is never valid.
func (r *SignatureRecord) Valid() bool {
	if r == nil {
		return false
	}
	return strings.TrimSpace(r.Name) != "" && r.Signature != ""
}

// Clone returns a pointer to a copy of r, or nil when r is nil.
func (r *SignatureRecord) Clone() *SignatureRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ValidateSignature reports the fields that keep a record from being valid.
// The field prefix names the record ("inspected_by", "authorised_by").
func ValidateSignature(prefix string, r SignatureRecord) error {
	var ve ValidationError
	if strings.TrimSpace(r.Name) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: prefix + ".name", Message: "is required"})
	}
	if r.Signature == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: prefix + ".signature", Message: "is required"})
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}
