package model

import (
	"encoding/json"
	"time"
)

// CertificateType identifies the certificate form being completed.
type CertificateType string

const (
	TypeEICR CertificateType = "EICR"
	TypeEIC  CertificateType = "EIC"
)

// String returns the string representation of the certificate type.
func (t CertificateType) String() string {
	return string(t)
}

// IsValid checks whether the certificate type is a known value.
func (t CertificateType) IsValid() bool {
	switch t {
	case TypeEICR, TypeEIC:
		return true
	}
	return false
}

// Assessment is the overall verdict recorded on the certificate.
// The empty value means no verdict has been chosen yet.
type Assessment string

const (
	AssessmentNone           Assessment = ""
	AssessmentSatisfactory   Assessment = "satisfactory"
	AssessmentUnsatisfactory Assessment = "unsatisfactory"
)

// IsValid reports whether the assessment is empty or a known verdict.
func (a Assessment) IsValid() bool {
	switch a {
	case AssessmentNone, AssessmentSatisfactory, AssessmentUnsatisfactory:
		return true
	}
	return false
}

// Status is the lifecycle state of a certificate record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusCompleted:
		return true
	}
	return false
}

// ObservationCode classifies a defect observation.
type ObservationCode string

const (
	CodeC1 ObservationCode = "C1" // danger present
	CodeC2 ObservationCode = "C2" // potentially dangerous
	CodeC3 ObservationCode = "C3" // improvement recommended
	CodeFI ObservationCode = "FI" // further investigation
)

// IsValid checks whether the observation code is a known value.
func (c ObservationCode) IsValid() bool {
	switch c {
	case CodeC1, CodeC2, CodeC3, CodeFI:
		return true
	}
	return false
}

// Circuit is one row of the schedule of tests.
type Circuit struct {
	Number      string `json:"number"`
	Designation string `json:"designation,omitempty"`
	Description string `json:"description,omitempty"`
}

// Observation is a defect or recommendation raised during inspection.
type Observation struct {
	Code        ObservationCode `json:"code"`
	Item        string          `json:"item,omitempty"`
	Description string          `json:"description"`
	Location    string          `json:"location,omitempty"`
}

// Certificate is the host's canonical certificate record.
// Form fields the workflow does not interpret travel in Fields untouched.
type Certificate struct {
	ID                  string           `json:"id"`
	Type                CertificateType  `json:"type"`
	Number              string           `json:"number,omitempty"`
	ClientName          string           `json:"client_name,omitempty"`
	ClientEmail         string           `json:"client_email,omitempty"`
	InstallationAddress string           `json:"installation_address,omitempty"`
	InspectionDate      string           `json:"inspection_date,omitempty"`
	Assessment          Assessment       `json:"assessment,omitempty"`
	CompanyName         string           `json:"company_name,omitempty"`
	Circuits            []Circuit        `json:"circuits,omitempty"`
	Observations        []Observation    `json:"observations,omitempty"`
	InspectedBy         *SignatureRecord `json:"inspected_by,omitempty"`
	AuthorisedBy        *SignatureRecord `json:"authorised_by,omitempty"`
	Status              Status           `json:"status"`
	PDFKey              string           `json:"pdf_key,omitempty"`
	GeneratedAt         *time.Time       `json:"generated_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	CreatedBy           string           `json:"created_by,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`
	Fields              json.RawMessage  `json:"fields,omitempty"`
}

// Signed reports whether both signature records are present and valid.
func (c *Certificate) Signed() bool {
	return c.InspectedBy.Valid() && c.AuthorisedBy.Valid()
}

// CertificateFilter holds criteria for listing certificates.
type CertificateFilter struct {
	Status []Status          `json:"status,omitempty"`
	Type   []CertificateType `json:"type,omitempty"`
	Search string            `json:"search,omitempty"` // matches number, client name or address
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}
