// Package progress projects certificate data into the read-only completion
// summary shown above the action bar.
//
// Everything here is a pure function of its input. Summaries are recomputed
// on every request and never stored, so they cannot go stale when the
// certificate changes elsewhere.
package progress

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// Summary is the derived completion summary for one certificate.
// Percentage is trusted as given: callers clamp it to [0,100].
type Summary struct {
	CertificateType  model.CertificateType `json:"certificate_type"`
	Number           string                `json:"number,omitempty"`
	Address          string                `json:"address,omitempty"`
	InspectionDate   string                `json:"inspection_date,omitempty"`
	Assessment       model.Assessment      `json:"assessment,omitempty"`
	Percentage       int                   `json:"percentage"`
	CircuitCount     int                   `json:"circuit_count"`
	ObservationCount int                   `json:"observation_count"`
	C1Count          int                   `json:"c1_count"`
	C2Count          int                   `json:"c2_count"`
	C3Count          int                   `json:"c3_count"`
}

// Summarize builds the summary for cert using the supplied completion
// percentage. cert is not modified.
func Summarize(cert *model.Certificate, percentage int) Summary {
	s := Summary{
		CertificateType:  cert.Type,
		Number:           cert.Number,
		Address:          cert.InstallationAddress,
		InspectionDate:   cert.InspectionDate,
		Assessment:       cert.Assessment,
		Percentage:       percentage,
		CircuitCount:     len(cert.Circuits),
		ObservationCount: len(cert.Observations),
	}
	for _, o := range cert.Observations {
		switch o.Code {
		case model.CodeC1:
			s.C1Count++
		case model.CodeC2:
			s.C2Count++
		case model.CodeC3:
			s.C3Count++
		}
	}
	return s
}

// Line is one display element of a summary.
type Line struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Lines returns the display elements for s. Absent optional fields produce
// no line at all rather than a placeholder.
func Lines(s Summary) []Line {
	lines := []Line{
		{Label: "Certificate", Value: s.CertificateType.String()},
		{Label: "Complete", Value: fmt.Sprintf("%d%%", s.Percentage)},
	}
	if s.Number != "" {
		lines = append(lines, Line{Label: "Number", Value: s.Number})
	}
	if s.Address != "" {
		lines = append(lines, Line{Label: "Address", Value: s.Address})
	}
	if s.InspectionDate != "" {
		lines = append(lines, Line{Label: "Inspected", Value: s.InspectionDate})
	}
	if s.Assessment != model.AssessmentNone {
		lines = append(lines, Line{Label: "Assessment", Value: strings.ToUpper(string(s.Assessment))})
	}
	if s.CircuitCount > 0 {
		lines = append(lines, Line{Label: "Circuits", Value: fmt.Sprintf("%d", s.CircuitCount)})
	}
	if s.ObservationCount > 0 {
		lines = append(lines, Line{
			Label: "Observations",
			Value: fmt.Sprintf("%d (C1: %d, C2: %d, C3: %d)", s.ObservationCount, s.C1Count, s.C2Count, s.C3Count),
		})
	}
	return lines
}
