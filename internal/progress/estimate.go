package progress

import (
	"strings"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// section is one weighted part of the certificate that counts towards completion.
type section struct {
	name   string
	filled func(*model.Certificate) bool
}

var sections = []section{
	{"client", func(c *model.Certificate) bool { return strings.TrimSpace(c.ClientName) != "" }},
	{"address", func(c *model.Certificate) bool { return strings.TrimSpace(c.InstallationAddress) != "" }},
	{"inspection_date", func(c *model.Certificate) bool { return c.InspectionDate != "" }},
	{"circuits", func(c *model.Certificate) bool { return len(c.Circuits) > 0 }},
	{"assessment", func(c *model.Certificate) bool { return c.Assessment != model.AssessmentNone }},
	{"inspected_by", func(c *model.Certificate) bool { return c.InspectedBy.Valid() }},
	{"authorised_by", func(c *model.Certificate) bool { return c.AuthorisedBy.Valid() }},
}

// Estimate derives a completion percentage from which sections of cert are
// filled in. The result is always within [0,100].
func Estimate(cert *model.Certificate) int {
	filled := 0
	for _, s := range sections {
		if s.filled(cert) {
			filled++
		}
	}
	return Clamp(filled * 100 / len(sections))
}

// Missing returns the names of sections not yet filled in, in display order.
func Missing(cert *model.Certificate) []string {
	var out []string
	for _, s := range sections {
		if !s.filled(cert) {
			out = append(out, s.name)
		}
	}
	return out
}

// Clamp bounds p to [0,100].
func Clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
