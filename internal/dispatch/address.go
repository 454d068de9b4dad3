package dispatch

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// IsValidEmail reports whether s has the shape local@domain.tld: no
// whitespace, exactly one '@', and a '.' after the '@' with non-empty labels
// on either side of it.
func IsValidEmail(s string) bool {
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// ParseCC splits a comma separated list, trims each entry and keeps the
// valid addresses. Invalid entries are dropped silently. It returns nil when
// nothing valid remains.
func ParseCC(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		addr := strings.TrimSpace(part)
		if IsValidEmail(addr) {
			out = append(out, addr)
		}
	}
	return out
}

// FallbackSubjectPlace is used in the subject when the address is unknown.
const FallbackSubjectPlace = "Electrical Installation"

// Subject derives the outgoing subject line from the certificate type and
// installation address.
func Subject(t model.CertificateType, address string) string {
	place := strings.Join(strings.Fields(address), " ")
	if place == "" {
		place = FallbackSubjectPlace
	}
	name := t.String()
	if name == "" {
		name = "Electrical"
	}
	return fmt.Sprintf("%s Certificate - %s", name, place)
}
