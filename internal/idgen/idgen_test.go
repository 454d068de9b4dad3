package idgen

import (
	"regexp"
	"testing"

	"github.com/alfredjeanlab/certflow/internal/model"
)

func TestCertificateID(t *testing.T) {
	pattern := regexp.MustCompile(`^cert-[a-zA-Z0-9]{10}$`)
	for i := 0; i < 100; i++ {
		id, err := CertificateID()
		if err != nil {
			t.Fatalf("CertificateID() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("CertificateID() = %q, does not match %s", id, pattern)
		}
	}
}

func TestCertificateID_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := CertificateID()
		if err != nil {
			t.Fatalf("CertificateID() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestWithPrefix(t *testing.T) {
	id, err := WithPrefix("msg-")
	if err != nil {
		t.Fatalf("WithPrefix error: %v", err)
	}
	if len(id) != len("msg-")+Length || id[:4] != "msg-" {
		t.Errorf("WithPrefix(%q) = %q", "msg-", id)
	}
}

func TestCertificateNumber(t *testing.T) {
	for _, tc := range []struct {
		typ     model.CertificateType
		pattern string
	}{
		{model.TypeEICR, `^EICR-[A-HJ-NP-Z2-9]{6}$`},
		{model.TypeEIC, `^EIC-[A-HJ-NP-Z2-9]{6}$`},
	} {
		n, err := CertificateNumber(tc.typ)
		if err != nil {
			t.Fatalf("CertificateNumber(%s) error: %v", tc.typ, err)
		}
		if !regexp.MustCompile(tc.pattern).MatchString(n) {
			t.Errorf("CertificateNumber(%s) = %q, does not match %s", tc.typ, n, tc.pattern)
		}
	}
}
