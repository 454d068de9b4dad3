// Package idgen generates certificate identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// CertificatePrefix is prepended to every certificate ID.
const CertificatePrefix = "cert-"

// Alphabet defines the character set used for the random portion of an ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters in an ID (excluding the prefix).
const Length = 10

// numberAlphabet avoids characters that are easily misread on paper.
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// numberLength is the number of random characters in a certificate number.
const numberLength = 6

// CertificateID returns a new certificate ID such as "cert-V1StGXR8Z5".
func CertificateID() (string, error) {
	return WithPrefix(CertificatePrefix)
}

// WithPrefix returns a new ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// CertificateNumber returns a human-facing reference printed on the
// document, such as "EICR-7KQ2MX".
func CertificateNumber(t model.CertificateType) (string, error) {
	n, err := nanoid.Generate(numberAlphabet, numberLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return t.String() + "-" + n, nil
}
