package mail

import (
	"fmt"
	"strings"
)

// CertificateText is the body sent with a certificate. A non-blank custom
// message from the inspector is placed above the standard wording.
func CertificateText(certType, address, company, custom string) string {
	var b strings.Builder
	if msg := strings.TrimSpace(custom); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n\n")
	}
	if address != "" {
		fmt.Fprintf(&b, "Please find attached the %s certificate for %s.\n", certType, address)
	} else {
		fmt.Fprintf(&b, "Please find attached your %s certificate.\n", certType)
	}
	if company != "" {
		fmt.Fprintf(&b, "\nKind regards,\n%s\n", company)
	}
	return b.String()
}
