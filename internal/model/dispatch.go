package model

import "time"

// DispatchStatus is the state of an email dispatch session.
type DispatchStatus string

const (
	DispatchIdle    DispatchStatus = "idle"
	DispatchSending DispatchStatus = "sending"
	DispatchSuccess DispatchStatus = "success"
	DispatchError   DispatchStatus = "error"
)

// String returns the string representation of the dispatch status.
func (s DispatchStatus) String() string {
	return string(s)
}

// Dispatch is a persisted log row for one delivery attempt.
type Dispatch struct {
	ID            int64     `json:"id"`
	CertificateID string    `json:"certificate_id"`
	Recipient     string    `json:"recipient"`
	CC            []string  `json:"cc,omitempty"`
	Subject       string    `json:"subject"`
	MessageID     string    `json:"message_id,omitempty"`
	Succeeded     bool      `json:"succeeded"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
