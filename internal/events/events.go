package events

import (
	"context"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// Event topic constants
const (
	TopicCertificateCreated = "certs.certificate.created"
	TopicDraftSaved         = "certs.draft.saved"
	TopicDocumentGenerated  = "certs.document.generated"
	TopicSignaturesDone     = "certs.signatures.completed"
	TopicDispatchSent       = "certs.dispatch.sent"
	TopicDispatchFailed     = "certs.dispatch.failed"

	// TopicAll matches every certificate event.
	TopicAll = "certs.>"
)

// Event types

type CertificateCreated struct {
	Certificate *model.Certificate `json:"certificate"`
}

type DraftSaved struct {
	CertificateID string `json:"certificate_id"`
	Percentage    int    `json:"percentage"`
}

type DocumentGenerated struct {
	CertificateID string `json:"certificate_id"`
	PDFKey        string `json:"pdf_key,omitempty"`
	Bytes         int    `json:"bytes"`
}

type SignaturesCompleted struct {
	CertificateID string                `json:"certificate_id"`
	InspectedBy   model.SignatureRecord `json:"inspected_by"`
	AuthorisedBy  model.SignatureRecord `json:"authorised_by"`
}

type DispatchSent struct {
	Dispatch *model.Dispatch `json:"dispatch"`
}

type DispatchFailed struct {
	Dispatch *model.Dispatch `json:"dispatch"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Ref is implemented by events that belong to one certificate. Publishers
// carry the ID in the CertificateHeader so subscribers can filter without
// decoding the payload.
type Ref interface {
	CertificateRef() string
}

func (e CertificateCreated) CertificateRef() string {
	if e.Certificate == nil {
		return ""
	}
	return e.Certificate.ID
}

func (e DraftSaved) CertificateRef() string          { return e.CertificateID }
func (e DocumentGenerated) CertificateRef() string   { return e.CertificateID }
func (e SignaturesCompleted) CertificateRef() string { return e.CertificateID }

func (e DispatchSent) CertificateRef() string {
	if e.Dispatch == nil {
		return ""
	}
	return e.Dispatch.CertificateID
}

func (e DispatchFailed) CertificateRef() string {
	if e.Dispatch == nil {
		return ""
	}
	return e.Dispatch.CertificateID
}
