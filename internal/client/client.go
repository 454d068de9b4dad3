// Package client provides a transport-agnostic interface for the certflow
// service and an HTTP/JSON implementation that talks to the certflow REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/presence"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/workflow"
)

// CertClient is the interface the cf CLI commands use to communicate with the
// certflow server. It is implemented by HTTPClient.
type CertClient interface {
	// Certificates
	CreateCertificate(ctx context.Context, cert *model.Certificate) (*model.Certificate, error)
	GetCertificate(ctx context.Context, id string) (*model.Certificate, error)
	ListCertificates(ctx context.Context, req *ListCertificatesRequest) (*ListCertificatesResponse, error)
	EditCertificate(ctx context.Context, cert *model.Certificate) (*workflow.Status, error)
	DeleteCertificate(ctx context.Context, id string) error

	// Workspace
	Status(ctx context.Context, id string) (*workflow.Status, error)
	Save(ctx context.Context, id string) (*workflow.Status, error)
	Generate(ctx context.Context, id string) (*workflow.Status, error)
	CopyJSON(ctx context.Context, id string) ([]byte, error)
	Document(ctx context.Context, id string) (*Document, error)
	CloseWorkspace(ctx context.Context, id string) (bool, error)
	Workspaces(ctx context.Context) ([]presence.Entry, error)

	// Signing
	Signing(ctx context.Context, id string) (*signing.Snapshot, error)
	OpenSigning(ctx context.Context, id string) (*signing.Snapshot, error)
	ApplySigning(ctx context.Context, id string, p signing.Patch) (*signing.Snapshot, error)
	UseSavedSignature(ctx context.Context, id string) (*signing.Snapshot, error)
	ClearSignature(ctx context.Context, id string) (*signing.Snapshot, error)
	SameAsInspected(ctx context.Context, id string, on bool) (*signing.Snapshot, error)
	NextSigningStep(ctx context.Context, id string) (*signing.Snapshot, error)
	PrevSigningStep(ctx context.Context, id string) (*signing.Snapshot, error)
	FinishSigning(ctx context.Context, id string) (*FinishSigningResponse, error)
	CloseSigning(ctx context.Context, id string) (*signing.Snapshot, error)

	// Email
	Email(ctx context.Context, id string) (*dispatch.State, error)
	OpenEmail(ctx context.Context, id string) (*dispatch.State, error)
	EditEmail(ctx context.Context, id string, req *EditEmailRequest) (*dispatch.State, error)
	SendEmail(ctx context.Context, id string) (*dispatch.State, error)
	CloseEmail(ctx context.Context, id string) (*dispatch.State, error)

	// History
	Dispatches(ctx context.Context, id string) ([]*model.Dispatch, error)
	Events(ctx context.Context, id string) ([]*model.Event, error)

	// Health
	Health(ctx context.Context) (string, error)

	Close() error
}

// ListCertificatesRequest holds the filters for listing certificates.
type ListCertificatesRequest struct {
	Status []string
	Type   []string
	Search string
	Limit  int
	Offset int
}

// ListCertificatesResponse is one page of certificates plus the total count.
type ListCertificatesResponse struct {
	Certificates []*model.Certificate `json:"certificates"`
	Total        int                  `json:"total"`
}

// EditEmailRequest is a partial edit of the email form. Nil fields are left
// alone.
type EditEmailRequest struct {
	Recipient *string `json:"recipient,omitempty"`
	CC        *string `json:"cc,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// FinishSigningResponse carries the completed signatures and the refreshed
// workspace status.
type FinishSigningResponse struct {
	Signatures signing.Pair    `json:"signatures"`
	Status     workflow.Status `json:"status"`
}

// Document is a downloaded certificate PDF.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}
