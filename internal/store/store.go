package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// Store defines the persistence interface for certificates. Lookups of a
// missing record return sql.ErrNoRows.
type Store interface {
	// Certificate CRUD
	CreateCertificate(ctx context.Context, cert *model.Certificate) error
	GetCertificate(ctx context.Context, id string) (*model.Certificate, error)
	ListCertificates(ctx context.Context, filter model.CertificateFilter) ([]*model.Certificate, int, error) // returns certificates, total count, error
	UpdateCertificate(ctx context.Context, cert *model.Certificate) error
	DeleteCertificate(ctx context.Context, id string) error

	// SaveSignatures writes both signature records in one statement.
	SaveSignatures(ctx context.Context, id string, inspectedBy, authorisedBy model.SignatureRecord) error
	// MarkGenerated records a rendered document and completes the certificate.
	MarkGenerated(ctx context.Context, id, pdfKey string, at time.Time) error

	// Dispatch log
	RecordDispatch(ctx context.Context, d *model.Dispatch) error
	ListDispatches(ctx context.Context, certificateID string) ([]*model.Dispatch, error)

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, certificateID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
