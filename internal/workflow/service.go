// Package workflow hosts the certificate completion workflow. A Service owns
// the collaborators (store, renderer, mailer, archive, event bus); a Workspace
// is one open certificate with its action bar, signature flow and email
// session wired to those collaborators.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/certflow/internal/events"
	"github.com/alfredjeanlab/certflow/internal/idgen"
	"github.com/alfredjeanlab/certflow/internal/mail"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/progress"
	"github.com/alfredjeanlab/certflow/internal/render"
	"github.com/alfredjeanlab/certflow/internal/signing"
	"github.com/alfredjeanlab/certflow/internal/store"
	cfsync "github.com/alfredjeanlab/certflow/internal/sync"
)

const tracerName = "github.com/alfredjeanlab/certflow/internal/workflow"

// Config wires a Service to its collaborators. Store, Renderer and Mailer
// are required; the rest are optional.
type Config struct {
	Store     store.Store
	Publisher events.Publisher
	Renderer  *render.Renderer
	Mailer    mail.Sender
	MailFrom  string
	Archive   cfsync.ObjectStore // nil: documents are rendered on demand only
	Profile   signing.Profile
	Clock     clockwork.Clock
	Logger    *slog.Logger

	// Broadcast, when set, receives every event after it is published.
	Broadcast func(topic string, event any)
}

// Service creates and opens certificates.
type Service struct {
	cfg    Config
	tracer trace.Tracer
}

// NewService returns a Service with defaults filled in.
func NewService(cfg Config) *Service {
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.New(render.WithClock(cfg.Clock))
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.NoopSender{Logger: cfg.Logger}
	}
	return &Service{cfg: cfg, tracer: otel.Tracer(tracerName)}
}

// Profile returns the inspector profile used to seed signature sessions.
func (s *Service) Profile() signing.Profile {
	return s.cfg.Profile
}

// Create stores a new draft certificate. The ID is always generated; a
// number is generated when none is given.
func (s *Service) Create(ctx context.Context, cert *model.Certificate, actor string) (*model.Certificate, error) {
	if err := model.ValidateCertificate(&model.Certificate{Type: cert.Type, Status: model.StatusDraft}); err != nil {
		return nil, err
	}
	id, err := idgen.CertificateID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	cert.ID = id
	if strings.TrimSpace(cert.Number) == "" {
		if cert.Number, err = idgen.CertificateNumber(cert.Type); err != nil {
			return nil, fmt.Errorf("generate number: %w", err)
		}
	}
	cert.Status = model.StatusDraft
	cert.InspectedBy = nil
	cert.AuthorisedBy = nil
	cert.PDFKey = ""
	cert.GeneratedAt = nil
	cert.CreatedBy = actor
	if err := model.ValidateCertificate(cert); err != nil {
		return nil, err
	}
	if err := s.cfg.Store.CreateCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	s.recordAndPublish(ctx, events.TopicCertificateCreated, cert.ID, actor, events.CertificateCreated{Certificate: cert})
	return cert, nil
}

// Get loads a certificate.
func (s *Service) Get(ctx context.Context, id string) (*model.Certificate, error) {
	return s.cfg.Store.GetCertificate(ctx, id)
}

// List returns certificates matching filter and the total match count.
func (s *Service) List(ctx context.Context, filter model.CertificateFilter) ([]*model.Certificate, int, error) {
	return s.cfg.Store.ListCertificates(ctx, filter)
}

// Delete removes a certificate.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.cfg.Store.DeleteCertificate(ctx, id)
}

// Dispatches returns the delivery log of a certificate.
func (s *Service) Dispatches(ctx context.Context, id string) ([]*model.Dispatch, error) {
	return s.cfg.Store.ListDispatches(ctx, id)
}

// Events returns the recorded events of a certificate.
func (s *Service) Events(ctx context.Context, id string) ([]*model.Event, error) {
	return s.cfg.Store.GetEvents(ctx, id)
}

// Document returns the PDF for a certificate: the archived copy when one
// exists, otherwise a fresh render.
func (s *Service) Document(ctx context.Context, id string) ([]byte, *model.Certificate, error) {
	cert, err := s.cfg.Store.GetCertificate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if cert.PDFKey != "" && s.cfg.Archive != nil {
		data, err := s.cfg.Archive.Get(ctx, cert.PDFKey)
		if err == nil {
			return data, cert, nil
		}
		if !errors.Is(err, cfsync.ErrObjectNotFound) {
			s.cfg.Logger.Warn("archived document unavailable, rendering", "certificate_id", id, "err", err)
		}
	}
	data, err := s.cfg.Renderer.Render(cert, progress.Estimate(cert))
	if err != nil {
		return nil, nil, err
	}
	return data, cert, nil
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// Both operations are best-effort; failures are logged but do not block the caller.
func (s *Service) recordAndPublish(ctx context.Context, topic, certID, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.cfg.Logger.Warn("failed to marshal event", "topic", topic, "certificate_id", certID, "error", err)
		return
	}
	if err := s.cfg.Store.RecordEvent(ctx, &model.Event{
		Topic:         topic,
		CertificateID: certID,
		Actor:         actor,
		Payload:       payload,
	}); err != nil {
		s.cfg.Logger.Warn("failed to record event", "topic", topic, "certificate_id", certID, "error", err)
	}
	if err := s.cfg.Publisher.Publish(ctx, topic, event); err != nil {
		s.cfg.Logger.Warn("failed to publish event", "topic", topic, "certificate_id", certID, "error", err)
	}
	if s.cfg.Broadcast != nil {
		s.cfg.Broadcast(topic, event)
	}
}

// track starts a span and returns a function that ends it, recording err.
func (s *Service) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
