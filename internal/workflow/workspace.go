package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alfredjeanlab/certflow/internal/actionbar"
	"github.com/alfredjeanlab/certflow/internal/dispatch"
	"github.com/alfredjeanlab/certflow/internal/events"
	"github.com/alfredjeanlab/certflow/internal/mail"
	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/progress"
	"github.com/alfredjeanlab/certflow/internal/render"
	"github.com/alfredjeanlab/certflow/internal/signing"
	cfsync "github.com/alfredjeanlab/certflow/internal/sync"
	"github.com/alfredjeanlab/certflow/internal/store"
)

// Gate reasons shown when Generate and Email are disabled.
const (
	ReasonBothSignatures      = "Inspector and authoriser signatures required"
	ReasonInspectorSignature  = "Inspector signature required"
	ReasonAuthoriserSignature = "Authoriser signature required"
)

// SaveBeforeEmailFailure is the send error shown when the report could not
// be saved ahead of emailing.
const SaveBeforeEmailFailure = "Failed to save report before emailing. Please try again."

// ErrWorkspaceClosed is returned by operations on a closed workspace.
var ErrWorkspaceClosed = errors.New("workspace is closed")

// GateReason explains why a certificate cannot be generated yet, or returns
// "" when it can.
func GateReason(cert *model.Certificate) string {
	switch {
	case !cert.InspectedBy.Valid() && !cert.AuthorisedBy.Valid():
		return ReasonBothSignatures
	case !cert.InspectedBy.Valid():
		return ReasonInspectorSignature
	case !cert.AuthorisedBy.Valid():
		return ReasonAuthoriserSignature
	}
	return ""
}

// Status is everything a client needs to render an open certificate.
type Status struct {
	CertificateID string             `json:"certificate_id"`
	Summary       progress.Summary   `json:"summary"`
	Lines         []progress.Line    `json:"lines"`
	Missing       []string           `json:"missing,omitempty"`
	Actions       actionbar.View     `json:"actions"`
	Signing       signing.Snapshot   `json:"signing"`
	Dispatch      dispatch.State     `json:"dispatch"`
	LastError     string             `json:"last_error,omitempty"`
	Certificate   *model.Certificate `json:"certificate"`
}

// Workspace is one open certificate. The working copy is the host's
// canonical record while the workspace is open; Save persists it.
type Workspace struct {
	svc   *Service
	id    string
	actor string

	bar  *actionbar.Bar
	flow *signing.Flow
	mail *dispatch.Session

	mu         sync.Mutex
	draft      *model.Certificate
	generating bool
	complete   bool
	sigDirty   bool
	lastErr    string
	copied     []byte
	closed     bool

	wg sync.WaitGroup
}

// Open loads a certificate into a new workspace.
func (s *Service) Open(ctx context.Context, id, actor string) (*Workspace, error) {
	cert, err := s.cfg.Store.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	w := &Workspace{svc: s, id: id, actor: actor, draft: cert}
	w.bar = actionbar.New(actionbar.Host{
		Generate: w.generateDocument,
		Email:    w.openEmail,
		Save:     w.saveDraft,
		CopyJSON: w.copyJSON,
	}, s.cfg.Clock)
	w.flow = signing.NewFlow(s.cfg.Profile, w.signaturesCompleted, signing.WithClock(s.cfg.Clock))
	w.mail = dispatch.NewSession(w.sendCertificate, w.emailClosed,
		dispatch.WithClock(s.cfg.Clock), dispatch.WithLogger(s.cfg.Logger))

	w.mu.Lock()
	w.refreshLocked()
	w.mu.Unlock()
	return w, nil
}

// ID returns the certificate ID.
func (w *Workspace) ID() string { return w.id }

// Status returns the derived view of the workspace.
func (w *Workspace) Status() Status {
	w.mu.Lock()
	cert := cloneCertificate(w.draft)
	lastErr := w.lastErr
	w.mu.Unlock()

	pct := progress.Estimate(cert)
	summary := progress.Summarize(cert, pct)
	return Status{
		CertificateID: w.id,
		Summary:       summary,
		Lines:         progress.Lines(summary),
		Missing:       progress.Missing(cert),
		Actions:       w.bar.View(),
		Signing:       w.flow.Snapshot(),
		Dispatch:      w.mail.State(),
		LastError:     lastErr,
		Certificate:   cert,
	}
}

// Edit replaces the form fields of the working copy. Identity, signatures
// and generation state are kept; signatures only change through the flow.
func (w *Workspace) Edit(cert *model.Certificate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkspaceClosed
	}
	next := cloneCertificate(cert)
	next.ID = w.draft.ID
	next.Status = w.draft.Status
	next.InspectedBy = w.draft.InspectedBy
	next.AuthorisedBy = w.draft.AuthorisedBy
	next.PDFKey = w.draft.PDFKey
	next.GeneratedAt = w.draft.GeneratedAt
	next.CreatedAt = w.draft.CreatedAt
	next.CreatedBy = w.draft.CreatedBy
	next.UpdatedAt = w.draft.UpdatedAt
	if err := model.ValidateCertificate(next); err != nil {
		return err
	}
	w.draft = next
	w.complete = false
	w.refreshLocked()
	return nil
}

// Save persists the working copy.
func (w *Workspace) Save(ctx context.Context) error {
	return w.bar.Save(ctx)
}

// Generate starts rendering the certificate document. It returns once the
// work is under way; Wait blocks until it finishes.
func (w *Workspace) Generate(ctx context.Context) error {
	return w.bar.Generate(ctx)
}

// CopyJSON returns the working copy as indented JSON.
func (w *Workspace) CopyJSON(ctx context.Context) ([]byte, error) {
	if err := w.bar.CopyJSON(ctx); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.copied, nil
}

// Wait blocks until background generation and sends have finished.
func (w *Workspace) Wait() {
	w.wg.Wait()
	w.mail.Wait()
}

// Close tears down the workspace's components and cancels their timers.
// Work already started runs to completion.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.bar.Close()
	w.flow.Close()
	w.mail.Close()
}

// refreshLocked pushes the derived gate into the action bar.
func (w *Workspace) refreshLocked() {
	reason := GateReason(w.draft)
	w.bar.Update(actionbar.Flags{
		CanGenerate:    reason == "",
		IsGenerating:   w.generating,
		IsComplete:     w.complete,
		DisabledReason: reason,
	})
}

// saveDraft persists the working copy and any signatures that were captured
// but not yet written. It also runs for a closed workspace so a send that
// outlives the workspace still saves first.
func (w *Workspace) saveDraft(ctx context.Context) error {
	w.mu.Lock()
	cert := cloneCertificate(w.draft)
	sigDirty := w.sigDirty
	w.mu.Unlock()

	err := w.svc.cfg.Store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.UpdateCertificate(ctx, cert); err != nil {
			return err
		}
		if sigDirty && cert.InspectedBy != nil && cert.AuthorisedBy != nil {
			return tx.SaveSignatures(ctx, cert.ID, *cert.InspectedBy, *cert.AuthorisedBy)
		}
		return nil
	})
	if err != nil {
		w.setError(err)
		return fmt.Errorf("save %s: %w", w.id, err)
	}

	w.mu.Lock()
	w.draft.UpdatedAt = cert.UpdatedAt
	if sigDirty {
		w.sigDirty = false
	}
	w.lastErr = ""
	w.mu.Unlock()

	w.svc.recordAndPublish(ctx, events.TopicDraftSaved, w.id, w.actor,
		events.DraftSaved{CertificateID: w.id, Percentage: progress.Estimate(cert)})
	return nil
}

// generateDocument flips isGenerating on and renders in the background. The
// rendering is detached from ctx so an abandoned request does not abort it.
func (w *Workspace) generateDocument(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWorkspaceClosed
	}
	if w.generating {
		w.mu.Unlock()
		return actionbar.ErrDisabled
	}
	// Lower isComplete so this run's completion is a fresh rising edge.
	w.generating = true
	w.complete = false
	w.lastErr = ""
	w.refreshLocked()
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := w.generate(context.WithoutCancel(ctx))

		w.mu.Lock()
		defer w.mu.Unlock()
		w.generating = false
		if err != nil {
			w.lastErr = err.Error()
			w.svc.cfg.Logger.Error("certificate generation failed", "certificate_id", w.id, "err", err)
		} else {
			w.complete = true
		}
		w.refreshLocked()
	}()
	return nil
}

func (w *Workspace) generate(ctx context.Context) (err error) {
	ctx, end := w.svc.track(ctx, "workflow.generate", attribute.String("certificate.id", w.id))
	defer func() { end(err) }()

	if err := w.saveDraft(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	cert := cloneCertificate(w.draft)
	w.mu.Unlock()

	pdf, err := w.svc.cfg.Renderer.Render(cert, progress.Estimate(cert))
	if err != nil {
		return err
	}

	var key string
	if w.svc.cfg.Archive != nil {
		key = cfsync.DocumentKey(w.id)
		if err := w.svc.cfg.Archive.Put(ctx, key, render.ContentType, pdf); err != nil {
			w.svc.cfg.Logger.Warn("archive document failed", "certificate_id", w.id, "err", err)
			key = ""
		}
	}

	at := w.svc.cfg.Clock.Now().UTC()
	if err := w.svc.cfg.Store.MarkGenerated(ctx, w.id, key, at); err != nil {
		return fmt.Errorf("mark generated: %w", err)
	}
	w.mu.Lock()
	w.draft.Status = model.StatusCompleted
	w.draft.PDFKey = key
	w.draft.GeneratedAt = &at
	w.mu.Unlock()

	w.svc.recordAndPublish(ctx, events.TopicDocumentGenerated, w.id, w.actor,
		events.DocumentGenerated{CertificateID: w.id, PDFKey: key, Bytes: len(pdf)})
	w.svc.cfg.Logger.Info("certificate generated", "certificate_id", w.id, "bytes", len(pdf), "pdf_key", key)
	return nil
}

func (w *Workspace) copyJSON(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	data, err := json.MarshalIndent(w.draft, "", "  ")
	if err != nil {
		return err
	}
	w.copied = data
	return nil
}

func (w *Workspace) setError(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
}

// Signature capture

// OpenSigning starts a signature session seeded from the working copy.
func (w *Workspace) OpenSigning() (signing.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return signing.Snapshot{}, ErrWorkspaceClosed
	}
	return w.flow.Open(w.draft.InspectedBy.Clone(), w.draft.AuthorisedBy.Clone()), nil
}

// Signing exposes the flow for edits and step changes.
func (w *Workspace) Signing() *signing.Flow { return w.flow }

// FinishSigning completes the flow and writes both records in one store
// call. The working copy is updated even when the write fails; the next
// Save retries it.
func (w *Workspace) FinishSigning(ctx context.Context) (signing.Pair, error) {
	pair, err := w.flow.Finish()
	if err != nil {
		return signing.Pair{}, err
	}
	if err := w.persistSignatures(ctx, pair); err != nil {
		return pair, err
	}
	return pair, nil
}

// signaturesCompleted is the flow's completion callback: the pair becomes
// the canonical value and the gate is recomputed.
func (w *Workspace) signaturesCompleted(p signing.Pair) {
	w.mu.Lock()
	defer w.mu.Unlock()
	in, auth := p.InspectedBy, p.AuthorisedBy
	w.draft.InspectedBy = &in
	w.draft.AuthorisedBy = &auth
	w.sigDirty = true
	w.complete = false
	w.refreshLocked()
}

func (w *Workspace) persistSignatures(ctx context.Context, p signing.Pair) error {
	err := w.svc.cfg.Store.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.SaveSignatures(ctx, w.id, p.InspectedBy, p.AuthorisedBy)
	})
	if err != nil {
		w.setError(err)
		return fmt.Errorf("save signatures %s: %w", w.id, err)
	}
	w.mu.Lock()
	w.sigDirty = false
	w.mu.Unlock()
	w.svc.recordAndPublish(ctx, events.TopicSignaturesDone, w.id, w.actor, events.SignaturesCompleted{
		CertificateID: w.id,
		InspectedBy:   p.InspectedBy,
		AuthorisedBy:  p.AuthorisedBy,
	})
	return nil
}

// Email dispatch

// OpenEmail opens the email surface through the action bar, so it is only
// available when the certificate can be generated.
func (w *Workspace) OpenEmail(ctx context.Context) (dispatch.State, error) {
	if err := w.bar.Email(ctx); err != nil {
		return dispatch.State{}, err
	}
	return w.mail.State(), nil
}

// Email exposes the dispatch session for edits, Send and Close.
func (w *Workspace) Email() *dispatch.Session { return w.mail }

func (w *Workspace) openEmail(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkspaceClosed
	}
	w.mail.Open(w.draft.ClientEmail)
	return nil
}

func (w *Workspace) emailClosed() {
	w.svc.cfg.Logger.Debug("email surface closed", "certificate_id", w.id)
}

// sendCertificate is the dispatch session's sender. The report is saved
// before anything is mailed.
func (w *Workspace) sendCertificate(ctx context.Context, req dispatch.Request) (err error) {
	ctx, end := w.svc.track(ctx, "workflow.send",
		attribute.String("certificate.id", w.id),
		attribute.Int("mail.cc", len(req.CC)),
	)
	defer func() { end(err) }()

	if err := w.saveDraft(ctx); err != nil {
		w.svc.cfg.Logger.Warn("save before email failed", "certificate_id", w.id, "err", err)
		return errors.New(SaveBeforeEmailFailure)
	}

	w.mu.Lock()
	cert := cloneCertificate(w.draft)
	w.mu.Unlock()

	subject := dispatch.Subject(cert.Type, cert.InstallationAddress)
	rec := &model.Dispatch{
		CertificateID: w.id,
		Recipient:     req.Recipient,
		CC:            req.CC,
		Subject:       subject,
	}
	defer func() {
		rec.Succeeded = err == nil
		if err != nil {
			rec.Error = err.Error()
		}
		if rerr := w.svc.cfg.Store.RecordDispatch(ctx, rec); rerr != nil {
			w.svc.cfg.Logger.Warn("failed to record dispatch", "certificate_id", w.id, "err", rerr)
		}
		topic := events.TopicDispatchSent
		var event any = events.DispatchSent{Dispatch: rec}
		if err != nil {
			topic = events.TopicDispatchFailed
			event = events.DispatchFailed{Dispatch: rec}
		}
		w.svc.recordAndPublish(ctx, topic, w.id, w.actor, event)
	}()

	pdf, err := w.svc.cfg.Renderer.Render(cert, progress.Estimate(cert))
	if err != nil {
		return err
	}
	id, err := w.svc.cfg.Mailer.Send(ctx, &mail.Message{
		From:    w.svc.cfg.MailFrom,
		To:      req.Recipient,
		CC:      req.CC,
		Subject: subject,
		Text:    mail.CertificateText(cert.Type.String(), cert.InstallationAddress, cert.CompanyName, req.Message),
		Attachments: []mail.Attachment{{
			Filename:    render.Filename(cert),
			ContentType: render.ContentType,
			Data:        pdf,
		}},
	})
	if err != nil {
		return err
	}
	rec.MessageID = id
	return nil
}

func cloneCertificate(c *model.Certificate) *model.Certificate {
	out := *c
	out.Circuits = append([]model.Circuit(nil), c.Circuits...)
	out.Observations = append([]model.Observation(nil), c.Observations...)
	out.InspectedBy = c.InspectedBy.Clone()
	out.AuthorisedBy = c.AuthorisedBy.Clone()
	out.Fields = append([]byte(nil), c.Fields...)
	return &out
}
