// Package memory is an in-process Store used for local runs without a
// database and as the fixture behind package tests.
package memory

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
	"github.com/alfredjeanlab/certflow/internal/store"
)

// Store keeps certificates, dispatches and events in maps guarded by a mutex.
// Records are copied on the way in and out so callers cannot alias them.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	certificates map[string]*model.Certificate
	dispatches   []*model.Dispatch
	events       []*model.Event
	nextID       int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		certificates: make(map[string]*model.Certificate),
	}
}

func clone(c *model.Certificate) *model.Certificate {
	out := *c
	out.Circuits = slices.Clone(c.Circuits)
	out.Observations = slices.Clone(c.Observations)
	out.InspectedBy = c.InspectedBy.Clone()
	out.AuthorisedBy = c.AuthorisedBy.Clone()
	if c.GeneratedAt != nil {
		t := *c.GeneratedAt
		out.GeneratedAt = &t
	}
	out.Fields = slices.Clone(c.Fields)
	return &out
}

func (s *Store) CreateCertificate(_ context.Context, cert *model.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	cert.UpdatedAt = now
	s.certificates[cert.ID] = clone(cert)
	return nil
}

func (s *Store) GetCertificate(_ context.Context, id string) (*model.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certificates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clone(c), nil
}

func (s *Store) ListCertificates(_ context.Context, f model.CertificateFilter) ([]*model.Certificate, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(f.Search)
	var matched []*model.Certificate
	for _, c := range s.certificates {
		if len(f.Status) > 0 && !slices.Contains(f.Status, c.Status) {
			continue
		}
		if len(f.Type) > 0 && !slices.Contains(f.Type, c.Type) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Number), search) &&
			!strings.Contains(strings.ToLower(c.ClientName), search) &&
			!strings.Contains(strings.ToLower(c.InstallationAddress), search) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if f.Offset > 0 {
		matched = matched[min(f.Offset, len(matched)):]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	out := make([]*model.Certificate, len(matched))
	for i, c := range matched {
		out[i] = clone(c)
	}
	return out, total, nil
}

// UpdateCertificate replaces the form fields. Signatures, status and the
// generated document are left to SaveSignatures and MarkGenerated.
func (s *Store) UpdateCertificate(_ context.Context, cert *model.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.certificates[cert.ID]
	if !ok {
		return sql.ErrNoRows
	}
	next := clone(cert)
	next.InspectedBy = cur.InspectedBy
	next.AuthorisedBy = cur.AuthorisedBy
	next.Status = cur.Status
	next.PDFKey = cur.PDFKey
	next.GeneratedAt = cur.GeneratedAt
	next.CreatedAt = cur.CreatedAt
	next.CreatedBy = cur.CreatedBy
	next.UpdatedAt = s.now()
	cert.UpdatedAt = next.UpdatedAt
	s.certificates[cert.ID] = next
	return nil
}

func (s *Store) DeleteCertificate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certificates[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.certificates, id)
	return nil
}

func (s *Store) SaveSignatures(_ context.Context, id string, inspectedBy, authorisedBy model.SignatureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certificates[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.InspectedBy = &inspectedBy
	c.AuthorisedBy = &authorisedBy
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) MarkGenerated(_ context.Context, id, pdfKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certificates[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.PDFKey = pdfKey
	c.GeneratedAt = &at
	c.Status = model.StatusCompleted
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) RecordDispatch(_ context.Context, d *model.Dispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	d.ID = s.nextID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	cp := *d
	cp.CC = slices.Clone(d.CC)
	s.dispatches = append(s.dispatches, &cp)
	return nil
}

func (s *Store) ListDispatches(_ context.Context, certificateID string) ([]*model.Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Dispatch
	for _, d := range s.dispatches {
		if d.CertificateID == certificateID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	cp := *e
	cp.Payload = slices.Clone(e.Payload)
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) GetEvents(_ context.Context, certificateID string) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.CertificateID == certificateID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// RunInTransaction runs fn against the store itself. Writes made before fn
// fails are not rolled back.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *Store) Close() error { return nil }
