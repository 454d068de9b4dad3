package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/certflow/internal/model"
)

func TestCertificateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	cert := &model.Certificate{ID: "cert-1", Type: model.TypeEICR, Status: model.StatusDraft, ClientName: "Alice"}
	if err := s.CreateCertificate(ctx, cert); err != nil {
		t.Fatal(err)
	}
	cert.ClientName = "mutated after create"

	got, err := s.GetCertificate(ctx, "cert-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ClientName != "Alice" {
		t.Fatalf("stored record aliases caller: %q", got.ClientName)
	}

	sig := model.SignatureRecord{Name: "J SMITH", Signature: "sig"}
	if err := s.SaveSignatures(ctx, "cert-1", sig, model.SignatureRecord{Name: "A JONES", Signature: "sig2"}); err != nil {
		t.Fatal(err)
	}

	// Updating form fields must not clobber signatures.
	got.ClientName = "Bob"
	got.InspectedBy = nil
	if err := s.UpdateCertificate(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCertificate(ctx, "cert-1")
	if got.ClientName != "Bob" || !got.Signed() {
		t.Fatalf("after update: name=%q signed=%v", got.ClientName, got.Signed())
	}

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := s.MarkGenerated(ctx, "cert-1", "certificates/cert-1.pdf", at); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCertificate(ctx, "cert-1")
	if got.Status != model.StatusCompleted || got.PDFKey != "certificates/cert-1.pdf" || !got.GeneratedAt.Equal(at) {
		t.Fatalf("after MarkGenerated: %+v", got)
	}

	if err := s.DeleteCertificate(ctx, "cert-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetCertificate(ctx, "cert-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMissingCertificate(t *testing.T) {
	ctx := context.Background()
	s := New()
	for name, fn := range map[string]func() error{
		"update": func() error { return s.UpdateCertificate(ctx, &model.Certificate{ID: "nope"}) },
		"delete": func() error { return s.DeleteCertificate(ctx, "nope") },
		"sign":   func() error { return s.SaveSignatures(ctx, "nope", model.SignatureRecord{}, model.SignatureRecord{}) },
		"mark":   func() error { return s.MarkGenerated(ctx, "nope", "k", time.Now()) },
	} {
		if err := fn(); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("%s: err = %v, want sql.ErrNoRows", name, err)
		}
	}
}

func TestListCertificates(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Minute) }

	for _, c := range []*model.Certificate{
		{ID: "a", Type: model.TypeEICR, Status: model.StatusDraft, InstallationAddress: "1 Mill Lane"},
		{ID: "b", Type: model.TypeEIC, Status: model.StatusCompleted, ClientName: "Mill Farm"},
		{ID: "c", Type: model.TypeEICR, Status: model.StatusCompleted, Number: "EICR-XYZ"},
	} {
		if err := s.CreateCertificate(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct {
		name   string
		filter model.CertificateFilter
		want   []string
		total  int
	}{
		{"all newest first", model.CertificateFilter{}, []string{"c", "b", "a"}, 3},
		{"status", model.CertificateFilter{Status: []model.Status{model.StatusCompleted}}, []string{"c", "b"}, 2},
		{"type", model.CertificateFilter{Type: []model.CertificateType{model.TypeEICR}}, []string{"c", "a"}, 2},
		{"search", model.CertificateFilter{Search: "mill"}, []string{"b", "a"}, 2},
		{"page", model.CertificateFilter{Limit: 1, Offset: 1}, []string{"b"}, 3},
		{"offset past end", model.CertificateFilter{Offset: 10}, nil, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := s.ListCertificates(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			if total != tc.total {
				t.Errorf("total = %d, want %d", total, tc.total)
			}
			var ids []string
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if len(ids) != len(tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestDispatchesAndEvents(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := &model.Dispatch{CertificateID: "cert-1", Recipient: "a@b.co", Succeeded: true}
	if err := s.RecordDispatch(ctx, d); err != nil {
		t.Fatal(err)
	}
	if d.ID == 0 || d.CreatedAt.IsZero() {
		t.Fatalf("dispatch not stamped: %+v", d)
	}
	_ = s.RecordDispatch(ctx, &model.Dispatch{CertificateID: "cert-2"})

	ds, _ := s.ListDispatches(ctx, "cert-1")
	if len(ds) != 1 || ds[0].Recipient != "a@b.co" {
		t.Fatalf("dispatches = %+v", ds)
	}

	_ = s.RecordEvent(ctx, &model.Event{Topic: "t", CertificateID: "cert-1", Payload: []byte(`{}`)})
	evs, _ := s.GetEvents(ctx, "cert-1")
	if len(evs) != 1 || evs[0].Topic != "t" {
		t.Fatalf("events = %+v", evs)
	}
}
