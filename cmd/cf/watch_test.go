package main

import (
	"testing"

	"github.com/alfredjeanlab/certflow/internal/events"
	"github.com/alfredjeanlab/certflow/internal/model"
)

func TestNewEvents(t *testing.T) {
	var last int64
	evs := []*model.Event{{ID: 1}, {ID: 2}}

	if got := newEvents(evs, &last); len(got) != 2 || last != 2 {
		t.Fatalf("initial: got %d events, last=%d", len(got), last)
	}
	if got := newEvents(evs, &last); len(got) != 0 {
		t.Fatalf("repeat: got %d events, want 0", len(got))
	}

	evs = append(evs, &model.Event{ID: 5})
	got := newEvents(evs, &last)
	if len(got) != 1 || got[0].ID != 5 || last != 5 {
		t.Fatalf("new: got %+v, last=%d", got, last)
	}
}

func TestEventCertificateID(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload string
		want    string
	}{
		{"top level", `{"certificate_id": "cert-1", "percentage": 50}`, "cert-1"},
		{"created", `{"certificate": {"id": "cert-2", "type": "EICR"}}`, "cert-2"},
		{"dispatch", `{"dispatch": {"id": 3, "certificate_id": "cert-3"}}`, "cert-3"},
		{"unrelated", `{"other": true}`, ""},
		{"not json", `nope`, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := eventCertificateID([]byte(tc.payload)); got != tc.want {
				t.Errorf("eventCertificateID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageCertificate(t *testing.T) {
	header := events.Message{CertificateID: "cert-h", Data: []byte(`{"certificate_id":"cert-p"}`)}
	if got := messageCertificate(header); got != "cert-h" {
		t.Errorf("with header = %q", got)
	}
	bare := events.Message{Data: []byte(`{"certificate_id":"cert-p"}`)}
	if got := messageCertificate(bare); got != "cert-p" {
		t.Errorf("without header = %q", got)
	}
}
