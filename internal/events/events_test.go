package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/certflow/internal/model"
)

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicDraftSaved, DraftSaved{CertificateID: "cert-1"}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicSignaturesDone, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := SignaturesCompleted{
		CertificateID: "cert-pub1",
		InspectedBy:   model.SignatureRecord{Name: "J SMITH", Signature: "sig1"},
		AuthorisedBy:  model.SignatureRecord{Name: "A JONES", Signature: "sig2", Date: "2024-05-01"},
	}
	if err := pub.Publish(context.Background(), TopicSignaturesDone, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.conn.Flush()

	select {
	case msg := <-ch:
		var got SignaturesCompleted
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishAllTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	cases := []struct {
		topic string
		event any
	}{
		{TopicCertificateCreated, CertificateCreated{Certificate: &model.Certificate{ID: "cert-1", Type: model.TypeEICR}}},
		{TopicDraftSaved, DraftSaved{CertificateID: "cert-1", Percentage: 40}},
		{TopicDocumentGenerated, DocumentGenerated{CertificateID: "cert-1", Bytes: 2048}},
		{TopicDispatchSent, DispatchSent{Dispatch: &model.Dispatch{CertificateID: "cert-1", Succeeded: true}}},
		{TopicDispatchFailed, DispatchFailed{Dispatch: &model.Dispatch{CertificateID: "cert-1", Error: "timeout"}}},
	}
	for _, tc := range cases {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.conn.Flush()

	for _, tc := range cases {
		select {
		case msg := <-ch:
			if msg.Subject != tc.topic {
				t.Errorf("subject = %q, want %q", msg.Subject, tc.topic)
			}
			if got := msg.Header.Get(CertificateHeader); got != "cert-1" {
				t.Errorf("%s header = %q", tc.topic, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", tc.topic)
		}
	}
}

func TestCertificateRef(t *testing.T) {
	for _, tc := range []struct {
		name  string
		event Ref
		want  string
	}{
		{"created", CertificateCreated{Certificate: &model.Certificate{ID: "a"}}, "a"},
		{"created nil", CertificateCreated{}, ""},
		{"saved", DraftSaved{CertificateID: "b"}, "b"},
		{"signed", SignaturesCompleted{CertificateID: "c"}, "c"},
		{"failed nil dispatch", DispatchFailed{}, ""},
		{"sent", DispatchSent{Dispatch: &model.Dispatch{CertificateID: "d"}}, "d"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.event.CertificateRef(); got != tc.want {
				t.Errorf("CertificateRef() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	if err := pub.Publish(context.Background(), TopicDraftSaved, DraftSaved{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
