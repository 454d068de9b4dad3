package dispatch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/certflow/internal/model"
)

func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// fakeSender blocks each call until the test releases it with an error
// (or nil for success).
type fakeSender struct {
	mu       sync.Mutex
	calls    []Request
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	release  chan error
}

func newFakeSender() *fakeSender {
	return &fakeSender{release: make(chan error)}
}

func (f *fakeSender) send(ctx context.Context, req Request) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return <-f.release
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type closeCounter struct{ n atomic.Int32 }

func (c *closeCounter) close() { c.n.Add(1) }

func newTestSession(t *testing.T) (*Session, *fakeSender, *closeCounter, *clockwork.FakeClock) {
	t.Helper()
	sender := newFakeSender()
	closes := &closeCounter{}
	clock := clockwork.NewFakeClock()
	s := NewSession(sender.send, closes.close, WithClock(clock))
	return s, sender, closes, clock
}

func TestSession_OpenSeeds(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	st := s.Open("john.smith@example.com")
	want := State{Open: true, Recipient: "john.smith@example.com", Status: model.DispatchIdle, CanSend: true}
	if st != want {
		t.Errorf("Open() = %+v, want %+v", st, want)
	}
	if st := s.Open(""); st.Recipient != "" {
		t.Errorf("Open(\"\") recipient = %q, want empty", st.Recipient)
	}
}

func TestSession_InvalidRecipientBlocksSend(t *testing.T) {
	s, sender, _, _ := newTestSession(t)
	s.Open("")
	_, _ = s.SetRecipient("a@b")

	st, err := s.Send(context.Background())
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Send err = %v, want ValidationError", err)
	}
	if st.Status != model.DispatchIdle {
		t.Errorf("status = %q, want idle", st.Status)
	}
	if st.Notice != InvalidRecipientNotice {
		t.Errorf("notice = %q", st.Notice)
	}
	s.Wait()
	if sender.callCount() != 0 {
		t.Error("sender called for an invalid recipient")
	}

	// Editing the recipient clears the notice.
	if st, _ := s.SetRecipient("a@b.co"); st.Notice != "" {
		t.Errorf("notice after edit = %q, want empty", st.Notice)
	}
}

func TestSession_SuccessAutoClosesOnce(t *testing.T) {
	s, sender, closes, clock := newTestSession(t)
	s.Open("client@example.com")
	_, _ = s.SetCC("a@b.com, not-an-email, c@d.com")
	_, _ = s.SetMessage("Please find attached.")

	st, err := s.Send(context.Background())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if st.Status != model.DispatchSending || st.CanSend {
		t.Errorf("state after Send = %+v", st)
	}
	sender.release <- nil
	s.Wait()

	if got := s.State().Status; got != model.DispatchSuccess {
		t.Fatalf("status = %q, want success", got)
	}
	want := Request{Recipient: "client@example.com", CC: []string{"a@b.com", "c@d.com"}, Message: "Please find attached."}
	if !reflect.DeepEqual(sender.calls[0], want) {
		t.Errorf("request = %+v, want %+v", sender.calls[0], want)
	}

	clock.Advance(AutoCloseDelay - time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if closes.n.Load() != 0 {
		t.Fatal("closed before the delay elapsed")
	}
	clock.Advance(time.Millisecond)
	if !eventually(t, func() bool { return closes.n.Load() == 1 }) {
		t.Fatalf("close callback fired %d times, want 1", closes.n.Load())
	}
	if s.State().Open {
		t.Error("session still open after auto-close")
	}

	s.Close()
	clock.Advance(AutoCloseDelay)
	time.Sleep(10 * time.Millisecond)
	if n := closes.n.Load(); n != 1 {
		t.Errorf("close callback fired %d times, want 1", n)
	}
}

func TestSession_ManualCloseCancelsAutoClose(t *testing.T) {
	s, sender, closes, clock := newTestSession(t)
	s.Open("client@example.com")
	if _, err := s.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sender.release <- nil
	s.Wait()

	s.Close()
	if n := closes.n.Load(); n != 1 {
		t.Fatalf("manual close fired %d callbacks, want 1", n)
	}
	clock.Advance(AutoCloseDelay * 2)
	time.Sleep(10 * time.Millisecond)
	if n := closes.n.Load(); n != 1 {
		t.Errorf("close callback fired %d times after auto-close window, want 1", n)
	}
}

func TestSession_FailureThenRetry(t *testing.T) {
	s, sender, closes, _ := newTestSession(t)
	s.Open("client@example.com")
	_, _ = s.SetCC("not-an-email")

	if _, err := s.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sender.release <- errors.New("smtp: 550 mailbox unavailable")
	s.Wait()

	st := s.State()
	if st.Status != model.DispatchError || st.Error != "smtp: 550 mailbox unavailable" {
		t.Fatalf("state = %+v", st)
	}
	if !st.Open || st.Recipient != "client@example.com" || st.CCInput != "not-an-email" {
		t.Errorf("failure corrupted fields: %+v", st)
	}
	if sender.calls[0].CC != nil {
		t.Errorf("CC = %#v, want nil", sender.calls[0].CC)
	}

	st, err := s.Send(context.Background())
	if err != nil {
		t.Fatalf("retry Send: %v", err)
	}
	if st.Status != model.DispatchSending || st.Error != "" {
		t.Errorf("retry state = %+v", st)
	}
	sender.release <- nil
	s.Wait()
	if got := s.State().Status; got != model.DispatchSuccess {
		t.Errorf("status after retry = %q, want success", got)
	}
	if _, err := s.Send(context.Background()); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("Send after success err = %v, want ErrAlreadySent", err)
	}
	if closes.n.Load() != 0 {
		t.Error("failure must not close the surface")
	}
}

func TestSession_EmptyErrorUsesGenericMessage(t *testing.T) {
	s, sender, _, _ := newTestSession(t)
	s.Open("client@example.com")
	_, _ = s.Send(context.Background())
	sender.release <- errors.New("")
	s.Wait()
	if got := s.State().Error; got != GenericFailure {
		t.Errorf("error = %q, want %q", got, GenericFailure)
	}
}

func TestSession_PanickingSenderFails(t *testing.T) {
	s := NewSession(func(context.Context, Request) error { panic("boom") }, nil, WithClock(clockwork.NewFakeClock()))
	s.Open("client@example.com")
	_, _ = s.Send(context.Background())
	s.Wait()
	if st := s.State(); st.Status != model.DispatchError || st.Error != GenericFailure {
		t.Errorf("state = %+v", st)
	}
}

func TestSession_AtMostOneSend(t *testing.T) {
	s, sender, _, _ := newTestSession(t)
	s.Open("client@example.com")

	if _, err := s.Send(context.Background()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var wg sync.WaitGroup
	var rejected atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Send(context.Background()); errors.Is(err, ErrSendInFlight) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	if rejected.Load() != 20 {
		t.Errorf("rejected = %d, want 20", rejected.Load())
	}
	sender.release <- nil
	s.Wait()
	if n := sender.callCount(); n != 1 {
		t.Errorf("sender called %d times, want 1", n)
	}
	if m := sender.maxSeen.Load(); m != 1 {
		t.Errorf("max concurrent sends = %d, want 1", m)
	}
}

func TestSession_SendSurvivesCallerCancel(t *testing.T) {
	s, sender, _, _ := newTestSession(t)
	s.Open("client@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = s.Send(ctx)
	cancel()
	sender.release <- nil
	s.Wait()
	if got := s.State().Status; got != model.DispatchSuccess {
		t.Errorf("status = %q, want success", got)
	}
}

func TestSession_ReopenIgnoresStaleSend(t *testing.T) {
	s, sender, closes, clock := newTestSession(t)
	s.Open("first@example.com")
	_, _ = s.Send(context.Background())
	s.Close()

	st := s.Open("second@example.com")
	if st.CanSend {
		t.Error("reopened session offers send while the earlier one is running")
	}
	if _, err := s.Send(context.Background()); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("send during earlier delivery = %v, want ErrSendInFlight", err)
	}
	sender.release <- nil
	s.Wait()

	got := s.State()
	if got.Status != model.DispatchIdle || got.Recipient != "second@example.com" || !got.CanSend {
		t.Errorf("stale send changed reopened session: %+v -> %+v", st, got)
	}
	if n := sender.callCount(); n != 1 {
		t.Errorf("sender called %d times, want 1", n)
	}
	clock.Advance(AutoCloseDelay)
	time.Sleep(10 * time.Millisecond)
	if n := closes.n.Load(); n != 1 {
		t.Errorf("close callbacks = %d, want 1 (manual close only)", n)
	}
}

func TestSession_ClosedRejectsActions(t *testing.T) {
	s, _, closes, _ := newTestSession(t)
	if _, err := s.Send(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Send err = %v, want ErrClosed", err)
	}
	if _, err := s.SetRecipient("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetRecipient err = %v, want ErrClosed", err)
	}
	s.Close()
	if closes.n.Load() != 0 {
		t.Error("closing a never-opened session fired the callback")
	}
}
