package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeWorkspace struct {
	id     string
	closed atomic.Int32
	waited atomic.Int32
}

func (w *fakeWorkspace) Close() { w.closed.Add(1) }
func (w *fakeWorkspace) Wait()  { w.waited.Add(1) }

type opener struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (o *opener) open(_ context.Context, id, _ string) (*fakeWorkspace, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return &fakeWorkspace{id: id}, nil
}

func newTestTracker() (*Tracker[*fakeWorkspace], *opener, *clockwork.FakeClock) {
	o := &opener{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return New[*fakeWorkspace](o.open, clock), o, clock
}

func TestAcquire_OpensOnce(t *testing.T) {
	tr, o, _ := newTestTracker()
	ctx := context.Background()

	first, err := tr.Acquire(ctx, "cert-1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	second, err := tr.Acquire(ctx, "cert-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the same workspace on second acquire")
	}
	if o.calls != 1 {
		t.Fatalf("open called %d times", o.calls)
	}

	roster := tr.Roster()
	if len(roster) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(roster))
	}
	if e := roster[0]; e.Actor != "alice" || e.Requests != 2 || e.CertificateID != "cert-1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAcquire_OpenError(t *testing.T) {
	tr, o, _ := newTestTracker()
	o.err = errors.New("not found")

	if _, err := tr.Acquire(context.Background(), "cert-x", "bob"); !errors.Is(err, o.err) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := tr.Lookup("cert-x"); ok {
		t.Fatal("failed open must not be tracked")
	}
}

func TestRelease(t *testing.T) {
	tr, _, _ := newTestTracker()
	ws, _ := tr.Acquire(context.Background(), "cert-1", "alice")

	if !tr.Release("cert-1") {
		t.Fatal("expected Release to report an open workspace")
	}
	if ws.closed.Load() != 1 {
		t.Errorf("closed %d times", ws.closed.Load())
	}
	if tr.Release("cert-1") {
		t.Fatal("second Release should report nothing open")
	}
}

func TestRoster_SortedByMostRecent(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		tr.Acquire(ctx, id, "alice")
		clock.Advance(time.Second)
	}

	roster := tr.Roster()
	if len(roster) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(roster))
	}
	if roster[0].CertificateID != "third" || roster[2].CertificateID != "first" {
		t.Errorf("order = %s, %s, %s", roster[0].CertificateID, roster[1].CertificateID, roster[2].CertificateID)
	}
	if roster[2].IdleSecs != 3 {
		t.Errorf("idle secs = %v", roster[2].IdleSecs)
	}
}

func TestSweep_ClosesIdleWorkspaces(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	idle, _ := tr.Acquire(ctx, "idle", "alice")
	clock.Advance(20 * time.Minute)
	busy, _ := tr.Acquire(ctx, "busy", "bob")

	var reaped []string
	n := tr.Sweep(15*time.Minute, func(id, _ string) { reaped = append(reaped, id) })

	if n != 1 || len(reaped) != 1 || reaped[0] != "idle" {
		t.Fatalf("reaped %d: %v", n, reaped)
	}
	if idle.closed.Load() != 1 || busy.closed.Load() != 0 {
		t.Errorf("closed: idle=%d busy=%d", idle.closed.Load(), busy.closed.Load())
	}
	if _, ok := tr.Lookup("idle"); ok {
		t.Error("idle workspace still tracked")
	}
}

func TestSweep_TouchKeepsWorkspaceAlive(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	tr.Acquire(ctx, "cert-1", "alice")
	clock.Advance(10 * time.Minute)
	tr.Acquire(ctx, "cert-1", "alice")
	clock.Advance(10 * time.Minute)

	if n := tr.Sweep(15*time.Minute, nil); n != 0 {
		t.Fatalf("reaped %d, want 0", n)
	}
}

func TestStartReaper_SweepsOnTick(t *testing.T) {
	tr, _, clock := newTestTracker()
	ws, _ := tr.Acquire(context.Background(), "cert-1", "alice")

	reaped := make(chan string, 1)
	tr.StartReaper(&ReaperConfig{
		IdleAfter:     30 * time.Second,
		SweepInterval: time.Minute,
		OnReap:        func(id, _ string) { reaped <- id },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	clock.Advance(2 * time.Minute)

	select {
	case id := <-reaped:
		if id != "cert-1" {
			t.Errorf("reaped %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not close the idle workspace")
	}
	if ws.closed.Load() != 1 {
		t.Errorf("closed %d times", ws.closed.Load())
	}

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return within 2 seconds")
	}
}

func TestStop_ClosesOpenWorkspaces(t *testing.T) {
	tr, _, _ := newTestTracker()
	ws, _ := tr.Acquire(context.Background(), "cert-1", "alice")

	// Stop without StartReaper should not hang.
	tr.Stop()

	if ws.closed.Load() != 1 || ws.waited.Load() != 1 {
		t.Errorf("closed=%d waited=%d", ws.closed.Load(), ws.waited.Load())
	}
	if len(tr.Roster()) != 0 {
		t.Error("roster not empty after Stop")
	}
}
