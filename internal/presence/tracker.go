// Package presence tracks which certificates are open for editing.
//
// The Tracker keeps one live workspace per certificate, opened on first use
// and shared by every request that touches the certificate afterwards. A
// background reaper closes workspaces nobody has touched for a while, so
// their timers and in-memory drafts do not outlive the people using them.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle is the part of an open workspace the tracker manages.
type Handle interface {
	Close()
	Wait()
}

// OpenFunc opens the workspace for a certificate.
type OpenFunc[W Handle] func(ctx context.Context, id, actor string) (W, error)

// Entry is a snapshot of one open certificate.
type Entry struct {
	CertificateID string    `json:"certificate_id"`
	Actor         string    `json:"actor"`
	OpenedAt      time.Time `json:"opened_at"`
	LastSeen      time.Time `json:"last_seen"`
	IdleSecs      float64   `json:"idle_secs"`
	Requests      int64     `json:"requests"`
}

// ReaperConfig configures the background idle reaper.
type ReaperConfig struct {
	// IdleAfter is how long a workspace may go untouched before it is closed.
	// Default: 30 minutes.
	IdleAfter time.Duration

	// SweepInterval is how often the reaper scans.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnReap is called for each workspace the reaper closed.
	// Called outside the lock.
	OnReap func(id, actor string)
}

// Tracker holds the open workspaces. It is safe for concurrent use.
type Tracker[W Handle] struct {
	open  OpenFunc[W]
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*entry[W]

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type entry[W Handle] struct {
	ws       W
	actor    string
	openedAt time.Time
	lastSeen time.Time
	requests int64
}

// New creates a tracker that opens workspaces with open. A nil clock uses
// the real clock.
func New[W Handle](open OpenFunc[W], clock clockwork.Clock) *Tracker[W] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker[W]{
		open:    open,
		clock:   clock,
		entries: make(map[string]*entry[W]),
	}
}

// Acquire returns the open workspace for id, opening it when needed, and
// marks it as seen. The actor is recorded on open and refreshed when given.
func (t *Tracker[W]) Acquire(ctx context.Context, id, actor string) (W, error) {
	t.mu.Lock()
	if e, ok := t.entries[id]; ok {
		t.touchLocked(e, actor)
		t.mu.Unlock()
		return e.ws, nil
	}
	t.mu.Unlock()

	ws, err := t.open(ctx, id, actor)
	if err != nil {
		var zero W
		return zero, err
	}

	t.mu.Lock()
	// Another request may have opened it while we were loading.
	if e, ok := t.entries[id]; ok {
		t.touchLocked(e, actor)
		t.mu.Unlock()
		ws.Close()
		return e.ws, nil
	}
	now := t.clock.Now()
	t.entries[id] = &entry[W]{ws: ws, actor: actor, openedAt: now, lastSeen: now, requests: 1}
	t.mu.Unlock()
	slog.Debug("presence: workspace opened", "certificate_id", id, "actor", actor)
	return ws, nil
}

// Lookup returns the workspace for id when it is open, without opening it.
func (t *Tracker[W]) Lookup(id string) (W, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		var zero W
		return zero, false
	}
	return e.ws, true
}

// Release closes and forgets the workspace for id. It reports whether one
// was open.
func (t *Tracker[W]) Release(id string) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()
	if ok {
		e.ws.Close()
	}
	return ok
}

// Roster returns the open certificates, most recently active first.
func (t *Tracker[W]) Roster() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	entries := make([]Entry, 0, len(t.entries))
	for id, e := range t.entries {
		entries = append(entries, Entry{
			CertificateID: id,
			Actor:         e.actor,
			OpenedAt:      e.openedAt,
			LastSeen:      e.lastSeen,
			IdleSecs:      now.Sub(e.lastSeen).Seconds(),
			Requests:      e.requests,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastSeen.Equal(entries[j].LastSeen) {
			return entries[i].LastSeen.After(entries[j].LastSeen)
		}
		return entries[i].CertificateID < entries[j].CertificateID
	})
	return entries
}

// StartReaper launches a background goroutine that periodically closes idle
// workspaces. Call Stop() to shut it down.
func (t *Tracker[W]) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleAfter == 0 {
		cfg.IdleAfter = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	ticker := t.clock.NewTicker(cfg.SweepInterval)
	go t.reapLoop(cfg, ticker)
	slog.Info("presence: reaper started",
		"idle_after", cfg.IdleAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper and closes every open workspace, waiting for
// their background work to finish.
func (t *Tracker[W]) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}

	t.mu.Lock()
	open := t.entries
	t.entries = make(map[string]*entry[W])
	t.mu.Unlock()

	for _, e := range open {
		e.ws.Close()
	}
	for _, e := range open {
		e.ws.Wait()
	}
}

func (t *Tracker[W]) reapLoop(cfg *ReaperConfig, ticker clockwork.Ticker) {
	defer close(t.reaperDone)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.Chan():
			t.Sweep(cfg.IdleAfter, cfg.OnReap)
		}
	}
}

// Sweep closes workspaces idle for longer than idleAfter and returns how
// many it closed.
func (t *Tracker[W]) Sweep(idleAfter time.Duration, onReap func(id, actor string)) int {
	now := t.clock.Now()

	type idle struct {
		id    string
		actor string
		ws    W
	}
	var reaped []idle

	t.mu.Lock()
	for id, e := range t.entries {
		if now.Sub(e.lastSeen) > idleAfter {
			reaped = append(reaped, idle{id: id, actor: e.actor, ws: e.ws})
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, r := range reaped {
		r.ws.Close()
		slog.Info("presence: reaper closed idle workspace",
			"certificate_id", r.id,
			"actor", r.actor,
			"idle_after", idleAfter)
		if onReap != nil {
			onReap(r.id, r.actor)
		}
	}
	return len(reaped)
}

func (t *Tracker[W]) touchLocked(e *entry[W], actor string) {
	e.lastSeen = t.clock.Now()
	e.requests++
	if actor != "" {
		e.actor = actor
	}
}
