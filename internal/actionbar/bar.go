// Package actionbar gates the Generate, Email and Save actions of a
// certificate and owns the short-lived success flag shown after generation.
package actionbar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SuccessWindow is how long the success flag stays raised.
const SuccessWindow = 3000 * time.Millisecond

// ErrDisabled is returned when a gated action is invoked while disabled.
var ErrDisabled = errors.New("action is disabled")

// Action names one of the bar's actions.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionEmail    Action = "email"
	ActionSave     Action = "save"
	ActionCopyJSON Action = "copy_json"
)

// Flags are the host-owned inputs to the bar.
type Flags struct {
	CanGenerate    bool   `json:"can_generate"`
	IsGenerating   bool   `json:"is_generating"`
	IsComplete     bool   `json:"is_complete"`
	DisabledReason string `json:"disabled_reason,omitempty"`
}

// Host supplies the callbacks the bar invokes. The bar never performs the
// work itself; a callback's error is returned to the caller unchanged.
type Host struct {
	Generate func(ctx context.Context) error
	Email    func(ctx context.Context) error
	Save     func(ctx context.Context) error
	CopyJSON func(ctx context.Context) error
}

// View is the rendered state of the bar.
type View struct {
	GenerateEnabled bool   `json:"generate_enabled"`
	EmailEnabled    bool   `json:"email_enabled"`
	SaveEnabled     bool   `json:"save_enabled"`
	GenerateLabel   string `json:"generate_label"`
	Success         bool   `json:"success"`
	Reason          string `json:"reason,omitempty"`
}

// Bar is the action bar for one certificate. It is safe for concurrent use.
type Bar struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	host    Host
	flags   Flags
	success bool
	timer   clockwork.Timer
	closed  bool
}

// New creates a bar with all flags false.
func New(host Host, clock clockwork.Clock) *Bar {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bar{clock: clock, host: host}
}

// Update replaces the host flags. A false to true change of IsComplete raises
// the success flag for SuccessWindow, restarting the window if it is already
// raised. Other flag changes never lower the flag early.
func (b *Bar) Update(f Flags) View {
	b.mu.Lock()
	defer b.mu.Unlock()

	rising := f.IsComplete && !b.flags.IsComplete
	b.flags = f
	if rising && !b.closed {
		b.raiseLocked()
	}
	return b.viewLocked()
}

// Flags returns the current host flags.
func (b *Bar) Flags() Flags {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags
}

// View returns the current rendered state.
func (b *Bar) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// Generate invokes the host's generate callback when enabled.
func (b *Bar) Generate(ctx context.Context) error {
	b.mu.Lock()
	ok := b.flags.CanGenerate && !b.flags.IsGenerating
	cb := b.host.Generate
	b.mu.Unlock()
	return invoke(ctx, ok, cb)
}

// Email invokes the host's email callback when enabled.
func (b *Bar) Email(ctx context.Context) error {
	b.mu.Lock()
	ok := b.flags.CanGenerate
	cb := b.host.Email
	b.mu.Unlock()
	return invoke(ctx, ok, cb)
}

// Save invokes the host's save callback. Save is always enabled.
func (b *Bar) Save(ctx context.Context) error {
	return invoke(ctx, true, b.host.Save)
}

// CopyJSON invokes the optional copy callback. It is never gated and
// reports ErrDisabled only when no callback is configured.
func (b *Bar) CopyJSON(ctx context.Context) error {
	return invoke(ctx, b.host.CopyJSON != nil, b.host.CopyJSON)
}

// Close cancels any pending success timer. Further completion edges no
// longer raise the flag.
func (b *Bar) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.stopLocked()
	b.success = false
}

func invoke(ctx context.Context, enabled bool, cb func(context.Context) error) error {
	if !enabled {
		return ErrDisabled
	}
	if cb == nil {
		return nil
	}
	return cb(ctx)
}

func (b *Bar) raiseLocked() {
	b.stopLocked()
	b.success = true
	var t clockwork.Timer
	t = b.clock.AfterFunc(SuccessWindow, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// A restart replaced the timer; this firing is stale.
		if b.timer != t {
			return
		}
		b.timer = nil
		b.success = false
	})
	b.timer = t
}

func (b *Bar) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Bar) viewLocked() View {
	v := View{
		GenerateEnabled: b.flags.CanGenerate && !b.flags.IsGenerating,
		EmailEnabled:    b.flags.CanGenerate,
		SaveEnabled:     true,
		Success:         b.success,
		GenerateLabel:   "Generate",
	}
	switch {
	case b.flags.IsGenerating:
		v.GenerateLabel = "Generating..."
	case b.success:
		v.GenerateLabel = "Generated"
	}
	if !b.flags.CanGenerate {
		v.Reason = b.flags.DisabledReason
	}
	return v
}
