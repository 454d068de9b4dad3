// Package dispatch drives a single email send of a certificate.
//
// A Session moves idle -> sending -> success | error, with error -> sending
// on retry. Recipient validation happens before any I/O and never changes the
// status. After a successful send the close callback fires once AutoCloseDelay
// later unless the session is closed first.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// AutoCloseDelay is how long a successful session stays open.
const AutoCloseDelay = 2000 * time.Millisecond

// GenericFailure is surfaced when a send fails without a message.
const GenericFailure = "Failed to send email. Please try again."

// InvalidRecipientNotice is the inline notice for a malformed recipient.
const InvalidRecipientNotice = "Please enter a valid email address"

var (
	// ErrClosed is returned by operations on a session that is not open.
	ErrClosed = errors.New("dispatch session is not open")
	// ErrSendInFlight is returned by Send while a send is running.
	ErrSendInFlight = errors.New("send already in progress")
	// ErrAlreadySent is returned by Send after a successful send.
	ErrAlreadySent = errors.New("certificate already sent")
)

// Request is what the host's send operation receives. CC is nil when no
// valid copy address was given.
type Request struct {
	Recipient string   `json:"recipient"`
	CC        []string `json:"cc,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// SendFunc performs the delivery. A non-nil error marks the attempt failed;
// its text is shown to the user.
type SendFunc func(ctx context.Context, req Request) error

// State is a point-in-time copy of the session.
type State struct {
	Open      bool                 `json:"open"`
	Recipient string               `json:"recipient"`
	CCInput   string               `json:"cc_input,omitempty"`
	Message   string               `json:"message,omitempty"`
	Status    model.DispatchStatus `json:"status"`
	Error     string               `json:"error,omitempty"`
	Notice    string               `json:"notice,omitempty"`
	CanSend   bool                 `json:"can_send"`
}

// Session is one open-to-close lifetime of the email surface. It is safe for
// concurrent use.
type Session struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	logger  *slog.Logger
	send    SendFunc
	onClose func()

	open       bool
	recipient  string
	ccInput    string
	message    string
	status     model.DispatchStatus
	errMsg     string
	notice     string
	generation uint64
	timer      clockwork.Timer
	closeFired bool
	inFlight   bool // a delivery is running, whatever its generation

	wg sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for the auto-close timer.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a closed session. onClose is told when the surface
// should close and may be nil.
func NewSession(send SendFunc, onClose func(), opts ...Option) *Session {
	s := &Session{
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		send:    send,
		onClose: onClose,
		status:  model.DispatchIdle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open starts a new session: status idle, no error, recipient seeded from
// seedEmail (empty when unknown). Any pending auto-close is cancelled and a
// send still running from an earlier session is ignored when it finishes.
// Until it finishes, Send keeps answering ErrSendInFlight so a reopened
// surface cannot deliver the certificate a second time.
func (s *Session) Open(seedEmail string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.generation++
	s.open = true
	s.recipient = seedEmail
	s.ccInput = ""
	s.message = ""
	s.status = model.DispatchIdle
	s.errMsg = ""
	s.notice = ""
	s.closeFired = false
	return s.stateLocked()
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// SetRecipient edits the recipient field.
func (s *Session) SetRecipient(v string) (State, error) {
	return s.edit(func() { s.recipient = v; s.notice = "" })
}

// SetCC edits the free-text CC field.
func (s *Session) SetCC(v string) (State, error) {
	return s.edit(func() { s.ccInput = v })
}

// SetMessage edits the optional message.
func (s *Session) SetMessage(v string) (State, error) {
	return s.edit(func() { s.message = v })
}

func (s *Session) edit(fn func()) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return State{}, ErrClosed
	}
	fn()
	return s.stateLocked(), nil
}

// Send validates the recipient and starts the delivery on its own goroutine.
// The delivery runs to completion even if ctx is cancelled. An invalid
// recipient yields a validation error and leaves the status untouched.
func (s *Session) Send(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return State{}, ErrClosed
	}
	if s.inFlight {
		return s.stateLocked(), ErrSendInFlight
	}
	switch s.status {
	case model.DispatchSending:
		return s.stateLocked(), ErrSendInFlight
	case model.DispatchSuccess:
		return s.stateLocked(), ErrAlreadySent
	}
	recipient := s.recipient
	if !IsValidEmail(recipient) {
		s.notice = InvalidRecipientNotice
		return s.stateLocked(), model.NewFieldError("recipient", "must be a valid email address")
	}

	req := Request{Recipient: recipient, CC: ParseCC(s.ccInput), Message: s.message}
	s.status = model.DispatchSending
	s.errMsg = ""
	s.notice = ""
	gen := s.generation
	s.inFlight = true

	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx), gen, req)
	return s.stateLocked(), nil
}

func (s *Session) run(ctx context.Context, gen uint64, req Request) {
	defer s.wg.Done()

	err := s.deliver(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if !s.open || s.generation != gen {
		s.logger.Debug("dropping result of superseded send", "recipient", req.Recipient, "err", err)
		return
	}
	if err != nil {
		s.status = model.DispatchError
		s.errMsg = err.Error()
		if s.errMsg == "" {
			s.errMsg = GenericFailure
		}
		s.logger.Warn("certificate email failed", "recipient", req.Recipient, "err", err)
		return
	}
	s.status = model.DispatchSuccess
	s.logger.Info("certificate email sent", "recipient", req.Recipient, "cc", len(req.CC))
	s.stopTimerLocked()
	s.timer = s.clock.AfterFunc(AutoCloseDelay, func() { s.autoClose(gen) })
}

// deliver calls the send function, turning a panic into an error so a
// misbehaving sender cannot wedge the session in sending.
func (s *Session) deliver(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in send", "panic", r)
			err = errors.New(GenericFailure)
		}
	}()
	if s.send == nil {
		return errors.New("no sender configured")
	}
	return s.send(ctx, req)
}

func (s *Session) autoClose(gen uint64) {
	s.mu.Lock()
	if !s.open || s.generation != gen || s.status != model.DispatchSuccess {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	cb := s.closeLocked()
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Close closes the surface and cancels a pending auto-close. The close
// callback fires at most once per session.
func (s *Session) Close() {
	s.mu.Lock()
	cb := s.closeLocked()
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// closeLocked tears the session down and returns the callback to run once
// the lock is released, or nil.
func (s *Session) closeLocked() func() {
	if !s.open {
		return nil
	}
	s.stopTimerLocked()
	s.open = false
	s.generation++
	if s.closeFired {
		return nil
	}
	s.closeFired = true
	return s.onClose
}

// Wait blocks until every send started by this session has returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) stateLocked() State {
	return State{
		Open:      s.open,
		Recipient: s.recipient,
		CCInput:   s.ccInput,
		Message:   s.message,
		Status:    s.status,
		Error:     s.errMsg,
		Notice:    s.notice,
		CanSend:   s.open && !s.inFlight && s.status != model.DispatchSending && s.status != model.DispatchSuccess,
	}
}
