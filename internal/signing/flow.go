// Package signing implements the two-step signature capture wizard.
//
// A Flow collects the "Inspected By" record, then the "Authorised By" record,
// and hands the completed pair to its completion callback exactly once. Each
// Open starts a fresh session seeded from the host's canonical records or the
// inspector profile. Edits from an abandoned session never carry over.
package signing

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alfredjeanlab/certflow/internal/model"
)

// Step is the wizard state.
type Step string

const (
	StepClosed     Step = "closed"
	StepInspected  Step = "inspected"
	StepAuthorised Step = "authorised"
)

var (
	// ErrClosed is returned by operations on a flow that is not open.
	ErrClosed = errors.New("signature flow is not open")
	// ErrWrongStep is returned when an action is invoked from a step that
	// does not offer it.
	ErrWrongStep = errors.New("action not available in the current step")
	// ErrNoSavedSignature is returned by UseSavedSignature when the profile
	// has no saved signature.
	ErrNoSavedSignature = errors.New("no saved signature")
)

// Profile holds the inspector defaults used to seed a new session.
type Profile struct {
	Name         string `toml:"name"`
	Company      string `toml:"company"`
	Position     string `toml:"position"`
	Address      string `toml:"address"`
	MembershipNo string `toml:"membership_no"`
	Signature    string `toml:"signature"`
}

// Pair is the completed output of a flow.
type Pair struct {
	InspectedBy  model.SignatureRecord `json:"inspected_by"`
	AuthorisedBy model.SignatureRecord `json:"authorised_by"`
}

// Snapshot is a point-in-time copy of the flow's working state.
type Snapshot struct {
	Step            Step                  `json:"step"`
	InspectedBy     model.SignatureRecord `json:"inspected_by"`
	AuthorisedBy    model.SignatureRecord `json:"authorised_by"`
	SameAsInspected bool                  `json:"same_as_inspected"`
	CanAdvance      bool                  `json:"can_advance"`
}

// Patch is a partial edit of the active record. Nil fields are left alone.
type Patch struct {
	Name         *string `json:"name,omitempty"`
	Signature    *string `json:"signature,omitempty"`
	Company      *string `json:"company,omitempty"`
	Position     *string `json:"position,omitempty"`
	Address      *string `json:"address,omitempty"`
	MembershipNo *string `json:"membership_no,omitempty"`
	Date         *string `json:"date,omitempty"`
}

// Flow is the signature capture wizard. It is safe for concurrent use; every
// mutation is serialized behind one mutex.
type Flow struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	profile    Profile
	onComplete func(Pair)
	upper      cases.Caser

	step       Step
	inspected  model.SignatureRecord
	authorised model.SignatureRecord
	sameAs     bool
}

// Option configures a Flow.
type Option func(*Flow)

// WithClock sets the clock used for "today". Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(f *Flow) { f.clock = c }
}

// NewFlow creates a closed flow. onComplete receives the completed pair; it is
// called without the flow's lock held and may be nil.
func NewFlow(profile Profile, onComplete func(Pair), opts ...Option) *Flow {
	f := &Flow{
		clock:      clockwork.NewRealClock(),
		profile:    profile,
		onComplete: onComplete,
		upper:      cases.Upper(language.BritishEnglish),
		step:       StepClosed,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Open starts a new session at StepInspected. Each record is seeded from the
// matching prior value when one is given, otherwise from the profile (for
// inspectedBy) or left blank with today's date (for authorisedBy). Opening an
// already open flow discards its working state.
func (f *Flow) Open(inspected, authorised *model.SignatureRecord) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	today := f.today()
	if inspected != nil {
		f.inspected = *inspected
	} else {
		f.inspected = model.SignatureRecord{
			Name:         f.upper.String(f.profile.Name),
			Signature:    f.profile.Signature,
			Company:      f.profile.Company,
			Position:     f.profile.Position,
			Address:      f.profile.Address,
			MembershipNo: f.profile.MembershipNo,
			Date:         today,
		}
	}
	if authorised != nil {
		f.authorised = *authorised
	} else {
		f.authorised = model.SignatureRecord{Date: today}
	}
	f.sameAs = false
	f.step = StepInspected
	return f.snapshotLocked()
}

// Snapshot returns the current working state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Step returns the current wizard state.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Apply edits the active record. Names are uppercased as they are entered.
func (f *Flow) Apply(p Patch) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.activeLocked()
	if err != nil {
		return Snapshot{}, err
	}
	if p.Name != nil {
		rec.Name = f.upper.String(*p.Name)
	}
	if p.Signature != nil {
		rec.Signature = *p.Signature
	}
	if p.Company != nil {
		rec.Company = *p.Company
	}
	if p.Position != nil {
		rec.Position = *p.Position
	}
	if p.Address != nil {
		rec.Address = *p.Address
	}
	if p.MembershipNo != nil {
		rec.MembershipNo = *p.MembershipNo
	}
	if p.Date != nil {
		rec.Date = *p.Date
	}
	return f.snapshotLocked(), nil
}

// UseSavedSignature replaces the signature of the active record with the
// profile's saved signature. No other field changes.
func (f *Flow) UseSavedSignature() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.activeLocked()
	if err != nil {
		return Snapshot{}, err
	}
	if f.profile.Signature == "" {
		return Snapshot{}, ErrNoSavedSignature
	}
	rec.Signature = f.profile.Signature
	return f.snapshotLocked(), nil
}

// ClearSignature empties the signature of the active record.
func (f *Flow) ClearSignature() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.activeLocked()
	if err != nil {
		return Snapshot{}, err
	}
	rec.Signature = ""
	return f.snapshotLocked(), nil
}

// SetSameAsInspected sets the "same person will authorise" option. Turning it
// on copies the inspector's details into authorisedBy with today's date.
// Turning it off leaves authorisedBy as it is.
func (f *Flow) SetSameAsInspected(on bool) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step == StepClosed {
		return Snapshot{}, ErrClosed
	}
	f.sameAs = on
	if on {
		f.copyInspectedLocked()
	}
	return f.snapshotLocked(), nil
}

// Next moves from StepInspected to StepAuthorised. It fails without changing
// anything when inspectedBy is not valid.
func (f *Flow) Next() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepClosed:
		return Snapshot{}, ErrClosed
	case StepInspected:
	default:
		return Snapshot{}, ErrWrongStep
	}
	if err := model.ValidateSignature("inspected_by", f.inspected); err != nil {
		return Snapshot{}, err
	}
	if f.sameAs {
		f.copyInspectedLocked()
	}
	f.step = StepAuthorised
	return f.snapshotLocked(), nil
}

// Back returns from StepAuthorised to StepInspected. Working state is kept.
func (f *Flow) Back() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepClosed:
		return Snapshot{}, ErrClosed
	case StepAuthorised:
	default:
		return Snapshot{}, ErrWrongStep
	}
	f.step = StepInspected
	return f.snapshotLocked(), nil
}

// Finish completes the flow from StepAuthorised. When authorisedBy is valid
// the flow closes and the completion callback receives both records;
// otherwise nothing changes and a validation error is returned.
func (f *Flow) Finish() (Pair, error) {
	f.mu.Lock()
	switch f.step {
	case StepClosed:
		f.mu.Unlock()
		return Pair{}, ErrClosed
	case StepAuthorised:
	default:
		f.mu.Unlock()
		return Pair{}, ErrWrongStep
	}
	if err := model.ValidateSignature("authorised_by", f.authorised); err != nil {
		f.mu.Unlock()
		return Pair{}, err
	}
	pair := Pair{InspectedBy: f.inspected, AuthorisedBy: f.authorised}
	f.resetLocked()
	cb := f.onComplete
	f.mu.Unlock()

	if cb != nil {
		cb(pair)
	}
	return pair, nil
}

// Close abandons the session and discards all working state.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

func (f *Flow) resetLocked() {
	f.step = StepClosed
	f.inspected = model.SignatureRecord{}
	f.authorised = model.SignatureRecord{}
	f.sameAs = false
}

func (f *Flow) activeLocked() (*model.SignatureRecord, error) {
	switch f.step {
	case StepInspected:
		return &f.inspected, nil
	case StepAuthorised:
		return &f.authorised, nil
	}
	return nil, ErrClosed
}

func (f *Flow) copyInspectedLocked() {
	f.authorised.Name = f.inspected.Name
	f.authorised.Company = f.inspected.Company
	f.authorised.Signature = f.inspected.Signature
	f.authorised.Position = f.inspected.Position
	f.authorised.Address = f.inspected.Address
	f.authorised.MembershipNo = f.inspected.MembershipNo
	f.authorised.Date = f.today()
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		Step:            f.step,
		InspectedBy:     f.inspected,
		AuthorisedBy:    f.authorised,
		SameAsInspected: f.sameAs,
	}
	switch f.step {
	case StepInspected:
		s.CanAdvance = f.inspected.Valid()
	case StepAuthorised:
		s.CanAdvance = f.authorised.Valid()
	}
	return s
}

func (f *Flow) today() string {
	return f.clock.Now().Format(time.DateOnly)
}
