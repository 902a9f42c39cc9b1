package verification

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Status is the UI-visible state of a verification attempt.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusResending
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusResending:
		return "resending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Identity is what a successful verify may hand back to the caller.
type Identity struct {
	ID          int
	Name        string
	Email       string
	Role        string
	Token       string
	TokenExpiry time.Time
}

// Service is the pair of external operations a Session drives. Both are
// backed by the platform API in production and by fakes in tests.
type Service interface {
	// Verify exchanges a complete code for a confirmation that target is
	// verified. Failures should be *Error values.
	Verify(ctx context.Context, target, code string) (Identity, error)
	// Resend requests a new code be dispatched out-of-band to target.
	Resend(ctx context.Context, target string) error
}

var (
	// ErrInFlight rejects a submit or resend while another attempt is
	// outstanding. Without this guard a slow network would let overlapping
	// calls race each other over the shared buffer.
	ErrInFlight = errors.New("verification attempt already in flight")
	// ErrVerified rejects operations on a session that already succeeded;
	// the owner is expected to tear it down.
	ErrVerified = errors.New("session already verified")
	// ErrCooldown rejects a resend while the countdown is still running.
	ErrCooldown = errors.New("resend cooldown has not expired")
)

// Session sequences verification attempts for one target identifier against
// the external verify/resend operations and owns the screen's Buffer and
// Countdown exclusively. A Session belongs to a single goroutine (the UI
// event loop); it is not safe for concurrent use.
//
// Asynchronous owners pair BeginSubmit/FinishSubmit (and BeginResend/
// FinishResend) around their own scheduling; Submit and Resend are blocking
// conveniences that do the pairing inline. Every begun attempt carries a
// generation token and a resolution bearing a stale token is dropped, so a
// late response from a torn-down attempt can never clobber current state.
type Session struct {
	svc    Service
	target string
	window int // resend cooldown, seconds

	buffer    *Buffer
	countdown Countdown

	status     Status
	failure    *Error
	identity   Identity
	generation int
}

// Options configures a Session.
type Options struct {
	// Target is the email or phone the code was sent to. Opaque here.
	Target string
	// Service performs the external verify/resend calls.
	Service Service
	// CodeLength defaults to DefaultCodeLength.
	CodeLength int
	// ResendWindowSeconds is the cooldown armed on mount and after every
	// successful resend.
	ResendWindowSeconds int
}

// NewSession creates the session for one verification screen. The countdown
// starts armed: a code was just dispatched when the screen mounts.
func NewSession(opts Options) *Session {
	s := &Session{
		svc:    opts.Service,
		target: opts.Target,
		window: opts.ResendWindowSeconds,
		buffer: NewBuffer(opts.CodeLength),
	}
	s.countdown.Start(s.window)
	return s
}

func (s *Session) Target() string        { return s.target }
func (s *Session) Buffer() *Buffer       { return s.buffer }
func (s *Session) Countdown() *Countdown { return &s.countdown }
func (s *Session) Status() Status        { return s.status }
func (s *Session) Identity() Identity    { return s.identity }

// Failure returns the last failure, or nil. It is cleared when a new attempt
// begins.
func (s *Session) Failure() *Error { return s.failure }

// InFlight reports whether a verify or resend call is outstanding.
func (s *Session) InFlight() bool {
	return s.status == StatusSubmitting || s.status == StatusResending
}

// Tick forwards the 1-second cadence to the countdown.
func (s *Session) Tick() { s.countdown.Tick() }

// BeginSubmit gates and starts a verification attempt. On success it returns
// the attempt generation and the candidate code; the owner must call
// FinishSubmit with that generation once the verify call resolves. An
// incomplete buffer fails locally without touching the network.
func (s *Session) BeginSubmit() (int, string, error) {
	switch {
	case s.status == StatusSucceeded:
		return 0, "", ErrVerified
	case s.InFlight():
		return 0, "", ErrInFlight
	}
	if !s.buffer.IsComplete() {
		s.failure = errIncomplete()
		s.status = StatusFailed
		return 0, "", s.failure
	}

	s.generation++
	s.status = StatusSubmitting
	s.failure = nil
	return s.generation, s.buffer.Code(), nil
}

// FinishSubmit resolves the attempt started by BeginSubmit. Stale generations
// are dropped. On failure the buffer is cleared and the returned Directive
// refocuses the first cell; on success the buffer is left as typed.
func (s *Session) FinishSubmit(generation int, id Identity, err error) Directive {
	if generation != s.generation || s.status != StatusSubmitting {
		return noFocus
	}
	if err != nil {
		s.status = StatusFailed
		s.failure = AsError(err)
		return s.buffer.Reset()
	}
	s.status = StatusSucceeded
	s.identity = id
	return noFocus
}

// Submit runs a full verification attempt synchronously.
func (s *Session) Submit(ctx context.Context) (Identity, error) {
	generation, code, err := s.BeginSubmit()
	if err != nil {
		return Identity{}, err
	}
	id, err := s.svc.Verify(ctx, s.target, code)
	s.FinishSubmit(generation, id, err)
	if err != nil {
		return Identity{}, AsError(err)
	}
	return id, nil
}

// BeginResend gates and starts a resend. The countdown must have expired and
// nothing may be in flight; rejected resends never reach the external
// operation.
func (s *Session) BeginResend() (int, error) {
	switch {
	case s.status == StatusSucceeded:
		return 0, ErrVerified
	case s.InFlight():
		return 0, ErrInFlight
	case !s.countdown.CanResend():
		return 0, ErrCooldown
	}

	s.generation++
	s.status = StatusResending
	s.failure = nil
	return s.generation, nil
}

// FinishResend resolves the resend started by BeginResend. On success the
// buffer is cleared, the cooldown restarts and focus returns to the first
// cell; the owner shows its own transient notice. On failure the countdown
// is left alone so the user is not granted an extra free attempt.
func (s *Session) FinishResend(generation int, err error) Directive {
	if generation != s.generation || s.status != StatusResending {
		return noFocus
	}
	if err != nil {
		s.status = StatusFailed
		s.failure = AsError(err)
		return noFocus
	}
	s.status = StatusIdle
	s.countdown.Start(s.window)
	return s.buffer.Reset()
}

// Resend runs a full resend synchronously.
func (s *Session) Resend(ctx context.Context) error {
	generation, err := s.BeginResend()
	if err != nil {
		return err
	}
	err = s.svc.Resend(ctx, s.target)
	s.FinishResend(generation, err)
	if err != nil {
		return AsError(err)
	}
	return nil
}
