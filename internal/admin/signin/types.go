package signin

import (
	"context"
	"errors"
	"time"
)

// ErrBusy is returned by Submit when the form already has a verification call in flight.
var ErrBusy = errors.New("signin: submission already in progress")

// State describes where a sign-in form is in its submit lifecycle.
type State int

const (
	// StateIdle is the initial state and the state after every settled submission.
	StateIdle State = iota
	// StateSubmitting is held while a verification call is outstanding.
	StateSubmitting
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

// Credentials is the email/password pair handed to the authentication backend.
type Credentials struct {
	Email    string
	Password string
}

// Session is what the authentication backend establishes on a successful sign-in.
type Session struct {
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
	Roles       []string
}

// Verifier checks an email/password pair against the authentication backend.
type Verifier interface {
	SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(context.Context, Credentials) (*Session, error)

// SignInWithPassword implements Verifier.
func (f VerifierFunc) SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error) {
	return f(ctx, creds)
}

// Failure is the structured error carried by an unsuccessful Result.
// Message is always safe to show to the user and never empty.
type Failure struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the backend error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Result is the settled outcome of one submission. Exactly one of Session or Failure is set.
type Result struct {
	Session *Session
	Failure *Failure
}

// OK reports whether the submission succeeded.
func (r Result) OK() bool {
	return r.Session != nil && r.Failure == nil
}

// Variant selects how a notification is styled.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient message shown to the user.
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier displays notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(context.Context, Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Navigator moves the user to another route.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(context.Context, string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

// Effects bundles the boundaries one submission reports to. Messages overrides the
// controller's texts for this submission, typically with a localized set.
type Effects struct {
	Notifier  Notifier
	Navigator Navigator
	Messages  *Messages
}

// Messages holds the user-facing texts produced by the controller.
type Messages struct {
	SuccessTitle       string
	SuccessDescription string
	FailureTitle       string
	Timeout            string
	Canceled           string
	Unknown            string
}

// DefaultMessages returns the Indonesian texts used by the admin screen.
func DefaultMessages() Messages {
	return Messages{
		SuccessTitle:       "Login berhasil",
		SuccessDescription: "Anda berhasil masuk ke sistem",
		FailureTitle:       "Login gagal",
		Timeout:            "Layanan autentikasi tidak merespons. Silakan coba lagi.",
		Canceled:           "Permintaan login dibatalkan.",
		Unknown:            "Terjadi kesalahan yang tidak diketahui.",
	}
}

func (m Messages) withDefaults() Messages {
	def := DefaultMessages()
	if m.SuccessTitle == "" {
		m.SuccessTitle = def.SuccessTitle
	}
	if m.SuccessDescription == "" {
		m.SuccessDescription = def.SuccessDescription
	}
	if m.FailureTitle == "" {
		m.FailureTitle = def.FailureTitle
	}
	if m.Timeout == "" {
		m.Timeout = def.Timeout
	}
	if m.Canceled == "" {
		m.Canceled = def.Canceled
	}
	if m.Unknown == "" {
		m.Unknown = def.Unknown
	}
	return m
}
