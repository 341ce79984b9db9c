package identity

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrNotConfigured is returned when a provider is selected without its required settings.
var ErrNotConfigured = errors.New("identity: provider is not configured")

// HTTPClient matches the subset of http.Client used by the REST clients.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Error describes a rejected or failed sign-in call. Message is the text the
// backend reported, stripped of markup, and is what the login screen shows.
type Error struct {
	Provider string
	Code     string
	Message  string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("identity: ")
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	switch {
	case e.Code != "" && e.Status > 0:
		fmt.Fprintf(&b, "backend error (%s, %d)", e.Code, e.Status)
	case e.Code != "":
		fmt.Fprintf(&b, "backend error (%s)", e.Code)
	case e.Status > 0:
		fmt.Fprintf(&b, "backend error (%d)", e.Status)
	default:
		b.WriteString("backend error")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the transport error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DisplayMessage returns the user-facing message.
func (e *Error) DisplayMessage() string {
	if e == nil {
		return ""
	}
	return e.Message
}

var textPolicy = bluemonday.StrictPolicy()

// cleanMessage reduces a backend message to plain text.
func cleanMessage(raw string) string {
	cleaned := textPolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

const unreachableMessage = "Tidak dapat menghubungi layanan autentikasi."

func networkError(provider string, err error) *Error {
	return &Error{
		Provider: provider,
		Code:     "network",
		Message:  unreachableMessage,
		Err:      err,
	}
}

// IsInvalidCredentials reports whether err is a backend rejection of the
// submitted email/password pair rather than a transport failure.
func IsInvalidCredentials(err error) bool {
	var idErr *Error
	if !errors.As(err, &idErr) {
		return false
	}
	switch idErr.Code {
	case "invalid_credentials", "invalid_grant", "INVALID_LOGIN_CREDENTIALS", "INVALID_PASSWORD", "EMAIL_NOT_FOUND":
		return true
	}
	return idErr.Status == http.StatusBadRequest && idErr.Code != "network"
}
