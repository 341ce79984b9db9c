package middleware

import (
	"net/http"
	"strings"

	"doughstock.app/optimizer-admin/internal/admin/signin"
)

// SessionLookup resolves tokens issued by a verifier that keeps them in memory.
type SessionLookup interface {
	Lookup(token string) (*signin.Session, bool)
}

// LookupAuthenticator accepts tokens its SessionLookup still knows about.
type LookupAuthenticator struct {
	sessions SessionLookup
}

// NewLookupAuthenticator constructs an Authenticator backed by sessions.
func NewLookupAuthenticator(sessions SessionLookup) *LookupAuthenticator {
	if sessions == nil {
		panic("session lookup is required")
	}
	return &LookupAuthenticator{sessions: sessions}
}

// Authenticate implements Authenticator.
func (a *LookupAuthenticator) Authenticate(_ *http.Request, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}
	session, ok := a.sessions.Lookup(token)
	if !ok {
		return nil, NewAuthError(ReasonTokenInvalid, ErrUnauthorized)
	}
	return &User{
		UID:   session.UserID,
		Email: session.Email,
		Roles: append([]string(nil), session.Roles...),
		Token: token,
	}, nil
}
