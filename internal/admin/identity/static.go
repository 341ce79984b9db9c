package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"doughstock.app/optimizer-admin/internal/admin/signin"
)

const (
	providerStatic = "static"

	defaultStaticTTL = 8 * time.Hour
)

const invalidCredentials = "Invalid login credentials"

// StaticVerifier checks credentials against an in-memory table of bcrypt hashes
// and issues opaque bearer tokens. It is meant for local development.
type StaticVerifier struct {
	users map[string][]byte
	dummy []byte
	ttl   time.Duration
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]signin.Session
}

// StaticOption customises a StaticVerifier.
type StaticOption func(*StaticVerifier)

// WithStaticTTL sets the lifetime of issued tokens.
func WithStaticTTL(d time.Duration) StaticOption {
	return func(v *StaticVerifier) {
		if d > 0 {
			v.ttl = d
		}
	}
}

// WithStaticClock injects the time source.
func WithStaticClock(now func() time.Time) StaticOption {
	return func(v *StaticVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewStaticVerifier builds a verifier from an email to bcrypt hash table.
func NewStaticVerifier(users map[string]string, opts ...StaticOption) (*StaticVerifier, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("identity: static users are required: %w", ErrNotConfigured)
	}
	table := make(map[string][]byte, len(users))
	for email, hash := range users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("identity: static user %q: invalid bcrypt hash: %w", email, err)
		}
		table[email] = []byte(hash)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("doughstock"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("identity: static verifier: %w", err)
	}
	v := &StaticVerifier{
		users:  table,
		dummy:  dummy,
		ttl:    defaultStaticTTL,
		now:    time.Now,
		tokens: make(map[string]signin.Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// ParseStaticUsers parses "email:hash,email:hash" into a table.
func ParseStaticUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, hash, ok := strings.Cut(entry, ":")
		email = strings.TrimSpace(email)
		hash = strings.TrimSpace(hash)
		if !ok || email == "" || hash == "" {
			return nil, fmt.Errorf("identity: static user entry %q must be email:bcrypt-hash", entry)
		}
		users[email] = hash
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("identity: no static users: %w", ErrNotConfigured)
	}
	return users, nil
}

// SignInWithPassword implements signin.Verifier.
func (v *StaticVerifier) SignInWithPassword(ctx context.Context, creds signin.Credentials) (*signin.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, ok := v.users[creds.Email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(v.dummy, []byte(creds.Password))
		return nil, rejected()
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, rejected()
		}
		return nil, &Error{Provider: providerStatic, Code: "hash_error", Message: invalidCredentials, Err: err}
	}

	token, err := newToken()
	if err != nil {
		return nil, &Error{Provider: providerStatic, Code: "token_error", Message: unreachableMessage, Err: err}
	}
	session := signin.Session{
		UserID:      "static:" + creds.Email,
		Email:       creds.Email,
		AccessToken: token,
		ExpiresAt:   v.now().Add(v.ttl).UTC(),
		Roles:       []string{"admin"},
	}

	v.mu.Lock()
	v.tokens[token] = session
	v.mu.Unlock()

	out := session
	return &out, nil
}

// Lookup returns the session issued for token while it has not expired.
func (v *StaticVerifier) Lookup(token string) (*signin.Session, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	session, ok := v.tokens[token]
	if !ok {
		return nil, false
	}
	if !session.ExpiresAt.IsZero() && !v.now().Before(session.ExpiresAt) {
		delete(v.tokens, token)
		return nil, false
	}
	out := session
	return &out, true
}

// Revoke forgets an issued token.
func (v *StaticVerifier) Revoke(token string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.tokens, strings.TrimSpace(token))
}

func rejected() *Error {
	return &Error{
		Provider: providerStatic,
		Code:     "invalid_credentials",
		Message:  invalidCredentials,
		Status:   http.StatusBadRequest,
	}
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
