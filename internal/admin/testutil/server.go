package testutil

import (
	"bytes"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"doughstock.app/optimizer-admin/internal/admin/httpserver"
	"doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/identity"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
	"doughstock.app/optimizer-admin/internal/admin/signin"
)

const (
	// AdminEmail and AdminPassword are accepted by the default static verifier.
	AdminEmail    = "admin@example.com"
	AdminPassword = "roti-tawar-123"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithAuthenticator overrides the authenticator used by the admin server.
func WithAuthenticator(auth middleware.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Authenticator = auth
	}
}

// WithBasePath sets a custom base path for the admin routes.
func WithBasePath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BasePath = path
	}
}

// WithVerifier replaces the sign-in backend.
func WithVerifier(v signin.Verifier) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Verifier = v
	}
}

// WithForms supplies the sign-in screen registry.
func WithForms(forms *signin.Registry) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Forms = forms
	}
}

// WithRateLimiter throttles login submissions.
func WithRateLimiter(l *middleware.RateLimiter) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.RateLimiter = l
	}
}

// WithEnvironment sets the environment label.
func WithEnvironment(env string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Environment = env
	}
}

// StaticVerifier returns a verifier that accepts AdminEmail/AdminPassword.
func StaticVerifier(t testing.TB) *identity.StaticVerifier {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	v, err := identity.NewStaticVerifier(map[string]string{AdminEmail: string(hash)})
	if err != nil {
		t.Fatalf("static verifier: %v", err)
	}
	return v
}

// NewServer constructs an httptest server running the admin HTTP stack with sensible defaults.
// Unless overridden, sign-in uses StaticVerifier and protected pages accept its tokens.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	sessions, err := appsession.NewManager(appsession.Config{
		CookieName:  "doughstock_test_session",
		HashKey:     bytes.Repeat([]byte("h"), 32),
		BlockKey:    bytes.Repeat([]byte("b"), 32),
		IdleTimeout: 30 * time.Minute,
		Lifetime:    12 * time.Hour,
	})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}

	cfg := httpserver.Config{
		Address:        ":0",
		BasePath:       "/",
		LoginPath:      "",
		CSRFCookieName: "csrf_token",
		CSRFHeaderName: "X-CSRF-Token",
		Sessions:       sessions,
		SignInTimeout:  5 * time.Second,
		Environment:    "Test",
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Verifier == nil && cfg.Forms == nil {
		static := StaticVerifier(t)
		cfg.Verifier = static
		if cfg.Authenticator == nil {
			cfg.Authenticator = middleware.NewLookupAuthenticator(static)
		}
	} else if lookup, ok := cfg.Verifier.(middleware.SessionLookup); ok && cfg.Authenticator == nil {
		cfg.Authenticator = middleware.NewLookupAuthenticator(lookup)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns a client with a cookie jar that does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
