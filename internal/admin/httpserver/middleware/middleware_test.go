package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"doughstock.app/optimizer-admin/internal/admin/i18n"
)

type mockAuthenticator struct {
	token string
	user  *User
	err   error
}

func (m *mockAuthenticator) Authenticate(_ *http.Request, token string) (*User, error) {
	if token != m.token {
		return nil, ErrUnauthorized
	}
	return m.user, m.err
}

func TestAuthMiddleware(t *testing.T) {
	auth := &mockAuthenticator{
		token: "valid",
		user:  &User{UID: "user-1", Email: "admin@doughstock.id"},
	}

	handler := HTMX()(Auth(auth, "/auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			t.Fatalf("expected user in context")
		}
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("missing token redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if location := rr.Header().Get("Location"); location != "/auth" {
			t.Fatalf("expected redirect to /auth, got %s", location)
		}
	})

	t.Run("htmx unauthorized returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("HX-Request", "true")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rr.Code)
		}
		if rr.Header().Get("HX-Redirect") != "/auth" {
			t.Fatalf("expected HX-Redirect header to /auth")
		}
	})

	t.Run("valid token passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer valid")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("token from cookie passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: url.QueryEscape("Bearer valid")})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("expired token redirects with reason", func(t *testing.T) {
		auth.err = NewAuthError(ReasonTokenExpired, errors.New("expired"))
		defer func() { auth.err = nil }()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer valid")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if location := rr.Header().Get("Location"); location != "/auth?reason=expired" {
			t.Fatalf("unexpected redirect %s", location)
		}
		cleared := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == AuthCookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Fatalf("expected auth cookie to be cleared")
		}
	})
}

func TestAuthMiddlewareStoresSessionUser(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)
	auth := &mockAuthenticator{
		token: "valid",
		user:  &User{UID: "user-1", Email: "admin@doughstock.id", Roles: []string{"admin"}},
	}

	handler := Session(store)(Auth(auth, "/auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		if u := sess.User(); u == nil || u.Email != "admin@doughstock.id" {
			t.Fatalf("expected session user, got %#v", u)
		}
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	mw := CSRF(CSRFConfig{CookieName: "csrf", HeaderName: "X-CSRF-Token"})

	var issued string
	t.Run("issues cookie on GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		rr := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			issued = CSRFTokenFromContext(r.Context())
			if issued == "" {
				t.Fatalf("expected token in context")
			}
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		found := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == "csrf" && c.Value == issued {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected csrf cookie to be set")
		}
	})

	ok := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects POST without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: issued})
		rr := httptest.NewRecorder()
		ok.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("accepts header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: issued})
		req.Header.Set("X-CSRF-Token", issued)
		rr := httptest.NewRecorder()
		ok.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("accepts form field token", func(t *testing.T) {
		form := url.Values{CSRFFormField: {issued}, "email": {"a@b.c"}}
		req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: "csrf", Value: issued})
		rr := httptest.NewRecorder()
		ok.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("rejects mismatched token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.AddCookie(&http.Cookie{Name: "csrf", Value: issued})
		req.Header.Set("X-CSRF-Token", issued+"x")
		rr := httptest.NewRecorder()
		ok.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}

func TestCSRFUsesSessionToken(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	var token string
	handler := Session(store)(CSRF(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		token = CSRFTokenFromContext(r.Context())
		if token == "" || token != sess.CSRFToken() {
			t.Fatalf("expected session csrf token, got %q vs %q", token, sess.CSRFToken())
		}
		w.WriteHeader(http.StatusOK)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth", nil))
	for _, c := range rr.Result().Cookies() {
		if c.Name == "doughstock_csrf" {
			t.Fatalf("csrf cookie should not be issued when a session is present")
		}
	}
	cookie := findCookie(rr.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.AddCookie(cookie)
	req.Header.Set("X-CSRF-Token", token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHTMXMiddleware(t *testing.T) {
	handler := HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := HTMXInfoFromContext(r.Context())
		if !info.IsHTMX || info.Target != "login-form" {
			t.Fatalf("unexpected htmx info %#v", info)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "login-form")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Header().Get("Vary") != "HX-Request" {
		t.Fatalf("expected Vary header, got %q", rr.Header().Get("Vary"))
	}
}

func TestHXTriggerMergesEvents(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := HXTrigger(rr, "toast", map[string]string{"title": "Login gagal"}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := HXTrigger(rr, "login:reset", nil); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	var events map[string]any
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &events); err != nil {
		t.Fatalf("decode trigger header: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %v", events)
	}
	toast, ok := events["toast"].(map[string]any)
	if !ok || toast["title"] != "Login gagal" {
		t.Fatalf("unexpected toast payload %#v", events["toast"])
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	var limited int
	handler := limiter.Middleware(func(w http.ResponseWriter, r *http.Request) {
		limited++
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
			t.Fatalf("expected Retry-After header")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if limited != 1 {
		t.Fatalf("expected limit handler once, got %d", limited)
	}

	other := httptest.NewRequest(http.MethodPost, "/auth", nil)
	other.RemoteAddr = "198.51.100.2:4000"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, other)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rr.Code)
	}

	now = now.Add(defaultVisitorTTL + time.Second)
	if removed := limiter.Cleanup(); removed != 2 {
		t.Fatalf("expected 2 visitors removed, got %d", removed)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("client") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestNoStore(t *testing.T) {
	rr := httptest.NewRecorder()
	NoStore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth", nil))
	if got := rr.Header().Get("Cache-Control"); got != "no-store, max-age=0" {
		t.Fatalf("unexpected Cache-Control %q", got)
	}
}

func TestLocaleMiddleware(t *testing.T) {
	bundle, err := i18n.Default(i18n.DefaultLocale)
	if err != nil {
		t.Fatalf("load bundle: %v", err)
	}

	var lang string
	handler := Locale(bundle)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang = i18n.FromContext(r.Context()).Lang()
	}))

	t.Run("accept-language", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if lang != "en" || rr.Header().Get("Content-Language") != "en" {
			t.Fatalf("expected en, got %q", lang)
		}
	})

	t.Run("query override sets cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth?lang=id", nil)
		req.Header.Set("Accept-Language", "en")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if lang != "id" {
			t.Fatalf("expected id, got %q", lang)
		}
		if findCookie(rr.Result().Cookies(), LocaleCookieName) == nil {
			t.Fatalf("expected lang cookie")
		}
	})

	t.Run("cookie wins over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		req.Header.Set("Accept-Language", "en")
		req.AddCookie(&http.Cookie{Name: LocaleCookieName, Value: "id"})
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if lang != "id" {
			t.Fatalf("expected id, got %q", lang)
		}
	})

	t.Run("unsupported falls back", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth?lang=xx", nil)
		req.Header.Set("Accept-Language", "fr")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if lang != i18n.DefaultLocale {
			t.Fatalf("expected fallback, got %q", lang)
		}
	})
}

func TestRequestInfoPaths(t *testing.T) {
	cases := []struct {
		base, route, want string
	}{
		{"", "/auth", "/auth"},
		{"/admin/", "auth", "/admin/auth"},
		{"admin", "/", "/admin"},
	}
	for _, tc := range cases {
		if got := JoinBase(tc.base, tc.route); got != tc.want {
			t.Fatalf("JoinBase(%q, %q) = %q, want %q", tc.base, tc.route, got, tc.want)
		}
	}

	handler := RequestInfoMiddleware("/admin", "/auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := LoginPathFromContext(r.Context()); got != "/admin/auth" {
			t.Fatalf("unexpected login path %q", got)
		}
		if got := BasePathFromContext(r.Context()); got != "/admin" {
			t.Fatalf("unexpected base path %q", got)
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/auth", nil))
}
