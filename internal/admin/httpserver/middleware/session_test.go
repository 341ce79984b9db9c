package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appsession "doughstock.app/optimizer-admin/internal/admin/session"
)

type sessionTestClock struct {
	now time.Time
}

func (c *sessionTestClock) Now() time.Time {
	return c.now
}

func newSessionStoreForTest(t *testing.T, clock *sessionTestClock) *appsession.Manager {
	t.Helper()
	hashKey := []byte("12345678901234567890123456789012")
	blockKey := []byte("abcdefghijklmnopqrstuvwxyzABCDEF")
	store, err := appsession.NewManager(appsession.Config{
		CookieName:  "test_session",
		HashKey:     hashKey,
		BlockKey:    blockKey,
		CookiePath:  "/",
		IdleTimeout: 5 * time.Minute,
		Lifetime:    time.Hour,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("session manager init: %v", err)
	}
	return store
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionMiddlewareLifecycle(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	var ids []string
	handler := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatalf("session missing in context")
		}
		ids = append(ids, sess.ID())
		w.WriteHeader(http.StatusOK)
	}))

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(ids) != 1 || ids[0] == "" {
		t.Fatalf("expected initial session id")
	}
	cookie := findCookie(rec1.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie on first response, got headers %v", rec1.Header().Values("Set-Cookie"))
	}

	clock.now = clock.now.Add(2 * time.Minute)
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if len(ids) != 2 || ids[1] != ids[0] {
		t.Fatalf("expected session id to persist, got %v", ids)
	}

	clock.now = clock.now.Add(10 * time.Minute)
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.AddCookie(findCookie(rec2.Result().Cookies(), "test_session"))
	handler.ServeHTTP(httptest.NewRecorder(), req3)
	if len(ids) != 3 || ids[2] == ids[0] {
		t.Fatalf("expected a fresh session after idle timeout, got %v", ids)
	}
}

func TestSessionCommitsBeforeBody(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	handler := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sess.AddFlash(appsession.Flash{Title: "Login berhasil"})
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	// Result snapshots the headers at the first write.
	cookie := findCookie(rr.Result().Cookies(), "test_session")
	if cookie == nil {
		t.Fatalf("expected session cookie to be written with the headers")
	}

	var flashes []appsession.Flash
	reader := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		flashes = sess.PopFlashes()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	reader.ServeHTTP(httptest.NewRecorder(), req)
	if len(flashes) != 1 || flashes[0].Title != "Login berhasil" {
		t.Fatalf("unexpected flashes %#v", flashes)
	}
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	clock := &sessionTestClock{now: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)}
	store := newSessionStoreForTest(t, clock)

	handler := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sess.Destroy()
		w.WriteHeader(http.StatusSeeOther)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logout", nil))
	cookie := findCookie(rr.Result().Cookies(), "test_session")
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected expired session cookie, got %#v", cookie)
	}
}
