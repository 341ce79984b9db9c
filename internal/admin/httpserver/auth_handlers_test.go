package httpserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	custommw "doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
	"doughstock.app/optimizer-admin/internal/admin/signin"
)

func newTestAuthHandlers(t *testing.T, base string) *authHandlers {
	t.Helper()
	forms := signin.NewRegistry(func() *signin.Controller {
		return signin.NewController(signin.VerifierFunc(nil))
	})
	return newAuthHandlers(forms, nil, base, "")
}

func TestAuthHandlersResolvePaths(t *testing.T) {
	t.Parallel()

	h := newTestAuthHandlers(t, "/admin/")
	require.Equal(t, "/admin", h.basePath)
	require.Equal(t, "/admin/auth", h.loginPath)
	require.Equal(t, "/admin/auth?status=logged_out", h.loginURLWithParams(map[string]string{"status": "logged_out", "empty": " "}))
}

func TestCookieMaxAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h := newTestAuthHandlers(t, "/")
	h.now = func() time.Time { return now }

	require.Equal(t, 0, h.cookieMaxAge(time.Time{}))
	require.Equal(t, 3600, h.cookieMaxAge(now.Add(time.Hour)))
	require.Equal(t, -1, h.cookieMaxAge(now.Add(-time.Second)))
}

func TestToastsForQuery(t *testing.T) {
	t.Parallel()

	bundle, err := i18n.Default(i18n.DefaultLocale)
	require.NoError(t, err)
	l := i18n.NewLocalizer(bundle, "id")

	out := toastsForQuery(l, url.Values{"status": {"logged_out"}})
	require.Len(t, out, 1)
	require.Equal(t, "Anda telah keluar", out[0].Title)

	out = toastsForQuery(l, url.Values{"reason": {"expired"}})
	require.Len(t, out, 1)
	require.Equal(t, "Sesi berakhir", out[0].Title)

	require.Empty(t, toastsForQuery(l, url.Values{}))
}

func TestNavigate(t *testing.T) {
	t.Parallel()

	handler := custommw.HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		navigate(w, r, "/")
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "/", rec.Header().Get("HX-Redirect"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
}

func TestTriggerToastsSendsLastNotification(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth", nil)
	triggerToasts(rec, req, []signin.Notification{
		{Title: "first"},
		{Title: "Login gagal", Description: "Invalid login credentials", Variant: signin.VariantDestructive},
	})

	require.JSONEq(t, `{"toast":{"Title":"Login gagal","Description":"Invalid login credentials","Variant":"destructive"}}`, rec.Header().Get("HX-Trigger"))
}
