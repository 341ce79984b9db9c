package ui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
)

func TestHomeRequiresUser(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHandlers("/").Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHomeRendersUser(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &middleware.User{UID: "uid-7"}))
	rec := httptest.NewRecorder()

	NewHandlers("/admin/").Home(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	require.Equal(t, "uid-7", doc.Find("[data-user-email]").Text())
	require.Equal(t, "/admin/logout", doc.Find("form[data-logout]").AttrOr("action", ""))
	require.Equal(t, 0, doc.Find("#toast-stack [data-toast]").Length())
}

func TestToastsFromFlashes(t *testing.T) {
	t.Parallel()

	got := Toasts([]appsession.Flash{
		{Title: "Login berhasil", Description: "Anda berhasil masuk ke sistem", Variant: "default"},
		{Title: "Login gagal", Variant: "destructive"},
	})

	require.Len(t, got, 2)
	require.Equal(t, "Anda berhasil masuk ke sistem", got[0].Description)
	require.Equal(t, "destructive", got[1].Variant)
	require.Empty(t, Toasts(nil))
}
