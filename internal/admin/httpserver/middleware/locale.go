package middleware

import (
	"net/http"
	"strings"

	"doughstock.app/optimizer-admin/internal/admin/i18n"
)

// LocaleCookieName stores an explicit language choice.
const LocaleCookieName = "lang"

// Locale picks the request language from the ?lang= override, the lang
// cookie, or Accept-Language, in that order, and stores an i18n.Localizer on
// the context.
func Locale(bundle *i18n.Bundle) func(http.Handler) http.Handler {
	if bundle == nil {
		panic("i18n bundle is required")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := ""
			if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("lang"))); q != "" && bundle.Has(q) {
				lang = q
				http.SetCookie(w, &http.Cookie{
					Name:     LocaleCookieName,
					Value:    q,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if lang == "" {
				if c, err := r.Cookie(LocaleCookieName); err == nil && bundle.Has(c.Value) {
					lang = strings.ToLower(strings.TrimSpace(c.Value))
				}
			}
			if lang == "" {
				lang = bundle.Resolve(r.Header.Get("Accept-Language"))
			}

			w.Header().Add("Vary", "Accept-Language")
			w.Header().Set("Content-Language", lang)
			ctx := i18n.WithLocalizer(r.Context(), i18n.NewLocalizer(bundle, lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
