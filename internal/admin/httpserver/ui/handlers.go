package ui

import (
	"net/http"

	"github.com/a-h/templ"

	custommw "doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
	"doughstock.app/optimizer-admin/internal/admin/templates/home"
	"doughstock.app/optimizer-admin/internal/admin/templates/partials"
)

// Handlers exposes HTTP handlers for signed-in admin pages.
type Handlers struct {
	basePath string
}

// NewHandlers wires the UI handler set.
func NewHandlers(basePath string) *Handlers {
	return &Handlers{basePath: custommw.NormalizeBase(basePath)}
}

// Home renders the landing page and drains queued toasts.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	user, ok := custommw.UserFromContext(r.Context())
	if !ok || user == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var flashes []appsession.Flash
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		flashes = sess.PopFlashes()
	}

	email := user.Email
	if email == "" {
		email = user.UID
	}

	payload := home.PageData{
		Email:      email,
		LogoutPath: custommw.JoinBase(h.basePath, "/logout"),
		CSRFToken:  custommw.CSRFTokenFromContext(r.Context()),
		Toasts:     Toasts(flashes),
	}
	templ.Handler(home.Index(payload)).ServeHTTP(w, r)
}

// Toasts converts session flashes into toast partial data.
func Toasts(flashes []appsession.Flash) []partials.ToastData {
	out := make([]partials.ToastData, 0, len(flashes))
	for _, f := range flashes {
		out = append(out, partials.ToastData{
			Title:       f.Title,
			Description: f.Description,
			Variant:     f.Variant,
		})
	}
	return out
}
