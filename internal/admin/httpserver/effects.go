package httpserver

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	custommw "doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
	"doughstock.app/optimizer-admin/internal/admin/observability"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
	"doughstock.app/optimizer-admin/internal/admin/signin"
	"doughstock.app/optimizer-admin/internal/admin/templates/partials"
)

// toastEvent is the client-side event toast.js listens for.
const toastEvent = "toast"

// requestEffects buffers what a submission reports so the handler can turn it
// into headers, flashes or inline markup once the outcome is known.
type requestEffects struct {
	toasts []signin.Notification
	target string
}

func (e *requestEffects) Notify(_ context.Context, n signin.Notification) {
	e.toasts = append(e.toasts, n)
}

func (e *requestEffects) Navigate(_ context.Context, path string) {
	e.target = path
}

func (e *requestEffects) navigated() bool {
	return e.target != ""
}

func (e *requestEffects) effects(messages *signin.Messages) signin.Effects {
	return signin.Effects{Notifier: e, Navigator: e, Messages: messages}
}

func localizedMessages(l i18n.Localizer) *signin.Messages {
	return &signin.Messages{
		SuccessTitle:       l.T("login.success_title"),
		SuccessDescription: l.T("login.success_description"),
		FailureTitle:       l.T("login.failure_title"),
		Timeout:            l.T("login.timeout"),
		Canceled:           l.T("login.canceled"),
		Unknown:            l.T("login.unknown"),
	}
}

func toastData(n signin.Notification) partials.ToastData {
	return partials.ToastData{
		Title:       n.Title,
		Description: n.Description,
		Variant:     string(n.Variant),
	}
}

func toastsData(ns []signin.Notification) []partials.ToastData {
	out := make([]partials.ToastData, 0, len(ns))
	for _, n := range ns {
		out = append(out, toastData(n))
	}
	return out
}

func failureToast(l i18n.Localizer, descriptionKey string) signin.Notification {
	return signin.Notification{
		Title:       l.T("login.failure_title"),
		Description: l.T(descriptionKey),
		Variant:     signin.VariantDestructive,
	}
}

// triggerToasts queues notifications as an HX-Trigger event. Only the last
// one is sent; a submission never produces more than one.
func triggerToasts(w http.ResponseWriter, r *http.Request, ns []signin.Notification) {
	if len(ns) == 0 {
		return
	}
	if err := custommw.HXTrigger(w, toastEvent, toastData(ns[len(ns)-1])); err != nil {
		observability.FromContext(r.Context()).Warn("encode toast trigger", zap.Error(err))
	}
}

// flashToasts stores notifications on the session so they survive a redirect.
func flashToasts(sess *appsession.Session, ns []signin.Notification) {
	if sess == nil {
		return
	}
	for _, n := range ns {
		sess.AddFlash(appsession.Flash{
			Title:       n.Title,
			Description: n.Description,
			Variant:     string(n.Variant),
		})
	}
}

// navigate performs the post-submit navigation for htmx and plain form posts.
func navigate(w http.ResponseWriter, r *http.Request, target string) {
	if custommw.IsHTMXRequest(r.Context()) {
		custommw.HXRedirect(w, target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
