package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"go.uber.org/zap"

	custommw "doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/httpserver/ui"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
	"doughstock.app/optimizer-admin/internal/admin/observability"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
	"doughstock.app/optimizer-admin/internal/admin/signin"
	"doughstock.app/optimizer-admin/internal/admin/templates/auth"
	"doughstock.app/optimizer-admin/internal/admin/templates/partials"
)

// TokenRevoker is implemented by verifiers that keep server-side tokens.
type TokenRevoker interface {
	Revoke(token string)
}

type authHandlers struct {
	forms     *signin.Registry
	revoker   TokenRevoker
	basePath  string
	loginPath string
	now       func() time.Time
}

func newAuthHandlers(forms *signin.Registry, revoker TokenRevoker, basePath, loginPath string) *authHandlers {
	if forms == nil {
		panic("auth: sign-in registry is required")
	}
	basePath = custommw.NormalizeBase(basePath)
	if strings.TrimSpace(loginPath) == "" {
		loginPath = custommw.JoinBase(basePath, "/auth")
	}
	return &authHandlers{
		forms:     forms,
		revoker:   revoker,
		basePath:  basePath,
		loginPath: loginPath,
		now:       time.Now,
	}
}

func (h *authHandlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) && !forceLogin(r) {
		http.Redirect(w, r, h.basePath, http.StatusFound)
		return
	}

	l := i18n.FromContext(r.Context())
	toasts := toastsForQuery(l, r.URL.Query())
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		toasts = append(ui.Toasts(sess.PopFlashes()), toasts...)
	}

	data := h.buildLoginPageData(r, "", toasts)
	h.renderLoginPage(w, r, data, http.StatusOK)
}

func (h *authHandlers) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	logger := observability.FromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		h.reject(w, r, "", failureToast(l, "login.unknown"), http.StatusBadRequest, true)
		return
	}

	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	formKey := sess.ID()
	form := h.forms.Form(formKey)

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if form.Busy() {
		h.reject(w, r, email, busyToast(l), http.StatusConflict, false)
		return
	}
	if strings.TrimSpace(email) == "" || password == "" {
		form.SetEmail(email)
		h.reject(w, r, email, failureToast(l, "login.missing_fields"), http.StatusBadRequest, true)
		return
	}

	form.SetEmail(email)
	form.SetPassword(password)

	fx := &requestEffects{}
	result, err := form.Submit(r.Context(), fx.effects(localizedMessages(l)))
	if errors.Is(err, signin.ErrBusy) {
		h.reject(w, r, email, busyToast(l), http.StatusConflict, false)
		return
	}

	if !result.OK() {
		form.SetPassword("")
		h.renderFailure(w, r, form.Email(), fx.toasts)
		return
	}

	h.forms.Release(formKey)
	if err := sess.Renew(h.now()); err != nil {
		logger.Warn("session renew failed", zap.Error(err))
	}
	established := result.Session
	sess.SetUser(&appsession.User{
		UID:   established.UserID,
		Email: established.Email,
		Roles: append([]string(nil), established.Roles...),
	})
	flashToasts(sess, fx.toasts)
	custommw.SetAuthCookie(w, r, established.AccessToken, h.cookieMaxAge(established.ExpiresAt))

	target := h.basePath
	if fx.navigated() {
		target = custommw.JoinBase(h.basePath, fx.target)
	}
	navigate(w, r, target)
}

func (h *authHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		h.forms.Release(sess.ID())
		sess.Destroy()
	}
	if h.revoker != nil {
		if token := custommw.RequestToken(r); token != "" {
			h.revoker.Revoke(token)
		}
	}
	custommw.ClearAuthCookie(w, r)

	navigate(w, r, h.loginURLWithParams(map[string]string{"status": "logged_out"}))
}

// RateLimited answers a throttled login submission.
func (h *authHandlers) RateLimited(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	h.reject(w, r, r.PostFormValue("email"), failureToast(l, "login.rate_limited"), http.StatusTooManyRequests, false)
}

// reject reports a submission that never reached the verifier. htmx requests
// get the toast as an HX-Trigger event, swapping the form only when swapForm is
// set; plain posts get the full page with the toast inline.
func (h *authHandlers) reject(w http.ResponseWriter, r *http.Request, email string, toast signin.Notification, status int, swapForm bool) {
	if custommw.IsHTMXRequest(r.Context()) {
		triggerToasts(w, r, []signin.Notification{toast})
		if !swapForm {
			w.Header().Set("HX-Reswap", "none")
			w.WriteHeader(status)
			return
		}
		h.renderLoginForm(w, r, h.buildLoginPageData(r, email, nil), status)
		return
	}
	data := h.buildLoginPageData(r, email, []partials.ToastData{toastData(toast)})
	h.renderLoginPage(w, r, data, status)
}

func (h *authHandlers) renderFailure(w http.ResponseWriter, r *http.Request, email string, toasts []signin.Notification) {
	if custommw.IsHTMXRequest(r.Context()) {
		triggerToasts(w, r, toasts)
		h.renderLoginForm(w, r, h.buildLoginPageData(r, email, nil), http.StatusUnauthorized)
		return
	}
	h.renderLoginPage(w, r, h.buildLoginPageData(r, email, toastsData(toasts)), http.StatusUnauthorized)
}

func (h *authHandlers) buildLoginPageData(r *http.Request, email string, toasts []partials.ToastData) auth.LoginPageData {
	busy := false
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		if form, ok := h.forms.Lookup(sess.ID()); ok {
			busy = form.Busy()
		}
	}
	return auth.LoginPageData{
		Email:     email,
		Busy:      busy,
		LoginPath: h.loginPath,
		CSRFToken: custommw.CSRFTokenFromContext(r.Context()),
		Toasts:    toasts,
	}
}

func (h *authHandlers) renderLoginPage(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	templ.Handler(auth.LoginPage(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) renderLoginForm(w http.ResponseWriter, r *http.Request, data auth.LoginPageData, status int) {
	templ.Handler(auth.LoginForm(data), templ.WithStatus(status)).ServeHTTP(w, r)
}

func (h *authHandlers) isAuthenticated(r *http.Request) bool {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		return false
	}
	user := sess.User()
	return user != nil && strings.TrimSpace(user.UID) != "" && custommw.RequestToken(r) != ""
}

func (h *authHandlers) cookieMaxAge(expiresAt time.Time) int {
	if expiresAt.IsZero() {
		return 0
	}
	remaining := expiresAt.Sub(h.now())
	if remaining <= 0 {
		return -1
	}
	return int(remaining.Round(time.Second).Seconds())
}

func (h *authHandlers) loginURLWithParams(params map[string]string) string {
	parsed, err := url.Parse(h.loginPath)
	if err != nil {
		return h.loginPath
	}
	q := parsed.Query()
	for key, val := range params {
		if strings.TrimSpace(val) == "" {
			continue
		}
		q.Set(key, val)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func busyToast(l i18n.Localizer) signin.Notification {
	return signin.Notification{
		Title:       l.T("login.failure_title"),
		Description: l.T("login.busy"),
		Variant:     signin.VariantDefault,
	}
}

func toastsForQuery(l i18n.Localizer, q url.Values) []partials.ToastData {
	if q.Get("status") == "logged_out" {
		return []partials.ToastData{{
			Title:       l.T("login.logged_out_title"),
			Description: l.T("login.logged_out_description"),
			Variant:     string(signin.VariantDefault),
		}}
	}
	switch q.Get("reason") {
	case "expired", custommw.ReasonTokenExpired:
		return []partials.ToastData{{
			Title:       l.T("login.expired_title"),
			Description: l.T("login.expired_description"),
			Variant:     string(signin.VariantDefault),
		}}
	}
	return nil
}

func forceLogin(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("force"))) {
	case "1", "true", "yes", "force":
		return true
	default:
		return false
	}
}
