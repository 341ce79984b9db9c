package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	custommw "doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/httpserver/ui"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
	"doughstock.app/optimizer-admin/internal/admin/observability"
	"doughstock.app/optimizer-admin/internal/admin/signin"
	"doughstock.app/optimizer-admin/public"
)

// Config holds runtime options for the admin HTTP server.
type Config struct {
	Address     string
	BasePath    string
	LoginPath   string
	Environment string

	Authenticator custommw.Authenticator
	Verifier      signin.Verifier
	Sessions      custommw.SessionStore

	// Forms tracks one sign-in screen per browser session. Built from Verifier
	// when nil.
	Forms *signin.Registry
	// SignInTimeout bounds each verification call. Zero disables the bound.
	SignInTimeout time.Duration
	ScreenIdle    time.Duration

	// RateLimiter throttles login submissions per client IP. Nil disables it.
	RateLimiter *custommw.RateLimiter

	Bundle  *i18n.Bundle
	Logger  *zap.Logger
	Metrics *prometheus.Registry
	// SignInMetrics is shared by every controller the default registry builds.
	SignInMetrics *signin.Metrics

	CSRFCookieName   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bundle := cfg.Bundle
	if bundle == nil {
		b, err := i18n.Default(i18n.DefaultLocale)
		if err != nil {
			return nil, err
		}
		bundle = b
	}
	if cfg.Sessions == nil {
		return nil, errMissing("session store")
	}

	forms := cfg.Forms
	if forms == nil {
		if cfg.Verifier == nil {
			return nil, errMissing("sign-in verifier")
		}
		forms = NewForms(cfg)
	}

	basePath := custommw.NormalizeBase(cfg.BasePath)
	loginPath := resolveLoginPath(basePath, cfg.LoginPath)

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = custommw.DefaultAuthenticator()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLogger(logger))
	router.Use(observability.Trace())
	if cfg.Metrics != nil {
		router.Use(observability.NewHTTPMetrics(cfg.Metrics).Instrument)
	}
	router.Use(observability.RequestLogger())
	router.Use(observability.Recovery(logger))
	router.Use(chimw.Timeout(60 * time.Second))

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, err
	}
	staticPrefix := custommw.JoinBase(basePath, "/public/static/")
	router.Handle(staticPrefix+"*", http.StripPrefix(staticPrefix, http.FileServer(http.FS(staticContent))))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		router.Handle("/metrics", observability.MetricsHandler(cfg.Metrics))
	}

	var revoker TokenRevoker
	if r, ok := cfg.Verifier.(TokenRevoker); ok {
		revoker = r
	}

	mountAdminRoutes(router, basePath, routeOptions{
		Authenticator: authenticator,
		LoginPath:     loginPath,
		Environment:   cfg.Environment,
		Bundle:        bundle,
		Sessions:      cfg.Sessions,
		Limiter:       cfg.RateLimiter,
		CSRF: custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			CookiePath: basePath,
			HeaderName: cfg.CSRFHeaderName,
			Secure:     cfg.CSRFCookieSecure,
		},
		Auth: newAuthHandlers(forms, revoker, basePath, loginPath),
		UI:   ui.NewHandlers(basePath),
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}, nil
}

type routeOptions struct {
	Authenticator custommw.Authenticator
	LoginPath     string
	Environment   string
	Bundle        *i18n.Bundle
	Sessions      custommw.SessionStore
	Limiter       *custommw.RateLimiter
	CSRF          custommw.CSRFConfig
	Auth          *authHandlers
	UI            *ui.Handlers
}

func mountAdminRoutes(router chi.Router, base string, opts routeOptions) {
	loginRoute := strings.TrimPrefix(opts.LoginPath, strings.TrimRight(base, "/"))
	if loginRoute == "" || !strings.HasPrefix(loginRoute, "/") {
		loginRoute = "/auth"
	}

	router.Route(base, func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.RequestInfoMiddleware(base, opts.LoginPath))
		r.Use(custommw.Environment(opts.Environment))
		r.Use(custommw.Locale(opts.Bundle))
		r.Use(custommw.Session(opts.Sessions))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get(loginRoute, opts.Auth.LoginForm)
		if opts.Limiter != nil {
			r.With(opts.Limiter.Middleware(opts.Auth.RateLimited)).Post(loginRoute, opts.Auth.LoginSubmit)
		} else {
			r.Post(loginRoute, opts.Auth.LoginSubmit)
		}
		r.Post("/logout", opts.Auth.Logout)

		r.Group(func(protected chi.Router) {
			protected.Use(custommw.Auth(opts.Authenticator, opts.LoginPath))
			protected.Get("/", opts.UI.Home)
		})
	})
}

// NewForms builds the sign-in screen registry described by cfg.
func NewForms(cfg Config) *signin.Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []signin.Option{
		signin.WithLogger(logger.Named("signin")),
		signin.WithMetrics(cfg.SignInMetrics),
		signin.WithTimeout(cfg.SignInTimeout),
	}
	factory := func() *signin.Controller {
		return signin.NewController(cfg.Verifier, opts...)
	}
	var registryOpts []signin.RegistryOption
	if cfg.ScreenIdle > 0 {
		registryOpts = append(registryOpts, signin.WithIdleWindow(cfg.ScreenIdle))
	}
	return signin.NewRegistry(factory, registryOpts...)
}

func resolveLoginPath(base string, override string) string {
	if strings.TrimSpace(override) != "" {
		return custommw.JoinBase(base, override)
	}
	return custommw.JoinBase(base, "/auth")
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

type missingError string

func (e missingError) Error() string { return "httpserver: " + string(e) + " is required" }

func errMissing(what string) error { return missingError(what) }
