package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"doughstock.app/optimizer-admin/internal/admin/config"
	"doughstock.app/optimizer-admin/internal/admin/httpserver"
	"doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
	"doughstock.app/optimizer-admin/internal/admin/identity"
	"doughstock.app/optimizer-admin/internal/admin/observability"
	appsession "doughstock.app/optimizer-admin/internal/admin/session"
	"doughstock.app/optimizer-admin/internal/admin/signin"
)

func main() {
	cfg, err := config.Load(config.WithEnvFile(".env"))
	if err != nil {
		fallback, _ := observability.NewLogger("info")
		fallback.Fatal("load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, err := i18n.Default(cfg.Locale)
	if err != nil {
		logger.Fatal("load translations", zap.Error(err))
	}

	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}

	verifier, authenticator, err := buildIdentity(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("identity provider", zap.Error(err), zap.String("provider", cfg.Auth.Provider))
	}

	serverCfg := httpserver.Config{
		Address:          cfg.HTTP.Addr,
		BasePath:         cfg.HTTP.BasePath,
		LoginPath:        cfg.HTTP.LoginPath,
		Environment:      cfg.Environment,
		Authenticator:    authenticator,
		Verifier:         verifier,
		Sessions:         sessions,
		SignInTimeout:    cfg.SignIn.Timeout,
		ScreenIdle:       cfg.SignIn.ScreenIdle,
		Bundle:           bundle,
		Logger:           logger,
		CSRFCookieSecure: cfg.Session.CookieSecure,
		ReadTimeout:      cfg.HTTP.ReadTimeout,
		WriteTimeout:     cfg.HTTP.WriteTimeout,
		IdleTimeout:      cfg.HTTP.IdleTimeout,
	}
	if cfg.Metrics.Enabled {
		reg := observability.NewRegistry()
		serverCfg.Metrics = reg
		serverCfg.SignInMetrics = signin.NewMetrics(reg)
	}
	if cfg.RateLimit.PerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
		go limiter.Run(ctx)
		serverCfg.RateLimiter = limiter
	}

	forms := httpserver.NewForms(serverCfg)
	go forms.Run(ctx, time.Minute)
	serverCfg.Forms = forms

	srv, err := httpserver.New(serverCfg)
	if err != nil {
		logger.Fatal("build http server", zap.Error(err))
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("admin server listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("base_path", cfg.HTTP.BasePath),
		zap.String("provider", cfg.Auth.Provider),
		zap.String("environment", cfg.Environment),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}

func buildSessions(cfg config.Config, logger *zap.Logger) (*appsession.Manager, error) {
	hashKey, blockKey := cfg.Session.HashKey, cfg.Session.BlockKey
	if len(hashKey) == 0 {
		logger.Warn("ADMIN_SESSION_HASH_KEY not set; generating an ephemeral key, sessions will not survive restarts")
		hashKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		logger.Warn("ADMIN_SESSION_BLOCK_KEY not set; generating an ephemeral key")
		blockKey = securecookie.GenerateRandomKey(32)
	}
	return appsession.NewManager(appsession.Config{
		CookieName:   "doughstock_admin_session",
		HashKey:      hashKey,
		BlockKey:     blockKey,
		CookiePath:   "/",
		CookieSecure: cfg.Session.CookieSecure,
		IdleTimeout:  cfg.Session.IdleTimeout,
		Lifetime:     cfg.Session.Lifetime,
	})
}

func buildIdentity(ctx context.Context, cfg config.Config, logger *zap.Logger) (signin.Verifier, middleware.Authenticator, error) {
	switch cfg.Auth.Provider {
	case config.ProviderSupabase:
		client, err := identity.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.AnonKey, &http.Client{Timeout: cfg.SignIn.Timeout})
		if err != nil {
			return nil, nil, err
		}
		opts := []middleware.SupabaseAuthOption{
			middleware.WithSupabaseSecret(cfg.Supabase.JWTSecret),
			middleware.WithSupabaseIssuer(cfg.Supabase.URL + "/auth/v1"),
		}
		if cfg.Supabase.JWKSURL != "" {
			opts = append(opts, middleware.WithSupabaseKeys(middleware.NewJWKSCache(cfg.Supabase.JWKSURL,
				middleware.WithJWKSLogger(logger.Named("jwks")),
			)))
		}
		authenticator, err := middleware.NewSupabaseAuthenticator(opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("supabase identity enabled", zap.String("url", cfg.Supabase.URL))
		return client, authenticator, nil

	case config.ProviderFirebase:
		var appOpts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			appOpts = append(appOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, appOpts...)
		if err != nil {
			return nil, nil, err
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			return nil, nil, err
		}
		client, err := identity.NewFirebaseClient(cfg.Firebase.APIKey, identity.WithTokenVerifier(authClient))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("firebase identity enabled", zap.String("project", cfg.Firebase.ProjectID))
		return client, middleware.NewFirebaseAuthenticator(authClient), nil

	default:
		users, err := identity.ParseStaticUsers(cfg.Static.Users)
		if err != nil {
			return nil, nil, err
		}
		static, err := identity.NewStaticVerifier(users, identity.WithStaticTTL(cfg.Session.Lifetime))
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("static identity provider enabled; intended for local development", zap.Int("users", len(users)))
		return static, middleware.NewLookupAuthenticator(static), nil
	}
}
