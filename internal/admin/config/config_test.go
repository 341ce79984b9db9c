package config

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func staticEnv() map[string]string {
	return map[string]string{
		"ADMIN_STATIC_USERS": "admin@doughstock.id:$2a$10$abcdefghijklmnopqrstuu",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(staticEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.HTTP.Addr)
	}
	if cfg.HTTP.BasePath != "/" || cfg.HTTP.LoginPath != "/auth" {
		t.Errorf("unexpected paths %q %q", cfg.HTTP.BasePath, cfg.HTTP.LoginPath)
	}
	if cfg.Environment != "Development" {
		t.Errorf("unexpected environment %s", cfg.Environment)
	}
	if cfg.Auth.Provider != ProviderStatic {
		t.Errorf("expected static provider, got %s", cfg.Auth.Provider)
	}
	if cfg.SignIn.Timeout != 15*time.Second {
		t.Errorf("unexpected sign-in timeout %s", cfg.SignIn.Timeout)
	}
	if cfg.SignIn.ScreenIdle != 10*time.Minute {
		t.Errorf("unexpected screen idle %s", cfg.SignIn.ScreenIdle)
	}
	if cfg.RateLimit.PerMinute != 10 || cfg.RateLimit.Burst != 5 {
		t.Errorf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if !cfg.Metrics.Enabled {
		t.Errorf("expected metrics enabled by default")
	}
	if cfg.Locale != "id" || cfg.LogLevel != "info" {
		t.Errorf("unexpected locale/log level %s %s", cfg.Locale, cfg.LogLevel)
	}
	if cfg.Session.HashKey != nil || cfg.Session.BlockKey != nil {
		t.Errorf("expected empty session keys")
	}
}

func TestLoadWithOverrides(t *testing.T) {
	hashKey := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("h", 64)))
	blockKey := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("b", 32)))
	env := map[string]string{
		"ADMIN_HTTP_ADDR":             "127.0.0.1:9000",
		"ADMIN_BASE_PATH":             "/admin",
		"ADMIN_AUTH_PROVIDER":         "Supabase",
		"ADMIN_SUPABASE_URL":          "https://project.supabase.co/",
		"ADMIN_SUPABASE_ANON_KEY":     "anon",
		"ADMIN_SUPABASE_JWT_SECRET":   "secret",
		"ADMIN_SESSION_HASH_KEY":      hashKey,
		"ADMIN_SESSION_BLOCK_KEY":     blockKey,
		"ADMIN_SESSION_COOKIE_SECURE": "yes",
		"ADMIN_SIGNIN_TIMEOUT":        "0",
		"ADMIN_LOGIN_RATE_PER_MINUTE": "30",
		"ADMIN_METRICS_ENABLED":       "off",
		"ADMIN_DEFAULT_LOCALE":        "EN",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" || cfg.HTTP.BasePath != "/admin" {
		t.Errorf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Auth.Provider != ProviderSupabase {
		t.Errorf("expected supabase provider, got %s", cfg.Auth.Provider)
	}
	if cfg.Supabase.URL != "https://project.supabase.co" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Supabase.URL)
	}
	if len(cfg.Session.HashKey) != 64 || len(cfg.Session.BlockKey) != 32 {
		t.Errorf("unexpected key lengths %d %d", len(cfg.Session.HashKey), len(cfg.Session.BlockKey))
	}
	if !cfg.Session.CookieSecure {
		t.Errorf("expected secure cookie")
	}
	if cfg.SignIn.Timeout != 0 {
		t.Errorf("expected timeout disabled, got %s", cfg.SignIn.Timeout)
	}
	if cfg.RateLimit.PerMinute != 30 {
		t.Errorf("unexpected rate %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Metrics.Enabled {
		t.Errorf("expected metrics disabled")
	}
	if cfg.Locale != "en" {
		t.Errorf("expected lowercased locale, got %s", cfg.Locale)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		"# local overrides",
		"ADMIN_STATIC_USERS=admin@doughstock.id:hash",
		`ADMIN_ENVIRONMENT="Staging"`,
		"export ADMIN_LOG_LEVEL=debug",
		"ADMIN_LOGIN_PATH=/masuk",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"ADMIN_LOGIN_PATH": "/login"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Environment != "Staging" {
		t.Errorf("expected quoted value to be unwrapped, got %s", cfg.Environment)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected export prefix to be handled, got %s", cfg.LogLevel)
	}
	if cfg.HTTP.LoginPath != "/login" {
		t.Errorf("expected env map to win over file, got %s", cfg.HTTP.LoginPath)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.env")
	if _, err := Load(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(staticEnv())); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name   string
		env    map[string]string
		fields []string
	}{
		{
			name:   "static without users",
			env:    map[string]string{},
			fields: []string{"Static.Users"},
		},
		{
			name:   "supabase without settings",
			env:    map[string]string{"ADMIN_AUTH_PROVIDER": "supabase"},
			fields: []string{"Supabase.URL", "Supabase.AnonKey", "Supabase.JWTSecret"},
		},
		{
			name:   "firebase without settings",
			env:    map[string]string{"ADMIN_AUTH_PROVIDER": "firebase"},
			fields: []string{"Firebase.APIKey", "Firebase.ProjectID"},
		},
		{
			name:   "unknown provider",
			env:    map[string]string{"ADMIN_AUTH_PROVIDER": "ldap"},
			fields: []string{"Auth.Provider"},
		},
		{
			name: "bad paths and key",
			env: map[string]string{
				"ADMIN_STATIC_USERS":      "a:b",
				"ADMIN_BASE_PATH":         "admin",
				"ADMIN_SESSION_BLOCK_KEY": "short",
			},
			fields: []string{"Session.BlockKey", "HTTP.BasePath"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(WithEnvMap(tc.env), WithoutSystemEnv(), WithEnvFile(""))
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			got := vErr.Fields()
			if strings.Join(got, ",") != strings.Join(tc.fields, ",") {
				t.Fatalf("expected fields %v, got %v", tc.fields, got)
			}
		})
	}
}
