package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultHTTPAddr        = ":8080"
	defaultBasePath        = "/"
	defaultLoginPath       = "/auth"
	defaultEnvironment     = "Development"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSignInTimeout   = 15 * time.Second
	defaultScreenIdle      = 10 * time.Minute
	defaultRatePerMinute   = 10
	defaultRateBurst       = 5
	defaultLocale          = "id"
	defaultLogLevel        = "info"
	defaultSessionIdle     = 30 * time.Minute
	defaultSessionLifetime = 12 * time.Hour
)

// Auth providers accepted by ADMIN_AUTH_PROVIDER.
const (
	ProviderSupabase = "supabase"
	ProviderFirebase = "firebase"
	ProviderStatic   = "static"
)

// Config captures runtime configuration for the admin console.
type Config struct {
	HTTP        HTTPConfig
	Environment string
	Auth        AuthConfig
	Supabase    SupabaseConfig
	Firebase    FirebaseConfig
	Static      StaticConfig
	Session     SessionConfig
	SignIn      SignInConfig
	RateLimit   RateLimitConfig
	Metrics     MetricsConfig
	Locale      string
	LogLevel    string
}

// HTTPConfig configures the listener and routing prefixes.
type HTTPConfig struct {
	Addr            string
	BasePath        string
	LoginPath       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig selects the sign-in backend.
type AuthConfig struct {
	Provider string
}

// SupabaseConfig holds GoTrue endpoint and token verification settings.
type SupabaseConfig struct {
	URL       string
	AnonKey   string
	JWTSecret string
	JWKSURL   string
}

// FirebaseConfig holds Identity Toolkit settings.
type FirebaseConfig struct {
	ProjectID       string
	APIKey          string
	CredentialsFile string
}

// StaticConfig lists local development accounts as email:bcrypt-hash pairs.
type StaticConfig struct {
	Users string
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	HashKey      []byte
	BlockKey     []byte
	CookieSecure bool
	IdleTimeout  time.Duration
	Lifetime     time.Duration
}

// SignInConfig tunes the sign-in form controllers.
type SignInConfig struct {
	Timeout    time.Duration
	ScreenIdle time.Duration
}

// RateLimitConfig throttles login submissions per client.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile reads KEY=VALUE pairs from path. An empty path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap overrides every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves configuration from defaults, the .env file, the process
// environment and explicit overrides, later sources winning.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	var invalid []string
	keyField := func(key, field string) []byte {
		raw := stringWithDefault(lookup, key, "")
		decoded, err := decodeKey(raw)
		if err != nil {
			invalid = append(invalid, field)
		}
		return decoded
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            stringWithDefault(lookup, "ADMIN_HTTP_ADDR", defaultHTTPAddr),
			BasePath:        stringWithDefault(lookup, "ADMIN_BASE_PATH", defaultBasePath),
			LoginPath:       stringWithDefault(lookup, "ADMIN_LOGIN_PATH", defaultLoginPath),
			ReadTimeout:     durationWithDefault(lookup, "ADMIN_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "ADMIN_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "ADMIN_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "ADMIN_HTTP_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Environment: stringWithDefault(lookup, "ADMIN_ENVIRONMENT", defaultEnvironment),
		Auth: AuthConfig{
			Provider: strings.ToLower(strings.TrimSpace(stringWithDefault(lookup, "ADMIN_AUTH_PROVIDER", ProviderStatic))),
		},
		Supabase: SupabaseConfig{
			URL:       strings.TrimRight(stringWithDefault(lookup, "ADMIN_SUPABASE_URL", ""), "/"),
			AnonKey:   stringWithDefault(lookup, "ADMIN_SUPABASE_ANON_KEY", ""),
			JWTSecret: stringWithDefault(lookup, "ADMIN_SUPABASE_JWT_SECRET", ""),
			JWKSURL:   stringWithDefault(lookup, "ADMIN_SUPABASE_JWKS_URL", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "ADMIN_FIREBASE_PROJECT_ID", ""),
			APIKey:          stringWithDefault(lookup, "ADMIN_FIREBASE_API_KEY", ""),
			CredentialsFile: stringWithDefault(lookup, "ADMIN_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Static: StaticConfig{
			Users: stringWithDefault(lookup, "ADMIN_STATIC_USERS", ""),
		},
		Session: SessionConfig{
			HashKey:      keyField("ADMIN_SESSION_HASH_KEY", "Session.HashKey"),
			BlockKey:     keyField("ADMIN_SESSION_BLOCK_KEY", "Session.BlockKey"),
			CookieSecure: boolWithDefault(lookup, "ADMIN_SESSION_COOKIE_SECURE", false),
			IdleTimeout:  durationWithDefault(lookup, "ADMIN_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:     durationWithDefault(lookup, "ADMIN_SESSION_LIFETIME", defaultSessionLifetime),
		},
		SignIn: SignInConfig{
			Timeout:    durationWithDefault(lookup, "ADMIN_SIGNIN_TIMEOUT", defaultSignInTimeout),
			ScreenIdle: durationWithDefault(lookup, "ADMIN_SCREEN_IDLE", defaultScreenIdle),
		},
		RateLimit: RateLimitConfig{
			PerMinute: intWithDefault(lookup, "ADMIN_LOGIN_RATE_PER_MINUTE", defaultRatePerMinute),
			Burst:     intWithDefault(lookup, "ADMIN_LOGIN_RATE_BURST", defaultRateBurst),
		},
		Metrics: MetricsConfig{
			Enabled: boolWithDefault(lookup, "ADMIN_METRICS_ENABLED", true),
		},
		Locale:   strings.ToLower(stringWithDefault(lookup, "ADMIN_DEFAULT_LOCALE", defaultLocale)),
		LogLevel: strings.ToLower(stringWithDefault(lookup, "ADMIN_LOG_LEVEL", defaultLogLevel)),
	}

	if cfg.Firebase.ProjectID == "" {
		cfg.Firebase.ProjectID = stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		missing = append(missing, "HTTP.Addr")
	}
	if !strings.HasPrefix(cfg.HTTP.BasePath, "/") {
		missing = append(missing, "HTTP.BasePath")
	}
	if !strings.HasPrefix(cfg.HTTP.LoginPath, "/") {
		missing = append(missing, "HTTP.LoginPath")
	}
	if cfg.SignIn.Timeout < 0 {
		missing = append(missing, "SignIn.Timeout")
	}
	if cfg.SignIn.ScreenIdle <= 0 {
		missing = append(missing, "SignIn.ScreenIdle")
	}
	if cfg.RateLimit.PerMinute < 0 {
		missing = append(missing, "RateLimit.PerMinute")
	}
	if cfg.RateLimit.Burst <= 0 {
		missing = append(missing, "RateLimit.Burst")
	}

	switch cfg.Auth.Provider {
	case ProviderSupabase:
		if cfg.Supabase.URL == "" {
			missing = append(missing, "Supabase.URL")
		}
		if cfg.Supabase.AnonKey == "" {
			missing = append(missing, "Supabase.AnonKey")
		}
		if cfg.Supabase.JWTSecret == "" && cfg.Supabase.JWKSURL == "" {
			missing = append(missing, "Supabase.JWTSecret")
		}
	case ProviderFirebase:
		if cfg.Firebase.APIKey == "" {
			missing = append(missing, "Firebase.APIKey")
		}
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	case ProviderStatic:
		if strings.TrimSpace(cfg.Static.Users) == "" {
			missing = append(missing, "Static.Users")
		}
	default:
		missing = append(missing, "Auth.Provider")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

// decodeKey accepts base64 (standard or URL alphabet) and falls back to the raw bytes.
func decodeKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(raw); err == nil && validKeyLength(len(decoded)) {
			return decoded, nil
		}
	}
	if validKeyLength(len(raw)) {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("config: key must decode to 16, 24, 32 or 64 bytes")
}

func validKeyLength(n int) bool {
	switch n {
	case 16, 24, 32, 64:
		return true
	default:
		return false
	}
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
