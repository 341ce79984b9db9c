package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// KeySource resolves verification keys by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (any, error)
}

// SupabaseAuthenticator validates Supabase access tokens, either HS256 tokens
// signed with the project JWT secret or asymmetric tokens published via JWKS.
type SupabaseAuthenticator struct {
	secret   []byte
	keys     KeySource
	audience string
	issuer   string
	now      func() time.Time
}

// SupabaseAuthOption customises a SupabaseAuthenticator.
type SupabaseAuthOption func(*SupabaseAuthenticator)

// WithSupabaseSecret enables HS256 verification with the project JWT secret.
func WithSupabaseSecret(secret string) SupabaseAuthOption {
	return func(a *SupabaseAuthenticator) {
		if strings.TrimSpace(secret) != "" {
			a.secret = []byte(secret)
		}
	}
}

// WithSupabaseKeys enables RS256/ES256 verification against a key source.
func WithSupabaseKeys(keys KeySource) SupabaseAuthOption {
	return func(a *SupabaseAuthenticator) {
		a.keys = keys
	}
}

// WithSupabaseIssuer requires the iss claim to match.
func WithSupabaseIssuer(issuer string) SupabaseAuthOption {
	return func(a *SupabaseAuthenticator) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithSupabaseClock injects the time source used for expiry checks.
func WithSupabaseClock(now func() time.Time) SupabaseAuthOption {
	return func(a *SupabaseAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewSupabaseAuthenticator constructs the authenticator. At least one of a
// secret or key source is required.
func NewSupabaseAuthenticator(opts ...SupabaseAuthOption) (*SupabaseAuthenticator, error) {
	a := &SupabaseAuthenticator{
		audience: "authenticated",
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if len(a.secret) == 0 && a.keys == nil {
		return nil, errors.New("supabase authenticator: jwt secret or jwks url is required")
	}
	return a, nil
}

type supabaseClaims struct {
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Authenticate implements Authenticator.
func (a *SupabaseAuthenticator) Authenticate(r *http.Request, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "RS256", "ES256"}))
	var claims supabaseClaims
	parsed, err := parser.ParseWithClaims(token, &claims, a.keyfunc(r.Context()))
	if err != nil {
		var validation *jwt.ValidationError
		if errors.As(err, &validation) && validation.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, NewAuthError(ReasonTokenExpired, err)
		}
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}
	if !parsed.Valid {
		return nil, NewAuthError(ReasonTokenInvalid, ErrUnauthorized)
	}

	now := a.now()
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return nil, NewAuthError(ReasonTokenExpired, errors.New("token expired"))
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return nil, NewAuthError(ReasonTokenInvalid, fmt.Errorf("unexpected audience %v", claims.Audience))
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, NewAuthError(ReasonTokenInvalid, fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, NewAuthError(ReasonTokenInvalid, errors.New("token missing subject"))
	}

	var roleClaim any
	if claims.AppMetadata != nil {
		roleClaim = claims.AppMetadata["roles"]
	}
	roles := claimStringSlice(roleClaim)
	if len(roles) == 0 && claims.AppMetadata != nil {
		roles = claimStringSlice(claims.AppMetadata["role"])
	}

	return &User{
		UID:   claims.Subject,
		Email: strings.TrimSpace(claims.Email),
		Roles: roles,
		Token: token,
	}, nil
}

func (a *SupabaseAuthenticator) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			if len(a.secret) == 0 {
				return nil, errors.New("hs256 tokens are not accepted")
			}
			return a.secret, nil
		default:
			if a.keys == nil {
				return nil, fmt.Errorf("%s tokens are not accepted", token.Method.Alg())
			}
			kid, _ := token.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("token missing kid header")
			}
			return a.keys.Key(ctx, kid)
		}
	}
}
