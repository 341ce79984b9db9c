package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"doughstock.app/optimizer-admin/internal/admin/signin"
)

const (
	providerFirebase = "firebase"

	// DefaultFirebaseEndpoint is the public Identity Toolkit API.
	DefaultFirebaseEndpoint = "https://identitytoolkit.googleapis.com"
)

// FirebaseTokenVerifier validates ID tokens issued by Firebase Authentication.
// *firebase.google.com/go/v4/auth.Client satisfies it.
type FirebaseTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseClient signs in with the Identity Toolkit REST API.
type FirebaseClient struct {
	rest     restClient
	apiKey   string
	verifier FirebaseTokenVerifier
	now      func() time.Time
}

// FirebaseOption customises a FirebaseClient.
type FirebaseOption func(*firebaseOptions)

type firebaseOptions struct {
	endpoint string
	client   HTTPClient
	verifier FirebaseTokenVerifier
}

// WithFirebaseEndpoint overrides the Identity Toolkit base URL, for example to
// target the Auth emulator.
func WithFirebaseEndpoint(endpoint string) FirebaseOption {
	return func(o *firebaseOptions) {
		if strings.TrimSpace(endpoint) != "" {
			o.endpoint = strings.TrimSpace(endpoint)
		}
	}
}

// WithFirebaseHTTPClient sets the HTTP client used for REST calls.
func WithFirebaseHTTPClient(client HTTPClient) FirebaseOption {
	return func(o *firebaseOptions) {
		o.client = client
	}
}

// WithTokenVerifier verifies the returned ID token and copies its role claims.
func WithTokenVerifier(v FirebaseTokenVerifier) FirebaseOption {
	return func(o *firebaseOptions) {
		o.verifier = v
	}
}

// NewFirebaseClient constructs a client for the given web API key.
func NewFirebaseClient(apiKey string, opts ...FirebaseOption) (*FirebaseClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("identity: firebase api key is required: %w", ErrNotConfigured)
	}
	cfg := firebaseOptions{endpoint: DefaultFirebaseEndpoint}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	rest, err := newRESTClient(providerFirebase, cfg.endpoint, cfg.client)
	if err != nil {
		return nil, err
	}
	return &FirebaseClient{
		rest:     rest,
		apiKey:   strings.TrimSpace(apiKey),
		verifier: cfg.verifier,
		now:      time.Now,
	}, nil
}

type firebaseSignInResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	LocalID      string `json:"localId"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	Registered   bool   `json:"registered"`
}

type firebaseErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var firebaseMessages = map[string]string{
	"INVALID_LOGIN_CREDENTIALS":   "Invalid login credentials",
	"INVALID_PASSWORD":            "Invalid login credentials",
	"EMAIL_NOT_FOUND":             "Invalid login credentials",
	"INVALID_EMAIL":               "Invalid email address",
	"MISSING_PASSWORD":            "Password is required",
	"MISSING_EMAIL":               "Email is required",
	"USER_DISABLED":               "User account has been disabled",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts, please try again later",
	"OPERATION_NOT_ALLOWED":       "Password sign-in is disabled for this project",
}

// SignInWithPassword implements signin.Verifier.
func (c *FirebaseClient) SignInWithPassword(ctx context.Context, creds signin.Credentials) (*signin.Session, error) {
	body := map[string]any{
		"email":             creds.Email,
		"password":          creds.Password,
		"returnSecureToken": true,
	}
	req, err := c.rest.newJSONRequest(ctx, "/v1/accounts:signInWithPassword", url.Values{"key": {c.apiKey}}, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.rest.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, firebaseError(resp)
	}

	var payload firebaseSignInResponse
	if err := decodeJSON(providerFirebase, resp, &payload); err != nil {
		return nil, err
	}
	if payload.IDToken == "" {
		return nil, &Error{Provider: providerFirebase, Code: "missing_token", Message: unreachableMessage, Status: resp.StatusCode}
	}

	session := &signin.Session{
		UserID:      payload.LocalID,
		Email:       payload.Email,
		AccessToken: payload.IDToken,
	}
	if secs, err := strconv.ParseInt(strings.TrimSpace(payload.ExpiresIn), 10, 64); err == nil && secs > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(secs) * time.Second).UTC()
	}

	if c.verifier != nil {
		token, err := c.verifier.VerifyIDToken(ctx, payload.IDToken)
		if err != nil {
			return nil, &Error{Provider: providerFirebase, Code: "token_invalid", Message: "ID token could not be verified", Err: err}
		}
		if token.UID != "" {
			session.UserID = token.UID
		}
		if token.Expires > 0 {
			session.ExpiresAt = time.Unix(token.Expires, 0).UTC()
		}
		session.Roles = claimRoles(token.Claims)
	}

	return session, nil
}

func firebaseError(resp *http.Response) error {
	body := readErrorBody(resp)
	var payload firebaseErrorResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = firebaseErrorResponse{}
		}
	}

	raw := strings.TrimSpace(payload.Error.Message)
	code := raw
	detail := ""
	if idx := strings.Index(raw, ":"); idx >= 0 {
		code = strings.TrimSpace(raw[:idx])
		detail = strings.TrimSpace(raw[idx+1:])
	}

	message, ok := firebaseMessages[code]
	if !ok {
		message = firstNonEmpty(detail, strings.ReplaceAll(strings.ToLower(code), "_", " "))
	}
	message = cleanMessage(message)
	if message == "" {
		message = fallbackMessage(resp.StatusCode, body)
	}
	return &Error{
		Provider: providerFirebase,
		Code:     code,
		Message:  message,
		Status:   resp.StatusCode,
	}
}

func claimRoles(claims map[string]interface{}) []string {
	if len(claims) == 0 {
		return nil
	}
	if roles := stringSlice(claims["roles"]); len(roles) > 0 {
		return roles
	}
	if role, ok := claims["role"].(string); ok && strings.TrimSpace(role) != "" {
		return []string{strings.TrimSpace(role)}
	}
	return nil
}
