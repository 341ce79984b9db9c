package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"doughstock.app/optimizer-admin/internal/admin/signin"
)

const providerSupabase = "supabase"

// SupabaseClient signs in against a Supabase GoTrue deployment using the
// password grant.
type SupabaseClient struct {
	rest    restClient
	anonKey string
	now     func() time.Time
}

// NewSupabaseClient constructs a client for the project at baseURL
// (for example https://xyz.supabase.co).
func NewSupabaseClient(baseURL, anonKey string, client HTTPClient) (*SupabaseClient, error) {
	if strings.TrimSpace(anonKey) == "" {
		return nil, fmt.Errorf("identity: supabase anon key is required: %w", ErrNotConfigured)
	}
	rest, err := newRESTClient(providerSupabase, baseURL, client)
	if err != nil {
		return nil, err
	}
	return &SupabaseClient{
		rest:    rest,
		anonKey: strings.TrimSpace(anonKey),
		now:     time.Now,
	}, nil
}

type supabaseTokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         supabaseUser `json:"user"`
}

type supabaseUser struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"`
}

type supabaseErrorResponse struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignInWithPassword implements signin.Verifier.
func (c *SupabaseClient) SignInWithPassword(ctx context.Context, creds signin.Credentials) (*signin.Session, error) {
	body := map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}
	req, err := c.rest.newJSONRequest(ctx, "/auth/v1/token", url.Values{"grant_type": {"password"}}, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)

	resp, err := c.rest.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, supabaseError(resp)
	}

	var payload supabaseTokenResponse
	if err := decodeJSON(providerSupabase, resp, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, &Error{Provider: providerSupabase, Code: "missing_token", Message: unreachableMessage, Status: resp.StatusCode}
	}

	return &signin.Session{
		UserID:      payload.User.ID,
		Email:       payload.User.Email,
		AccessToken: payload.AccessToken,
		ExpiresAt:   c.expiry(payload),
		Roles:       metadataRoles(payload.User.AppMetadata),
	}, nil
}

func (c *SupabaseClient) expiry(payload supabaseTokenResponse) time.Time {
	if payload.ExpiresAt > 0 {
		return time.Unix(payload.ExpiresAt, 0).UTC()
	}
	if payload.ExpiresIn > 0 {
		return c.now().Add(time.Duration(payload.ExpiresIn) * time.Second).UTC()
	}
	return time.Time{}
}

func supabaseError(resp *http.Response) error {
	body := readErrorBody(resp)
	var payload supabaseErrorResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = supabaseErrorResponse{}
		}
	}

	message := firstNonEmpty(payload.Msg, payload.ErrorDescription, payload.Message, payload.Error)
	message = cleanMessage(message)
	if message == "" {
		message = fallbackMessage(resp.StatusCode, body)
	}
	return &Error{
		Provider: providerSupabase,
		Code:     firstNonEmpty(payload.ErrorCode, payload.Error),
		Message:  message,
		Status:   resp.StatusCode,
	}
}

func metadataRoles(meta map[string]any) []string {
	if len(meta) == 0 {
		return nil
	}
	if roles := stringSlice(meta["roles"]); len(roles) > 0 {
		return roles
	}
	if role, ok := meta["role"].(string); ok && strings.TrimSpace(role) != "" {
		return []string{strings.TrimSpace(role)}
	}
	return nil
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
