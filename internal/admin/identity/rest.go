package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxErrorBody = 1 << 16

type restClient struct {
	provider string
	base     *url.URL
	client   HTTPClient
}

func newRESTClient(provider, baseURL string, client HTTPClient) (restClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return restClient{}, fmt.Errorf("identity: %s base URL is required: %w", provider, ErrNotConfigured)
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return restClient{}, fmt.Errorf("identity: parse %s base URL: %w", provider, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return restClient{}, fmt.Errorf("identity: %s base URL must be absolute: %q", provider, baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return restClient{provider: provider, base: parsed, client: client}, nil
}

func (c restClient) resolve(endpoint string, query url.Values) string {
	trimmed := strings.TrimPrefix(endpoint, "/")
	base := *c.base
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref := &url.URL{Path: trimmed}
	resolved := base.ResolveReference(ref)
	if len(query) > 0 {
		resolved.RawQuery = query.Encode()
	}
	return resolved.String()
}

func (c restClient) newJSONRequest(ctx context.Context, endpoint string, query url.Values, payload any) (*http.Request, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("identity: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(endpoint, query), &buf)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c restClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError(c.provider, err)
	}
	return resp, nil
}

func decodeJSON(provider string, resp *http.Response, dst any) error {
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &Error{Provider: provider, Code: "empty_response", Message: unreachableMessage, Status: resp.StatusCode}
		}
		return fmt.Errorf("identity: %s: decode response: %w", provider, err)
	}
	return nil
}

func readErrorBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return bytes.TrimSpace(body)
}

func fallbackMessage(status int, body []byte) string {
	if len(body) > 0 && !json.Valid(body) {
		if msg := cleanMessage(string(body)); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return unreachableMessage
}
