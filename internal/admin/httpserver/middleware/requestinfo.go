package middleware

import (
	"context"
	"net/http"
	"strings"
)

type requestInfoKeyType int

const requestInfoKey requestInfoKeyType = iota

// RequestInfo holds lightweight request metadata exposed to templates.
type RequestInfo struct {
	Path      string
	BasePath  string
	LoginPath string
	Method    string
}

// RequestInfoMiddleware annotates the context with the current request path,
// the admin base path and the login route.
func RequestInfoMiddleware(basePath, loginPath string) func(http.Handler) http.Handler {
	base := NormalizeBase(basePath)
	login := JoinBase(base, loginPath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := &RequestInfo{
				Path:      r.URL.Path,
				Method:    r.Method,
				BasePath:  base,
				LoginPath: login,
			}
			ctx := context.WithValue(r.Context(), requestInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestInfoFromContext returns the request metadata stored by RequestInfoMiddleware.
func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(*RequestInfo)
	return info, ok && info != nil
}

// BasePathFromContext returns the resolved admin base path or "/" when unavailable.
func BasePathFromContext(ctx context.Context) string {
	if info, ok := RequestInfoFromContext(ctx); ok && info.BasePath != "" {
		return info.BasePath
	}
	return "/"
}

// LoginPathFromContext returns the login route or "/auth" when unavailable.
func LoginPathFromContext(ctx context.Context) string {
	if info, ok := RequestInfoFromContext(ctx); ok && info.LoginPath != "" {
		return info.LoginPath
	}
	return "/auth"
}

// NormalizeBase returns base with a leading slash and no trailing slash, or "/".
func NormalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return "/"
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if base != "/" {
		base = strings.TrimRight(base, "/")
		if base == "" {
			return "/"
		}
	}
	return base
}

// JoinBase joins a route onto a normalized base path.
func JoinBase(base, route string) string {
	base = NormalizeBase(base)
	route = strings.TrimSpace(route)
	if route == "" || route == "/" {
		return base
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if base == "/" {
		return route
	}
	return base + route
}
