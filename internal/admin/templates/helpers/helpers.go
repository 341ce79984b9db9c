package helpers

import (
	"context"
	"strings"

	"doughstock.app/optimizer-admin/internal/admin/httpserver/middleware"
	"doughstock.app/optimizer-admin/internal/admin/i18n"
)

// T translates key for the request language.
func T(ctx context.Context, key string, args ...any) string {
	return i18n.FromContext(ctx).T(key, args...)
}

// Lang returns the negotiated request language for the html lang attribute.
func Lang(ctx context.Context) string {
	return i18n.FromContext(ctx).Lang()
}

// BasePath returns the configured admin base path.
func BasePath(ctx context.Context) string {
	return middleware.BasePathFromContext(ctx)
}

// Route joins route onto the admin base path.
func Route(ctx context.Context, route string) string {
	return middleware.JoinBase(BasePath(ctx), route)
}

// StaticPath returns the URL of an embedded asset.
func StaticPath(ctx context.Context, name string) string {
	return Route(ctx, "/public/static/"+strings.TrimLeft(name, "/"))
}

// CSRFToken returns the token to embed in forms.
func CSRFToken(ctx context.Context) string {
	return middleware.CSRFTokenFromContext(ctx)
}

// EnvironmentLabel returns the deployment label shown in the header badge.
func EnvironmentLabel(ctx context.Context) string {
	return middleware.EnvironmentFromContext(ctx)
}

// ShowEnvironment reports whether the environment badge should render.
func ShowEnvironment(ctx context.Context) bool {
	return !middleware.IsProduction(EnvironmentLabel(ctx))
}

// ToastRole maps a toast variant onto its ARIA role. Destructive toasts interrupt.
func ToastRole(variant string) string {
	if variant == "destructive" {
		return "alert"
	}
	return "status"
}

// ToastVariant normalises empty variants to "default".
func ToastVariant(variant string) string {
	if strings.TrimSpace(variant) == "" {
		return "default"
	}
	return variant
}
