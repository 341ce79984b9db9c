package home

import "doughstock.app/optimizer-admin/internal/admin/templates/partials"

// PageData drives the signed-in landing page.
type PageData struct {
	Email      string
	LogoutPath string
	CSRFToken  string
	Toasts     []partials.ToastData
}
