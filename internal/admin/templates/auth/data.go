package auth

import "doughstock.app/optimizer-admin/internal/admin/templates/partials"

// LoginPageData encapsulates rendering state for the admin login screen.
type LoginPageData struct {
	Email     string
	Busy      bool
	LoginPath string
	CSRFToken string
	Toasts    []partials.ToastData
}
