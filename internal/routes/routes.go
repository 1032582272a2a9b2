package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/wazgo/internal/auth"
	"github.com/BradenHooton/wazgo/internal/handlers"
	"github.com/BradenHooton/wazgo/internal/middleware"
	"github.com/BradenHooton/wazgo/internal/models"
	"github.com/BradenHooton/wazgo/internal/session"
)

// Dependencies bundles what the router needs to mount every endpoint.
type Dependencies struct {
	Sessions  *session.Manager
	Cookie    session.CookieConfig
	Accounts  auth.AccountReader
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
	Logger    *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", deps.Health.Health)

	router.Group(func(r chi.Router) {
		r.Use(deps.Sessions.Middleware(deps.Cookie, deps.Logger))
		r.Use(middleware.CSRFProtection(deps.Logger))

		// Public routes - no identity required yet
		r.Get("/auth/csrf", deps.Auth.CSRFToken)
		r.Post("/auth/logout", deps.Auth.Logout)
		r.With(middleware.RateLimitByIP(middleware.LoginRateLimit())).Post("/auth/login", deps.Auth.Login)
		r.With(middleware.RateLimitByIP(middleware.CodeRateLimit())).Post("/auth/2fa/verify", deps.TwoFactor.Verify)

		// Signed-in admins
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuthenticated())
			r.Use(auth.RequireRole(deps.Accounts, models.RoleAdmin, deps.Logger))

			r.Get("/auth/me", deps.Auth.Me)
			r.Post("/auth/password", deps.Auth.ChangePassword)
			r.Post("/auth/2fa/setup", deps.TwoFactor.Setup)
			r.Post("/auth/2fa/enable", deps.TwoFactor.Enable)
			r.Post("/auth/2fa/disable", deps.TwoFactor.Disable)

			// Admin management; the service enforces the main-admin gate
			r.Route("/admin/manage", func(r chi.Router) {
				r.Get("/", deps.Admin.Status)
				r.With(middleware.RateLimitByIP(middleware.ManagementLoginRateLimit())).Post("/login", deps.Admin.Login)
				r.Post("/logout", deps.Admin.Logout)
				r.Get("/admins", deps.Admin.ListAdmins)
				r.Post("/admins", deps.Admin.CreateAdmin)
				r.Delete("/admins/{id}", deps.Admin.DeleteAdmin)
			})
		})
	})
}
