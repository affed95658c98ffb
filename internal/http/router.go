package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/incidentops/incident-tracker/internal/config"
	"github.com/incidentops/incident-tracker/internal/http/features/account"
	"github.com/incidentops/incident-tracker/internal/http/features/auditlog"
	"github.com/incidentops/incident-tracker/internal/http/features/categories"
	"github.com/incidentops/incident-tracker/internal/http/features/incidents"
	"github.com/incidentops/incident-tracker/internal/http/features/mfa"
	"github.com/incidentops/incident-tracker/internal/http/middleware"
	"github.com/incidentops/incident-tracker/internal/httputil"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/service"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	PasswordService    *auth.PasswordService
	SessionService     *auth.SessionService
	MFAService         *auth.MFAService
	IncidentService    *service.IncidentService
	CategoryService    *service.CategoryService
	AuditRecorder      *audit.Recorder
	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	MaxRequestBodySize int64
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)
	requireAuth := middleware.Auth(cfg.SessionService)

	// Registration and login
	accountHandler := account.NewHandler(cfg.Logger, cfg.PasswordService, cfg.SessionService)
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["auth"])
		r.Post("/v1/auth/register", accountHandler.Register)
		r.Post("/v1/auth/login", accountHandler.Login)
		r.Post("/v1/auth/refresh", accountHandler.Refresh)
	})
	r.Group(func(r chi.Router) {
		r.Use(rateLimiters["reset"])
		r.Post("/v1/auth/reset-request", accountHandler.RequestPasswordReset)
		r.Post("/v1/auth/reset", accountHandler.ResetPassword)
	})
	r.Post("/v1/auth/logout", accountHandler.Logout)

	// Two-factor management
	mfaHandler := mfa.NewHandler(cfg.Logger, cfg.MFAService)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/v1/me/mfa/status", mfaHandler.Status)
		r.Post("/v1/me/mfa/setup", mfaHandler.Setup)
		r.Post("/v1/me/mfa/confirm", mfaHandler.Confirm)
		r.Post("/v1/me/mfa/disable", mfaHandler.Disable)
	})

	// Incidents
	incidentsHandler := incidents.NewHandler(cfg.Logger, cfg.IncidentService, cfg.PasswordService)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/v1/incidents", incidentsHandler.List)
		r.Post("/v1/incidents", incidentsHandler.Create)
		r.Get("/v1/incidents/{id}", incidentsHandler.Get)
		r.Patch("/v1/incidents/{id}", incidentsHandler.Update)
		r.Delete("/v1/incidents/{id}", incidentsHandler.Delete)
	})

	// Categories
	categoriesHandler := categories.NewHandler(cfg.Logger, cfg.CategoryService, cfg.PasswordService)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/v1/categories", categoriesHandler.List)
		r.Post("/v1/categories", categoriesHandler.Create)
		r.Patch("/v1/categories/{id}", categoriesHandler.Update)
		r.Delete("/v1/categories/{id}", categoriesHandler.Delete)
	})

	// Audit trail (admin only)
	auditHandler := auditlog.NewHandler(cfg.Logger, cfg.AuditRecorder)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireAdmin())
		r.Get("/v1/audit", auditHandler.List)
	})

	return r
}
