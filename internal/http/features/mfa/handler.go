package mfa

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/incidentops/incident-tracker/internal/http/middleware"
	"github.com/incidentops/incident-tracker/internal/httputil"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Handler handles two-factor authentication management endpoints.
type Handler struct {
	logger     *slog.Logger
	mfaService *auth.MFAService
}

// NewHandler creates a new MFA handler.
func NewHandler(logger *slog.Logger, mfaService *auth.MFAService) *Handler {
	return &Handler{
		logger:     logger,
		mfaService: mfaService,
	}
}

// SetupRequest represents a 2FA setup request.
type SetupRequest struct {
	Password string `json:"password"`
}

// SetupResponse represents a 2FA setup response.
type SetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// ConfirmRequest represents a 2FA confirmation request.
type ConfirmRequest struct {
	Code string `json:"code"`
}

// DisableRequest represents a 2FA disable request.
type DisableRequest struct {
	Password string `json:"password"`
}

// StatusResponse represents the 2FA status of the current account.
type StatusResponse struct {
	Enabled              bool `json:"enabled"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
}

// Status returns whether 2FA is enabled for the current account.
// GET /v1/me/mfa/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	enabled, remaining, err := h.mfaService.Status(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to get 2FA status", "error", err, "account_id", accountID)
		httputil.Error(w, http.StatusInternalServerError, "failed to get status")
		return
	}

	httputil.JSON(w, http.StatusOK, StatusResponse{
		Enabled:              enabled,
		BackupCodesRemaining: remaining,
	})
}

// Setup begins 2FA enrollment. Requires password re-entry. The secret
// and backup codes are only returned here; confirmation activates them.
// POST /v1/me/mfa/setup
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "password is required")
		return
	}

	setup, err := h.mfaService.Setup(r.Context(), accountID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusForbidden, "invalid password")
		case errors.Is(err, domain.ErrTwoFactorEnabled):
			httputil.Error(w, http.StatusConflict, "two-factor authentication is already enabled")
		default:
			h.logger.Error("failed to set up 2FA", "error", err, "account_id", accountID)
			httputil.Error(w, http.StatusInternalServerError, "failed to set up two-factor authentication")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, SetupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	})
}

// Confirm activates a pending 2FA enrollment by verifying a TOTP code.
// POST /v1/me/mfa/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.mfaService.Confirm(r.Context(), accountID, req.Code); err != nil {
		switch {
		case errors.Is(err, domain.ErrTwoFactorNotPending):
			httputil.Error(w, http.StatusConflict, "no pending two-factor setup")
		case errors.Is(err, domain.ErrTwoFactorEnabled):
			httputil.Error(w, http.StatusConflict, "two-factor authentication is already enabled")
		case errors.Is(err, domain.ErrInvalidTwoFactor):
			httputil.Error(w, http.StatusBadRequest, "invalid verification code")
		default:
			h.logger.Error("failed to confirm 2FA", "error", err, "account_id", accountID)
			httputil.Error(w, http.StatusInternalServerError, "failed to confirm two-factor authentication")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Two-factor authentication enabled"})
}

// Disable turns off 2FA. Requires password re-entry.
// POST /v1/me/mfa/disable
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "password is required")
		return
	}

	if err := h.mfaService.Disable(r.Context(), accountID, req.Password); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusForbidden, "invalid password")
		default:
			h.logger.Error("failed to disable 2FA", "error", err, "account_id", accountID)
			httputil.Error(w, http.StatusInternalServerError, "failed to disable two-factor authentication")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Two-factor authentication disabled"})
}
