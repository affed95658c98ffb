package incidents

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/internal/http/middleware"
	"github.com/incidentops/incident-tracker/internal/httputil"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/incidentops/incident-tracker/pkg/service"
)

// Handler handles incident CRUD endpoints.
type Handler struct {
	logger          *slog.Logger
	incidentService *service.IncidentService
	passwordService *auth.PasswordService
}

// NewHandler creates a new incidents handler.
func NewHandler(logger *slog.Logger, incidentService *service.IncidentService, passwordService *auth.PasswordService) *Handler {
	return &Handler{
		logger:          logger,
		incidentService: incidentService,
		passwordService: passwordService,
	}
}

// CreateRequest represents an incident creation request.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	CategoryID  string `json:"category_id"`
}

// UpdateRequest represents an incident update request.
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	CategoryID  *string `json:"category_id,omitempty"`
}

// IncidentResponse represents an incident in API responses.
type IncidentResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	CategoryID  string     `json:"category_id"`
	AccountID   string     `json:"account_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func incidentResponse(in *domain.Incident) IncidentResponse {
	return IncidentResponse{
		ID:          in.ID.String(),
		Title:       in.Title,
		Description: in.Description,
		Status:      string(in.Status),
		CategoryID:  in.CategoryID.String(),
		AccountID:   in.AccountID.String(),
		CreatedAt:   in.CreatedAt,
		ClosedAt:    in.ClosedAt,
	}
}

// actor loads the authenticated account for authorization decisions.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	accountID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	account, err := h.passwordService.GetAccountByID(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to load account", "error", err, "account_id", accountID)
		httputil.Error(w, http.StatusUnauthorized, "account not found")
		return nil, false
	}
	return account, true
}

// Create creates an incident owned by the caller.
// POST /v1/incidents
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid category_id")
		return
	}

	incident, err := h.incidentService.Create(r.Context(), actor, service.CreateIncidentParams{
		Title:       req.Title,
		Description: req.Description,
		Status:      domain.IncidentStatus(req.Status),
		CategoryID:  categoryID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidStatus):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrCategoryNotFound):
			httputil.Error(w, http.StatusBadRequest, "category not found")
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "forbidden")
		default:
			h.logger.Error("failed to create incident", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to create incident")
		}
		return
	}

	httputil.JSON(w, http.StatusCreated, incidentResponse(incident))
}

// List returns the incidents visible to the caller.
// GET /v1/incidents
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	incidents, err := h.incidentService.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("failed to list incidents", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	out := make([]IncidentResponse, 0, len(incidents))
	for _, in := range incidents {
		out = append(out, incidentResponse(in))
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Get returns a single incident.
// GET /v1/incidents/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	incident, err := h.incidentService.Get(r.Context(), actor, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIncidentNotFound):
			httputil.Error(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "forbidden")
		default:
			h.logger.Error("failed to get incident", "error", err, "incident_id", id)
			httputil.Error(w, http.StatusInternalServerError, "failed to get incident")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, incidentResponse(incident))
}

// Update modifies an incident.
// PATCH /v1/incidents/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := service.UpdateIncidentParams{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		params.Status = &status
	}
	if req.CategoryID != nil {
		categoryID, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid category_id")
			return
		}
		params.CategoryID = &categoryID
	}

	incident, err := h.incidentService.Update(r.Context(), actor, id, params)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrIncidentNotFound):
			httputil.Error(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "forbidden")
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidStatus):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrCategoryNotFound):
			httputil.Error(w, http.StatusBadRequest, "category not found")
		default:
			h.logger.Error("failed to update incident", "error", err, "incident_id", id)
			httputil.Error(w, http.StatusInternalServerError, "failed to update incident")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, incidentResponse(incident))
}

// Delete removes an incident.
// DELETE /v1/incidents/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	if err := h.incidentService.Delete(r.Context(), actor, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrIncidentNotFound):
			httputil.Error(w, http.StatusNotFound, "incident not found")
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "forbidden")
		default:
			h.logger.Error("failed to delete incident", "error", err, "incident_id", id)
			httputil.Error(w, http.StatusInternalServerError, "failed to delete incident")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
