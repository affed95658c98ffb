package categories

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/internal/http/middleware"
	"github.com/incidentops/incident-tracker/internal/httputil"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/incidentops/incident-tracker/pkg/service"
)

// Handler handles incident category endpoints.
type Handler struct {
	logger          *slog.Logger
	categoryService *service.CategoryService
	passwordService *auth.PasswordService
}

// NewHandler creates a new categories handler.
func NewHandler(logger *slog.Logger, categoryService *service.CategoryService, passwordService *auth.PasswordService) *Handler {
	return &Handler{
		logger:          logger,
		categoryService: categoryService,
		passwordService: passwordService,
	}
}

// CreateRequest represents a category creation request.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRequest represents a category update request.
type UpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CategoryResponse represents a category in API responses.
type CategoryResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func categoryResponse(c *domain.Category) CategoryResponse {
	return CategoryResponse{
		ID:          c.ID.String(),
		Name:        c.Name,
		Description: c.Description,
	}
}

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

// List returns all categories.
// GET /v1/categories
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	cats, err := h.categoryService.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	out := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryResponse(c))
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Create adds a category. Admin only.
// POST /v1/categories
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

	category, err := h.categoryService.Create(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "admin access required")
		case errors.Is(err, domain.ErrInvalidInput):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrDuplicateCategory):
			httputil.Error(w, http.StatusConflict, "category name already exists")
		default:
			h.logger.Error("failed to create category", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to create category")
		}
		return
	}

	httputil.JSON(w, http.StatusCreated, categoryResponse(category))
}

// Update modifies a category. Admin only.
// PATCH /v1/categories/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid category id")
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := h.categoryService.Update(r.Context(), actor, id, req.Name, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "admin access required")
		case errors.Is(err, domain.ErrCategoryNotFound):
			httputil.Error(w, http.StatusNotFound, "category not found")
		case errors.Is(err, domain.ErrInvalidInput):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrDuplicateCategory):
			httputil.Error(w, http.StatusConflict, "category name already exists")
		default:
			h.logger.Error("failed to update category", "error", err, "category_id", id)
			httputil.Error(w, http.StatusInternalServerError, "failed to update category")
		}
		return
	}

	httputil.JSON(w, http.StatusOK, categoryResponse(category))
}

// Delete removes a category that no incident references. Admin only.
// DELETE /v1/categories/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := h.categoryService.Delete(r.Context(), actor, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			httputil.Error(w, http.StatusForbidden, "admin access required")
		case errors.Is(err, domain.ErrCategoryNotFound):
			httputil.Error(w, http.StatusNotFound, "category not found")
		case errors.Is(err, domain.ErrCategoryInUse):
			httputil.Error(w, http.StatusConflict, "category is referenced by existing incidents")
		default:
			h.logger.Error("failed to delete category", "error", err, "category_id", id)
			httputil.Error(w, http.StatusInternalServerError, "failed to delete category")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
