package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/authz"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/incidentops/incident-tracker/pkg/repository"
)

// CategoryService handles category CRUD. All mutations are admin-only.
type CategoryService struct {
	categories CategoryStore
	incidents  IncidentStore
	recorder   *audit.Recorder
	tx         repository.Transactor
	logger     *slog.Logger
}

// NewCategoryService creates a new category service.
func NewCategoryService(
	categories CategoryStore,
	incidents IncidentStore,
	recorder *audit.Recorder,
	tx repository.Transactor,
	logger *slog.Logger,
) *CategoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryService{
		categories: categories,
		incidents:  incidents,
		recorder:   recorder,
		tx:         tx,
		logger:     logger,
	}
}

// Create creates a category.
func (s *CategoryService) Create(ctx context.Context, actor *domain.Account, name, description string) (*domain.Category, error) {
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceCategory}, authz.ActionCreate) {
		return nil, domain.ErrForbidden
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", domain.ErrInvalidInput)
	}

	category := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}

	err := s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.categories.Create(ctx, category); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditCreate, authz.ResourceCategory, category.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category created", "category_id", category.ID, "actor_id", actor.ID)
	return category, nil
}

// List returns all categories. Any authenticated account may list them.
func (s *CategoryService) List(ctx context.Context, actor *domain.Account) ([]*domain.Category, error) {
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceCategory}, authz.ActionView) {
		return nil, domain.ErrForbidden
	}
	return s.categories.List(ctx)
}

// Update renames or re-describes a category.
func (s *CategoryService) Update(ctx context.Context, actor *domain.Account, id uuid.UUID, name, description *string) (*domain.Category, error) {
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceCategory}, authz.ActionUpdate) {
		return nil, domain.ErrForbidden
	}

	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: name must not be empty", domain.ErrInvalidInput)
		}
		category.Name = trimmed
	}
	if description != nil {
		category.Description = *description
	}

	err = s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.categories.Update(ctx, category); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditUpdate, authz.ResourceCategory, category.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category updated", "category_id", category.ID, "actor_id", actor.ID)
	return category, nil
}

// Delete removes a category. Categories that still have incidents cannot
// be deleted.
func (s *CategoryService) Delete(ctx context.Context, actor *domain.Account, id uuid.UUID) error {
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceCategory}, authz.ActionDelete) {
		return domain.ErrForbidden
	}

	if _, err := s.categories.GetByID(ctx, id); err != nil {
		return err
	}
	count, err := s.incidents.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrCategoryInUse
	}

	err = s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.categories.Delete(ctx, id); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditDelete, authz.ResourceCategory, id)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("category deleted", "category_id", id, "actor_id", actor.ID)
	return nil
}
