// Package service implements the incident and category operations. Every
// mutation passes the central authorization policy, then writes its audit
// entry inside the same transaction: either both commit or neither does.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/authz"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/incidentops/incident-tracker/pkg/repository"
)

// IncidentStore is the persistence surface the incident service needs.
type IncidentStore interface {
	Create(ctx context.Context, incident *domain.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Incident, error)
	List(ctx context.Context, accountID *uuid.UUID) ([]*domain.Incident, error)
	Update(ctx context.Context, incident *domain.Incident) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error)
}

// CategoryStore is the persistence surface the category service needs.
type CategoryStore interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	List(ctx context.Context) ([]*domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// IncidentService handles incident CRUD with authorization and audit.
type IncidentService struct {
	incidents  IncidentStore
	categories CategoryStore
	recorder   *audit.Recorder
	tx         repository.Transactor
	logger     *slog.Logger
}

// NewIncidentService creates a new incident service.
func NewIncidentService(
	incidents IncidentStore,
	categories CategoryStore,
	recorder *audit.Recorder,
	tx repository.Transactor,
	logger *slog.Logger,
) *IncidentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IncidentService{
		incidents:  incidents,
		categories: categories,
		recorder:   recorder,
		tx:         tx,
		logger:     logger,
	}
}

// CreateIncidentParams holds the fields for creating an incident.
type CreateIncidentParams struct {
	Title       string
	Description string
	Status      domain.IncidentStatus
	CategoryID  uuid.UUID
}

// Create creates an incident owned by the actor.
func (s *IncidentService) Create(ctx context.Context, actor *domain.Account, params CreateIncidentParams) (*domain.Incident, error) {
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceIncident}, authz.ActionCreate) {
		return nil, domain.ErrForbidden
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title must not be empty", domain.ErrInvalidInput)
	}
	if params.Status == "" {
		params.Status = domain.StatusOpen
	}
	if !params.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if _, err := s.categories.GetByID(ctx, params.CategoryID); err != nil {
		return nil, err
	}

	now := time.Now()
	incident := &domain.Incident{
		ID:          uuid.New(),
		Title:       title,
		Description: params.Description,
		Status:      params.Status,
		CreatedAt:   now,
		AccountID:   actor.ID,
		CategoryID:  params.CategoryID,
	}
	if incident.Status == domain.StatusClosed {
		incident.ClosedAt = &now
	}

	err := s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.incidents.Create(ctx, incident); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditCreate, authz.ResourceIncident, incident.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("incident created", "incident_id", incident.ID, "actor_id", actor.ID)
	return incident, nil
}

// Get returns an incident the actor is allowed to view.
func (s *IncidentService) Get(ctx context.Context, actor *domain.Account, id uuid.UUID) (*domain.Incident, error) {
	incident, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceIncident, OwnerID: incident.AccountID}, authz.ActionView) {
		return nil, domain.ErrForbidden
	}
	return incident, nil
}

// List returns the incidents visible to the actor: their own for regular
// users, everything for admins.
func (s *IncidentService) List(ctx context.Context, actor *domain.Account) ([]*domain.Incident, error) {
	if actor.IsAdmin() {
		return s.incidents.List(ctx, nil)
	}
	return s.incidents.List(ctx, &actor.ID)
}

// UpdateIncidentParams holds optional updates; nil fields are unchanged.
type UpdateIncidentParams struct {
	Title       *string
	Description *string
	Status      *domain.IncidentStatus
	CategoryID  *uuid.UUID
}

// Update applies the given changes to an incident.
func (s *IncidentService) Update(ctx context.Context, actor *domain.Account, id uuid.UUID, params UpdateIncidentParams) (*domain.Incident, error) {
	incident, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceIncident, OwnerID: incident.AccountID}, authz.ActionUpdate) {
		return nil, domain.ErrForbidden
	}

	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", domain.ErrInvalidInput)
		}
		incident.Title = title
	}
	if params.Description != nil {
		incident.Description = *params.Description
	}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		incident.Status = *params.Status
		switch {
		case incident.Status == domain.StatusClosed && incident.ClosedAt == nil:
			now := time.Now()
			incident.ClosedAt = &now
		case incident.Status != domain.StatusClosed:
			incident.ClosedAt = nil
		}
	}
	if params.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *params.CategoryID); err != nil {
			return nil, err
		}
		incident.CategoryID = *params.CategoryID
	}

	err = s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.incidents.Update(ctx, incident); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditUpdate, authz.ResourceIncident, incident.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("incident updated", "incident_id", incident.ID, "actor_id", actor.ID)
	return incident, nil
}

// Delete removes an incident.
func (s *IncidentService) Delete(ctx context.Context, actor *domain.Account, id uuid.UUID) error {
	incident, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !authz.Allow(actor, authz.Resource{Type: authz.ResourceIncident, OwnerID: incident.AccountID}, authz.ActionDelete) {
		return domain.ErrForbidden
	}

	err = s.tx.Tx(ctx, func(ctx context.Context) error {
		if err := s.incidents.Delete(ctx, id); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, actor.ID, domain.AuditDelete, authz.ResourceIncident, id)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("incident deleted", "incident_id", id, "actor_id", actor.ID)
	return nil
}
