package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

const incidentColumns = `id, title, description, status, created_at, closed_at, user_id, category_id`

// IncidentsRepository handles incident persistence.
type IncidentsRepository struct {
	db *sql.DB
}

// NewIncidentsRepository creates a new incidents repository.
func NewIncidentsRepository(db *sql.DB) *IncidentsRepository {
	return &IncidentsRepository{db: db}
}

// Create creates a new incident.
func (r *IncidentsRepository) Create(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (id, title, description, status, created_at, closed_at, user_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		incident.ID, incident.Title, incident.Description, incident.Status,
		incident.CreatedAt, incident.ClosedAt, incident.AccountID, incident.CategoryID,
	)
	return err
}

// GetByID retrieves an incident by ID.
func (r *IncidentsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	incident := &domain.Incident{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&incident.ID, &incident.Title, &incident.Description, &incident.Status,
		&incident.CreatedAt, &incident.ClosedAt, &incident.AccountID, &incident.CategoryID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIncidentNotFound
	}
	if err != nil {
		return nil, err
	}
	return incident, nil
}

// List returns incidents newest first. When accountID is non-nil only that
// account's incidents are returned.
func (r *IncidentsRepository) List(ctx context.Context, accountID *uuid.UUID) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE ($1::uuid IS NULL OR user_id = $1) ORDER BY created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []*domain.Incident
	for rows.Next() {
		incident := &domain.Incident{}
		if err := rows.Scan(
			&incident.ID, &incident.Title, &incident.Description, &incident.Status,
			&incident.CreatedAt, &incident.ClosedAt, &incident.AccountID, &incident.CategoryID,
		); err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// Update updates an incident.
func (r *IncidentsRepository) Update(ctx context.Context, incident *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, closed_at = $5, category_id = $6
		WHERE id = $1
	`
	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		incident.ID, incident.Title, incident.Description, incident.Status,
		incident.ClosedAt, incident.CategoryID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrIncidentNotFound
	}
	return nil
}

// Delete permanently deletes an incident.
func (r *IncidentsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrIncidentNotFound
	}
	return nil
}

// CountByCategory returns the number of incidents in a category.
func (r *IncidentsRepository) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE category_id = $1`, categoryID).Scan(&count)
	return count, err
}
