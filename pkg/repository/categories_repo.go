package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/lib/pq"
)

// CategoriesRepository handles incident category persistence.
type CategoriesRepository struct {
	db *sql.DB
}

// NewCategoriesRepository creates a new categories repository.
func NewCategoriesRepository(db *sql.DB) *CategoriesRepository {
	return &CategoriesRepository{db: db}
}

// Create creates a new category.
func (r *CategoriesRepository) Create(ctx context.Context, category *domain.Category) error {
	query := `INSERT INTO incident_categories (id, name, description) VALUES ($1, $2, $3)`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, category.ID, category.Name, category.Description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicateCategory
		}
		return err
	}
	return nil
}

// GetByID retrieves a category by ID.
func (r *CategoriesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := `SELECT id, name, description FROM incident_categories WHERE id = $1`
	category := &domain.Category{}
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&category.ID, &category.Name, &category.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return category, nil
}

// List returns all categories ordered by name.
func (r *CategoriesRepository) List(ctx context.Context) ([]*domain.Category, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, name, description FROM incident_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*domain.Category
	for rows.Next() {
		category := &domain.Category{}
		if err := rows.Scan(&category.ID, &category.Name, &category.Description); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// Update updates a category.
func (r *CategoriesRepository) Update(ctx context.Context, category *domain.Category) error {
	query := `UPDATE incident_categories SET name = $2, description = $3 WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, category.ID, category.Name, category.Description)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrDuplicateCategory
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}

// Delete permanently deletes a category.
func (r *CategoriesRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM incident_categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrCategoryNotFound
	}
	return nil
}
