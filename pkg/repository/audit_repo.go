package repository

import (
	"context"
	"database/sql"

	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// AuditRepository persists audit entries. The audit_logs table is
// append-only: this type deliberately has no update or delete methods.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends an audit entry. When the context carries a transaction
// the insert joins it, so the entry commits and rolls back together with
// the mutation it describes.
func (r *AuditRepository) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, user_id, action, target_type, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, entry.CreatedAt,
	)
	return err
}

// List returns entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, user_id, action, target_type, target_id, created_at
		FROM audit_logs
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::text IS NULL OR action = $2)
		  AND ($3::text IS NULL OR target_type = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6 OFFSET $7
	`
	offset := (filter.Page - 1) * filter.PerPage
	rows, err := conn(ctx, r.db).QueryContext(ctx, query,
		filter.ActorID, filter.Action, filter.TargetType, filter.From, filter.To,
		filter.PerPage, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		entry := &domain.AuditEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.ActorID, &entry.Action, &entry.TargetType,
			&entry.TargetID, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
