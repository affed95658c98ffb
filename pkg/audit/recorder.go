// Package audit provides the append-only audit trail. Every mutating
// operation in the application records an entry through the Recorder,
// inside the same transaction as the mutation it describes.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Store persists audit entries. The Postgres implementation honors a
// transaction carried in the context, so Record participates in the
// caller's transaction when invoked inside repository.Tx.
type Store interface {
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter Filter) ([]*domain.AuditEntry, error)
}

// Filter narrows a query over the audit trail. Nil fields match anything.
type Filter struct {
	ActorID    *uuid.UUID
	Action     *domain.AuditAction
	TargetType *string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// DefaultPerPage bounds unpaginated queries.
const DefaultPerPage = 50

// Recorder appends to and reads from the audit trail. It exposes no way to
// update or delete entries.
type Recorder struct {
	store Store
}

// NewRecorder creates a new audit recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record persists an entry with a server-assigned timestamp and returns it.
// A persistence failure propagates to the caller; when called inside the
// mutation's transaction that aborts the mutation too.
func (r *Recorder) Record(ctx context.Context, actorID uuid.UUID, action domain.AuditAction, targetType string, targetID uuid.UUID) (*domain.AuditEntry, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown audit action %q", domain.ErrInvalidInput, action)
	}
	if targetType == "" {
		return nil, fmt.Errorf("%w: target type must not be empty", domain.ErrInvalidInput)
	}

	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  time.Now(),
	}

	if err := r.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record audit entry: %w", err)
	}
	return entry, nil
}

// Query returns entries matching the filter, newest first.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]*domain.AuditEntry, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = DefaultPerPage
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	return r.store.List(ctx, filter)
}
