package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation an audit entry describes.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// Valid reports whether the action is one of the known audit actions.
func (a AuditAction) Valid() bool {
	return a == AuditCreate || a == AuditUpdate || a == AuditDelete
}

// AuditEntry is an immutable record of a mutating action. Entries are only
// ever inserted; nothing in this codebase updates or deletes them.
type AuditEntry struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Action     AuditAction
	TargetType string
	TargetID   uuid.UUID
	CreatedAt  time.Time
}
