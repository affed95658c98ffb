package domain

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus is the workflow state of an incident.
type IncidentStatus string

const (
	StatusOpen       IncidentStatus = "Open"
	StatusInProgress IncidentStatus = "In Progress"
	StatusClosed     IncidentStatus = "Closed"
)

// Valid reports whether the status is one of the known statuses.
func (s IncidentStatus) Valid() bool {
	return s == StatusOpen || s == StatusInProgress || s == StatusClosed
}

// Incident is a reported issue tracked through its lifecycle.
type Incident struct {
	ID          uuid.UUID
	Title       string
	Description string
	Status      IncidentStatus
	CreatedAt   time.Time
	ClosedAt    *time.Time
	AccountID   uuid.UUID
	CategoryID  uuid.UUID
}

// Category groups incidents by type.
type Category struct {
	ID          uuid.UUID
	Name        string
	Description string
}
