// Package authz centralizes the authorization policy. Every service calls
// Allow before mutating anything, so the policy lives in exactly one place
// instead of ad-hoc role checks at call sites.
package authz

import (
	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Action is an operation an actor wants to perform on a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource types known to the policy.
const (
	ResourceIncident = "Incident"
	ResourceCategory = "Category"
	ResourceAuditLog = "AuditLog"
)

// Resource identifies what is being acted on. OwnerID is uuid.Nil for
// resources without an owner (categories, the audit log) and for creation,
// where no instance exists yet.
type Resource struct {
	Type    string
	OwnerID uuid.UUID
}

// Allow evaluates the policy for (actor, resource, action).
//
// Admins may do anything. Regular users may view categories, create
// incidents, and view/update/delete incidents they own. The audit log is
// admin-only.
func Allow(actor *domain.Account, res Resource, action Action) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}

	switch res.Type {
	case ResourceIncident:
		if action == ActionCreate {
			return true
		}
		return res.OwnerID == actor.ID
	case ResourceCategory:
		return action == ActionView
	case ResourceAuditLog:
		return false
	default:
		return false
	}
}
