package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role determines what an account is allowed to do.
type Role string

const (
	RoleRegular Role = "regular"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleRegular || r == RoleAdmin
}

// Account represents a user account and its security state.
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	FailedLogins int
	LockUntil    *time.Time
	OTPSecret    *string
	OTPConfirmed bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsLocked returns true if the account is currently locked out.
func (a *Account) IsLocked() bool {
	if a.LockUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockUntil)
}

// TwoFactorEnabled returns true if the account has an active, confirmed
// TOTP secret. A secret that was generated but never confirmed does not
// count: login must not demand codes the user never finished enrolling.
func (a *Account) TwoFactorEnabled() bool {
	return a.OTPSecret != nil && a.OTPConfirmed
}

// IsAdmin returns true if the account has the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// BackupCode is a single-use 2FA fallback credential, stored hashed.
type BackupCode struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed returns true if the backup code has already been consumed.
func (c *BackupCode) IsUsed() bool {
	return c.UsedAt != nil
}
