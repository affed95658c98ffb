package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// AccountStore is the persistence surface the auth services need. The
// Postgres implementation lives in pkg/repository.
type AccountStore interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// RecordLoginFailure increments the failed-login counter; when the
	// counter reaches threshold it must atomically reset it to zero and set
	// the lock, in one conditional write.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) error
	ResetLoginFailures(ctx context.Context, id uuid.UUID) error

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error

	// SetPendingTwoFactor stores a generated secret without activating it.
	SetPendingTwoFactor(ctx context.Context, id uuid.UUID, secret string) error
	ActivateTwoFactor(ctx context.Context, id uuid.UUID) error
	ClearTwoFactor(ctx context.Context, id uuid.UUID) error
}

// BackupCodeStore persists hashed single-use 2FA backup codes.
type BackupCodeStore interface {
	// Replace drops any existing codes for the account and stores the given
	// hashes as fresh unused codes.
	Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string) error

	// Consume marks the matching unused code as used and reports whether a
	// code was consumed. Marking must be a single conditional write so a
	// code can never be spent twice under concurrent attempts.
	Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error)

	CountUnused(ctx context.Context, accountID uuid.UUID) (int, error)
	DeleteAll(ctx context.Context, accountID uuid.UUID) error
}

// ResetMailer dispatches password-reset links. Implemented by
// internal/notification.
type ResetMailer interface {
	SendPasswordResetEmail(to, resetURL string) error
}

// SessionRevoker invalidates every live session of an account. Implemented
// by SessionService; used after credential changes so stolen refresh
// tokens stop working.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, accountID uuid.UUID) error
}
