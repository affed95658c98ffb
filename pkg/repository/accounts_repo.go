package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
	"github.com/lib/pq"
)

const accountColumns = `id, username, email, password_hash, role, failed_logins, lock_until,
	       otp_secret, otp_confirmed, created_at, updated_at`

// AccountsRepository handles account persistence.
type AccountsRepository struct {
	db *sql.DB
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db *sql.DB) *AccountsRepository {
	return &AccountsRepository{db: db}
}

// Create creates a new account. Unique violations on username or email map
// to the corresponding duplicate errors.
func (r *AccountsRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := conn(ctx, r.db).ExecContext(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Role, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "users_username_key":
				return domain.ErrDuplicateUsername
			case "users_email_key":
				return domain.ErrDuplicateEmail
			}
		}
		return err
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`
	return r.scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an account by email.
func (r *AccountsRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`
	return r.scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, email))
}

// GetByIdentifier retrieves an account by username or email.
func (r *AccountsRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE username = $1 OR email = $1`
	return r.scanAccount(conn(ctx, r.db).QueryRowContext(ctx, query, identifier))
}

// ExistsByUsername checks if an account exists by username.
func (r *AccountsRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, query, username).Scan(&exists)
	return exists, err
}

// ExistsByEmail checks if an account exists by email.
func (r *AccountsRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// RecordLoginFailure increments the failed-login counter in a single
// conditional write. Reaching the threshold resets the counter to zero and
// sets the lock in the same statement, so concurrent failures cannot lose
// an update or double-apply the lock.
func (r *AccountsRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) error {
	query := `
		UPDATE users
		SET failed_logins = CASE
		        WHEN failed_logins + 1 >= $2 THEN 0
		        ELSE failed_logins + 1
		    END,
		    lock_until = CASE
		        WHEN failed_logins + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE lock_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, id, threshold, lockFor.Seconds())
	return err
}

// ResetLoginFailures clears the failed-login counter and any lockout.
func (r *AccountsRepository) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_logins = 0, lock_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	return err
}

// UpdatePasswordHash overwrites the password hash.
func (r *AccountsRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

// SetPendingTwoFactor stores a new TOTP secret without activating it.
func (r *AccountsRepository) SetPendingTwoFactor(ctx context.Context, id uuid.UUID, secret string) error {
	query := `UPDATE users SET otp_secret = $2, otp_confirmed = FALSE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, secret)
}

// ActivateTwoFactor marks the stored secret as confirmed.
func (r *AccountsRepository) ActivateTwoFactor(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET otp_confirmed = TRUE, updated_at = NOW() WHERE id = $1 AND otp_secret IS NOT NULL`
	return r.execOne(ctx, query, id)
}

// ClearTwoFactor removes the secret and deactivates two-factor auth.
func (r *AccountsRepository) ClearTwoFactor(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET otp_secret = NULL, otp_confirmed = FALSE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *AccountsRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountsRepository) scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Role, &account.FailedLogins, &account.LockUntil,
		&account.OTPSecret, &account.OTPConfirmed,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
