package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// BackupCodesRepository persists hashed single-use 2FA backup codes.
type BackupCodesRepository struct {
	db *sql.DB
}

// NewBackupCodesRepository creates a new backup codes repository.
func NewBackupCodesRepository(db *sql.DB) *BackupCodesRepository {
	return &BackupCodesRepository{db: db}
}

// Replace drops existing codes for the account and inserts fresh ones.
func (r *BackupCodesRepository) Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string) error {
	c := conn(ctx, r.db)

	if _, err := c.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, accountID); err != nil {
		return err
	}

	query := `
		INSERT INTO backup_codes (id, user_id, code_hash, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	for _, hash := range codeHashes {
		if _, err := c.ExecContext(ctx, query, uuid.New(), accountID, hash); err != nil {
			return err
		}
	}
	return nil
}

// Consume marks the matching unused code as used. The conditional WHERE
// makes consumption atomic: two concurrent attempts with the same code see
// exactly one success.
func (r *BackupCodesRepository) Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error) {
	query := `
		UPDATE backup_codes
		SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, accountID, codeHash)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CountUnused returns the number of remaining backup codes.
func (r *BackupCodesRepository) CountUnused(ctx context.Context, accountID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`
	var count int
	err := conn(ctx, r.db).QueryRowContext(ctx, query, accountID).Scan(&count)
	return count, err
}

// DeleteAll removes every backup code for an account.
func (r *BackupCodesRepository) DeleteAll(ctx context.Context, accountID uuid.UUID) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, accountID)
	return err
}
