package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

const (
	// Backup code parameters
	backupCodeLength = 12
	backupCodeCount  = 10
	backupCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // No ambiguous chars
)

// MFAService handles two-factor enrollment and teardown. Login-time code
// verification lives in PasswordService.
type MFAService struct {
	accounts AccountStore
	codes    BackupCodeStore
	totp     TOTPEngine
	sessions SessionRevoker
	logger   *slog.Logger
}

// NewMFAService creates a new MFA service.
func NewMFAService(accounts AccountStore, codes BackupCodeStore, totp TOTPEngine, sessions SessionRevoker, logger *slog.Logger) *MFAService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MFAService{accounts: accounts, codes: codes, totp: totp, sessions: sessions, logger: logger}
}

// MFASetup contains the data returned when setting up two-factor auth.
// The secret and backup codes are shown exactly once.
type MFASetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// Setup generates a fresh TOTP secret and backup codes for an account. The
// password must be re-entered. Two-factor auth stays inactive until Confirm
// validates a live code, so a bad authenticator scan cannot lock the user
// out.
func (s *MFAService) Setup(ctx context.Context, accountID uuid.UUID, password string) (*MFASetup, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !VerifyPassword(password, account.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if account.TwoFactorEnabled() {
		return nil, domain.ErrTwoFactorEnabled
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	uri, err := s.totp.ProvisioningURI(secret, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioning URI: %w", err)
	}

	plainCodes := make([]string, backupCodeCount)
	codeHashes := make([]string, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := generateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		plainCodes[i] = code
		codeHashes[i] = HashToken(NormalizeBackupCode(code))
	}

	if err := s.accounts.SetPendingTwoFactor(ctx, accountID, secret); err != nil {
		return nil, err
	}
	if err := s.codes.Replace(ctx, accountID, codeHashes); err != nil {
		return nil, err
	}

	return &MFASetup{
		Secret:          secret,
		ProvisioningURI: uri,
		BackupCodes:     plainCodes,
	}, nil
}

// Confirm validates a code against the pending secret and activates
// two-factor auth.
func (s *MFAService) Confirm(ctx context.Context, accountID uuid.UUID, code string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.OTPSecret == nil {
		return domain.ErrTwoFactorNotPending
	}
	if account.OTPConfirmed {
		return domain.ErrTwoFactorEnabled
	}

	if !s.totp.Verify(*account.OTPSecret, code, time.Now()) {
		return domain.ErrInvalidTwoFactor
	}

	if err := s.accounts.ActivateTwoFactor(ctx, accountID); err != nil {
		return err
	}

	s.logger.Info("two-factor authentication enabled", "account_id", accountID)
	return nil
}

// Disable clears the secret and backup codes after password re-entry, and
// revokes every live session of the account.
func (s *MFAService) Disable(ctx context.Context, accountID uuid.UUID, password string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !VerifyPassword(password, account.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	if err := s.accounts.ClearTwoFactor(ctx, accountID); err != nil {
		return err
	}
	if err := s.codes.DeleteAll(ctx, accountID); err != nil {
		return err
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAllSessions(ctx, accountID); err != nil {
			return err
		}
	}

	s.logger.Info("two-factor authentication disabled", "account_id", accountID)
	return nil
}

// Status returns whether two-factor auth is active and how many backup
// codes remain unused.
func (s *MFAService) Status(ctx context.Context, accountID uuid.UUID) (enabled bool, backupCodesRemaining int, err error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, 0, err
	}
	if !account.TwoFactorEnabled() {
		return false, 0, nil
	}

	count, err := s.codes.CountUnused(ctx, accountID)
	if err != nil {
		return false, 0, err
	}
	return true, count, nil
}

// NormalizeBackupCode strips separators and uppercases a backup code so
// user input matches the stored hash regardless of formatting.
func NormalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(code, "-", ""), " ", ""))
}

// generateBackupCode generates a random backup code in format XXXX-XXXX-XXXX.
func generateBackupCode() (string, error) {
	chars := make([]byte, backupCodeLength)
	if _, err := rand.Read(chars); err != nil {
		return "", err
	}

	for i := range chars {
		chars[i] = backupCodeChars[int(chars[i])%len(backupCodeChars)]
	}

	return fmt.Sprintf("%s-%s-%s",
		string(chars[0:4]),
		string(chars[4:8]),
		string(chars[8:12]),
	), nil
}
