package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Default lockout parameters.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockoutDuration = 15 * time.Minute
	DefaultResetTokenTTL   = time.Hour
)

// PasswordConfig holds the tunables of the account security workflow.
type PasswordConfig struct {
	MaxFailedLogins int
	LockoutDuration time.Duration
	ResetTokenTTL   time.Duration
	ResetBaseURL    string
	Argon2          Argon2Params
}

// PasswordService orchestrates registration, login with lockout, and
// password reset.
type PasswordService struct {
	config   PasswordConfig
	accounts AccountStore
	codes    BackupCodeStore
	tokens   *TokenService
	totp     TOTPEngine
	policy   *PasswordPolicy
	mailer   ResetMailer
	sessions SessionRevoker
	logger   *slog.Logger
}

// NewPasswordService creates the account security workflow. mailer may be
// nil; reset requests then still succeed but no email is dispatched.
func NewPasswordService(
	config PasswordConfig,
	accounts AccountStore,
	codes BackupCodeStore,
	tokens *TokenService,
	totp TOTPEngine,
	policy *PasswordPolicy,
	mailer ResetMailer,
	sessions SessionRevoker,
	logger *slog.Logger,
) *PasswordService {
	if config.MaxFailedLogins == 0 {
		config.MaxFailedLogins = DefaultMaxFailedLogins
	}
	if config.LockoutDuration == 0 {
		config.LockoutDuration = DefaultLockoutDuration
	}
	if config.ResetTokenTTL == 0 {
		config.ResetTokenTTL = DefaultResetTokenTTL
	}
	if config.Argon2 == (Argon2Params{}) {
		config.Argon2 = DefaultArgon2Params()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordService{
		config:   config,
		accounts: accounts,
		codes:    codes,
		tokens:   tokens,
		totp:     totp,
		policy:   policy,
		mailer:   mailer,
		sessions: sessions,
		logger:   logger,
	}
}

// Register creates a new account with the regular role.
func (s *PasswordService) Register(ctx context.Context, username, email, password string) (*domain.Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	if s.policy != nil {
		if err := s.policy.Validate(password); err != nil {
			return nil, err
		}
	}

	exists, err := s.accounts.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateUsername
	}
	exists, err = s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateEmail
	}

	hash, err := HashPasswordWithParams(password, s.config.Argon2)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &domain.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleRegular,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "username", account.Username)
	return account, nil
}

// Login verifies an identifier (username or email) and password, and when
// two-factor authentication is active on the account, a TOTP or backup
// code. On full success the failed-login counter is reset and the account
// is returned for session issuance.
//
// A failed second-factor attempt counts toward the same lockout counter as
// a failed password attempt. A missing code does not.
func (s *PasswordService) Login(ctx context.Context, identifier, password, code string) (*domain.Account, error) {
	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// Locked accounts are rejected before any credential check.
	if account.IsLocked() {
		return nil, domain.ErrAccountLocked
	}

	if !VerifyPassword(password, account.PasswordHash) {
		if err := s.accounts.RecordLoginFailure(ctx, account.ID, s.config.MaxFailedLogins, s.config.LockoutDuration); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidCredentials
	}

	if account.TwoFactorEnabled() {
		if code == "" {
			return nil, domain.ErrTwoFactorRequired
		}
		ok, err := s.verifySecondFactor(ctx, account, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := s.accounts.RecordLoginFailure(ctx, account.ID, s.config.MaxFailedLogins, s.config.LockoutDuration); err != nil {
				return nil, err
			}
			return nil, domain.ErrInvalidTwoFactor
		}
	}

	if account.FailedLogins > 0 || account.LockUntil != nil {
		if err := s.accounts.ResetLoginFailures(ctx, account.ID); err != nil {
			return nil, err
		}
		account.FailedLogins = 0
		account.LockUntil = nil
	}

	return account, nil
}

// verifySecondFactor accepts either a live TOTP code or a single-use backup
// code.
func (s *PasswordService) verifySecondFactor(ctx context.Context, account *domain.Account, code string) (bool, error) {
	if isTOTPCode(code) {
		return s.totp.Verify(*account.OTPSecret, code, time.Now()), nil
	}
	return s.codes.Consume(ctx, account.ID, HashToken(NormalizeBackupCode(code)))
}

// RequestPasswordReset issues a reset token and dispatches it by email.
// The response shape is identical whether or not the email is registered,
// so callers cannot tell whether an account exists.
func (s *PasswordService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	// Binding the token to the current password hash makes it single-use:
	// once the password changes, outstanding tokens stop verifying.
	token, err := s.tokens.Issue(account.ID, PurposePasswordReset, PasswordFingerprint(account.PasswordHash), s.config.ResetTokenTTL)
	if err != nil {
		return err
	}

	if s.mailer != nil {
		resetURL := fmt.Sprintf("%s/auth/reset-password?token=%s", s.config.ResetBaseURL, token)
		if err := s.mailer.SendPasswordResetEmail(account.Email, resetURL); err != nil {
			return err
		}
	}

	s.logger.Info("password reset token issued", "account_id", account.ID)
	return nil
}

// ResetPassword verifies a reset token, overwrites the password hash, and
// revokes every live session of the account.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword string) error {
	payload, err := s.tokens.Verify(token, PurposePasswordReset)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}

	if !FingerprintsEqual(payload.Fingerprint, PasswordFingerprint(account.PasswordHash)) {
		return domain.ErrInvalidToken
	}

	if s.policy != nil {
		if err := s.policy.Validate(newPassword); err != nil {
			return err
		}
	}

	hash, err := HashPasswordWithParams(newPassword, s.config.Argon2)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return err
	}

	// A successful reset also clears any lockout state.
	if err := s.accounts.ResetLoginFailures(ctx, account.ID); err != nil {
		return err
	}

	// Sessions issued under the old password must not survive the reset.
	if s.sessions != nil {
		if err := s.sessions.RevokeAllSessions(ctx, account.ID); err != nil {
			return err
		}
	}

	s.logger.Info("password reset completed", "account_id", account.ID)
	return nil
}

// GetAccountByID retrieves an account by ID.
func (s *PasswordService) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// isTOTPCode reports whether the candidate looks like a 6-digit TOTP code
// rather than a backup code.
func isTOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
