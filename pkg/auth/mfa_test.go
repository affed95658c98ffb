package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/incidentops/incident-tracker/pkg/domain"
)

func newTestMFAService(t *testing.T) (*MFAService, *memAccountStore, *memBackupCodeStore, *domain.Account) {
	t.Helper()
	accounts := newMemAccountStore()
	codes := newMemBackupCodeStore()
	passwordSvc := newTestPasswordService(t, accounts, codes, nil)
	account := registerTestAccount(t, passwordSvc, "alice", "alice@example.com", "Sup3rSecret")
	sessions := NewSessionService(SessionConfig{
		JWTSecret: []byte("test-secret-key-0123456789abcdef"),
		Issuer:    "incident-tracker-test",
	}, newMemSessionStore(), accounts)
	mfa := NewMFAService(accounts, codes, NewTOTPEngine("incident-tracker-test", DefaultTOTPPeriod, DefaultTOTPSkew), sessions, nil)
	return mfa, accounts, codes, account
}

func TestMFASetup(t *testing.T) {
	mfa, accounts, codes, account := newTestMFAService(t)

	setup, err := mfa.Setup(context.Background(), account.ID, "Sup3rSecret")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if setup.Secret == "" {
		t.Error("Setup() returned empty secret")
	}
	if setup.ProvisioningURI == "" {
		t.Error("Setup() returned empty provisioning URI")
	}
	if len(setup.BackupCodes) != 10 {
		t.Fatalf("backup codes = %d, want 10", len(setup.BackupCodes))
	}
	codeFormat := regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}-[A-Z2-9]{4}$`)
	for _, code := range setup.BackupCodes {
		if !codeFormat.MatchString(code) {
			t.Errorf("backup code %q does not match XXXX-XXXX-XXXX format", code)
		}
	}

	// Not active until confirmed.
	stored, _ := accounts.GetByID(context.Background(), account.ID)
	if stored.TwoFactorEnabled() {
		t.Error("two-factor active before confirmation")
	}
	if stored.OTPSecret == nil || *stored.OTPSecret != setup.Secret {
		t.Error("pending secret not stored")
	}
	count, _ := codes.CountUnused(context.Background(), account.ID)
	if count != 10 {
		t.Errorf("stored backup codes = %d, want 10", count)
	}
}

func TestMFASetup_WrongPassword(t *testing.T) {
	mfa, _, _, account := newTestMFAService(t)

	_, err := mfa.Setup(context.Background(), account.ID, "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Setup() error = %v, want %v", err, domain.ErrInvalidCredentials)
	}
}

func TestMFAConfirm(t *testing.T) {
	mfa, accounts, _, account := newTestMFAService(t)

	// Confirm without setup.
	if err := mfa.Confirm(context.Background(), account.ID, "123456"); !errors.Is(err, domain.ErrTwoFactorNotPending) {
		t.Errorf("Confirm() before setup error = %v, want %v", err, domain.ErrTwoFactorNotPending)
	}

	setup, err := mfa.Setup(context.Background(), account.ID, "Sup3rSecret")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// Wrong code leaves the enrollment pending.
	if err := mfa.Confirm(context.Background(), account.ID, "000000"); !errors.Is(err, domain.ErrInvalidTwoFactor) {
		t.Errorf("Confirm() wrong code error = %v, want %v", err, domain.ErrInvalidTwoFactor)
	}
	stored, _ := accounts.GetByID(context.Background(), account.ID)
	if stored.TwoFactorEnabled() {
		t.Fatal("two-factor active after failed confirmation")
	}

	code, err := mfa.totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}
	if err := mfa.Confirm(context.Background(), account.ID, code); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	stored, _ = accounts.GetByID(context.Background(), account.ID)
	if !stored.TwoFactorEnabled() {
		t.Fatal("two-factor not active after confirmation")
	}

	// Confirming again is rejected.
	if err := mfa.Confirm(context.Background(), account.ID, code); !errors.Is(err, domain.ErrTwoFactorEnabled) {
		t.Errorf("Confirm() twice error = %v, want %v", err, domain.ErrTwoFactorEnabled)
	}
}

func TestMFADisable(t *testing.T) {
	mfa, accounts, codes, account := newTestMFAService(t)

	setup, err := mfa.Setup(context.Background(), account.ID, "Sup3rSecret")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	code, _ := mfa.totp.Code(setup.Secret, time.Now())
	if err := mfa.Confirm(context.Background(), account.ID, code); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	sessions := mfa.sessions.(*SessionService)
	tokens, err := sessions.IssueSession(context.Background(), account.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	if err := mfa.Disable(context.Background(), account.ID, "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Disable() wrong password error = %v, want %v", err, domain.ErrInvalidCredentials)
	}

	if err := mfa.Disable(context.Background(), account.ID, "Sup3rSecret"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	stored, _ := accounts.GetByID(context.Background(), account.ID)
	if stored.TwoFactorEnabled() || stored.OTPSecret != nil {
		t.Error("two-factor state not cleared")
	}
	count, _ := codes.CountUnused(context.Background(), account.ID)
	if count != 0 {
		t.Errorf("backup codes remaining = %d, want 0", count)
	}

	// Sessions issued before the disable no longer refresh.
	if _, err := sessions.RefreshSession(context.Background(), tokens.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("refresh after disable error = %v, want %v", err, domain.ErrSessionRevoked)
	}
}

func TestMFAStatus(t *testing.T) {
	mfa, _, codes, account := newTestMFAService(t)

	enabled, remaining, err := mfa.Status(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if enabled || remaining != 0 {
		t.Errorf("Status() = (%v, %d), want (false, 0)", enabled, remaining)
	}

	setup, _ := mfa.Setup(context.Background(), account.ID, "Sup3rSecret")
	code, _ := mfa.totp.Code(setup.Secret, time.Now())
	if err := mfa.Confirm(context.Background(), account.ID, code); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	enabled, remaining, err = mfa.Status(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !enabled || remaining != 10 {
		t.Errorf("Status() = (%v, %d), want (true, 10)", enabled, remaining)
	}

	// Consuming a code decrements the remaining count.
	if ok, _ := codes.Consume(context.Background(), account.ID, HashToken(NormalizeBackupCode(setup.BackupCodes[0]))); !ok {
		t.Fatal("Consume() = false, want true")
	}
	_, remaining, _ = mfa.Status(context.Background(), account.ID)
	if remaining != 9 {
		t.Errorf("remaining = %d, want 9", remaining)
	}
}

func TestNormalizeBackupCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABCD-EFGH-JKLM", "ABCDEFGHJKLM"},
		{"abcd-efgh-jklm", "ABCDEFGHJKLM"},
		{"ABCD EFGH JKLM", "ABCDEFGHJKLM"},
		{"ABCDEFGHJKLM", "ABCDEFGHJKLM"},
	}
	for _, tt := range tests {
		if got := NormalizeBackupCode(tt.in); got != tt.want {
			t.Errorf("NormalizeBackupCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
