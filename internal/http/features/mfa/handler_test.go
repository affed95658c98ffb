package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/internal/http/middleware"
	"github.com/incidentops/incident-tracker/pkg/auth"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

type memAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newMemAccountStore() *memAccountStore {
	return &memAccountStore{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (s *memAccountStore) Create(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *memAccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAccountStore) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == identifier || a.Email == identifier {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *memAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *memAccountStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memAccountStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.FailedLogins+1 >= threshold {
		a.FailedLogins = 0
		until := time.Now().Add(lockFor)
		a.LockUntil = &until
	} else {
		a.FailedLogins++
	}
	return nil
}

func (s *memAccountStore) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		a.FailedLogins = 0
		a.LockUntil = nil
	}
	return nil
}

func (s *memAccountStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

func (s *memAccountStore) SetPendingTwoFactor(ctx context.Context, id uuid.UUID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.OTPSecret = &secret
	a.OTPConfirmed = false
	return nil
}

func (s *memAccountStore) ActivateTwoFactor(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.OTPConfirmed = true
	return nil
}

func (s *memAccountStore) ClearTwoFactor(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.OTPSecret = nil
	a.OTPConfirmed = false
	return nil
}

type memBackupCodeStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]map[string]bool // hash -> used
}

func newMemBackupCodeStore() *memBackupCodeStore {
	return &memBackupCodeStore{codes: make(map[uuid.UUID]map[string]bool)}
}

func (s *memBackupCodeStore) Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		fresh[h] = false
	}
	s.codes[accountID] = fresh
	return nil
}

func (s *memBackupCodeStore) Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	used, ok := s.codes[accountID][codeHash]
	if !ok || used {
		return false, nil
	}
	s.codes[accountID][codeHash] = true
	return true, nil
}

func (s *memBackupCodeStore) CountUnused(ctx context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, used := range s.codes[accountID] {
		if !used {
			n++
		}
	}
	return n, nil
}

func (s *memBackupCodeStore) DeleteAll(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, accountID)
	return nil
}

const testPassword = "correct horse battery"

type recordingSessionRevoker struct {
	revoked []uuid.UUID
}

func (r *recordingSessionRevoker) RevokeAllSessions(ctx context.Context, accountID uuid.UUID) error {
	r.revoked = append(r.revoked, accountID)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memAccountStore, auth.TOTPEngine, uuid.UUID) {
	t.Helper()
	accounts := newMemAccountStore()
	codes := newMemBackupCodeStore()
	totp := auth.NewTOTPEngine("incident-tracker-test", 30, 1)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	service := auth.NewMFAService(accounts, codes, totp, &recordingSessionRevoker{}, logger)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	accountID := uuid.New()
	if err := accounts.Create(context.Background(), &domain.Account{
		ID:           accountID,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Role:         domain.RoleRegular,
		CreatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("create account: %v", err)
	}

	return NewHandler(logger, service), accounts, totp, accountID
}

func doRequest(handler http.HandlerFunc, accountID uuid.UUID, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, accountID)
	rec := httptest.NewRecorder()
	handler(rec, req.WithContext(ctx))
	return rec
}

func TestSetupEndpoint(t *testing.T) {
	handler, _, _, accountID := newTestHandler(t)

	rec := doRequest(handler.Setup, accountID, SetupRequest{Password: testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp SetupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Secret == "" {
		t.Error("expected a secret in the response")
	}
	if resp.ProvisioningURI == "" {
		t.Error("expected a provisioning URI in the response")
	}
	if len(resp.BackupCodes) != 10 {
		t.Errorf("got %d backup codes, want 10", len(resp.BackupCodes))
	}
}

func TestSetupEndpoint_Rejections(t *testing.T) {
	handler, _, _, accountID := newTestHandler(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"wrong password", SetupRequest{Password: "nope"}, http.StatusForbidden},
		{"empty password", SetupRequest{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(handler.Setup, accountID, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSetupEndpoint_Unauthenticated(t *testing.T) {
	handler, _, _, _ := newTestHandler(t)

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(SetupRequest{Password: testPassword})
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	rec := httptest.NewRecorder()
	handler.Setup(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestConfirmEndpoint(t *testing.T) {
	handler, _, totp, accountID := newTestHandler(t)

	rec := doRequest(handler.Setup, accountID, SetupRequest{Password: testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("setup failed: %d", rec.Code)
	}
	var setup SetupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &setup); err != nil {
		t.Fatalf("decode setup response: %v", err)
	}

	t.Run("wrong code", func(t *testing.T) {
		rec := doRequest(handler.Confirm, accountID, ConfirmRequest{Code: "000000"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("valid code", func(t *testing.T) {
		code, err := totp.Code(setup.Secret, time.Now())
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		rec := doRequest(handler.Confirm, accountID, ConfirmRequest{Code: code})
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("already enabled", func(t *testing.T) {
		code, err := totp.Code(setup.Secret, time.Now())
		if err != nil {
			t.Fatalf("generate code: %v", err)
		}
		rec := doRequest(handler.Confirm, accountID, ConfirmRequest{Code: code})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
	})
}

func TestConfirmEndpoint_NothingPending(t *testing.T) {
	handler, _, _, accountID := newTestHandler(t)

	rec := doRequest(handler.Confirm, accountID, ConfirmRequest{Code: "123456"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestStatusAndDisableEndpoints(t *testing.T) {
	handler, _, totp, accountID := newTestHandler(t)

	status := func(t *testing.T) StatusResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), middleware.UserIDKey, accountID)
		rec := httptest.NewRecorder()
		handler.Status(rec, req.WithContext(ctx))
		if rec.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp StatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode status response: %v", err)
		}
		return resp
	}

	if got := status(t); got.Enabled {
		t.Error("2FA reported enabled before setup")
	}

	rec := doRequest(handler.Setup, accountID, SetupRequest{Password: testPassword})
	var setup SetupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &setup); err != nil {
		t.Fatalf("decode setup response: %v", err)
	}
	code, err := totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if rec := doRequest(handler.Confirm, accountID, ConfirmRequest{Code: code}); rec.Code != http.StatusOK {
		t.Fatalf("confirm failed: %d", rec.Code)
	}

	got := status(t)
	if !got.Enabled {
		t.Error("2FA reported disabled after confirmation")
	}
	if got.BackupCodesRemaining != 10 {
		t.Errorf("backup codes remaining = %d, want 10", got.BackupCodesRemaining)
	}

	if rec := doRequest(handler.Disable, accountID, DisableRequest{Password: "wrong"}); rec.Code != http.StatusForbidden {
		t.Errorf("disable with wrong password = %d, want %d", rec.Code, http.StatusForbidden)
	}
	if rec := doRequest(handler.Disable, accountID, DisableRequest{Password: testPassword}); rec.Code != http.StatusOK {
		t.Errorf("disable = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := status(t); got.Enabled {
		t.Error("2FA still reported enabled after disable")
	}
}
