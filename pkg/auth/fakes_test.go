package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// memAccountStore is an in-memory AccountStore for tests. It mirrors the
// Postgres repository's conditional-write semantics for login failures.
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
	for _, a := range s.accounts {
		if a.Username == account.Username {
			return domain.ErrDuplicateUsername
		}
		if a.Email == account.Email {
			return domain.ErrDuplicateEmail
		}
	}
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
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.FailedLogins = 0
	a.LockUntil = nil
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
	if !ok || a.OTPSecret == nil {
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

// memBackupCodeStore is an in-memory BackupCodeStore for tests.
type memBackupCodeStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]map[string]bool // accountID -> codeHash -> used
}

func newMemBackupCodeStore() *memBackupCodeStore {
	return &memBackupCodeStore{codes: make(map[uuid.UUID]map[string]bool)}
}

func (s *memBackupCodeStore) Replace(ctx context.Context, accountID uuid.UUID, codeHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool, len(codeHashes))
	for _, h := range codeHashes {
		set[h] = false
	}
	s.codes[accountID] = set
	return nil
}

func (s *memBackupCodeStore) Consume(ctx context.Context, accountID uuid.UUID, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.codes[accountID]
	if !ok {
		return false, nil
	}
	used, ok := set[codeHash]
	if !ok || used {
		return false, nil
	}
	set[codeHash] = true
	return true, nil
}

func (s *memBackupCodeStore) CountUnused(ctx context.Context, accountID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, used := range s.codes[accountID] {
		if !used {
			count++
		}
	}
	return count, nil
}

func (s *memBackupCodeStore) DeleteAll(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, accountID)
	return nil
}

// captureMailer records the last reset URL instead of sending email.
type captureMailer struct {
	mu      sync.Mutex
	lastTo  string
	lastURL string
	sent    int
}

func (m *captureMailer) SendPasswordResetEmail(to, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = to
	m.lastURL = resetURL
	m.sent++
	return nil
}
