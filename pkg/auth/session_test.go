package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (s *memSessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *memSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.TokenHash == tokenHash {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *memSessionStore) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	now := time.Now()
	sess.LastSeenAt = &now
	return nil
}

func (s *memSessionStore) Revoke(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.RevokedAt == nil {
		now := time.Now()
		sess.RevokedAt = &now
	}
	return nil
}

func (s *memSessionStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, sess := range s.sessions {
		if sess.AccountID == accountID && sess.RevokedAt == nil {
			sess.RevokedAt = &now
		}
	}
	return nil
}

func newTestSessionService(t *testing.T) (*SessionService, *memSessionStore, *domain.Account) {
	t.Helper()
	accounts := newMemAccountStore()
	passwordSvc := newTestPasswordService(t, accounts, newMemBackupCodeStore(), nil)
	account := registerTestAccount(t, passwordSvc, "alice", "alice@example.com", "Sup3rSecret")

	sessions := newMemSessionStore()
	svc := NewSessionService(SessionConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		JWTSecret:       []byte("test-secret-key-0123456789abcdef"),
		Issuer:          "incident-tracker-test",
	}, sessions, accounts)
	return svc, sessions, account
}

func TestIssueSession(t *testing.T) {
	svc, sessions, account := newTestSessionService(t)

	tokens, err := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{IP: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}
	if tokens.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", tokens.TokenType)
	}

	// Refresh token is stored hashed, never in the clear.
	stored, err := sessions.GetByTokenHash(context.Background(), HashToken(tokens.RefreshToken))
	if err != nil {
		t.Fatalf("session lookup by hash error = %v", err)
	}
	if stored.TokenHash == tokens.RefreshToken {
		t.Error("refresh token stored in the clear")
	}

	claims, err := svc.ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != account.ID.String() {
		t.Errorf("Subject = %q, want %q", claims.Subject, account.ID)
	}
	if claims.Role != string(domain.RoleRegular) {
		t.Errorf("Role claim = %q, want %q", claims.Role, domain.RoleRegular)
	}
	if claims.Username != "alice" {
		t.Errorf("Username claim = %q, want alice", claims.Username)
	}
}

func TestValidateAccessToken_Invalid(t *testing.T) {
	svc, _, account := newTestSessionService(t)

	if _, err := svc.ValidateAccessToken("garbage"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("ValidateAccessToken(garbage) error = %v, want %v", err, domain.ErrInvalidToken)
	}

	// Token signed with a different key.
	other := NewSessionService(SessionConfig{
		JWTSecret: []byte("another-secret-key-9876543210zyxw"),
		Issuer:    "incident-tracker-test",
	}, newMemSessionStore(), newMemAccountStore())
	tokens, err := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}
	if _, err := other.ValidateAccessToken(tokens.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("cross-key validation error = %v, want %v", err, domain.ErrInvalidToken)
	}
}

func TestRefreshSession(t *testing.T) {
	svc, sessions, account := newTestSessionService(t)

	tokens, err := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	refreshed, err := svc.RefreshSession(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession() error = %v", err)
	}
	if _, err := svc.ValidateAccessToken(refreshed.AccessToken); err != nil {
		t.Errorf("refreshed access token invalid: %v", err)
	}

	if _, err := svc.RefreshSession(context.Background(), "unknown-token"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("unknown refresh token error = %v, want %v", err, domain.ErrSessionNotFound)
	}

	// Expired session.
	stored, _ := sessions.GetByTokenHash(context.Background(), HashToken(tokens.RefreshToken))
	sessions.mu.Lock()
	sessions.sessions[stored.ID].ExpiresAt = time.Now().Add(-time.Minute)
	sessions.mu.Unlock()
	if _, err := svc.RefreshSession(context.Background(), tokens.RefreshToken); !errors.Is(err, domain.ErrSessionExpired) {
		t.Errorf("expired session error = %v, want %v", err, domain.ErrSessionExpired)
	}
}

func TestRevokeSession(t *testing.T) {
	svc, _, account := newTestSessionService(t)

	tokens, err := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{})
	if err != nil {
		t.Fatalf("IssueSession() error = %v", err)
	}

	if err := svc.RevokeSession(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if _, err := svc.RefreshSession(context.Background(), tokens.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Errorf("revoked session refresh error = %v, want %v", err, domain.ErrSessionRevoked)
	}

	// Revoking an unknown token is a no-op.
	if err := svc.RevokeSession(context.Background(), "unknown-token"); err != nil {
		t.Errorf("RevokeSession(unknown) error = %v, want nil", err)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	svc, _, account := newTestSessionService(t)

	first, _ := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{})
	second, _ := svc.IssueSession(context.Background(), account.ID, IssueSessionOpts{})

	if err := svc.RevokeAllSessions(context.Background(), account.ID); err != nil {
		t.Fatalf("RevokeAllSessions() error = %v", err)
	}

	for _, tokens := range []*domain.TokenPair{first, second} {
		if _, err := svc.RefreshSession(context.Background(), tokens.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
			t.Errorf("refresh after revoke-all error = %v, want %v", err, domain.ErrSessionRevoked)
		}
	}
}
