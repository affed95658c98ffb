package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// Token purposes. Verification rejects a token presented for a purpose it
// was not issued for.
const (
	PurposePasswordReset = "password-reset"
)

// TokenService issues and verifies signed, time-bound, purpose-scoped
// tokens. Tokens are stateless: nothing is persisted server-side and
// verification is a pure HMAC check.
type TokenService struct {
	secret []byte
	issuer string
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret []byte, issuer string) *TokenService {
	return &TokenService{secret: secret, issuer: issuer}
}

// TokenPayload is the verified content of a token.
type TokenPayload struct {
	AccountID   uuid.UUID
	Purpose     string
	Fingerprint string
}

type purposeClaims struct {
	jwt.RegisteredClaims
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fpr,omitempty"`
}

// Issue creates a signed token for the given account and purpose, valid for
// ttl. The optional fingerprint binds the token to state that changes when
// the token is used; pass the result of PasswordFingerprint for reset tokens
// so an old token stops verifying once the password actually changes.
func (s *TokenService) Issue(accountID uuid.UUID, purpose, fingerprint string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := purposeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Purpose:     purpose,
		Fingerprint: fingerprint,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature, expiry and purpose, and returns the payload.
// Expired tokens fail with domain.ErrExpiredToken; everything else that does
// not validate fails with domain.ErrInvalidToken.
func (s *TokenService) Verify(tokenString, expectedPurpose string) (*TokenPayload, error) {
	claims := &purposeClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrExpiredToken
		}
		return nil, domain.ErrInvalidToken
	}

	if claims.Purpose != expectedPurpose {
		return nil, domain.ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}

	return &TokenPayload{
		AccountID:   accountID,
		Purpose:     claims.Purpose,
		Fingerprint: claims.Fingerprint,
	}, nil
}

// PasswordFingerprint derives a short non-reversible fingerprint of a
// password hash. Reset tokens carry it so they become stale as soon as the
// password they were issued against is replaced.
func PasswordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// FingerprintsEqual compares two fingerprints in constant time.
func FingerprintsEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// GenerateToken generates a cryptographically secure random opaque token.
func GenerateToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashToken hashes an opaque token with SHA-256 for storage and lookup.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(hash[:])
}
