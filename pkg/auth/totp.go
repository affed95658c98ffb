package auth

import (
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretSize = 20 // 160-bit secret, base32 encoded
	totpDigits     = otp.DigitsSix

	// DefaultTOTPPeriod is the standard 30-second time step.
	DefaultTOTPPeriod = 30
	// DefaultTOTPSkew accepts one step before and after the current one,
	// tolerating +/-30s of clock drift.
	DefaultTOTPSkew = 1
)

// TOTPEngine generates and validates time-based one-time codes. All methods
// are pure computations; replay tracking within the skew window is the
// caller's responsibility.
type TOTPEngine struct {
	Issuer string
	Period uint
	Skew   uint
}

// NewTOTPEngine creates a TOTP engine with the given issuer and defaults
// for period and skew when zero.
func NewTOTPEngine(issuer string, period, skew uint) TOTPEngine {
	if period == 0 {
		period = DefaultTOTPPeriod
	}
	return TOTPEngine{Issuer: issuer, Period: period, Skew: skew}
}

// GenerateSecret creates a new cryptographically random base32 secret.
func (e TOTPEngine) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: "pending",
		Period:      e.Period,
		SecretSize:  totpSecretSize,
		Digits:      totpDigits,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Code derives the 6-digit code for the given secret at the given time.
func (e TOTPEngine) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, e.validateOpts())
}

// Verify checks a candidate code against the secret at the given time,
// accepting codes from adjacent time steps within the configured skew.
// Malformed secrets and codes verify as false.
func (e TOTPEngine) Verify(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at, e.validateOpts())
	return err == nil && valid
}

// ProvisioningURI returns the otpauth:// enrollment URI for authenticator
// apps.
func (e TOTPEngine) ProvisioningURI(secret, accountLabel string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountLabel,
		Period:      e.Period,
		Secret:      raw,
		Digits:      totpDigits,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

func (e TOTPEngine) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    e.Period,
		Skew:      e.Skew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}
