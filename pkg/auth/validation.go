package auth

import (
	"regexp"
	"strings"

	"github.com/incidentops/incident-tracker/pkg/domain"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 64
	emailMaxLen    = 120
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidateUsername checks that a username is 3-64 characters of letters,
// digits, underscores and hyphens, starting with a letter or digit.
func ValidateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return domain.ErrInvalidUsername
	}
	if !usernameRegex.MatchString(username) {
		return domain.ErrInvalidUsername
	}
	return nil
}

// ValidateEmail performs basic format validation on an email address.
func ValidateEmail(email string) error {
	if email == "" || len(email) > emailMaxLen {
		return domain.ErrInvalidEmail
	}
	if !emailRegex.MatchString(email) {
		return domain.ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail lowercases and trims an email address so lookups and
// uniqueness checks are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
