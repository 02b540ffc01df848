package auth

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	usernameMinLen = 4
	usernameMaxLen = 32
	passwordMinLen = 8
	passwordMaxLen = 32
	emailMaxLen    = 254
)

// normalizeEmail validates the basic address shape and lowercases it.
func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" || len(email) > emailMaxLen {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

// validateUsername enforces 4-32 characters of letters, digits and underscores.
func validateUsername(username string) error {
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return ErrInvalidUsername
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return ErrInvalidUsername
		}
	}
	return nil
}

// validatePassword enforces the platform password policy: 8-32 characters
// with at least one lowercase, uppercase, digit and special character.
func validatePassword(pw string) error {
	if pw == "" {
		return ErrEmptyPassword
	}
	if n := len([]rune(pw)); n < passwordMinLen || n > passwordMaxLen {
		return ErrWeakPassword
	}
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return ErrWeakPassword
	}
	return nil
}
