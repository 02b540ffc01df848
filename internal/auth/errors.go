package auth

import "errors"

// Sentinel errors of the auth engine. The HTTP layer maps each to a stable
// status and machine-readable code; none of them is recovered locally.
var (
	// ErrNoTokenProvided — no bearer credential in cookie or header. HTTP 401.
	ErrNoTokenProvided = errors.New("auth: no token provided")

	// ErrInvalidToken — bad signature, malformed claims, or stale refresh
	// token after rotation. HTTP 401.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrTokenExpired — token past its expiry. HTTP 401.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrInvalidCredentials — identifier/password pair rejected. Deliberately
	// covers "user not found" during sign-in so responses never reveal which
	// half failed. HTTP 401.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUserNotFound — the principal referenced by a verified token no
	// longer exists. HTTP 401.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrInvalidOrExpiredToken — password-reset token unknown, already
	// consumed, or past its deadline. HTTP 400.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired reset token")

	// ErrAccessDenied — RBAC and ownership both refused the operation. HTTP 403.
	ErrAccessDenied = errors.New("auth: access denied")

	// ErrDuplicateEntry — username or email already taken. HTTP 409.
	ErrDuplicateEntry = errors.New("auth: duplicate entry")

	// Validation errors. HTTP 400.
	ErrInvalidEmail      = errors.New("auth: invalid email format")
	ErrInvalidUsername   = errors.New("auth: invalid username")
	ErrWeakPassword      = errors.New("auth: password is too weak")
	ErrEmptyPassword     = errors.New("auth: password is empty")
	ErrInvalidPermission = errors.New("auth: invalid permission entry")

	// Store sentinels returned by UserStore/RoleStore implementations.
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)

// Code returns the machine-readable error code for client payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNoTokenProvided):
		return "NO_TOKEN_PROVIDED"
	case errors.Is(err, ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrUserNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, ErrAccessDenied):
		return "ACCESS_DENIED"
	case errors.Is(err, ErrDuplicateEntry), errors.Is(err, ErrAlreadyExists):
		return "DUPLICATE_ENTRY"
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrEmptyPassword),
		errors.Is(err, ErrInvalidPermission):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "STORAGE_ERROR"
	}
}
