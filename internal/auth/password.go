package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword hashes a plaintext password with bcrypt at the configured
// process-wide cost. Output differs on repeated calls (salted); verification
// stays deterministic.
func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword compares a plaintext password against a stored hash using
// bcrypt's own comparison; timing characteristics are the algorithm's.
func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
