package auth

import (
	"context"
	"time"
)

// UserStore describes persistence operations for principals. Implementations
// return ErrNotFound and ErrAlreadyExists from this package; every mutating
// call must apply atomically (single-statement document update).
type UserStore interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
	ByFederationID(ctx context.Context, federationID string) (*User, error)
	List(ctx context.Context) ([]*User, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetResetToken overwrites any prior reset token, invalidating it.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// ConsumeResetToken looks up the principal whose live (unexpired) reset
	// token matches tokenHash, swaps in the new password hash, and clears the
	// reset fields in the same statement. Returns the principal id, or
	// ErrNotFound when no live match exists.
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error)

	// SetRefreshToken overwrites the stored refresh token, enforcing the
	// single-session-chain invariant.
	SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// RotateRefreshToken replaces oldHash with newHash in one compare-and-set
	// statement. ErrNotFound means the stored value no longer matches —
	// a concurrent rotation already won.
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error

	ClearRefreshToken(ctx context.Context, id string) error

	// LinkFederation attaches a federation id to an existing local account.
	LinkFederation(ctx context.Context, id, federationID string) error

	// SetRole assigns a role (empty roleID clears it).
	SetRole(ctx context.Context, id, roleID string) error

	// SetPremium flips the premium flag; the payment collaborator is the only
	// caller besides tests.
	SetPremium(ctx context.Context, id string, premium bool, expiresAt *time.Time) error
}

// RoleStore describes persistence operations for roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	ByID(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context, q RoleQuery) ([]*Role, int, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
}
