package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"

	"himmel.app/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore persists principals in the users table. Token hashes live on the
// user row so every rotation and redemption is a single-row atomic update.
type UserStore struct {
	db *sql.DB
}

func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

const userColumns = `
	id, username, email, full_name, password_hash, federation_id, role_id,
	is_premium, premium_expires_at, bio, favorite_tags, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	tags, err := json.Marshal(u.FavoriteTags)
	if err != nil {
		return fmt.Errorf("marshal favorite tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (
			id, username, email, full_name, password_hash, federation_id, role_id,
			is_premium, premium_expires_at, bio, favorite_tags, created_at, updated_at
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		u.ID, nullString(u.Username), nullString(u.Email), u.FullName,
		nullString(u.PasswordHash), nullString(u.FederationID), nullString(u.RoleID),
		u.IsPremium, nullTime(u.PremiumExpiresAt), u.Bio, tags,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (*auth.User, error) {
	return s.one(ctx, `where id = $1`, id)
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.one(ctx, `where email = $1`, email)
}

func (s *UserStore) ByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.one(ctx, `where username = $1`, username)
}

func (s *UserStore) ByFederationID(ctx context.Context, federationID string) (*auth.User, error) {
	return s.one(ctx, `where federation_id = $1`, federationID)
}

func (s *UserStore) one(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users `+where, arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.exec(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, id, passwordHash)
}

func (s *UserStore) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.exec(ctx, `
		update users set reset_token_hash = $2, reset_expires_at = $3 where id = $1
	`, id, tokenHash, expiresAt)
}

func (s *UserStore) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		update users
		set password_hash = $2, reset_token_hash = null, reset_expires_at = null,
			updated_at = now()
		where reset_token_hash = $1 and reset_expires_at >= $3
		returning id
	`, tokenHash, newPasswordHash, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *UserStore) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return s.exec(ctx, `
		update users set refresh_token_hash = $2, refresh_expires_at = $3 where id = $1
	`, id, tokenHash, expiresAt)
}

func (s *UserStore) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	// Compare-and-set on the stored hash; a concurrent rotation that already
	// replaced it makes this a no-op reported as ErrNotFound.
	return s.exec(ctx, `
		update users set refresh_token_hash = $3, refresh_expires_at = $4
		where id = $1 and refresh_token_hash = $2
	`, id, oldHash, newHash, expiresAt)
}

func (s *UserStore) ClearRefreshToken(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update users set refresh_token_hash = null, refresh_expires_at = null where id = $1
	`, id)
}

func (s *UserStore) LinkFederation(ctx context.Context, id, federationID string) error {
	return s.exec(ctx, `
		update users set federation_id = $2, updated_at = now() where id = $1
	`, id, federationID)
}

func (s *UserStore) SetRole(ctx context.Context, id, roleID string) error {
	return s.exec(ctx, `
		update users set role_id = $2, updated_at = now() where id = $1
	`, id, nullString(roleID))
}

func (s *UserStore) SetPremium(ctx context.Context, id string, premium bool, expiresAt *time.Time) error {
	return s.exec(ctx, `
		update users set is_premium = $2, premium_expires_at = $3, updated_at = now() where id = $1
	`, id, premium, nullTime(expiresAt))
}

func (s *UserStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                             auth.User
		username, email, passwordHash sql.NullString
		federationID, roleID          sql.NullString
		premiumExpiresAt              sql.NullTime
		tags                          []byte
	)
	err := row.Scan(
		&u.ID, &username, &email, &u.FullName, &passwordHash, &federationID,
		&roleID, &u.IsPremium, &premiumExpiresAt, &u.Bio, &tags,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.Email = email.String
	u.PasswordHash = passwordHash.String
	u.FederationID = federationID.String
	u.RoleID = roleID.String
	if premiumExpiresAt.Valid {
		at := premiumExpiresAt.Time
		u.PremiumExpiresAt = &at
	}
	u.FavoriteTags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &u.FavoriteTags); err != nil {
			return nil, fmt.Errorf("decode favorite tags: %w", err)
		}
	}
	return &u, nil
}
