// Package auth implements the authentication and authorization engine:
// password-credential lifecycle, session token issuance and rotation,
// federated identity linking, and the RBAC permission evaluator consulted by
// every privileged operation.
//
// A Service instance is safe for concurrent use as long as the injected
// stores are; it holds no per-request state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"himmel.app/internal/ids"
	"himmel.app/internal/mail"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = time.Hour
)

// Config carries the engine's operating parameters.
type Config struct {
	JWTSecret       []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	BcryptCost      int

	// FrontendURL is the base for password-reset links sent by email.
	FrontendURL string
}

// Service provides the auth engine operations.
type Service struct {
	users  UserStore
	roles  RoleStore
	mailer mail.Sender
	cfg    Config
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithMailer sets the outbound notification transport.
func WithMailer(m mail.Sender) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the engine. A missing signing secret is a boot-time
// fatal condition, not a per-request one.
func NewService(users UserStore, roles RoleStore, cfg Config, opts ...Option) (*Service, error) {
	if users == nil || roles == nil {
		return nil, errors.New("auth: user and role stores are required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaultRefreshTTL
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = defaultResetTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, errors.New("auth: bcrypt cost out of range")
	}
	svc := &Service{
		users:  users,
		roles:  roles,
		mailer: mail.LogSender{},
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SignUp registers a new password-based principal. Duplicate username or
// email yields ErrDuplicateEntry.
func (s *Service) SignUp(ctx context.Context, username, email, password string) (*User, error) {
	const op = "auth.SignUp"

	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validateUsername(username); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        normEmail,
		PasswordHash: hash,
		FavoriteTags: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// SignIn authenticates by identifier (username or email) and password. The
// error never distinguishes unknown identifier from wrong password. With
// rememberMe disabled the returned pair has no refresh token and the session
// cannot be silently renewed.
func (s *Service) SignIn(ctx context.Context, identifier, password string, rememberMe bool) (TokenPair, *User, error) {
	const op = "auth.SignIn"

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return TokenPair{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	if !checkPassword(user.PasswordHash, password) {
		return TokenPair{}, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueSession(ctx, user.ID, rememberMe)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, user, nil
}

// CurrentUser loads the principal referenced by a verified token.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	const op = "auth.CurrentUser"

	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// ListUsers returns all principals; requires the user/read grant.
func (s *Service) ListUsers(ctx context.Context, actorID string) ([]*User, error) {
	const op = "auth.ListUsers"

	if err := s.requirePermission(ctx, actorID, ResourceUser, ActionRead); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// SetPremium flips the premium flag for a principal. The payment gateway
// collaborator calls back into the engine only through this operation.
func (s *Service) SetPremium(ctx context.Context, userID string, premium bool, expiresAt *time.Time) error {
	const op = "auth.SetPremium"

	if err := s.users.SetPremium(ctx, userID, premium, expiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) lookupByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if strings.ContainsRune(identifier, '@') {
		return s.users.ByEmail(ctx, strings.ToLower(identifier))
	}
	return s.users.ByUsername(ctx, identifier)
}
