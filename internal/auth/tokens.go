package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// clockLeeway absorbs small skew between issuing and verifying hosts.
	clockLeeway = 5 * time.Second
)

type sessionClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// IssueAccessToken mints a short-lived, self-contained access token for the
// principal. Verification needs no store lookup.
func (s *Service) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.signToken(userID, tokenTypeAccess, s.cfg.AccessTokenTTL)
}

// VerifyAccessToken checks signature and expiry and returns the principal id.
func (s *Service) VerifyAccessToken(token string) (string, error) {
	const op = "auth.VerifyAccessToken"

	userID, err := s.parseToken(token, tokenTypeAccess)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userID, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token must
// verify by signature and expiry AND match the hash stored on the principal;
// the store-side compare-and-set guarantees at most one winner when two
// requests race with the same stale token.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	const op = "auth.Rotate"

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, fmt.Errorf("%s: %w", op, ErrNoTokenProvided)
	}

	userID, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.users.ByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newRefresh, refreshExp, err := s.signToken(userID, tokenTypeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	err = s.users.RotateRefreshToken(ctx, userID, hashToken(refreshToken), hashToken(newRefresh), refreshExp)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Stored hash differs: token already rotated or revoked.
			return TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	access, accessExp, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     newRefresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Revoke nulls the stored refresh token. Already-issued access tokens stay
// valid until natural expiry; their short lifetime bounds the exposure.
func (s *Service) Revoke(ctx context.Context, userID string) error {
	const op = "auth.Revoke"

	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// issueSession mints the token pair for a principal. With refresh disabled
// only the access token is produced and nothing is persisted.
func (s *Service) issueSession(ctx context.Context, userID string, withRefresh bool) (TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	pair := TokenPair{AccessToken: access, AccessExpiresAt: accessExp}

	if !withRefresh {
		return pair, nil
	}

	refresh, refreshExp, err := s.signToken(userID, tokenTypeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.users.SetRefreshToken(ctx, userID, hashToken(refresh), refreshExp); err != nil {
		return TokenPair{}, err
	}
	pair.RefreshToken = refresh
	pair.RefreshExpiresAt = refreshExp
	return pair, nil
}

func (s *Service) signToken(userID, tokenType string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrUserNotFound
	}
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := sessionClaims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, exp, nil
}

func (s *Service) parseToken(token, wantType string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoTokenProvided
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return s.cfg.JWTSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockLeeway),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.TokenType != wantType || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// hashToken digests a token for at-rest storage; the plaintext never touches
// the database.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
