package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"himmel.app/internal/ids"
)

// SignInOrLinkFederated resolves a verified third-party identity to a local
// principal. Lookup order: federation id match signs in as-is; an email match
// without a federation id links the identity to that account (merge, not
// duplicate); otherwise a credential-less principal is created. The boolean
// reports whether a new principal was created.
func (s *Service) SignInOrLinkFederated(ctx context.Context, providerID, email, displayName string) (*User, bool, error) {
	const op = "auth.SignInOrLinkFederated"

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	normEmail, err := normalizeEmail(email)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.ByFederationID(ctx, providerID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	user, err = s.users.ByEmail(ctx, normEmail)
	if err == nil {
		if err := s.users.LinkFederation(ctx, user.ID, providerID); err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		user.FederationID = providerID
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user = &User{
		ID:           ids.New(),
		Email:        normEmail,
		FullName:     strings.TrimSpace(displayName),
		FederationID: providerID,
		FavoriteTags: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, false, fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return user, true, nil
}

// SignInFederated runs the three-way resolution and issues a full session
// (federated sessions always carry a refresh token).
func (s *Service) SignInFederated(ctx context.Context, providerID, email, displayName string) (TokenPair, *User, bool, error) {
	const op = "auth.SignInFederated"

	user, isNew, err := s.SignInOrLinkFederated(ctx, providerID, email, displayName)
	if err != nil {
		return TokenPair{}, nil, false, err
	}
	pair, err := s.issueSession(ctx, user.ID, true)
	if err != nil {
		return TokenPair{}, nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return pair, user, isNew, nil
}
