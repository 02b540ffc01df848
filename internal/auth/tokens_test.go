package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"himmel.app/internal/auth"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "token_user", "token@example.com", "Sup3r!secret")

	token, expiresAt, err := env.svc.IssueAccessToken(user.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if want := env.clock.Now().Add(15 * time.Minute); !expiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", expiresAt, want)
	}

	subject, err := env.svc.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if subject != user.ID {
		t.Fatalf("subject = %q, want %q", subject, user.ID)
	}
}

func TestVerifyAccessTokenFailures(t *testing.T) {
	env := newTestEnv(t)
	user := env.signUp(t, "token_user", "token@example.com", "Sup3r!secret")

	if _, err := env.svc.VerifyAccessToken(""); !errors.Is(err, auth.ErrNoTokenProvided) {
		t.Fatalf("empty token: got %v, want ErrNoTokenProvided", err)
	}
	if _, err := env.svc.VerifyAccessToken("not.a.jwt"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("garbage token: got %v, want ErrInvalidToken", err)
	}

	token, _, err := env.svc.IssueAccessToken(user.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	env.clock.Advance(16 * time.Minute)
	if _, err := env.svc.VerifyAccessToken(token); !errors.Is(err, auth.ErrTokenExpired) {
		t.Fatalf("expired token: got %v, want ErrTokenExpired", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "rotator", "rotate@example.com", "Sup3r!secret")

	pair, _, err := env.svc.SignIn(ctx, "rotator", "Sup3r!secret", true)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	old := pair.RefreshToken

	env.clock.Advance(time.Minute)
	next, err := env.svc.Rotate(ctx, old)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if next.RefreshToken == "" || next.RefreshToken == old {
		t.Fatalf("rotation did not mint a fresh refresh token")
	}
	if next.AccessToken == "" {
		t.Fatalf("rotation did not mint a fresh access token")
	}

	// Replaying the superseded token must fail: the stored hash moved on.
	if _, err := env.svc.Rotate(ctx, old); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("replayed rotation: got %v, want ErrInvalidToken", err)
	}
	// The winner keeps rotating.
	if _, err := env.svc.Rotate(ctx, next.RefreshToken); err != nil {
		t.Fatalf("follow-up rotation: %v", err)
	}
}

func TestRotateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signUp(t, "rotator", "rotate@example.com", "Sup3r!secret")

	if _, err := env.svc.Rotate(ctx, ""); !errors.Is(err, auth.ErrNoTokenProvided) {
		t.Fatalf("empty refresh: got %v, want ErrNoTokenProvided", err)
	}

	// An access token is not acceptable where a refresh token is expected.
	access, _, err := env.svc.IssueAccessToken(user.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if _, err := env.svc.Rotate(ctx, access); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("access token as refresh: got %v, want ErrInvalidToken", err)
	}
}

func TestRevokeEndsSessionChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signUp(t, "leaver", "leave@example.com", "Sup3r!secret")

	pair, _, err := env.svc.SignIn(ctx, "leaver", "Sup3r!secret", true)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if err := env.svc.Revoke(ctx, user.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := env.svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("rotation after revoke: got %v, want ErrInvalidToken", err)
	}
}
