package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"himmel.app/internal/mail"
	"himmel.app/internal/obs"
)

const resetTokenBytes = 32 // 256 bits of entropy

// CreateResetToken generates a one-time password-reset token for the account
// behind email, overwriting any prior token, and dispatches the reset link.
// Delivery failure does not roll back token creation; it is logged and the
// call still succeeds. Unknown email yields ErrUserNotFound — the HTTP layer
// collapses that to a uniform success so responses never confirm account
// existence.
func (s *Service) CreateResetToken(ctx context.Context, email string) error {
	const op = "auth.CreateResetToken"

	normEmail, err := normalizeEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.users.ByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := s.now().UTC().Add(s.cfg.ResetTokenTTL)

	if err := s.users.SetResetToken(ctx, user.ID, hashToken(plain), expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	link := strings.TrimRight(s.cfg.FrontendURL, "/") + "/reset-password/" + plain
	msg := mail.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Text:    "Follow this link to reset your password: " + link,
		HTML:    `<p>Follow <a href="` + link + `">this link</a> to reset your password. The link expires in one hour.</p>`,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		// Token already committed; surface as a warning, not a failure.
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "reset_mail_dispatch_failed",
			"op":    op,
			"err":   err.Error(),
		})
	}
	return nil
}

// ConsumeResetToken redeems a reset token exactly once: the password swap and
// the token clear apply in a single store statement, so a second redemption
// with the same token fails with ErrInvalidOrExpiredToken.
func (s *Service) ConsumeResetToken(ctx context.Context, token, newPassword string) error {
	const op = "auth.ConsumeResetToken"

	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
	}
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	newHash, err := hashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	userID, err := s.users.ConsumeResetToken(ctx, hashToken(token), newHash, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidOrExpiredToken)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// A reset invalidates the session chain: stolen refresh tokens die here.
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ChangePassword rotates the password for an authenticated principal after
// verifying the current one, then notifies the account's email.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	const op = "auth.ChangePassword"

	user, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if !checkPassword(user.PasswordHash, currentPassword) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	newHash, err := hashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.Email != "" {
		msg := mail.Message{
			To:      user.Email,
			Subject: "Password changed",
			Text:    "Your password has been changed.",
			HTML:    "<p>Your password has been changed.</p>",
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "change_mail_dispatch_failed",
				"op":    op,
				"err":   err.Error(),
			})
		}
	}
	return nil
}
