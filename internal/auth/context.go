package auth

import (
	"context"
	"strings"
)

type ctxKey string

const principalIDKey ctxKey = "auth_principal_id"

// ContextWithPrincipal stores the verified principal id in the context. The
// identity gate is the only writer.
func ContextWithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalIDKey, strings.TrimSpace(userID))
}

// PrincipalFromContext extracts the authenticated principal id.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(principalIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
